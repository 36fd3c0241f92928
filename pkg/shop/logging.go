package shop

import (
	"context"
	"fmt"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing shop operation.
type OperationLog struct {
	Operation string
	AccountID AccountID
	ActorID   AccountID
	PlanID    PlanID
	OrderID   OrderID
	Amount    AmountCents
	Quantity  int
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithMaxPurchaseQuantity overrides DefaultMaxPurchaseQuantity.
func WithMaxPurchaseQuantity(limit int) ServiceOption {
	return func(service *Service) {
		service.maxPurchaseQuantity = limit
	}
}

// MultiOperationLogger fans a log entry out to several loggers.
type MultiOperationLogger []OperationLogger

// LogOperation forwards the entry to every non-nil logger.
func (loggers MultiOperationLogger) LogOperation(ctx context.Context, entry OperationLog) {
	for _, logger := range loggers {
		if logger != nil {
			logger.LogOperation(ctx, entry)
		}
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		entry.Status = operationStatus(entry.Error)
	}
	service.logger.LogOperation(ctx, entry)
}

func operationStatus(err error) string {
	switch {
	case err == nil:
		return OperationStatusOK
	case IsRejection(err):
		return OperationStatusRejected
	default:
		return OperationStatusError
	}
}

func validateServiceOptions(service *Service) error {
	if service.maxPurchaseQuantity <= 0 {
		return fmt.Errorf("%w: max purchase quantity must be positive", ErrInvalidServiceConfig)
	}
	return nil
}
