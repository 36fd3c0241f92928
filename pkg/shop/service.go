package shop

import (
	"context"
	"fmt"
	"time"
)

// Service contains the shop domain logic over a Store.
type Service struct {
	store               Store
	nowFn               func() time.Time
	logger              OperationLogger
	maxPurchaseQuantity int
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:               store,
		nowFn:               now,
		maxPurchaseQuantity: DefaultMaxPurchaseQuantity,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if err := validateServiceOptions(service); err != nil {
		return nil, err
	}
	return service, nil
}

// MaxPurchaseQuantity returns the configured per-order key cap.
func (service *Service) MaxPurchaseQuantity() int {
	return service.maxPurchaseQuantity
}

func (service *Service) now() time.Time {
	return service.nowFn().UTC()
}

// applyLedgerEntry adds the signed amount to the balance and appends the entry in the
// caller's unit. It applies no sign policy.
func applyLedgerEntry(ctx context.Context, transactionStore Store, input LedgerEntryInput) (LedgerEntry, AmountCents, error) {
	balance, err := transactionStore.AddToBalance(ctx, input.AccountID, input.Amount)
	if err != nil {
		return LedgerEntry{}, 0, err
	}
	entry, err := transactionStore.InsertLedgerEntry(ctx, input)
	if err != nil {
		return LedgerEntry{}, 0, err
	}
	return entry, balance, nil
}

func normalizeListLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func adminRef(adminID AccountID) *AccountID {
	if adminID.IsZero() {
		return nil
	}
	ref := adminID
	return &ref
}
