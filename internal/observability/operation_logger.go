package observability

import (
	"context"

	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
	"go.uber.org/zap"
)

// ZapOperationLogger writes shop operations to zap. Rejections log at info, failures at error.
type ZapOperationLogger struct {
	base *zap.Logger
}

// NewZapOperationLogger wraps base.
func NewZapOperationLogger(base *zap.Logger) *ZapOperationLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &ZapOperationLogger{base: base}
}

func (logger *ZapOperationLogger) LogOperation(ctx context.Context, entry shop.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.AccountID.IsZero() {
		fields = append(fields, zap.Int64("account_id", entry.AccountID.Int64()))
	}
	if !entry.ActorID.IsZero() {
		fields = append(fields, zap.Int64("actor_id", entry.ActorID.Int64()))
	}
	if !entry.PlanID.IsZero() {
		fields = append(fields, zap.Int64("plan_id", entry.PlanID.Int64()))
	}
	if entry.OrderID.Int64() != 0 {
		fields = append(fields, zap.Int64("order_id", entry.OrderID.Int64()))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.String("amount", entry.Amount.String()))
	}
	if entry.Quantity != 0 {
		fields = append(fields, zap.Int("quantity", entry.Quantity))
	}
	log := WithContext(ctx, logger.base)
	switch entry.Status {
	case shop.OperationStatusOK:
		log.Info("shop operation", fields...)
	case shop.OperationStatusRejected:
		log.Info("shop operation rejected", append(fields, zap.String("reason", shop.Reason(entry.Error)), zap.Error(entry.Error))...)
	default:
		log.Error("shop operation failed", append(fields, zap.Error(entry.Error))...)
	}
}

var _ shop.OperationLogger = (*ZapOperationLogger)(nil)
