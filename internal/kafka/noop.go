package kafka

import (
	"context"
	"log/slog"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

// NoopEventBus logs events instead of publishing them. Used when no brokers are configured.
type NoopEventBus struct {
	logger *slog.Logger
}

func NewNoopEventBus(logger *slog.Logger) *NoopEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopEventBus{logger: logger}
}

func (n *NoopEventBus) PublishOrderCommitted(ctx context.Context, order domain.Order) error {
	n.logger.DebugContext(ctx, "event::"+EventOrderCommitted, "order_id", order.ID, "reference", order.Reference)
	return nil
}

func (n *NoopEventBus) PublishStockClamped(ctx context.Context, adjustment domain.StockAdjustment) error {
	n.logger.DebugContext(ctx, "event::"+EventStockClamped,
		"order_id", adjustment.OrderID,
		"product_id", adjustment.ProductID,
		"backordered", adjustment.Backordered(),
	)
	return nil
}

func (n *NoopEventBus) PublishPaymentOrphaned(ctx context.Context, result domain.PaymentResult) error {
	n.logger.DebugContext(ctx, "event::"+EventPaymentOrphaned, "correlation_id", result.CorrelationID, "reference", result.Reference)
	return nil
}
