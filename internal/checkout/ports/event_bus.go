package ports

import (
	"context"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

// EventBus publishes checkout events for downstream consumers.
type EventBus interface {
	PublishOrderCommitted(ctx context.Context, order domain.Order) error
	PublishStockClamped(ctx context.Context, adjustment domain.StockAdjustment) error
	PublishPaymentOrphaned(ctx context.Context, result domain.PaymentResult) error
}
