package adapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
	"github.com/dejobratic/storefront/internal/kafka"
	"github.com/dejobratic/storefront/internal/telemetry"
)

type ObservableEventBus struct {
	bus ports.EventBus
}

func NewObservableEventBus(bus ports.EventBus) *ObservableEventBus {
	return &ObservableEventBus{bus: bus}
}

func (e *ObservableEventBus) PublishOrderCommitted(ctx context.Context, order domain.Order) error {
	return telemetry.InSpan(ctx, "EventBus.PublishOrderCommitted", func(ctx context.Context) error {
		return e.bus.PublishOrderCommitted(ctx, order)
	},
		attribute.String("order.id", order.ID),
		attribute.String("event.type", kafka.EventOrderCommitted),
	)
}

func (e *ObservableEventBus) PublishStockClamped(ctx context.Context, adjustment domain.StockAdjustment) error {
	return telemetry.InSpan(ctx, "EventBus.PublishStockClamped", func(ctx context.Context) error {
		return e.bus.PublishStockClamped(ctx, adjustment)
	},
		attribute.String("order.id", adjustment.OrderID),
		attribute.String("product.id", adjustment.ProductID),
		attribute.String("event.type", kafka.EventStockClamped),
	)
}

func (e *ObservableEventBus) PublishPaymentOrphaned(ctx context.Context, result domain.PaymentResult) error {
	return telemetry.InSpan(ctx, "EventBus.PublishPaymentOrphaned", func(ctx context.Context) error {
		return e.bus.PublishPaymentOrphaned(ctx, result)
	},
		attribute.String("payment.correlation_id", result.CorrelationID),
		attribute.String("payment.source", string(result.Source)),
		attribute.String("event.type", kafka.EventPaymentOrphaned),
	)
}
