// Package adapters holds tracing decorators for the checkout ports.
package adapters

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
)

// ObservableRepository traces every order repository call. Storage latency is
// recorded by the repository itself.
type ObservableRepository struct {
	repo ports.OrderRepository
}

func NewObservableRepository(repo ports.OrderRepository) *ObservableRepository {
	return &ObservableRepository{repo: repo}
}

func (r *ObservableRepository) Create(ctx context.Context, order domain.Order) error {
	return telemetry.InSpan(ctx, "OrderRepository.Create", func(ctx context.Context) error {
		return r.repo.Create(ctx, order)
	},
		attribute.String("order.id", order.ID),
		attribute.String("order.reference", order.Reference),
		attribute.String("operation", "create"),
	)
}

func (r *ObservableRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	var order *domain.Order
	err := telemetry.InSpan(ctx, "OrderRepository.GetByID", func(ctx context.Context) error {
		var err error
		order, err = r.repo.GetByID(ctx, id)
		return err
	},
		attribute.String("order.id", id),
		attribute.String("operation", "get_by_id"),
	)
	return order, err
}

func (r *ObservableRepository) GetByReference(ctx context.Context, reference string) (*domain.Order, error) {
	var order *domain.Order
	err := telemetry.InSpan(ctx, "OrderRepository.GetByReference", func(ctx context.Context) error {
		var err error
		order, err = r.repo.GetByReference(ctx, reference)
		return err
	},
		attribute.String("order.reference", reference),
		attribute.String("operation", "get_by_reference"),
	)
	return order, err
}

func (r *ObservableRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*domain.Order, error) {
	var order *domain.Order
	err := telemetry.InSpan(ctx, "OrderRepository.GetByCorrelationID", func(ctx context.Context) error {
		var err error
		order, err = r.repo.GetByCorrelationID(ctx, correlationID)
		return err
	},
		attribute.String("payment.correlation_id", correlationID),
		attribute.String("operation", "get_by_correlation_id"),
	)
	return order, err
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", "list"),
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
	}
	if filter.Status != nil {
		attrs = append(attrs, attribute.String("filter.status", string(*filter.Status)))
	}

	var orders []domain.Order
	err := telemetry.InSpan(ctx, "OrderRepository.List", func(ctx context.Context) error {
		var err error
		orders, err = r.repo.List(ctx, filter)
		return err
	}, attrs...)
	return orders, err
}

func (r *ObservableRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	return telemetry.InSpan(ctx, "OrderRepository.UpdateStatus", func(ctx context.Context) error {
		return r.repo.UpdateStatus(ctx, id, from, to)
	},
		attribute.String("order.id", id),
		attribute.String("order.old_status", string(from)),
		attribute.String("order.new_status", string(to)),
		attribute.String("operation", "update_status"),
	)
}

func (r *ObservableRepository) MarkStockApplied(ctx context.Context, id string) error {
	return telemetry.InSpan(ctx, "OrderRepository.MarkStockApplied", func(ctx context.Context) error {
		return r.repo.MarkStockApplied(ctx, id)
	}, attribute.String("order.id", id))
}

func (r *ObservableRepository) FlagForReconciliation(ctx context.Context, id, note string) error {
	return telemetry.InSpan(ctx, "OrderRepository.FlagForReconciliation", func(ctx context.Context) error {
		return r.repo.FlagForReconciliation(ctx, id, note)
	},
		attribute.String("order.id", id),
		attribute.String("reconciliation.note", note),
	)
}

func (r *ObservableRepository) ListProvisional(ctx context.Context, limit int) ([]domain.Order, error) {
	var orders []domain.Order
	err := telemetry.InSpan(ctx, "OrderRepository.ListProvisional", func(ctx context.Context) error {
		var err error
		orders, err = r.repo.ListProvisional(ctx, limit)
		return err
	}, attribute.Int("limit", limit))
	return orders, err
}

func (r *ObservableRepository) MarkReconciliationChecked(ctx context.Context, id string, at time.Time) error {
	return telemetry.InSpan(ctx, "OrderRepository.MarkReconciliationChecked", func(ctx context.Context) error {
		return r.repo.MarkReconciliationChecked(ctx, id, at)
	}, attribute.String("order.id", id))
}

func (r *ObservableRepository) SetVerification(ctx context.Context, id string, verification domain.PaymentVerification, receipt string) error {
	return telemetry.InSpan(ctx, "OrderRepository.SetVerification", func(ctx context.Context) error {
		return r.repo.SetVerification(ctx, id, verification, receipt)
	},
		attribute.String("order.id", id),
		attribute.String("order.verification", string(verification)),
	)
}

// ObservableInventory traces stock decrements and reads.
type ObservableInventory struct {
	inventory ports.InventoryStore
}

func NewObservableInventory(inventory ports.InventoryStore) *ObservableInventory {
	return &ObservableInventory{inventory: inventory}
}

func (i *ObservableInventory) Decrement(ctx context.Context, req domain.StockDecrement) (domain.StockAdjustment, error) {
	ctx, span := telemetry.StartSpan(ctx, "InventoryStore.Decrement")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", req.OrderID),
		attribute.String("product.id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
	)

	adj, err := i.inventory.Decrement(ctx, req)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		return adj, err
	}

	telemetry.AddSpanAttributes(span,
		attribute.Int("stock.reserved", adj.Reserved),
		attribute.Int("stock.remaining", adj.RemainingStock),
	)
	if adj.Clamped() {
		telemetry.AddSpanEvent(span, "stock.clamped", attribute.Int("backordered", adj.Backordered()))
	}
	telemetry.SetSpanSuccess(span)
	return adj, nil
}

func (i *ObservableInventory) Stock(ctx context.Context, productID string) (int, error) {
	var stock int
	err := telemetry.InSpan(ctx, "InventoryStore.Stock", func(ctx context.Context) error {
		var err error
		stock, err = i.inventory.Stock(ctx, productID)
		return err
	}, attribute.String("product.id", productID))
	return stock, err
}
