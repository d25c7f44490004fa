package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/metrics"
	"github.com/dejobratic/storefront/internal/checkout/ports"
)

// CommitOrderCommand turns a confirmed payment attempt into an order. Items and
// Total are the quote the customer was asked to pay.
type CommitOrderCommand struct {
	CustomerID      string
	Reference       string
	Items           []domain.CartItem
	Total           int64
	ShippingAddress domain.Address
	PaymentMethod   domain.PaymentMethod
	CorrelationID   string
	Verification    domain.PaymentVerification
	// Receipt and PaidAmount come from the provider's settlement, when there is one.
	// A PaidAmount of zero means the provider did not report an amount.
	Receipt    string
	PaidAmount int64
}

func (c CommitOrderCommand) Validate() error {
	if strings.TrimSpace(c.CustomerID) == "" {
		return errors.New("customer_id is required")
	}
	if strings.TrimSpace(c.Reference) == "" {
		return errors.New("reference is required")
	}
	if len(c.Items) == 0 {
		return &domain.ValidationError{Reason: "cannot commit an empty cart", Err: domain.ErrEmptyCart}
	}
	if c.Total <= 0 {
		return errors.New("total must be positive")
	}
	if !c.Verification.Valid() {
		return fmt.Errorf("unknown payment verification %q", c.Verification)
	}
	return nil
}

type CommitHandler interface {
	Handle(ctx context.Context, cmd CommitOrderCommand) (*domain.Order, error)
}

// CommitOrderHandler creates the order for a reference and applies its stock
// decrements. Handling the same reference again returns the existing order and
// finishes any decrement a previous call did not get to.
type CommitOrderHandler struct {
	orders    ports.OrderRepository
	inventory ports.InventoryStore
	events    ports.EventBus
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	inflight  singleflight.Group
}

func NewCommitOrderHandler(
	orders ports.OrderRepository,
	inventory ports.InventoryStore,
	events ports.EventBus,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *CommitOrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommitOrderHandler{
		orders:    orders,
		inventory: inventory,
		events:    events,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (h *CommitOrderHandler) Handle(ctx context.Context, cmd CommitOrderCommand) (*domain.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	v, err, _ := h.inflight.Do(cmd.Reference, func() (any, error) {
		return h.commit(ctx, cmd)
	})
	if err != nil {
		return nil, err
	}

	order := v.(domain.Order)
	order.Items = append([]domain.CartItem(nil), order.Items...)
	return &order, nil
}

func (h *CommitOrderHandler) commit(ctx context.Context, cmd CommitOrderCommand) (domain.Order, error) {
	now := h.now().UTC()
	method := cmd.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodMpesa
	}

	order := domain.Order{
		ID:                   domain.OrderIDFromReference(cmd.Reference),
		Reference:            cmd.Reference,
		CustomerID:           cmd.CustomerID,
		Items:                append([]domain.CartItem(nil), cmd.Items...),
		Total:                cmd.Total,
		Status:               domain.StatusPaid,
		PaymentMethod:        method,
		PaymentCorrelationID: cmd.CorrelationID,
		PaymentVerification:  cmd.Verification,
		PaymentReceipt:       cmd.Receipt,
		ShippingAddress:      cmd.ShippingAddress,
		StockState:           domain.StockPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := order.Validate(); err != nil {
		return domain.Order{}, err
	}

	err := h.orders.Create(ctx, order)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCommitConflict):
		existing, err := h.orders.GetByReference(ctx, cmd.Reference)
		if err != nil {
			return domain.Order{}, fmt.Errorf("load committed order: %w", err)
		}
		if existing.CustomerID != cmd.CustomerID {
			return domain.Order{}, fmt.Errorf("%w: reference %s belongs to another customer", domain.ErrCommitConflict, cmd.Reference)
		}
		if existing.StockState == domain.StockApplied {
			return *existing, nil
		}
		h.logger.InfoContext(ctx, "resuming stock update for committed order",
			"order_id", existing.ID,
			"reference", existing.Reference,
		)
		order = *existing
	default:
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	backorders, err := h.applyStock(ctx, order)
	if err != nil {
		if flagErr := h.orders.FlagForReconciliation(ctx, order.ID, "stock update failed: "+err.Error()); flagErr != nil {
			h.logger.ErrorContext(ctx, "failed to flag order for reconciliation",
				"order_id", order.ID,
				"error", flagErr,
			)
		}
		return domain.Order{}, fmt.Errorf("%w: %w", domain.ErrCommitIncomplete, err)
	}

	if err := h.orders.MarkStockApplied(ctx, order.ID); err != nil {
		return domain.Order{}, fmt.Errorf("%w: mark stock applied: %w", domain.ErrCommitIncomplete, err)
	}
	order.StockState = domain.StockApplied
	order.NeedsReconciliation = false
	order.ReconciliationNote = ""

	var notes []string
	if len(backorders) > 0 {
		notes = append(notes, "backordered "+strings.Join(backorders, ", "))
	}
	if cmd.PaidAmount != 0 && cmd.PaidAmount != order.Total {
		notes = append(notes, fmt.Sprintf("paid amount %d differs from order total %d", cmd.PaidAmount, order.Total))
		h.logger.WarnContext(ctx, "payment amount mismatch",
			"order_id", order.ID,
			"paid", cmd.PaidAmount,
			"total", order.Total,
		)
	}
	if len(notes) > 0 {
		note := strings.Join(notes, "; ")
		if err := h.orders.FlagForReconciliation(ctx, order.ID, note); err != nil {
			h.logger.ErrorContext(ctx, "failed to flag order for reconciliation",
				"order_id", order.ID,
				"error", err,
			)
		} else {
			order.NeedsReconciliation = true
			order.ReconciliationNote = note
		}
	}

	if err := h.events.PublishOrderCommitted(ctx, order); err != nil {
		h.logger.WarnContext(ctx, "order committed but failed to publish event",
			"order_id", order.ID,
			"error", err,
		)
	}

	return order, nil
}

// applyStock decrements every line and returns a description of each line that
// could not be fully reserved.
func (h *CommitOrderHandler) applyStock(ctx context.Context, order domain.Order) ([]string, error) {
	var backorders []string
	for _, item := range order.Items {
		adj, err := h.inventory.Decrement(ctx, domain.StockDecrement{
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
		if err != nil {
			return nil, fmt.Errorf("decrement %s: %w", item.ProductID, err)
		}
		if !adj.Clamped() {
			continue
		}

		backorders = append(backorders, fmt.Sprintf("%s x%d", item.ProductID, adj.Backordered()))
		h.metrics.RecordStockClamp(ctx)
		h.logger.WarnContext(ctx, "stock exhausted, decrement clamped",
			"order_id", order.ID,
			"product_id", item.ProductID,
			"requested", adj.Requested,
			"reserved", adj.Reserved,
		)
		if err := h.events.PublishStockClamped(ctx, adj); err != nil {
			h.logger.WarnContext(ctx, "failed to publish stock clamp",
				"order_id", order.ID,
				"product_id", item.ProductID,
				"error", err,
			)
		}
	}
	return backorders, nil
}
