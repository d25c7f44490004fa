package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
)

// OrderRepository provides an in-memory order store for local development and tests.
type OrderRepository struct {
	mu          sync.RWMutex
	orders      map[string]domain.Order
	byReference map[string]string
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:      make(map[string]domain.Order),
		byReference: make(map[string]string),
	}
}

func (r *OrderRepository) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byReference[order.Reference]; exists {
		return domain.ErrCommitConflict
	}
	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrCommitConflict
	}
	r.orders[order.ID] = cloneOrder(order)
	r.byReference[order.Reference] = order.ID
	return nil
}

func (r *OrderRepository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := cloneOrder(order)
	return &out, nil
}

func (r *OrderRepository) GetByReference(_ context.Context, reference string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byReference[reference]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := cloneOrder(r.orders[id])
	return &out, nil
}

func (r *OrderRepository) GetByCorrelationID(_ context.Context, correlationID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if correlationID == "" {
		return nil, ports.ErrNotFound
	}
	for _, order := range r.orders {
		if order.PaymentCorrelationID == correlationID {
			out := cloneOrder(order)
			return &out, nil
		}
	}
	return nil, ports.ErrNotFound
}

// List returns the newest orders first. Pagination is 1-based.
func (r *OrderRepository) List(_ context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	if start >= len(result) {
		return []domain.Order{}, nil
	}
	end := start + pageSize
	if end > len(result) {
		end = len(result)
	}

	slice := make([]domain.Order, 0, end-start)
	for _, order := range result[start:end] {
		slice = append(slice, cloneOrder(order))
	}
	return slice, nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, id string, from, to domain.OrderStatus) error {
	return r.update(id, func(order *domain.Order) error {
		if order.Status != from || !from.CanAdvanceTo(to) {
			return domain.ErrInvalidStatusTransition
		}
		order.Status = to
		return nil
	})
}

func (r *OrderRepository) MarkStockApplied(_ context.Context, id string) error {
	return r.update(id, func(order *domain.Order) error {
		order.StockState = domain.StockApplied
		order.NeedsReconciliation = false
		order.ReconciliationNote = ""
		return nil
	})
}

func (r *OrderRepository) FlagForReconciliation(_ context.Context, id, note string) error {
	return r.update(id, func(order *domain.Order) error {
		order.NeedsReconciliation = true
		order.ReconciliationNote = note
		return nil
	})
}

func (r *OrderRepository) ListProvisional(_ context.Context, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if order.PaymentVerification == domain.VerificationProvisional {
			result = append(result, cloneOrder(order))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].ReconciliationCheckedAt, result[j].ReconciliationCheckedAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *OrderRepository) MarkReconciliationChecked(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(order *domain.Order) error {
		checked := at.UTC()
		order.ReconciliationCheckedAt = &checked
		return nil
	})
}

func (r *OrderRepository) SetVerification(_ context.Context, id string, verification domain.PaymentVerification, receipt string) error {
	return r.update(id, func(order *domain.Order) error {
		order.PaymentVerification = verification
		if receipt != "" {
			order.PaymentReceipt = receipt
		}
		return nil
	})
}

func (r *OrderRepository) update(id string, fn func(*domain.Order) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return ports.ErrNotFound
	}
	if err := fn(&order); err != nil {
		return err
	}
	order.UpdatedAt = time.Now().UTC()
	r.orders[id] = order
	return nil
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = append([]domain.CartItem(nil), order.Items...)
	if order.ReconciliationCheckedAt != nil {
		checked := *order.ReconciliationCheckedAt
		order.ReconciliationCheckedAt = &checked
	}
	return order
}
