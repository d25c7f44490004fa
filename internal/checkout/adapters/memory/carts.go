package memory

import (
	"context"
	"sync"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
)

// CartRepository keeps carts in process memory. Used when redis is not configured.
type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]domain.Cart)}
}

func (r *CartRepository) Load(_ context.Context, customerID string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cart, ok := r.carts[customerID]
	if !ok {
		return domain.Cart{}, ports.ErrNotFound
	}
	return domain.Cart{Items: cart.Snapshot()}, nil
}

func (r *CartRepository) Save(_ context.Context, customerID string, cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts[customerID] = domain.Cart{Items: cart.Snapshot()}
	return nil
}

func (r *CartRepository) Delete(_ context.Context, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, customerID)
	return nil
}
