package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
)

type adjustmentKey struct {
	orderID   string
	productID string
}

// Inventory is an in-memory product catalog and stock ledger. Decrements run under
// one lock, so the read and the write of a product's stock cannot interleave.
type Inventory struct {
	mu          sync.Mutex
	products    map[string]domain.Product
	stock       map[string]int
	adjustments map[adjustmentKey]domain.StockAdjustment
	now         func() time.Time
}

func NewInventory() *Inventory {
	return &Inventory{
		products:    make(map[string]domain.Product),
		stock:       make(map[string]int),
		adjustments: make(map[adjustmentKey]domain.StockAdjustment),
		now:         time.Now,
	}
}

// AddProduct registers a product with its starting stock.
func (i *Inventory) AddProduct(product domain.Product, stock int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.products[product.ID] = product
	i.stock[product.ID] = stock
}

func (i *Inventory) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	product, ok := i.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	return &product, nil
}

func (i *Inventory) Stock(_ context.Context, productID string) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	stock, ok := i.stock[productID]
	if !ok {
		return 0, ports.ErrNotFound
	}
	return stock, nil
}

func (i *Inventory) Decrement(_ context.Context, req domain.StockDecrement) (domain.StockAdjustment, error) {
	if req.Quantity < 1 {
		return domain.StockAdjustment{}, fmt.Errorf("decrement quantity must be positive, got %d", req.Quantity)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	key := adjustmentKey{orderID: req.OrderID, productID: req.ProductID}
	if existing, ok := i.adjustments[key]; ok {
		return existing, nil
	}

	current, ok := i.stock[req.ProductID]
	if !ok {
		return domain.StockAdjustment{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, req.ProductID)
	}

	adj := domain.PlanDecrement(req, current, i.now().UTC())
	i.stock[req.ProductID] = adj.RemainingStock
	i.adjustments[key] = adj
	return adj, nil
}
