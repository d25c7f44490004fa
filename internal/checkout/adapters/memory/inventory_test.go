package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

func TestInventoryDecrementClampsAtZero(t *testing.T) {
	inv := NewInventory()
	inv.AddProduct(domain.Product{ID: "p1", Price: 100}, 2)

	adj, err := inv.Decrement(context.Background(), domain.StockDecrement{OrderID: "o1", ProductID: "p1", Quantity: 5})

	require.NoError(t, err)
	assert.Equal(t, 2, adj.Reserved)
	assert.Equal(t, 3, adj.Backordered())
	stock, _ := inv.Stock(context.Background(), "p1")
	assert.Equal(t, 0, stock)
}

func TestInventoryDecrementIsIdempotentPerOrderLine(t *testing.T) {
	inv := NewInventory()
	inv.AddProduct(domain.Product{ID: "p1"}, 10)
	req := domain.StockDecrement{OrderID: "o1", ProductID: "p1", Quantity: 3}

	first, err := inv.Decrement(context.Background(), req)
	require.NoError(t, err)
	second, err := inv.Decrement(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	stock, _ := inv.Stock(context.Background(), "p1")
	assert.Equal(t, 7, stock)
}

func TestInventoryDecrementUnknownProduct(t *testing.T) {
	inv := NewInventory()

	_, err := inv.Decrement(context.Background(), domain.StockDecrement{OrderID: "o1", ProductID: "ghost", Quantity: 1})

	assert.True(t, errors.Is(err, domain.ErrProductNotFound))
}

func TestInventoryConcurrentDecrementsNeverOversell(t *testing.T) {
	inv := NewInventory()
	inv.AddProduct(domain.Product{ID: "p1"}, 10)

	const orders = 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	for n := 0; n < orders; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			adj, err := inv.Decrement(context.Background(), domain.StockDecrement{
				OrderID:   string(rune('a' + n)),
				ProductID: "p1",
				Quantity:  1,
			})
			assert.NoError(t, err)
			mu.Lock()
			reserved += adj.Reserved
			mu.Unlock()
		}(n)
	}
	wg.Wait()

	stock, _ := inv.Stock(context.Background(), "p1")
	assert.Equal(t, 0, stock)
	assert.Equal(t, 10, reserved)
}

func TestInventoryGetProduct(t *testing.T) {
	inv := NewInventory()
	inv.AddProduct(domain.Product{ID: "p1", Name: "Kiondo", Price: 3500}, 1)

	product, err := inv.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3500), product.Price)

	_, err = inv.GetProduct(context.Background(), "p2")
	assert.True(t, errors.Is(err, domain.ErrProductNotFound))
}
