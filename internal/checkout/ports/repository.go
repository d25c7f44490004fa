package ports

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

// OrderRepository persists committed orders. Create fails with
// domain.ErrCommitConflict when the reference already has an order.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByReference(ctx context.Context, reference string) (*domain.Order, error)
	// GetByCorrelationID finds the order paid through a provider transaction.
	GetByCorrelationID(ctx context.Context, correlationID string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	// UpdateStatus moves an order from one status to another, failing with
	// domain.ErrInvalidStatusTransition if the current status is not from.
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) error
	MarkStockApplied(ctx context.Context, id string) error
	FlagForReconciliation(ctx context.Context, id, note string) error
	// ListProvisional returns orders whose payment was only asserted by the customer.
	// Orders never checked come first, then the least recently checked, then the oldest.
	ListProvisional(ctx context.Context, limit int) ([]domain.Order, error)
	// MarkReconciliationChecked records that a provisional order was queried at at.
	MarkReconciliationChecked(ctx context.Context, id string, at time.Time) error
	// SetVerification settles the payment verification. An empty receipt keeps the
	// stored one.
	SetVerification(ctx context.Context, id string, verification domain.PaymentVerification, receipt string) error
}

// ListFilter narrows list queries by customer, status and pagination.
type ListFilter struct {
	CustomerID string
	Status     *domain.OrderStatus
	Page       int
	PageSize   int
}

// InventoryStore applies stock decrements. Decrement is idempotent per order and
// product: repeating it returns the original adjustment without touching stock.
type InventoryStore interface {
	Decrement(ctx context.Context, req domain.StockDecrement) (domain.StockAdjustment, error)
	Stock(ctx context.Context, productID string) (int, error)
}

// ProductCatalog resolves products for the cart.
type ProductCatalog interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// AddressRepository stores a customer's address book. Saving a default address
// clears the flag on every other address of the same customer.
type AddressRepository interface {
	ListAddresses(ctx context.Context, customerID string) ([]domain.Address, error)
	UpsertAddress(ctx context.Context, address domain.Address) error
}

// CartRepository persists carts between sessions.
type CartRepository interface {
	Load(ctx context.Context, customerID string) (domain.Cart, error)
	Save(ctx context.Context, customerID string, cart domain.Cart) error
	Delete(ctx context.Context, customerID string) error
}

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCorruptCart is returned when a persisted cart cannot be decoded.
	ErrCorruptCart = errors.New("persisted cart is corrupt")
)
