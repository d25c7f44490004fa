package memory

import (
	"context"
	"sync"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

type AddressRepository struct {
	mu        sync.RWMutex
	addresses map[string][]domain.Address
}

func NewAddressRepository() *AddressRepository {
	return &AddressRepository{addresses: make(map[string][]domain.Address)}
}

func (r *AddressRepository) ListAddresses(_ context.Context, customerID string) ([]domain.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Address(nil), r.addresses[customerID]...), nil
}

// UpsertAddress replaces the address with the same id or appends it. A default
// address clears the flag on the customer's other addresses.
func (r *AddressRepository) UpsertAddress(_ context.Context, address domain.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.addresses[address.CustomerID]
	next := make([]domain.Address, 0, len(current)+1)
	replaced := false
	for _, existing := range current {
		if existing.ID == address.ID {
			existing = address
			replaced = true
		} else if address.IsDefault {
			existing.IsDefault = false
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, address)
	}
	r.addresses[address.CustomerID] = next
	return nil
}
