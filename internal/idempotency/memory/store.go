package memory

import (
	"context"
	"sync"

	"github.com/dejobratic/storefront/internal/checkout/ports"
)

// Store retains responses for replaying duplicate payment requests.
type Store struct {
	mu    sync.RWMutex
	items map[string]ports.StoredResponse
}

func NewStore() *Store {
	return &Store{items: make(map[string]ports.StoredResponse)}
}

// Get returns the stored response for key, or nil when none exists.
func (s *Store) Get(_ context.Context, key string) (*ports.StoredResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	value.Body = append([]byte(nil), value.Body...)
	return &value, nil
}

// Save records response under key unless the key is already taken.
func (s *Store) Save(_ context.Context, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[key]; exists {
		return nil
	}
	response.Body = append([]byte(nil), response.Body...)
	s.items[key] = response
	return nil
}
