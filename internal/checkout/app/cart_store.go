package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
)

const (
	finalFlushTimeout = 5 * time.Second
	flushRetryPeriod  = 30 * time.Second
)

// CartStore holds the live cart of every active customer. Mutations are applied in
// memory and written to the repository in the background by Run; a persistence
// failure never fails a mutation. Persisted carts are dropped from memory once
// empty or idle and are read back from the repository on next use.
type CartStore struct {
	repo   ports.CartRepository
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	carts   map[string]domain.Cart
	dirty   map[string]struct{}
	touched map[string]time.Time

	flushMu sync.Mutex
	notify  chan struct{}
}

func NewCartStore(repo ports.CartRepository, logger *slog.Logger) *CartStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CartStore{
		repo:    repo,
		logger:  logger,
		now:     time.Now,
		carts:   make(map[string]domain.Cart),
		dirty:   make(map[string]struct{}),
		touched: make(map[string]time.Time),
		notify:  make(chan struct{}, 1),
	}
}

func (s *CartStore) Get(ctx context.Context, customerID string) domain.Cart {
	return s.load(ctx, customerID)
}

// Add adds one unit of product, merging with an existing line. Stock is not checked.
func (s *CartStore) Add(ctx context.Context, customerID string, product domain.Product) domain.Cart {
	return s.apply(ctx, customerID, domain.ItemAdded{Product: product})
}

func (s *CartStore) Remove(ctx context.Context, customerID, productID string) domain.Cart {
	return s.apply(ctx, customerID, domain.ItemRemoved{ProductID: productID})
}

// SetQuantity sets a line's quantity; below one removes the line.
func (s *CartStore) SetQuantity(ctx context.Context, customerID, productID string, quantity int) domain.Cart {
	return s.apply(ctx, customerID, domain.QuantitySet{ProductID: productID, Quantity: quantity})
}

func (s *CartStore) Clear(ctx context.Context, customerID string) domain.Cart {
	return s.apply(ctx, customerID, domain.CartCleared{})
}

// CheckOut removes the quantities of a committed quote, keeping anything the
// customer added after the quote was taken.
func (s *CartStore) CheckOut(ctx context.Context, customerID string, items []domain.CartItem) domain.Cart {
	return s.apply(ctx, customerID, domain.ItemsCheckedOut{Items: items})
}

func (s *CartStore) apply(ctx context.Context, customerID string, ev domain.CartEvent) domain.Cart {
	s.load(ctx, customerID)

	s.mu.Lock()
	next := s.carts[customerID].Apply(ev)
	s.carts[customerID] = next
	s.dirty[customerID] = struct{}{}
	s.touched[customerID] = s.now()
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return next
}

// load returns the cached cart, rehydrating it from the repository on first use.
// Missing or unreadable carts start empty.
func (s *CartStore) load(ctx context.Context, customerID string) domain.Cart {
	s.mu.Lock()
	if cart, ok := s.carts[customerID]; ok {
		s.touched[customerID] = s.now()
		s.mu.Unlock()
		return cart
	}
	s.mu.Unlock()

	var cart domain.Cart
	cache := true
	if s.repo != nil {
		loaded, err := s.repo.Load(ctx, customerID)
		switch {
		case err == nil:
			cart = loaded.Sanitize()
		case errors.Is(err, ports.ErrNotFound):
		case errors.Is(err, ports.ErrCorruptCart):
			s.logger.WarnContext(ctx, "discarding corrupt persisted cart",
				"customer_id", customerID,
				"error", err,
			)
		default:
			cache = false
			s.logger.WarnContext(ctx, "failed to load persisted cart",
				"customer_id", customerID,
				"error", err,
			)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.carts[customerID]; ok {
		return existing
	}
	if cache {
		s.carts[customerID] = cart
		s.touched[customerID] = s.now()
	}
	return cart
}

// Run writes dirty carts whenever a mutation happens, retries failed writes
// periodically and flushes once more on shutdown.
func (s *CartStore) Run(ctx context.Context) {
	ticker := time.NewTicker(flushRetryPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			if err := s.Flush(flushCtx); err != nil {
				s.logger.Error("final cart flush failed", "error", err)
			}
			cancel()
			return
		case <-s.notify:
			_ = s.Flush(ctx)
		case <-ticker.C:
			_ = s.Flush(ctx)
		}
	}
}

// Flush writes every dirty cart. Empty carts are deleted. Carts that fail to save
// stay dirty for the next flush.
func (s *CartStore) Flush(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	pending := make(map[string]domain.Cart, len(s.dirty))
	for customerID := range s.dirty {
		pending[customerID] = s.carts[customerID]
	}
	s.dirty = make(map[string]struct{})
	s.mu.Unlock()

	var errs []error
	for customerID, cart := range pending {
		var err error
		if cart.IsEmpty() {
			err = s.repo.Delete(ctx, customerID)
		} else {
			err = s.repo.Save(ctx, customerID, cart)
		}
		if err == nil {
			if cart.IsEmpty() {
				s.dropIfClean(customerID)
			}
			continue
		}

		s.logger.WarnContext(ctx, "failed to persist cart",
			"customer_id", customerID,
			"error", err,
		)
		s.mu.Lock()
		s.dirty[customerID] = struct{}{}
		s.mu.Unlock()
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// dropIfClean forgets a flushed empty cart unless it changed since the snapshot.
func (s *CartStore) dropIfClean(customerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dirty := s.dirty[customerID]; dirty {
		return
	}
	if s.carts[customerID].IsEmpty() {
		delete(s.carts, customerID)
		delete(s.touched, customerID)
	}
}

// EvictIdle forgets clean carts not used since before and returns how many were
// dropped. Without a repository only empty carts are dropped, since memory is
// their only copy.
func (s *CartStore) EvictIdle(before time.Time) int {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for customerID, cart := range s.carts {
		if !s.touched[customerID].Before(before) {
			continue
		}
		if _, dirty := s.dirty[customerID]; dirty && s.repo != nil {
			continue
		}
		if s.repo == nil && !cart.IsEmpty() {
			continue
		}
		delete(s.carts, customerID)
		delete(s.dirty, customerID)
		delete(s.touched, customerID)
		evicted++
	}
	return evicted
}
