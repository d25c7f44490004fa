package app_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dejobratic/storefront/internal/checkout/adapters/memory"
	"github.com/dejobratic/storefront/internal/checkout/app"
	"github.com/dejobratic/storefront/internal/checkout/domain"
	idemmemory "github.com/dejobratic/storefront/internal/idempotency/memory"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) app.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves the clock forward and runs every timer that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()

	for _, f := range due {
		f()
	}
}

type fakeGateway struct {
	mu         sync.Mutex
	initiateFn func(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentAck, error)
	queryFn    func(ctx context.Context, correlationID string) (*domain.PaymentResult, error)
	requests   []domain.PaymentRequest
}

func (g *fakeGateway) Initiate(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentAck, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	n := len(g.requests)
	fn := g.initiateFn
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &domain.PaymentAck{CorrelationID: fmt.Sprintf("ws_CO_%d", n), Message: "STK Push sent! Check your phone to enter PIN."}, nil
}

func (g *fakeGateway) Query(ctx context.Context, correlationID string) (*domain.PaymentResult, error) {
	if g.queryFn != nil {
		return g.queryFn(ctx, correlationID)
	}
	return &domain.PaymentResult{CorrelationID: correlationID, Status: domain.PaymentPending, Source: domain.SourcePoll}, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type recordingEventBus struct {
	mu        sync.Mutex
	committed []domain.Order
	clamped   []domain.StockAdjustment
	orphaned  []domain.PaymentResult
}

func (b *recordingEventBus) PublishOrderCommitted(_ context.Context, order domain.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.committed = append(b.committed, order)
	return nil
}

func (b *recordingEventBus) PublishStockClamped(_ context.Context, adj domain.StockAdjustment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clamped = append(b.clamped, adj)
	return nil
}

func (b *recordingEventBus) PublishPaymentOrphaned(_ context.Context, result domain.PaymentResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orphaned = append(b.orphaned, result)
	return nil
}

func (b *recordingEventBus) orphanCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orphaned)
}

type fixture struct {
	svc       *app.Service
	inventory *memory.Inventory
	orders    *memory.OrderRepository
	events    *recordingEventBus
	gateway   *fakeGateway
	clock     *fakeClock
	deps      app.Dependencies
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, mutate ...func(*app.Dependencies)) *fixture {
	t.Helper()

	inventory := memory.NewInventory()
	inventory.AddProduct(domain.Product{ID: "p1", Name: "Kiondo basket", Price: 3500}, 10)
	inventory.AddProduct(domain.Product{ID: "p2", Name: "Kikoi", Price: 1200}, 10)

	f := &fixture{
		inventory: inventory,
		orders:    memory.NewOrderRepository(),
		events:    &recordingEventBus{},
		gateway:   &fakeGateway{},
		clock:     newFakeClock(),
	}

	deps := app.Dependencies{
		Orders:      f.orders,
		Inventory:   inventory,
		Catalog:     inventory,
		Addresses:   memory.NewAddressRepository(),
		Carts:       memory.NewCartRepository(),
		Events:      f.events,
		Idempotency: idemmemory.NewStore(),
		Gateway:     f.gateway,
		Clock:       f.clock,
		Logger:      discardLogger(),
		Settings: app.Settings{
			ResendCooldown:      60 * time.Second,
			ConfirmationTimeout: 5 * time.Minute,
		},
	}
	for _, m := range mutate {
		m(&deps)
	}
	f.deps = deps
	f.svc = app.NewService(deps)
	return f
}

// restart replaces the service with a fresh process over the same storage. Every
// in-memory checkout and payment attempt is lost.
func (f *fixture) restart(t *testing.T) {
	t.Helper()
	f.events = &recordingEventBus{}
	f.deps.Events = f.events
	f.svc = app.NewService(f.deps)
}

// readyForPayment fills the cart with two p1 and selects a Nairobi address.
func (f *fixture) readyForPayment(t *testing.T, customerID string) domain.Address {
	t.Helper()
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, customerID, "p1")
	require.NoError(t, err)
	_, err = f.svc.AddToCart(ctx, customerID, "p1")
	require.NoError(t, err)

	address, err := f.svc.AddAddress(ctx, customerID, app.AddAddressInput{
		RecipientName: "Amina Wanjiru",
		Phone:         "712345678",
		Street:        "Moi Avenue 12",
		City:          "Nairobi",
		IsDefault:     true,
	})
	require.NoError(t, err)

	view, err := f.svc.SelectShipping(ctx, customerID, address.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateShippingSelected, view.State)
	return address
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	stock, err := f.inventory.Stock(context.Background(), productID)
	require.NoError(t, err)
	return stock
}
