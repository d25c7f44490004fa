package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/checkout/app/commands"
	"github.com/dejobratic/storefront/internal/checkout/app/queries"
	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/metrics"
	"github.com/dejobratic/storefront/internal/checkout/ports"
)

// ManualConfirmation controls what happens when a customer asserts they paid.
type ManualConfirmation string

const (
	// ManualProvisional commits the order as provisional; it is reconciled later.
	ManualProvisional ManualConfirmation = "provisional"
	ManualDisabled    ManualConfirmation = "disabled"
)

const (
	defaultResendCooldown      = 60 * time.Second
	defaultConfirmationTimeout = 5 * time.Minute
	attemptRetention           = 24 * time.Hour
	idleRetention              = 30 * time.Minute
)

type Settings struct {
	ResendCooldown      time.Duration
	ConfirmationTimeout time.Duration
	ManualConfirmation  ManualConfirmation
	CountryCode         string
}

func (s Settings) withDefaults() Settings {
	if s.ResendCooldown <= 0 {
		s.ResendCooldown = defaultResendCooldown
	}
	if s.ConfirmationTimeout <= 0 {
		s.ConfirmationTimeout = defaultConfirmationTimeout
	}
	if s.ManualConfirmation == "" {
		s.ManualConfirmation = ManualProvisional
	}
	if s.CountryCode == "" {
		s.CountryCode = domain.KenyaCountryCode
	}
	return s
}

// Dependencies lists the ports a Service is built from.
type Dependencies struct {
	Orders      ports.OrderRepository
	Inventory   ports.InventoryStore
	Catalog     ports.ProductCatalog
	Addresses   ports.AddressRepository
	Carts       ports.CartRepository
	Events      ports.EventBus
	Idempotency ports.IdempotencyStore
	Gateway     ports.PaymentGateway
	Clock       Clock
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Settings    Settings
}

// Service bundles the storefront checkout use cases.
type Service struct {
	orders    ports.OrderRepository
	catalog   ports.ProductCatalog
	events    ports.EventBus
	idemStore ports.IdempotencyStore
	gateway   ports.PaymentGateway
	clock     Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics
	settings  Settings

	carts     *CartStore
	addresses *AddressBook
	registry  *attemptRegistry

	commitHandler commands.CommitHandler
	getOrder      *queries.GetOrderQueryHandler
	listOrders    *queries.ListOrdersQueryHandler

	mu       sync.Mutex
	sessions map[string]*session
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock()
	}
	settings := deps.Settings.withDefaults()

	carts := NewCartStore(deps.Carts, logger)
	carts.now = clock.Now

	coreHandler := commands.NewCommitOrderHandler(deps.Orders, deps.Inventory, deps.Events, logger, deps.Metrics)
	observableHandler := commands.NewObservableCommitHandler(coreHandler, logger, deps.Metrics)

	return &Service{
		orders:        deps.Orders,
		catalog:       deps.Catalog,
		events:        deps.Events,
		idemStore:     deps.Idempotency,
		gateway:       deps.Gateway,
		clock:         clock,
		logger:        logger,
		metrics:       deps.Metrics,
		settings:      settings,
		carts:         carts,
		addresses:     NewAddressBook(deps.Addresses, settings.CountryCode),
		registry:      newAttemptRegistry(),
		commitHandler: observableHandler,
		getOrder:      queries.NewGetOrderQueryHandler(deps.Orders),
		listOrders:    queries.NewListOrdersQueryHandler(deps.Orders),
		sessions:      make(map[string]*session),
	}
}

// CartStore exposes the store so its background flusher can be started.
func (s *Service) CartStore() *CartStore {
	return s.carts
}

func (s *Service) Cart(ctx context.Context, customerID string) domain.Cart {
	return s.carts.Get(ctx, customerID)
}

// AddToCart snapshots the product's current price into the cart.
func (s *Service) AddToCart(ctx context.Context, customerID, productID string) (domain.Cart, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.carts.Add(ctx, customerID, *product), nil
}

func (s *Service) SetCartQuantity(ctx context.Context, customerID, productID string, quantity int) domain.Cart {
	return s.carts.SetQuantity(ctx, customerID, productID, quantity)
}

func (s *Service) RemoveFromCart(ctx context.Context, customerID, productID string) domain.Cart {
	return s.carts.Remove(ctx, customerID, productID)
}

func (s *Service) ClearCart(ctx context.Context, customerID string) domain.Cart {
	return s.carts.Clear(ctx, customerID)
}

func (s *Service) AddAddress(ctx context.Context, customerID string, input AddAddressInput) (domain.Address, error) {
	return s.addresses.AddAddress(ctx, customerID, input)
}

func (s *Service) ListAddresses(ctx context.Context, customerID string) ([]domain.Address, error) {
	return s.addresses.List(ctx, customerID)
}

func (s *Service) DefaultAddress(ctx context.Context, customerID string) (*domain.Address, error) {
	return s.addresses.DefaultAddress(ctx, customerID)
}

func (s *Service) GetOrder(ctx context.Context, customerID, orderID string) (*domain.Order, error) {
	return s.getOrder.Handle(ctx, queries.GetOrderQuery{OrderID: orderID, CustomerID: customerID})
}

func (s *Service) ListOrders(ctx context.Context, query queries.ListOrdersQuery) ([]domain.Order, error) {
	return s.listOrders.Handle(ctx, query)
}

// AdvanceOrderStatus moves an order forward in its fulfilment lifecycle.
func (s *Service) AdvanceOrderStatus(ctx context.Context, orderID string, to domain.OrderStatus) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanAdvanceTo(to) {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrInvalidStatusTransition, order.Status, to)
	}
	if err := s.orders.UpdateStatus(ctx, orderID, order.Status, to); err != nil {
		return nil, err
	}

	order.Status = to
	order.UpdatedAt = s.clock.Now()
	return order, nil
}

// SaveIdempotentResponse writes response details for a key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, key, response)
}

// GetIdempotentResponse retrieves previously stored response data.
func (s *Service) GetIdempotentResponse(ctx context.Context, key string) (*ports.StoredResponse, error) {
	return s.idemStore.Get(ctx, key)
}

// HandlePaymentResult applies a provider-reported outcome. Results for abandoned or
// unknown references are published as orphaned and reported with
// domain.ErrOrphanedConfirmation.
func (s *Service) HandlePaymentResult(ctx context.Context, result domain.PaymentResult) error {
	if !result.Source.Authoritative() {
		return fmt.Errorf("payment result from %q is not authoritative", result.Source)
	}

	rec, ok := s.registry.lookup(result.Reference, result.CorrelationID)
	if ok && result.Reference == "" {
		result.Reference = rec.reference
	}

	switch {
	case !ok:
		return s.recoverSettledResult(ctx, result)
	case rec.status == attemptAbandoned:
		s.orphan(ctx, result)
		return domain.ErrOrphanedConfirmation
	case rec.status == attemptCommitted:
		return s.reconcileCommitted(ctx, rec.reference, result)
	}

	sess := s.session(rec.customerID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != domain.StateAwaitingConfirmation || sess.attempt == nil || sess.attempt.Reference != rec.reference {
		s.orphan(ctx, result)
		return domain.ErrOrphanedConfirmation
	}

	switch result.Status {
	case domain.PaymentPaid:
		return s.commitLocked(ctx, sess, domain.VerificationVerified, result)
	case domain.PaymentFailed:
		reason := result.Description
		if reason == "" {
			reason = "Payment was not completed."
		}
		s.failLocked(ctx, sess, reason)
		return nil
	default:
		return nil
	}
}

// recoverSettledResult handles results for references the registry no longer
// knows, e.g. after a restart. Callbacks carry only the correlation id, so the
// order is looked up by reference first and by correlation id second. A matching
// order is reconciled; anything else is an orphan.
func (s *Service) recoverSettledResult(ctx context.Context, result domain.PaymentResult) error {
	order, err := s.findSettledOrder(ctx, result)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			s.orphan(ctx, result)
			return domain.ErrOrphanedConfirmation
		}
		return fmt.Errorf("look up settled order: %w", err)
	}
	return s.reconcileOrder(ctx, *order, result)
}

func (s *Service) findSettledOrder(ctx context.Context, result domain.PaymentResult) (*domain.Order, error) {
	if result.Reference != "" {
		order, err := s.orders.GetByReference(ctx, result.Reference)
		if !errors.Is(err, ports.ErrNotFound) {
			return order, err
		}
	}
	if result.CorrelationID == "" {
		return nil, ports.ErrNotFound
	}
	return s.orders.GetByCorrelationID(ctx, result.CorrelationID)
}

func (s *Service) reconcileCommitted(ctx context.Context, reference string, result domain.PaymentResult) error {
	order, err := s.orders.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.reconcileOrder(ctx, *order, result)
}

func (s *Service) reconcileOrder(ctx context.Context, order domain.Order, result domain.PaymentResult) error {
	if order.PaymentVerification != domain.VerificationProvisional {
		return nil
	}
	_, err := s.applyVerification(ctx, order, result)
	return err
}

// ReconcileProvisional checks provisional orders against the provider and returns
// how many were settled.
func (s *Service) ReconcileProvisional(ctx context.Context, limit int) (int, error) {
	orders, err := s.orders.ListProvisional(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list provisional orders: %w", err)
	}

	settled := 0
	for _, order := range orders {
		if err := s.orders.MarkReconciliationChecked(ctx, order.ID, s.clock.Now()); err != nil {
			s.logger.WarnContext(ctx, "failed to mark provisional order checked",
				"order_id", order.ID,
				"error", err,
			)
		}
		if order.PaymentCorrelationID == "" {
			continue
		}
		result, err := s.gateway.Query(ctx, order.PaymentCorrelationID)
		if err != nil {
			s.metrics.RecordReconciliation(ctx, "error")
			s.logger.WarnContext(ctx, "failed to query provisional order payment",
				"order_id", order.ID,
				"error", err,
			)
			continue
		}
		done, err := s.applyVerification(ctx, order, *result)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to reconcile provisional order",
				"order_id", order.ID,
				"error", err,
			)
			continue
		}
		if done {
			settled++
		}
	}
	return settled, nil
}

func (s *Service) applyVerification(ctx context.Context, order domain.Order, result domain.PaymentResult) (bool, error) {
	switch result.Status {
	case domain.PaymentPaid:
		if err := s.orders.SetVerification(ctx, order.ID, domain.VerificationVerified, result.Receipt); err != nil {
			return false, err
		}
		if result.Amount != 0 && result.Amount != order.Total {
			note := fmt.Sprintf("paid amount %d differs from order total %d", result.Amount, order.Total)
			if err := s.orders.FlagForReconciliation(ctx, order.ID, appendNote(order, note)); err != nil {
				return false, err
			}
			s.logger.WarnContext(ctx, "provisional order paid a different amount",
				"order_id", order.ID,
				"paid", result.Amount,
				"total", order.Total,
			)
		}
		s.metrics.RecordReconciliation(ctx, "verified")
		s.logger.InfoContext(ctx, "provisional order verified", "order_id", order.ID)
		return true, nil
	case domain.PaymentFailed:
		if err := s.orders.SetVerification(ctx, order.ID, domain.VerificationRejected, result.Receipt); err != nil {
			return false, err
		}
		note := "provider reported payment not completed"
		if result.Description != "" {
			note += ": " + result.Description
		}
		if err := s.orders.FlagForReconciliation(ctx, order.ID, appendNote(order, note)); err != nil {
			return false, err
		}
		s.metrics.RecordReconciliation(ctx, "flagged")
		s.logger.WarnContext(ctx, "provisional order flagged",
			"order_id", order.ID,
			"reason", note,
		)
		return true, nil
	default:
		s.metrics.RecordReconciliation(ctx, "pending")
		return false, nil
	}
}

// appendNote keeps an order's existing reconciliation note, e.g. a backorder.
func appendNote(order domain.Order, note string) string {
	if order.NeedsReconciliation && order.ReconciliationNote != "" {
		return order.ReconciliationNote + "; " + note
	}
	return note
}

// PollPending queries the provider for every acknowledged attempt still waiting
// for a confirmation.
func (s *Service) PollPending(ctx context.Context) {
	for _, rec := range s.registry.pending() {
		result, err := s.gateway.Query(ctx, rec.correlationID)
		if err != nil {
			s.logger.DebugContext(ctx, "payment status query failed",
				"reference", rec.reference,
				"error", err,
			)
			continue
		}
		if result.Status == domain.PaymentPending {
			continue
		}
		result.Reference = rec.reference
		result.Source = domain.SourcePoll
		if err := s.HandlePaymentResult(ctx, *result); err != nil && !errors.Is(err, domain.ErrOrphanedConfirmation) {
			s.logger.WarnContext(ctx, "failed to apply polled payment result",
				"reference", rec.reference,
				"error", err,
			)
		}
	}
	now := s.clock.Now()
	s.registry.prune(now.Add(-attemptRetention))
	sessions := s.pruneSessions(now.Add(-idleRetention))
	carts := s.carts.EvictIdle(now.Add(-idleRetention))
	if sessions > 0 || carts > 0 {
		s.logger.DebugContext(ctx, "evicted idle checkouts",
			"sessions", sessions,
			"carts", carts,
		)
	}
}

func (s *Service) orphan(ctx context.Context, result domain.PaymentResult) {
	s.metrics.RecordOrphanedConfirmation(ctx, string(result.Source))
	s.logger.WarnContext(ctx, "orphaned payment confirmation",
		"correlation_id", result.CorrelationID,
		"reference", result.Reference,
		"status", string(result.Status),
		"amount", result.Amount,
	)
	if err := s.events.PublishPaymentOrphaned(ctx, result); err != nil {
		s.logger.WarnContext(ctx, "failed to publish orphaned confirmation", "error", err)
	}
}
