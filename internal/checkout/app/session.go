package app

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dejobratic/storefront/internal/checkout/app/commands"
	"github.com/dejobratic/storefront/internal/checkout/domain"
)

const (
	messageCommitFailed = "We could not save your order. Please try again."
	messageTimedOut     = "Payment confirmation timed out."
)

// session is one customer's checkout. Its mutex is never held across a gateway call.
type session struct {
	mu         sync.Mutex
	customerID string
	state      domain.CheckoutState
	address    *domain.Address
	attempt    *domain.PaymentAttempt
	// inFlight is the reference of a gateway call that has not returned yet.
	inFlight  string
	order     *domain.Order
	lastError string
	timer     Timer
	// lastSeen is guarded by Service.mu.
	lastSeen time.Time
}

// SessionView is the customer-facing snapshot of a checkout.
type SessionView struct {
	State           domain.CheckoutState   `json:"state"`
	Address         *domain.Address        `json:"address,omitempty"`
	Attempt         *domain.PaymentAttempt `json:"attempt,omitempty"`
	ResendInSeconds int                    `json:"resend_in_seconds"`
	PaymentInFlight bool                   `json:"payment_in_flight"`
	Order           *domain.Order          `json:"order,omitempty"`
	LastError       string                 `json:"last_error,omitempty"`
	Message         string                 `json:"message,omitempty"`
}

func (s *Service) session(customerID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[customerID]
	if !ok {
		sess = &session{customerID: customerID, state: domain.StateCart}
		s.sessions[customerID] = sess
	}
	sess.lastSeen = s.clock.Now()
	return sess
}

// pruneSessions forgets sessions unused since before that have no payment attempt,
// gateway call or timer outstanding. A session busy under its own lock is skipped.
func (s *Service) pruneSessions(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for customerID, sess := range s.sessions {
		if !sess.lastSeen.Before(before) {
			continue
		}
		if !sess.mu.TryLock() {
			continue
		}
		idle := sess.attempt == nil && sess.inFlight == "" && sess.timer == nil
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, customerID)
			evicted++
		}
	}
	return evicted
}

// ActiveSessions reports how many checkout sessions are held in memory.
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) viewLocked(sess *session) SessionView {
	view := SessionView{
		State:           sess.state,
		PaymentInFlight: sess.inFlight != "",
		LastError:       sess.lastError,
	}
	if sess.address != nil {
		address := *sess.address
		view.Address = &address
	}
	if sess.attempt != nil {
		attempt := *sess.attempt
		attempt.Items = append([]domain.CartItem(nil), attempt.Items...)
		view.Attempt = &attempt
		if remaining := attempt.ResendAvailableAt.Sub(s.clock.Now()); remaining > 0 {
			view.ResendInSeconds = int(math.Ceil(remaining.Seconds()))
		}
	}
	if sess.order != nil {
		order := *sess.order
		view.Order = &order
	}
	return view
}

// Checkout returns the customer's current checkout view.
func (s *Service) Checkout(_ context.Context, customerID string) SessionView {
	sess := s.session(customerID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess)
}

func (s *Service) transitionLocked(ctx context.Context, sess *session, to domain.CheckoutState) {
	from := sess.state
	s.metrics.RecordTransition(ctx, string(from), string(to))
	s.logger.DebugContext(ctx, "checkout transition",
		"customer_id", sess.customerID,
		"from", string(from),
		"to", string(to),
	)
	sess.state = to
}

func emptyCartError() error {
	return &domain.ValidationError{Reason: "cart is empty", Err: domain.ErrEmptyCart}
}

// SelectShipping picks the delivery address. Leaving a pending confirmation
// abandons that payment attempt.
func (s *Service) SelectShipping(ctx context.Context, customerID, addressID string) (SessionView, error) {
	cart := s.carts.Get(ctx, customerID)
	if cart.IsEmpty() {
		return s.Checkout(ctx, customerID), emptyCartError()
	}
	address, err := s.addresses.SelectAddress(ctx, customerID, addressID)
	if err != nil {
		return s.Checkout(ctx, customerID), err
	}

	sess := s.session(customerID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.inFlight != "" {
		return s.viewLocked(sess), domain.ErrPaymentInFlight
	}
	if !sess.state.CanTransitionTo(domain.StateShippingSelected) {
		return s.viewLocked(sess), &domain.TransitionError{From: sess.state, Op: "select shipping"}
	}

	if sess.state == domain.StateAwaitingConfirmation {
		s.abandonLocked(ctx, sess)
	}
	sess.address = &address
	sess.order = nil
	sess.attempt = nil
	sess.lastError = ""
	s.transitionLocked(ctx, sess, domain.StateShippingSelected)
	return s.viewLocked(sess), nil
}

// RequestPayment quotes the cart and pushes a payment prompt to the shipping
// address phone. From AwaitingConfirmation it supersedes the current attempt.
// A gateway failure returns the checkout to ShippingSelected.
func (s *Service) RequestPayment(ctx context.Context, customerID string) (SessionView, error) {
	sess := s.session(customerID)
	attempt, view, err := s.startPayment(ctx, sess)
	if err != nil {
		return view, err
	}

	ack, err := s.initiate(ctx, attempt)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.inFlight != attempt.Reference {
		if err == nil {
			s.registry.correlate(attempt.Reference, ack.CorrelationID)
		}
		return s.viewLocked(sess), domain.ErrAttemptAbandoned
	}
	sess.inFlight = ""

	if err != nil {
		s.registry.abandon(attempt.Reference, s.clock.Now())
		sess.attempt = nil
		sess.lastError = gatewayReason(err)
		s.transitionLocked(ctx, sess, domain.StateShippingSelected)
		return s.viewLocked(sess), err
	}

	s.acknowledgeLocked(sess, attempt, ack)
	s.transitionLocked(ctx, sess, domain.StateAwaitingConfirmation)
	view = s.viewLocked(sess)
	view.Message = ack.Message
	return view, nil
}

func (s *Service) startPayment(ctx context.Context, sess *session) (*domain.PaymentAttempt, SessionView, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch {
	case sess.inFlight != "":
		return nil, s.viewLocked(sess), domain.ErrPaymentInFlight
	case sess.state != domain.StateShippingSelected && sess.state != domain.StateAwaitingConfirmation:
		return nil, s.viewLocked(sess), &domain.TransitionError{From: sess.state, Op: "request payment"}
	case sess.address == nil:
		return nil, s.viewLocked(sess), &domain.ValidationError{
			Reason: "no shipping address selected",
			Fields: []string{"address_id"},
			Err:    domain.ErrNoShippingAddress,
		}
	}

	cart := s.carts.Get(ctx, sess.customerID)
	if cart.IsEmpty() {
		return nil, s.viewLocked(sess), emptyCartError()
	}

	if sess.state == domain.StateAwaitingConfirmation {
		s.abandonLocked(ctx, sess)
	}

	attempt := s.newAttempt(sess.customerID, sess.address.Phone, cart)
	sess.attempt = attempt
	sess.inFlight = attempt.Reference
	sess.lastError = ""
	s.transitionLocked(ctx, sess, domain.StatePaymentRequested)
	return attempt, SessionView{}, nil
}

// ResendPayment pushes a fresh prompt with a new reference once the cooldown has
// passed. The previous attempt stays current if the gateway refuses.
func (s *Service) ResendPayment(ctx context.Context, customerID string) (SessionView, error) {
	sess := s.session(customerID)
	attempt, view, err := s.startResend(ctx, sess)
	if err != nil {
		return view, err
	}

	ack, err := s.initiate(ctx, attempt)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.inFlight != attempt.Reference {
		if err == nil {
			s.registry.correlate(attempt.Reference, ack.CorrelationID)
		}
		s.registry.abandon(attempt.Reference, s.clock.Now())
		return s.viewLocked(sess), domain.ErrAttemptAbandoned
	}
	sess.inFlight = ""

	if err != nil {
		s.registry.abandon(attempt.Reference, s.clock.Now())
		sess.lastError = gatewayReason(err)
		return s.viewLocked(sess), err
	}

	s.stopTimerLocked(sess)
	if sess.attempt != nil {
		s.registry.abandon(sess.attempt.Reference, s.clock.Now())
	}
	sess.lastError = ""
	s.acknowledgeLocked(sess, attempt, ack)
	s.transitionLocked(ctx, sess, domain.StateAwaitingConfirmation)
	view = s.viewLocked(sess)
	view.Message = ack.Message
	return view, nil
}

func (s *Service) startResend(ctx context.Context, sess *session) (*domain.PaymentAttempt, SessionView, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch {
	case sess.inFlight != "":
		return nil, s.viewLocked(sess), domain.ErrPaymentInFlight
	case sess.state != domain.StateAwaitingConfirmation || sess.attempt == nil:
		return nil, s.viewLocked(sess), &domain.TransitionError{From: sess.state, Op: "resend payment"}
	}

	if remaining := sess.attempt.ResendAvailableAt.Sub(s.clock.Now()); remaining > 0 {
		return nil, s.viewLocked(sess), &domain.CooldownError{Remaining: remaining}
	}

	cart := s.carts.Get(ctx, sess.customerID)
	if cart.IsEmpty() {
		return nil, s.viewLocked(sess), emptyCartError()
	}

	attempt := s.newAttempt(sess.customerID, sess.attempt.Phone, cart)
	sess.inFlight = attempt.Reference
	return attempt, SessionView{}, nil
}

func (s *Service) newAttempt(customerID, phone string, cart domain.Cart) *domain.PaymentAttempt {
	now := s.clock.Now()
	attempt := &domain.PaymentAttempt{
		Reference:   newReference(),
		Phone:       phone,
		Amount:      cart.Total(),
		Items:       cart.Snapshot(),
		RequestedAt: now,
	}
	s.registry.track(attempt.Reference, customerID, now)
	return attempt
}

// CancelPayment abandons the current attempt, including one whose gateway call is
// still running, and returns to ShippingSelected.
func (s *Service) CancelPayment(ctx context.Context, customerID string) (SessionView, error) {
	sess := s.session(customerID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != domain.StatePaymentRequested && sess.state != domain.StateAwaitingConfirmation {
		return s.viewLocked(sess), &domain.TransitionError{From: sess.state, Op: "cancel payment"}
	}

	s.abandonLocked(ctx, sess)
	s.transitionLocked(ctx, sess, domain.StateShippingSelected)
	return s.viewLocked(sess), nil
}

// ConfirmByCustomer commits the order on the customer's word that they paid. The
// order is provisional until the provider confirms it.
func (s *Service) ConfirmByCustomer(ctx context.Context, customerID string) (SessionView, error) {
	sess := s.session(customerID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state == domain.StateCommitted && sess.order != nil {
		return s.viewLocked(sess), nil
	}
	if sess.state != domain.StateAwaitingConfirmation || sess.attempt == nil {
		return s.viewLocked(sess), &domain.TransitionError{From: sess.state, Op: "confirm payment"}
	}
	if s.settings.ManualConfirmation == ManualDisabled {
		return s.viewLocked(sess), domain.ErrManualConfirmationDisabled
	}

	if s.carts.Get(ctx, customerID).IsEmpty() {
		return s.viewLocked(sess), emptyCartError()
	}
	if err := s.commitLocked(ctx, sess, domain.VerificationProvisional, domain.PaymentResult{Source: domain.SourceCustomer}); err != nil {
		return s.viewLocked(sess), err
	}
	return s.viewLocked(sess), nil
}

// RestartCheckout leaves a finished checkout. It returns to ShippingSelected when
// an address is known and the cart has items, otherwise to Cart.
func (s *Service) RestartCheckout(ctx context.Context, customerID string) (SessionView, error) {
	cart := s.carts.Get(ctx, customerID)

	sess := s.session(customerID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.state.IsTerminal() {
		return s.viewLocked(sess), &domain.TransitionError{From: sess.state, Op: "restart checkout"}
	}

	sess.attempt = nil
	sess.order = nil
	sess.lastError = ""
	if sess.address != nil && !cart.IsEmpty() {
		s.transitionLocked(ctx, sess, domain.StateShippingSelected)
	} else {
		s.transitionLocked(ctx, sess, domain.StateCart)
	}
	return s.viewLocked(sess), nil
}

// commitLocked commits the current attempt's quote. settlement carries the
// provider's receipt and amount when the provider confirmed the payment. On
// failure the checkout stays in AwaitingConfirmation so the commit can be retried.
func (s *Service) commitLocked(ctx context.Context, sess *session, verification domain.PaymentVerification, settlement domain.PaymentResult) error {
	attempt := sess.attempt
	order, err := s.commitHandler.Handle(ctx, commands.CommitOrderCommand{
		CustomerID:      sess.customerID,
		Reference:       attempt.Reference,
		Items:           attempt.Items,
		Total:           attempt.Amount,
		ShippingAddress: *sess.address,
		PaymentMethod:   domain.PaymentMethodMpesa,
		CorrelationID:   attempt.CorrelationID,
		Verification:    verification,
		Receipt:         settlement.Receipt,
		PaidAmount:      settlement.Amount,
	})
	if err != nil {
		sess.lastError = messageCommitFailed
		return err
	}

	now := s.clock.Now()
	s.stopTimerLocked(sess)
	s.registry.complete(attempt.Reference, now)
	if sess.inFlight != "" {
		s.registry.abandon(sess.inFlight, now)
		sess.inFlight = ""
	}
	sess.order = order
	sess.attempt = nil
	sess.lastError = ""
	s.transitionLocked(ctx, sess, domain.StateCommitted)
	s.carts.CheckOut(ctx, sess.customerID, order.Items)

	s.logger.InfoContext(ctx, "checkout committed",
		"customer_id", sess.customerID,
		"order_id", order.ID,
		"source", string(settlement.Source),
	)
	return nil
}

func (s *Service) failLocked(ctx context.Context, sess *session, reason string) {
	s.abandonLocked(ctx, sess)
	sess.lastError = reason
	s.transitionLocked(ctx, sess, domain.StateFailed)
}

// abandonLocked stops the confirmation timer and tags every outstanding reference
// of the session as abandoned.
func (s *Service) abandonLocked(ctx context.Context, sess *session) {
	now := s.clock.Now()
	s.stopTimerLocked(sess)
	if sess.attempt != nil {
		s.registry.abandon(sess.attempt.Reference, now)
		s.logger.InfoContext(ctx, "payment attempt abandoned",
			"customer_id", sess.customerID,
			"reference", sess.attempt.Reference,
		)
	}
	if sess.inFlight != "" {
		s.registry.abandon(sess.inFlight, now)
		sess.inFlight = ""
	}
	sess.attempt = nil
}

func (s *Service) acknowledgeLocked(sess *session, attempt *domain.PaymentAttempt, ack *domain.PaymentAck) {
	now := s.clock.Now()
	attempt.CorrelationID = ack.CorrelationID
	attempt.AcknowledgedAt = now
	attempt.ResendAvailableAt = now.Add(s.settings.ResendCooldown)
	s.registry.correlate(attempt.Reference, ack.CorrelationID)
	sess.attempt = attempt

	customerID, reference := sess.customerID, attempt.Reference
	sess.timer = s.clock.AfterFunc(s.settings.ConfirmationTimeout, func() {
		s.expire(customerID, reference)
	})
}

// expire fails a checkout still waiting on reference when its timer fires.
func (s *Service) expire(customerID, reference string) {
	ctx := context.Background()
	sess := s.session(customerID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != domain.StateAwaitingConfirmation || sess.attempt == nil || sess.attempt.Reference != reference {
		return
	}
	sess.timer = nil
	s.logger.InfoContext(ctx, "payment confirmation timed out",
		"customer_id", customerID,
		"reference", reference,
	)
	s.failLocked(ctx, sess, messageTimedOut)
}

func (s *Service) stopTimerLocked(sess *session) {
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
}

func (s *Service) initiate(ctx context.Context, attempt *domain.PaymentAttempt) (*domain.PaymentAck, error) {
	ack, err := s.gateway.Initiate(ctx, domain.PaymentRequest{
		Reference: attempt.Reference,
		Phone:     attempt.Phone,
		Amount:    attempt.Amount,
	})
	switch {
	case err == nil:
		s.metrics.RecordPaymentInitiation(ctx, "accepted")
	case domain.IsGatewayError(err, domain.GatewayRejected):
		s.metrics.RecordPaymentInitiation(ctx, "rejected")
	default:
		s.metrics.RecordPaymentInitiation(ctx, "unreachable")
	}
	return ack, err
}

func gatewayReason(err error) string {
	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) && gwErr.Reason != "" {
		return gwErr.Reason
	}
	return "Payment request failed. Please try again."
}

func newReference() string {
	return "ORD-" + uuid.NewString()
}
