package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrEmptyCart                  = errors.New("cart is empty")
	ErrInvalidTransition          = errors.New("invalid checkout transition")
	ErrPaymentInFlight            = errors.New("a payment request is already in progress")
	ErrResendCooldown             = errors.New("payment prompt resend is cooling down")
	ErrAttemptAbandoned           = errors.New("payment attempt was abandoned")
	ErrOrphanedConfirmation       = errors.New("confirmation does not match the current payment attempt")
	ErrManualConfirmationDisabled = errors.New("manual payment confirmation is disabled")
	ErrCommitConflict             = errors.New("order reference already committed")
	ErrAddressNotFound            = errors.New("address not found")
	ErrProductNotFound            = errors.New("product not found")
	ErrInvalidStatusTransition    = errors.New("order status can only move forward")
	ErrNoShippingAddress          = errors.New("no shipping address selected")
	ErrCommitIncomplete           = errors.New("order committed but inventory update incomplete")
)

// ValidationError is returned when input is missing or malformed.
type ValidationError struct {
	Reason string
	Fields []string
	Err    error
}

func NewValidationError(reason string, fields ...string) *ValidationError {
	return &ValidationError{Reason: reason, Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// GatewayErrorKind distinguishes a definitive provider refusal from a transport failure.
type GatewayErrorKind string

const (
	GatewayRejected    GatewayErrorKind = "rejected"
	GatewayUnreachable GatewayErrorKind = "unreachable"
)

// GatewayError is returned by payment gateways. Reason is safe to show the customer.
type GatewayError struct {
	Kind   GatewayErrorKind
	Reason string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment gateway %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("payment gateway %s: %s", e.Kind, e.Reason)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsGatewayError reports whether err is a GatewayError of the given kind.
func IsGatewayError(err error, kind GatewayErrorKind) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Kind == kind
}

// TransitionError is returned when an operation is not allowed in the current state.
type TransitionError struct {
	From CheckoutState
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while checkout is %s", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// CooldownError carries the time left before a payment prompt may be resent.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("resend available in %s", e.Remaining.Round(time.Second))
}

func (e *CooldownError) Unwrap() error {
	return ErrResendCooldown
}
