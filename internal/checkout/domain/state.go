package domain

// CheckoutState is a step of the checkout state machine.
type CheckoutState string

const (
	StateCart                 CheckoutState = "cart"
	StateShippingSelected     CheckoutState = "shipping_selected"
	StatePaymentRequested     CheckoutState = "payment_requested"
	StateAwaitingConfirmation CheckoutState = "awaiting_confirmation"
	StateCommitted            CheckoutState = "committed"
	StateFailed               CheckoutState = "failed"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	StateCart:                 {StateShippingSelected},
	StateShippingSelected:     {StateShippingSelected, StatePaymentRequested, StateCart},
	StatePaymentRequested:     {StateAwaitingConfirmation, StateShippingSelected, StateFailed},
	StateAwaitingConfirmation: {StateAwaitingConfirmation, StatePaymentRequested, StateShippingSelected, StateCommitted, StateFailed},
	StateCommitted:            {StateCart, StateShippingSelected},
	StateFailed:               {StateCart, StateShippingSelected},
}

// CanTransitionTo reports whether the machine may move from s to next.
func (s CheckoutState) CanTransitionTo(next CheckoutState) bool {
	for _, allowed := range checkoutTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the current checkout has finished.
func (s CheckoutState) IsTerminal() bool {
	return s == StateCommitted || s == StateFailed
}
