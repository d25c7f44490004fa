package domain

import "time"

// PaymentRequest asks the gateway to push a payment prompt to the customer's phone.
type PaymentRequest struct {
	Reference string
	Phone     string
	Amount    int64
}

// PaymentAck is the gateway's acceptance of a PaymentRequest.
type PaymentAck struct {
	CorrelationID string `json:"checkout_request_id"`
	Message       string `json:"message"`
}

// PaymentStatus is the gateway-reported outcome of a payment prompt.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// ConfirmationSource records who asserted a payment outcome.
type ConfirmationSource string

const (
	SourceCallback ConfirmationSource = "callback"
	SourcePoll     ConfirmationSource = "poll"
	SourceCustomer ConfirmationSource = "customer"
)

// Authoritative reports whether the source comes from the payment provider.
func (s ConfirmationSource) Authoritative() bool {
	return s == SourceCallback || s == SourcePoll
}

// PaymentResult is a payment outcome for one correlation id.
type PaymentResult struct {
	CorrelationID string             `json:"correlation_id"`
	Reference     string             `json:"reference,omitempty"`
	Status        PaymentStatus      `json:"status"`
	ResultCode    int                `json:"result_code"`
	Description   string             `json:"description,omitempty"`
	Receipt       string             `json:"receipt,omitempty"`
	Amount        int64              `json:"amount,omitempty"`
	Source        ConfirmationSource `json:"source"`
}

// PaymentAttempt is one push to the gateway. Each attempt carries a fresh reference
// and the quoted lines and amount the customer was asked to pay.
type PaymentAttempt struct {
	Reference         string     `json:"reference"`
	Phone             string     `json:"-"`
	Amount            int64      `json:"amount"`
	Items             []CartItem `json:"items"`
	CorrelationID     string     `json:"correlation_id,omitempty"`
	RequestedAt       time.Time  `json:"requested_at"`
	AcknowledgedAt    time.Time  `json:"acknowledged_at,omitempty"`
	ResendAvailableAt time.Time  `json:"resend_available_at,omitempty"`
}
