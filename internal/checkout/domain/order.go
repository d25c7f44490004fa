package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus captures the fulfilment lifecycle of a committed order.
type OrderStatus string

const (
	StatusPaid       OrderStatus = "paid"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
)

var statusRank = map[OrderStatus]int{
	StatusPaid:       0,
	StatusProcessing: 1,
	StatusShipped:    2,
	StatusDelivered:  3,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanAdvanceTo reports whether next is strictly later in the lifecycle than s.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

type PaymentMethod string

const (
	PaymentMethodMpesa PaymentMethod = "mpesa"
)

// PaymentVerification says whether the payment behind an order was confirmed by the
// provider or only asserted by the customer.
type PaymentVerification string

const (
	VerificationVerified    PaymentVerification = "verified"
	VerificationProvisional PaymentVerification = "provisional"
	// VerificationRejected marks a provisional order the provider reported as unpaid.
	VerificationRejected PaymentVerification = "rejected"
)

func (v PaymentVerification) Valid() bool {
	switch v {
	case VerificationVerified, VerificationProvisional, VerificationRejected:
		return true
	}
	return false
}

// StockState tracks whether every line's inventory decrement has been applied.
type StockState string

const (
	StockPending StockState = "pending"
	StockApplied StockState = "applied"
)

// Order is a committed purchase. Items and ShippingAddress are copies taken at commit time.
type Order struct {
	ID                   string              `json:"id"`
	Reference            string              `json:"reference"`
	CustomerID           string              `json:"customer_id"`
	Items                []CartItem          `json:"items"`
	Total                int64               `json:"total"`
	Status               OrderStatus         `json:"status"`
	PaymentMethod        PaymentMethod       `json:"payment_method"`
	PaymentCorrelationID string              `json:"payment_correlation_id,omitempty"`
	PaymentVerification  PaymentVerification `json:"payment_verification"`
	PaymentReceipt       string              `json:"payment_receipt,omitempty"`
	ShippingAddress      Address             `json:"shipping_address"`
	StockState           StockState          `json:"stock_state"`
	NeedsReconciliation  bool                `json:"needs_reconciliation"`
	ReconciliationNote   string              `json:"reconciliation_note,omitempty"`
	// ReconciliationCheckedAt is the last time a provisional payment was queried.
	ReconciliationCheckedAt *time.Time `json:"reconciliation_checked_at,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// Validate ensures the order can be persisted.
func (o Order) Validate() error {
	if strings.TrimSpace(o.CustomerID) == "" {
		return errors.New("customer_id is required")
	}
	if strings.TrimSpace(o.Reference) == "" {
		return errors.New("reference is required")
	}
	if len(o.Items) == 0 {
		return &ValidationError{Reason: "order has no items", Err: ErrEmptyCart}
	}
	var sum int64
	for _, item := range o.Items {
		if item.ProductID == "" {
			return errors.New("order item product_id is required")
		}
		if item.Quantity < 1 {
			return errors.New("order item quantity must be positive")
		}
		sum += item.Subtotal()
	}
	if o.Total <= 0 {
		return errors.New("total must be positive")
	}
	if o.Total != sum {
		return errors.New("total does not match item subtotals")
	}
	if !o.Status.Valid() {
		return errors.New("status is invalid")
	}
	return nil
}

// IsTerminal indicates whether the order has reached the end of its lifecycle.
func (o Order) IsTerminal() bool {
	return o.Status == StatusDelivered
}

var orderNamespace = uuid.MustParse("6f1d4a3e-8c2b-5e7f-9a10-3b4c5d6e7f80")

// OrderIDFromReference derives a stable order id so that every commit of the same
// reference targets the same row.
func OrderIDFromReference(reference string) string {
	return uuid.NewSHA1(orderNamespace, []byte(reference)).String()
}
