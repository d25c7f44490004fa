package mpesa

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

// ErrInvalidCallback is returned for callback bodies without a checkout request id or result code.
var ErrInvalidCallback = errors.New("invalid stk callback")

type callbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string   `json:"MerchantRequestID"`
			CheckoutRequestID string   `json:"CheckoutRequestID"`
			ResultCode        flexCode `json:"ResultCode"`
			ResultDesc        string   `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []callbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type callbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// Callback is a decoded STK result notification.
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            int64
	Receipt           string
	Phone             string
}

// Succeeded reports whether the customer completed the payment.
func (c Callback) Succeeded() bool {
	return c.ResultCode == 0
}

// Result converts the callback into an authoritative payment result.
func (c Callback) Result() domain.PaymentResult {
	status := domain.PaymentFailed
	if c.Succeeded() {
		status = domain.PaymentPaid
	}
	return domain.PaymentResult{
		CorrelationID: c.CheckoutRequestID,
		Status:        status,
		ResultCode:    c.ResultCode,
		Description:   c.ResultDesc,
		Receipt:       c.Receipt,
		Amount:        c.Amount,
		Source:        domain.SourceCallback,
	}
}

// ParseCallback decodes the provider's callback body.
func ParseCallback(r io.Reader) (*Callback, error) {
	var env callbackEnvelope
	if err := json.NewDecoder(io.LimitReader(r, maxResponseBytes)).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCallback, err)
	}

	stk := env.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrInvalidCallback)
	}
	if !stk.ResultCode.set {
		return nil, fmt.Errorf("%w: missing ResultCode", ErrInvalidCallback)
	}

	cb := &Callback{
		MerchantRequestID: stk.MerchantRequestID,
		CheckoutRequestID: stk.CheckoutRequestID,
		ResultCode:        stk.ResultCode.value,
		ResultDesc:        stk.ResultDesc,
	}

	for _, item := range stk.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if f, ok := decodeNumber(item.Value); ok {
				cb.Amount = int64(math.Round(f))
			}
		case "MpesaReceiptNumber":
			cb.Receipt = decodeString(item.Value)
		case "PhoneNumber":
			cb.Phone = decodeString(item.Value)
		}
	}
	return cb, nil
}

func decodeNumber(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
