package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dejobratic/storefront/internal/checkout/app"
	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
)

type errorResponse struct {
	Error    string           `json:"error"`
	Code     string           `json:"code"`
	Fields   []string         `json:"fields,omitempty"`
	Checkout *app.SessionView `json:"checkout,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeServiceError maps a service error onto a status code. view is attached for
// checkout operations so clients can re-render the session after a refusal.
func writeServiceError(w http.ResponseWriter, err error, view *app.SessionView) {
	status, resp := classify(err)
	resp.Checkout = view

	var cooldown *domain.CooldownError
	if errors.As(err, &cooldown) {
		seconds := int(cooldown.Remaining.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, errorResponse) {
	var (
		validation *domain.ValidationError
		gateway    *domain.GatewayError
	)

	switch {
	case errors.As(err, &validation):
		code := "validation_failed"
		if errors.Is(err, domain.ErrEmptyCart) {
			code = "empty_cart"
		}
		return http.StatusUnprocessableEntity, errorResponse{Error: validation.Error(), Code: code, Fields: validation.Fields}
	case errors.As(err, &gateway):
		if gateway.Kind == domain.GatewayRejected {
			return http.StatusUnprocessableEntity, errorResponse{Error: gateway.Reason, Code: "payment_rejected"}
		}
		return http.StatusBadGateway, errorResponse{Error: gateway.Reason, Code: "payment_unavailable"}
	case errors.Is(err, domain.ErrResendCooldown):
		return http.StatusTooManyRequests, errorResponse{Error: err.Error(), Code: "resend_cooldown"}
	case errors.Is(err, domain.ErrPaymentInFlight):
		return http.StatusConflict, errorResponse{Error: err.Error(), Code: "payment_in_flight"}
	case errors.Is(err, domain.ErrAttemptAbandoned):
		return http.StatusConflict, errorResponse{Error: err.Error(), Code: "attempt_abandoned"}
	case errors.Is(err, domain.ErrManualConfirmationDisabled):
		return http.StatusConflict, errorResponse{Error: err.Error(), Code: "manual_confirmation_disabled"}
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, errorResponse{Error: err.Error(), Code: "invalid_transition"}
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		return http.StatusConflict, errorResponse{Error: err.Error(), Code: "invalid_status_transition"}
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, errorResponse{Error: err.Error(), Code: "product_not_found"}
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "not found", Code: "not_found"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: "internal"}
	}
}
