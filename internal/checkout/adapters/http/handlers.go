package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dejobratic/storefront/internal/checkout/app"
	"github.com/dejobratic/storefront/internal/checkout/app/queries"
	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
	"github.com/dejobratic/storefront/internal/payment/mpesa"
)

const maxBodyBytes = 1 << 20

// Handler exposes the storefront cart, checkout and order endpoints.
type Handler struct {
	service *app.Service
	logger  *slog.Logger
}

func NewHandler(service *app.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register binds the routes. The provider callback stays outside authenticate.
func (h *Handler) Register(r chi.Router, authenticate func(http.Handler) http.Handler) {
	r.Post("/v1/payments/mpesa/callback", h.paymentCallback)

	r.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Route("/v1/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.Post("/items", h.addCartItem)
			r.Put("/items/{productID}", h.setCartQuantity)
			r.Delete("/items/{productID}", h.removeCartItem)
		})

		r.Route("/v1/addresses", func(r chi.Router) {
			r.Get("/", h.listAddresses)
			r.Post("/", h.addAddress)
		})

		r.Route("/v1/checkout", func(r chi.Router) {
			r.Get("/", h.getCheckout)
			r.Post("/shipping", h.selectShipping)
			r.Post("/payment", h.requestPayment)
			r.Post("/payment/resend", h.resendPayment)
			r.Post("/confirm", h.confirmPayment)
			r.Post("/cancel", h.cancelPayment)
			r.Post("/restart", h.restartCheckout)
		})

		r.Route("/v1/orders", func(r chi.Router) {
			r.Get("/", h.listOrders)
			r.Get("/{orderID}", h.getOrder)
			r.Post("/{orderID}/status", h.advanceOrderStatus)
		})
	})
}

type cartResponse struct {
	Items []domain.CartItem `json:"items"`
	Total int64             `json:"total"`
	Count int               `json:"count"`
}

func newCartResponse(cart domain.Cart) cartResponse {
	items := cart.Snapshot()
	if items == nil {
		items = []domain.CartItem{}
	}
	return cartResponse{Items: items, Total: cart.Total(), Count: cart.Count()}
}

func customerID(r *http.Request) string {
	p, _ := PrincipalFrom(r.Context())
	return p.CustomerID
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newCartResponse(h.service.Cart(r.Context(), customerID(r))))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newCartResponse(h.service.ClearCart(r.Context(), customerID(r))))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProductID string `json:"product_id"`
	}
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if strings.TrimSpace(payload.ProductID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "product_id is required")
		return
	}

	cart, err := h.service.AddToCart(r.Context(), customerID(r), payload.ProductID)
	if err != nil {
		h.logServiceError(r, "add to cart", err)
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(cart))
}

func (h *Handler) setCartQuantity(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Quantity *int `json:"quantity"`
	}
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if payload.Quantity == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "quantity is required")
		return
	}

	cart := h.service.SetCartQuantity(r.Context(), customerID(r), chi.URLParam(r, "productID"), *payload.Quantity)
	writeJSON(w, http.StatusOK, newCartResponse(cart))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	cart := h.service.RemoveFromCart(r.Context(), customerID(r), chi.URLParam(r, "productID"))
	writeJSON(w, http.StatusOK, newCartResponse(cart))
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.service.ListAddresses(r.Context(), customerID(r))
	if err != nil {
		h.logServiceError(r, "list addresses", err)
		writeServiceError(w, err, nil)
		return
	}
	if addresses == nil {
		addresses = []domain.Address{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"addresses": addresses})
}

func (h *Handler) addAddress(w http.ResponseWriter, r *http.Request) {
	var payload app.AddAddressInput
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	address, err := h.service.AddAddress(r.Context(), customerID(r), payload)
	if err != nil {
		h.logServiceError(r, "add address", err)
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"address": address})
}

func (h *Handler) getCheckout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Checkout(r.Context(), customerID(r)))
}

func (h *Handler) selectShipping(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AddressID string `json:"address_id"`
	}
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	view, err := h.service.SelectShipping(r.Context(), customerID(r), payload.AddressID)
	h.writeCheckout(w, r, "select shipping", view, err)
}

// requestPayment honours an optional Idempotency-Key so a double-submitted form
// replays the first prompt instead of pushing a second one.
func (h *Handler) requestPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customer := customerID(r)

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	scopedKey := ""
	if idemKey != "" {
		scopedKey = customer + ":" + idemKey

		stored, err := h.service.GetIdempotentResponse(ctx, scopedKey)
		if err != nil {
			h.logServiceError(r, "load idempotent response", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal server error")
			return
		}
		if stored != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(stored.StatusCode)
			_, _ = w.Write(stored.Body)
			return
		}
	}

	view, err := h.service.RequestPayment(ctx, customer)
	if err != nil {
		h.writeCheckout(w, r, "request payment", view, err)
		return
	}

	body, err := json.Marshal(view)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	if scopedKey != "" {
		stored := ports.StoredResponse{StatusCode: http.StatusOK, Body: body}
		if view.Attempt != nil {
			stored.Reference = view.Attempt.Reference
		}
		if err := h.service.SaveIdempotentResponse(ctx, scopedKey, stored); err != nil {
			h.logger.WarnContext(ctx, "failed to store idempotent response", "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) resendPayment(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.ResendPayment(r.Context(), customerID(r))
	h.writeCheckout(w, r, "resend payment", view, err)
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.ConfirmByCustomer(r.Context(), customerID(r))
	h.writeCheckout(w, r, "confirm payment", view, err)
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.CancelPayment(r.Context(), customerID(r))
	h.writeCheckout(w, r, "cancel payment", view, err)
}

func (h *Handler) restartCheckout(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.RestartCheckout(r.Context(), customerID(r))
	h.writeCheckout(w, r, "restart checkout", view, err)
}

func (h *Handler) writeCheckout(w http.ResponseWriter, r *http.Request, op string, view app.SessionView, err error) {
	if err != nil {
		h.logServiceError(r, op, err)
		writeServiceError(w, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	query := queries.ListOrdersQuery{
		CustomerID: customerID(r),
		Status:     r.URL.Query().Get("status"),
	}
	if query.Status != "" && !domain.OrderStatus(query.Status).Valid() {
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown status")
		return
	}

	var err error
	if query.Page, err = intParam(r, "page"); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid page")
		return
	}
	if query.PageSize, err = intParam(r, "page_size"); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid page_size")
		return
	}

	orders, err := h.service.ListOrders(r.Context(), query)
	if err != nil {
		h.logServiceError(r, "list orders", err)
		writeServiceError(w, err, nil)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid integer")
	}
	return v, nil
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	owner := principal.CustomerID
	if principal.IsAdmin() {
		owner = ""
	}

	order, err := h.service.GetOrder(r.Context(), owner, chi.URLParam(r, "orderID"))
	if err != nil {
		h.logServiceError(r, "get order", err)
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) advanceOrderStatus(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	if !principal.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", "only administrators can update order status")
		return
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	status := domain.OrderStatus(payload.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown status")
		return
	}

	order, err := h.service.AdvanceOrderStatus(r.Context(), chi.URLParam(r, "orderID"), status)
	if err != nil {
		h.logServiceError(r, "advance order status", err)
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// paymentCallback accepts the provider's STK result. Orphaned results are still
// acknowledged; the provider only retries on a non-2xx response.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cb, err := mpesa.ParseCallback(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "rejected payment callback", "error", err)
		writeJSON(w, http.StatusBadRequest, callbackAck{ResultCode: 1, ResultDesc: "Rejected"})
		return
	}

	err = h.service.HandlePaymentResult(ctx, cb.Result())
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrOrphanedConfirmation):
		h.logger.InfoContext(ctx, "payment callback did not match an active attempt",
			"correlation_id", cb.CheckoutRequestID,
			"result_code", cb.ResultCode,
		)
	default:
		h.logger.ErrorContext(ctx, "failed to apply payment callback",
			"correlation_id", cb.CheckoutRequestID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, callbackAck{ResultCode: 1, ResultDesc: "Retry"})
		return
	}

	writeJSON(w, http.StatusOK, callbackAck{ResultCode: 0, ResultDesc: "Accepted"})
}

func (h *Handler) logServiceError(r *http.Request, op string, err error) {
	status, _ := classify(err)
	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, op+" failed", "customer_id", customerID(r), "error", err)
}
