package mpesa

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Config)) (*Client, *int32) {
	t.Helper()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := Config{
		InitiateURL:         srv.URL + "/stk",
		QueryURL:            srv.URL + "/query",
		CallbackURL:         "https://shop.example/payments/callback",
		APIKey:              "secret",
		TillNumber:          "600100",
		Timeout:             2 * time.Second,
		BreakerMaxFailures:  3,
		BreakerOpenDuration: time.Minute,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewClient(cfg, srv.Client(), quietLogger()), &calls
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestClientInitiateNormalizesPhoneAndReturnsAck(t *testing.T) {
	var got initiateRequest
	var auth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, map[string]string{
			"ResponseCode":      "0",
			"CheckoutRequestID": "ws_CO_123",
		})
	})

	ack, err := client.Initiate(context.Background(), domain.PaymentRequest{
		Reference: "ORD-1",
		Phone:     "0712 345 678",
		Amount:    1500,
	})

	require.NoError(t, err)
	assert.Equal(t, "ws_CO_123", ack.CorrelationID)
	assert.Equal(t, MessagePromptSent, ack.Message)
	assert.Equal(t, "254712345678", got.PhoneNumber)
	assert.Equal(t, int64(1500), got.Amount)
	assert.Equal(t, "ORD-1", got.AccountReference)
	assert.Equal(t, "600100", got.TillNumber)
	assert.Equal(t, "https://shop.example/payments/callback", got.CallbackURL)
	assert.Equal(t, "Bearer secret", auth)
}

func TestClientInitiateRejections(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       map[string]string
		wantReason string
	}{
		{
			name:       "provider error message is surfaced",
			status:     http.StatusOK,
			body:       map[string]string{"ResponseCode": "1", "errorMessage": "Invalid Access Token"},
			wantReason: "Invalid Access Token",
		},
		{
			name:       "generic failure without message",
			status:     http.StatusOK,
			body:       map[string]string{"ResponseCode": "1"},
			wantReason: MessageInitFailed,
		},
		{
			name:       "client error status",
			status:     http.StatusBadRequest,
			body:       map[string]string{"errorMessage": "Bad Request - Invalid PhoneNumber"},
			wantReason: "Bad Request - Invalid PhoneNumber",
		},
		{
			name:       "accepted without correlation id",
			status:     http.StatusOK,
			body:       map[string]string{"ResponseCode": "0"},
			wantReason: MessageInitFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := client.Initiate(context.Background(), domain.PaymentRequest{Reference: "ORD-1", Phone: "0712345678", Amount: 10})

			var gwErr *domain.GatewayError
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, domain.GatewayRejected, gwErr.Kind)
			assert.Equal(t, tt.wantReason, gwErr.Reason)
		})
	}
}

func TestClientInitiateRejectsInvalidInputWithoutCallingProvider(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"ResponseCode": "0", "CheckoutRequestID": "x"})
	})

	_, err := client.Initiate(context.Background(), domain.PaymentRequest{Reference: "ORD-1", Phone: "0712", Amount: 10})
	assert.True(t, domain.IsGatewayError(err, domain.GatewayRejected))

	_, err = client.Initiate(context.Background(), domain.PaymentRequest{Reference: "ORD-1", Phone: "0712345678", Amount: 0})
	assert.True(t, domain.IsGatewayError(err, domain.GatewayRejected))

	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestClientInitiateServerErrorIsUnreachable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Initiate(context.Background(), domain.PaymentRequest{Reference: "ORD-1", Phone: "0712345678", Amount: 10})

	var gwErr *domain.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, domain.GatewayUnreachable, gwErr.Kind)
	assert.Equal(t, MessageConnectionFailed, gwErr.Reason)
}

func TestClientBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, func(cfg *Config) { cfg.BreakerMaxFailures = 2 })

	req := domain.PaymentRequest{Reference: "ORD-1", Phone: "0712345678", Amount: 10}
	for i := 0; i < 3; i++ {
		_, err := client.Initiate(context.Background(), req)
		assert.True(t, domain.IsGatewayError(err, domain.GatewayUnreachable))
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(calls), "open breaker should short-circuit the third call")
}

func TestClientRejectionsDoNotTripBreaker(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorMessage": "Invalid amount"})
	}, func(cfg *Config) { cfg.BreakerMaxFailures = 1 })

	req := domain.PaymentRequest{Reference: "ORD-1", Phone: "0712345678", Amount: 10}
	for i := 0; i < 3; i++ {
		_, err := client.Initiate(context.Background(), req)
		assert.True(t, domain.IsGatewayError(err, domain.GatewayRejected))
	}

	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestClientQuery(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       map[string]any
		wantStatus domain.PaymentStatus
		wantCode   int
	}{
		{
			name:       "paid",
			status:     http.StatusOK,
			body:       map[string]any{"ResponseCode": "0", "ResultCode": "0", "ResultDesc": "The service request is processed successfully."},
			wantStatus: domain.PaymentPaid,
		},
		{
			name:       "cancelled by customer",
			status:     http.StatusOK,
			body:       map[string]any{"ResponseCode": "0", "ResultCode": 1032, "ResultDesc": "Request cancelled by user"},
			wantStatus: domain.PaymentFailed,
			wantCode:   1032,
		},
		{
			name:       "still processing",
			status:     http.StatusInternalServerError,
			body:       map[string]any{"errorCode": errorCodeProcessing, "errorMessage": "The transaction is being processed"},
			wantStatus: domain.PaymentPending,
		},
		{
			name:       "no result yet",
			status:     http.StatusOK,
			body:       map[string]any{"ResponseCode": "0"},
			wantStatus: domain.PaymentPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got queryRequest
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&got)
				writeJSON(w, tt.status, tt.body)
			})

			result, err := client.Query(context.Background(), "ws_CO_123")

			require.NoError(t, err)
			assert.Equal(t, "ws_CO_123", got.CheckoutRequestID)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantCode, result.ResultCode)
			assert.Equal(t, domain.SourcePoll, result.Source)
		})
	}
}

func TestClientPendingQueriesDoNotTripBreaker(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"errorCode": errorCodeProcessing})
	}, func(cfg *Config) { cfg.BreakerMaxFailures = 1 })

	for i := 0; i < 3; i++ {
		result, err := client.Query(context.Background(), "ws_CO_123")
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentPending, result.Status)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestClientQueryWithoutEndpoint(t *testing.T) {
	client, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) {}, func(cfg *Config) { cfg.QueryURL = "" })

	_, err := client.Query(context.Background(), "ws_CO_123")

	assert.True(t, domain.IsGatewayError(err, domain.GatewayUnreachable))
}
