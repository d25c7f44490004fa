// Package mpesa talks to the M-Pesa STK push proxy. The proxy holds provider
// credentials; this client only sends transaction details.
package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

const (
	MessagePromptSent       = "STK Push sent! Check your phone to enter PIN."
	MessageInitFailed       = "Payment initialization failed."
	MessageConnectionFailed = "Connection to payment provider failed. Please try again."
	MessageInvalidPhone     = "Enter a valid M-Pesa phone number."

	// errorCodeProcessing is returned by the query endpoint while the customer has not responded yet.
	errorCodeProcessing = "500.001.1001"
	maxResponseBytes    = 1 << 20
)

type Config struct {
	InitiateURL         string
	QueryURL            string
	CallbackURL         string
	APIKey              string
	TillNumber          string
	CountryCode         string
	Timeout             time.Duration
	BreakerMaxFailures  uint32
	BreakerOpenDuration time.Duration
}

// Client pushes STK prompts through the payment proxy. Transport failures trip a
// circuit breaker; provider rejections do not.
type Client struct {
	cfg          Config
	http         *http.Client
	initBreaker  *gobreaker.CircuitBreaker[rawResponse]
	queryBreaker *gobreaker.CircuitBreaker[rawResponse]
	logger       *slog.Logger
}

type rawResponse struct {
	status int
	body   []byte
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.CountryCode == "" {
		cfg.CountryCode = domain.KenyaCountryCode
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{cfg: cfg, http: httpClient, logger: logger}
	c.initBreaker = newBreaker("mpesa-initiate", cfg, logger)
	c.queryBreaker = newBreaker("mpesa-query", cfg, logger)
	return c
}

func newBreaker(name string, cfg Config, logger *slog.Logger) *gobreaker.CircuitBreaker[rawResponse] {
	return gobreaker.NewCircuitBreaker[rawResponse](gobreaker.Settings{
		Name:    name,
		Timeout: cfg.BreakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment gateway breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

type initiateRequest struct {
	PhoneNumber      string `json:"phoneNumber"`
	Amount           int64  `json:"amount"`
	AccountReference string `json:"accountReference"`
	TillNumber       string `json:"tillNumber,omitempty"`
	CallbackURL      string `json:"callbackUrl,omitempty"`
}

type initiateResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// Initiate normalizes the phone number and asks the provider to push a prompt.
func (c *Client) Initiate(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentAck, error) {
	phone, err := domain.NormalizeMSISDN(req.Phone, c.cfg.CountryCode)
	if err != nil {
		return nil, &domain.GatewayError{Kind: domain.GatewayRejected, Reason: MessageInvalidPhone, Err: err}
	}
	if req.Amount <= 0 {
		return nil, &domain.GatewayError{Kind: domain.GatewayRejected, Reason: MessageInitFailed, Err: errors.New("amount must be positive")}
	}

	c.logger.InfoContext(ctx, "initiating stk push",
		"phone", phone,
		"amount", req.Amount,
		"reference", req.Reference,
	)

	var body initiateResponse
	status, err := c.post(ctx, c.initBreaker, c.cfg.InitiateURL, initiateRequest{
		PhoneNumber:      phone,
		Amount:           req.Amount,
		AccountReference: req.Reference,
		TillNumber:       c.cfg.TillNumber,
		CallbackURL:      c.cfg.CallbackURL,
	}, &body)
	if err != nil {
		return nil, err
	}

	if status >= 200 && status < 300 && body.ResponseCode == "0" && body.CheckoutRequestID != "" {
		return &domain.PaymentAck{CorrelationID: body.CheckoutRequestID, Message: MessagePromptSent}, nil
	}

	reason := strings.TrimSpace(body.ErrorMessage)
	if reason == "" {
		reason = MessageInitFailed
	}
	return nil, &domain.GatewayError{
		Kind:   domain.GatewayRejected,
		Reason: reason,
		Err:    fmt.Errorf("provider status %d, response code %q", status, body.ResponseCode),
	}
}

type queryRequest struct {
	CheckoutRequestID string `json:"checkoutRequestID"`
}

type queryResponse struct {
	ResponseCode      string   `json:"ResponseCode"`
	CheckoutRequestID string   `json:"CheckoutRequestID"`
	ResultCode        flexCode `json:"ResultCode"`
	ResultDesc        string   `json:"ResultDesc"`
	ErrorCode         string   `json:"errorCode"`
	ErrorMessage      string   `json:"errorMessage"`
}

// Query asks the provider for the outcome of a prompt.
func (c *Client) Query(ctx context.Context, correlationID string) (*domain.PaymentResult, error) {
	if c.cfg.QueryURL == "" {
		return nil, &domain.GatewayError{Kind: domain.GatewayUnreachable, Reason: MessageConnectionFailed, Err: errors.New("query endpoint not configured")}
	}

	var body queryResponse
	status, err := c.post(ctx, c.queryBreaker, c.cfg.QueryURL, queryRequest{CheckoutRequestID: correlationID}, &body)
	if err != nil {
		return nil, err
	}

	result := &domain.PaymentResult{
		CorrelationID: correlationID,
		Description:   body.ResultDesc,
		Source:        domain.SourcePoll,
	}

	switch {
	case body.ErrorCode == errorCodeProcessing:
		result.Status = domain.PaymentPending
		result.Description = body.ErrorMessage
	case body.ResultCode.set && body.ResultCode.value == 0:
		result.Status = domain.PaymentPaid
	case body.ResultCode.set:
		result.Status = domain.PaymentFailed
		result.ResultCode = body.ResultCode.value
	case status >= 400:
		return nil, &domain.GatewayError{
			Kind:   domain.GatewayRejected,
			Reason: firstNonEmpty(body.ErrorMessage, MessageInitFailed),
			Err:    fmt.Errorf("query status %d", status),
		}
	default:
		result.Status = domain.PaymentPending
	}
	return result, nil
}

// post sends payload through breaker. Transport errors and 5xx responses count as
// breaker failures and come back as unreachable, except the query endpoint's
// "still processing" answer.
func (c *Client) post(ctx context.Context, breaker *gobreaker.CircuitBreaker[rawResponse], url string, payload, out any) (int, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode payment request: %w", err)
	}

	resp, err := breaker.Execute(func() (rawResponse, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
		if err != nil {
			return rawResponse{}, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		httpResp, err := c.http.Do(httpReq)
		if err != nil {
			return rawResponse{}, err
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
		if err != nil {
			return rawResponse{}, fmt.Errorf("read provider response: %w", err)
		}
		if httpResp.StatusCode >= 500 && !stillProcessing(body) {
			return rawResponse{}, fmt.Errorf("provider returned %d", httpResp.StatusCode)
		}
		return rawResponse{status: httpResp.StatusCode, body: body}, nil
	})
	if err != nil {
		c.logger.WarnContext(ctx, "payment provider unreachable", "error", err)
		return 0, &domain.GatewayError{Kind: domain.GatewayUnreachable, Reason: MessageConnectionFailed, Err: err}
	}

	if len(bytes.TrimSpace(resp.body)) == 0 {
		return resp.status, nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return resp.status, &domain.GatewayError{Kind: domain.GatewayUnreachable, Reason: MessageConnectionFailed, Err: fmt.Errorf("decode provider response: %w", err)}
	}
	return resp.status, nil
}

func stillProcessing(body []byte) bool {
	var probe struct {
		ErrorCode string `json:"errorCode"`
	}
	return json.Unmarshal(body, &probe) == nil && probe.ErrorCode == errorCodeProcessing
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
