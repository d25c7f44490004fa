package mpesa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

// Simulator acknowledges every valid prompt without contacting a provider. Used in
// development when no proxy URL is configured; queries report the payment as paid.
type Simulator struct {
	countryCode string
	now         func() time.Time
	logger      *slog.Logger
}

func NewSimulator(countryCode string, logger *slog.Logger) *Simulator {
	if countryCode == "" {
		countryCode = domain.KenyaCountryCode
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{countryCode: countryCode, now: time.Now, logger: logger}
}

func (s *Simulator) Initiate(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentAck, error) {
	phone, err := domain.NormalizeMSISDN(req.Phone, s.countryCode)
	if err != nil {
		return nil, &domain.GatewayError{Kind: domain.GatewayRejected, Reason: MessageInvalidPhone, Err: err}
	}
	if req.Amount <= 0 {
		return nil, &domain.GatewayError{Kind: domain.GatewayRejected, Reason: MessageInitFailed, Err: errors.New("amount must be positive")}
	}

	correlationID := fmt.Sprintf("ws_CO_%d_%s", s.now().UnixMilli(), phone)
	s.logger.InfoContext(ctx, "simulated stk push",
		"phone", phone,
		"amount", req.Amount,
		"reference", req.Reference,
		"correlation_id", correlationID,
	)
	return &domain.PaymentAck{CorrelationID: correlationID, Message: MessagePromptSent}, nil
}

func (s *Simulator) Query(_ context.Context, correlationID string) (*domain.PaymentResult, error) {
	return &domain.PaymentResult{
		CorrelationID: correlationID,
		Status:        domain.PaymentPaid,
		Description:   "simulated payment",
		Source:        domain.SourcePoll,
	}, nil
}
