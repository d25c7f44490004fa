package ports

import (
	"context"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

// PaymentGateway pushes payment prompts and reports their outcome. Errors are
// *domain.GatewayError.
type PaymentGateway interface {
	Initiate(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentAck, error)
	Query(ctx context.Context, correlationID string) (*domain.PaymentResult, error)
}
