package adapters

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/metrics"
	"github.com/dejobratic/storefront/internal/checkout/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
)

// ObservableGateway traces payment provider calls and records their latency.
// Rejections count as successful calls; only unreachable errors are failures.
type ObservableGateway struct {
	gateway ports.PaymentGateway
	metrics *metrics.Metrics
}

func NewObservableGateway(gateway ports.PaymentGateway, metrics *metrics.Metrics) *ObservableGateway {
	return &ObservableGateway{gateway: gateway, metrics: metrics}
}

func (g *ObservableGateway) Initiate(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentAck, error) {
	ctx, span := telemetry.StartSpan(ctx, "PaymentGateway.Initiate")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("payment.reference", req.Reference),
		attribute.Int64("payment.amount", req.Amount),
	)

	start := time.Now()
	ack, err := g.gateway.Initiate(ctx, req)
	g.metrics.RecordGatewayCall(ctx, "initiate", time.Since(start).Seconds(), !domain.IsGatewayError(err, domain.GatewayUnreachable))

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.AddSpanAttributes(span, attribute.String("payment.correlation_id", ack.CorrelationID))
	telemetry.SetSpanSuccess(span)
	return ack, nil
}

func (g *ObservableGateway) Query(ctx context.Context, correlationID string) (*domain.PaymentResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "PaymentGateway.Query")
	defer span.End()

	telemetry.AddSpanAttributes(span, attribute.String("payment.correlation_id", correlationID))

	start := time.Now()
	result, err := g.gateway.Query(ctx, correlationID)
	g.metrics.RecordGatewayCall(ctx, "query", time.Since(start).Seconds(), err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.AddSpanAttributes(span, attribute.String("payment.status", string(result.Status)))
	telemetry.SetSpanSuccess(span)
	return result, nil
}
