package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the checkout instruments. A nil *Metrics records nothing.
type Metrics struct {
	ordersCommittedTotal  metric.Int64Counter
	orderCommitDuration   metric.Float64Histogram
	paymentInitiations    metric.Int64Counter
	transitionsTotal      metric.Int64Counter
	stockClampsTotal      metric.Int64Counter
	orphanedConfirmations metric.Int64Counter
	reconciliationsTotal  metric.Int64Counter
	gatewayDuration       metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.ordersCommittedTotal, err = meter.Int64Counter(
		"orders_committed_total",
		metric.WithDescription("Total number of order commit attempts"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_committed_total counter: %w", err)
	}

	m.orderCommitDuration, err = meter.Float64Histogram(
		"order_commit_duration_seconds",
		metric.WithDescription("Duration of order commit operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_commit_duration histogram: %w", err)
	}

	m.paymentInitiations, err = meter.Int64Counter(
		"payment_initiations_total",
		metric.WithDescription("Payment prompts pushed to the gateway by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_initiations_total counter: %w", err)
	}

	m.transitionsTotal, err = meter.Int64Counter(
		"checkout_transitions_total",
		metric.WithDescription("Checkout state machine transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkout_transitions_total counter: %w", err)
	}

	m.stockClampsTotal, err = meter.Int64Counter(
		"stock_clamps_total",
		metric.WithDescription("Stock decrements cut short by available inventory"),
		metric.WithUnit("{decrement}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stock_clamps_total counter: %w", err)
	}

	m.orphanedConfirmations, err = meter.Int64Counter(
		"orphaned_confirmations_total",
		metric.WithDescription("Payment confirmations for abandoned or unknown references"),
		metric.WithUnit("{confirmation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orphaned_confirmations_total counter: %w", err)
	}

	m.reconciliationsTotal, err = meter.Int64Counter(
		"provisional_orders_reconciled_total",
		metric.WithDescription("Provisional orders checked against the payment provider"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create provisional_orders_reconciled_total counter: %w", err)
	}

	m.gatewayDuration, err = meter.Float64Histogram(
		"payment_gateway_duration_seconds",
		metric.WithDescription("Duration of payment gateway calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_gateway_duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordOrderCommitted(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.ordersCommittedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", statusLabel(success)),
	))
}

func (m *Metrics) RecordOrderCommitDuration(ctx context.Context, durationSeconds float64) {
	if m == nil {
		return
	}
	m.orderCommitDuration.Record(ctx, durationSeconds)
}

// RecordPaymentInitiation counts gateway pushes; outcome is accepted, rejected or unreachable.
func (m *Metrics) RecordPaymentInitiation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.paymentInitiations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *Metrics) RecordStockClamp(ctx context.Context) {
	if m == nil {
		return
	}
	m.stockClampsTotal.Add(ctx, 1)
}

func (m *Metrics) RecordOrphanedConfirmation(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.orphanedConfirmations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
	))
}

// RecordReconciliation counts provisional order checks; outcome is verified, flagged or pending.
func (m *Metrics) RecordReconciliation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.reconciliationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordGatewayCall records one gateway call; operation is initiate or query.
func (m *Metrics) RecordGatewayCall(ctx context.Context, operation string, durationSeconds float64, success bool) {
	if m == nil {
		return
	}
	m.gatewayDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", statusLabel(success)),
	))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
