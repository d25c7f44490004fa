package metrics

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}
	return metrics, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestInitializeMetrics(t *testing.T) {
	metrics, _ := newTestMetrics(t)

	if metrics.ordersCommittedTotal == nil {
		t.Error("ordersCommittedTotal is nil")
	}
	if metrics.orderCommitDuration == nil {
		t.Error("orderCommitDuration is nil")
	}
	if metrics.paymentInitiations == nil {
		t.Error("paymentInitiations is nil")
	}
	if metrics.transitionsTotal == nil {
		t.Error("transitionsTotal is nil")
	}
}

func TestRecordOrderCommitted(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordOrderCommitted(ctx, true)
	metrics.RecordOrderCommitted(ctx, false)
	metrics.RecordOrderCommitDuration(ctx, 0.2)
	metrics.RecordOrderCommitDuration(ctx, 0.4)

	got := collect(t, reader)

	sum, ok := got["orders_committed_total"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("Expected Sum[int64] data type for orders_committed_total")
	}
	if len(sum.DataPoints) != 2 {
		t.Errorf("Expected 2 data points, got %d", len(sum.DataPoints))
	}

	histogram, ok := got["order_commit_duration_seconds"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("Expected Histogram[float64] data type")
	}
	if histogram.DataPoints[0].Count != 2 {
		t.Errorf("Expected count=2, got %d", histogram.DataPoints[0].Count)
	}
}

func TestRecordCheckoutCounters(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordPaymentInitiation(ctx, "accepted")
	metrics.RecordPaymentInitiation(ctx, "rejected")
	metrics.RecordPaymentInitiation(ctx, "accepted")
	metrics.RecordTransition(ctx, "cart", "shipping_selected")
	metrics.RecordStockClamp(ctx)
	metrics.RecordOrphanedConfirmation(ctx, "callback")
	metrics.RecordReconciliation(ctx, "verified")
	metrics.RecordGatewayCall(ctx, "initiate", 0.3, true)

	got := collect(t, reader)

	initiations, ok := got["payment_initiations_total"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("payment_initiations_total not recorded")
	}
	if len(initiations.DataPoints) != 2 {
		t.Errorf("Expected 2 outcome series, got %d", len(initiations.DataPoints))
	}

	for _, name := range []string{
		"checkout_transitions_total",
		"stock_clamps_total",
		"orphaned_confirmations_total",
		"provisional_orders_reconciled_total",
		"payment_gateway_duration_seconds",
	} {
		if _, ok := got[name]; !ok {
			t.Errorf("%s metric not found", name)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var metrics *Metrics
	ctx := context.Background()

	metrics.RecordOrderCommitted(ctx, true)
	metrics.RecordOrderCommitDuration(ctx, 1)
	metrics.RecordPaymentInitiation(ctx, "accepted")
	metrics.RecordTransition(ctx, "a", "b")
	metrics.RecordStockClamp(ctx)
	metrics.RecordOrphanedConfirmation(ctx, "poll")
	metrics.RecordReconciliation(ctx, "flagged")
	metrics.RecordGatewayCall(ctx, "query", 1, false)
}
