package database

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInitializeMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}
	if metrics.queryDuration == nil {
		t.Error("queryDuration is nil")
	}
}

func TestRecordDatabaseQuery(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	ctx := context.Background()

	metrics.RecordQuery(ctx, "orders", "create", 0.1, nil)
	metrics.RecordQuery(ctx, "orders", "create", 0.2, errors.New("conflict"))
	func() {
		var opErr error
		defer metrics.Since(ctx, "inventory", "decrement", time.Now(), &opErr)
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}

	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "db_query_duration_seconds" {
				continue
			}
			found = true
			histogram, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatal("Expected Histogram[float64] data type")
			}
			if len(histogram.DataPoints) != 3 {
				t.Errorf("Expected 3 data points, got %d", len(histogram.DataPoints))
			}
		}
	}

	if !found {
		t.Error("db_query_duration_seconds metric not found")
	}
}

func TestNilMetricsIgnoresRecords(t *testing.T) {
	var metrics *Metrics
	metrics.RecordQuery(context.Background(), "orders", "get", 1, nil)
	metrics.Since(context.Background(), "orders", "get", time.Now(), nil)
}
