package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}
	if metrics.requestDuration == nil {
		t.Error("requestDuration is nil")
	}
	if metrics.requestsTotal == nil {
		t.Error("requestsTotal is nil")
	}
}

func TestRecordRequestOnNilMetrics(t *testing.T) {
	var metrics *Metrics
	metrics.RecordRequest(context.Background(), http.MethodGet, "/v1/cart", http.StatusOK, 0.1)
}

func TestWithMetricsLabelsRoutePattern(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	router := chi.NewRouter()
	router.Use(WithMetrics(metrics))
	router.Get("/v1/orders/{orderID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/orders/"+id, nil))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}

	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "http_requests_total" {
				continue
			}
			found = true
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatal("Expected Sum[int64] data type")
			}
			if len(sum.DataPoints) != 1 {
				t.Fatalf("Expected 1 data point for one route, got %d", len(sum.DataPoints))
			}
			dp := sum.DataPoints[0]
			if dp.Value != 3 {
				t.Errorf("Expected 3 requests, got %d", dp.Value)
			}
			route, _ := dp.Attributes.Value(attribute.Key("route"))
			if route.AsString() != "/v1/orders/{orderID}" {
				t.Errorf("route = %q", route.AsString())
			}
			status, _ := dp.Attributes.Value(attribute.Key("status_code"))
			if status.AsInt64() != http.StatusNotFound {
				t.Errorf("status_code = %d", status.AsInt64())
			}
		}
	}
	if !found {
		t.Error("http_requests_total metric not found")
	}
}
