package database

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records storage latency for every repository, keyed by store and operation.
// A nil *Metrics records nothing.
type Metrics struct {
	queryDuration metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.queryDuration, err = meter.Float64Histogram(
		"db_query_duration_seconds",
		metric.WithDescription("Storage operation duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_query_duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordQuery(ctx context.Context, store, operation string, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.queryDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

// Since records the time elapsed since start. Intended for defer.
func (m *Metrics) Since(ctx context.Context, store, operation string, start time.Time, err *error) {
	var opErr error
	if err != nil {
		opErr = *err
	}
	m.RecordQuery(ctx, store, operation, time.Since(start).Seconds(), opErr)
}
