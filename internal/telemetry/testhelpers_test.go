package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func testConfig() Config {
	return Config{
		ServiceName:    "storefront-test",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		SampleRate:     1.0,
	}
}

// setupTracerProvider installs an in-memory tracer provider and returns a cleanup function.
func setupTracerProvider(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	t.Helper()

	exp := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exp))
	otel.SetTracerProvider(tp)

	cleanup := func() {
		otel.SetTracerProvider(nil)
	}

	return exp, cleanup
}
