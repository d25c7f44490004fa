package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestEventBusPublishOrderCommitted(t *testing.T) {
	writer := &fakeWriter{}
	bus := NewEventBus(writer, "storefront.checkout", nil)

	order := domain.Order{ID: "order-1", Reference: "ORD-1", Total: 1500}
	require.NoError(t, bus.PublishOrderCommitted(context.Background(), order))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "order-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, EventOrderCommitted, string(msg.Headers[0].Value))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, EventOrderCommitted, env.EventType)

	var decoded domain.Order
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))
	assert.Equal(t, "ORD-1", decoded.Reference)
}

func TestEventBusKeysByAggregate(t *testing.T) {
	writer := &fakeWriter{}
	bus := NewEventBus(writer, "t", nil)
	ctx := context.Background()

	require.NoError(t, bus.PublishStockClamped(ctx, domain.StockAdjustment{OrderID: "o", ProductID: "p-1", Requested: 3, Reserved: 1}))
	require.NoError(t, bus.PublishPaymentOrphaned(ctx, domain.PaymentResult{CorrelationID: "ws_CO_1"}))

	require.Len(t, writer.messages, 2)
	assert.Equal(t, "p-1", string(writer.messages[0].Key))
	assert.Equal(t, "ws_CO_1", string(writer.messages[1].Key))
}

func TestEventBusWrapsWriterError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	bus := NewEventBus(writer, "t", nil)

	err := bus.PublishOrderCommitted(context.Background(), domain.Order{ID: "o"})
	require.Error(t, err)
	assert.ErrorIs(t, err, writer.err)

	require.NoError(t, bus.Close())
	assert.True(t, writer.closed)
}

func TestNoopEventBus(t *testing.T) {
	bus := NewNoopEventBus(nil)
	ctx := context.Background()

	assert.NoError(t, bus.PublishOrderCommitted(ctx, domain.Order{ID: "o"}))
	assert.NoError(t, bus.PublishStockClamped(ctx, domain.StockAdjustment{}))
	assert.NoError(t, bus.PublishPaymentOrphaned(ctx, domain.PaymentResult{}))
}
