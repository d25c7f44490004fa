package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

const (
	EventOrderCommitted  = "order.committed"
	EventStockClamped    = "stock.clamped"
	EventPaymentOrphaned = "payment.orphaned"
)

// MessageWriter is the subset of *kafka.Writer the event bus needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Envelope wraps every published payload.
type Envelope struct {
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// EventBus publishes checkout events to a single topic, keyed so that events of
// one order or product stay ordered within a partition.
type EventBus struct {
	writer  MessageWriter
	topic   string
	metrics *Metrics
	now     func() time.Time
}

// NewWriter builds a kafka-go writer for the given brokers and topic.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewEventBus(writer MessageWriter, topic string, metrics *Metrics) *EventBus {
	return &EventBus{writer: writer, topic: topic, metrics: metrics, now: time.Now}
}

func (b *EventBus) PublishOrderCommitted(ctx context.Context, order domain.Order) error {
	return b.publish(ctx, EventOrderCommitted, order.ID, order)
}

func (b *EventBus) PublishStockClamped(ctx context.Context, adjustment domain.StockAdjustment) error {
	return b.publish(ctx, EventStockClamped, adjustment.ProductID, adjustment)
}

func (b *EventBus) PublishPaymentOrphaned(ctx context.Context, result domain.PaymentResult) error {
	return b.publish(ctx, EventPaymentOrphaned, result.CorrelationID, result)
}

// Close flushes pending messages.
func (b *EventBus) Close() error {
	return b.writer.Close()
}

func (b *EventBus) publish(ctx context.Context, eventType, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	value, err := json.Marshal(Envelope{
		EventType:  eventType,
		OccurredAt: b.now().UTC(),
		Payload:    body,
	})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}

	msg := kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	start := b.now()
	err = b.writer.WriteMessages(ctx, msg)
	b.metrics.RecordPublish(ctx, b.topic, eventType, time.Since(start).Seconds(), err == nil)
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}
