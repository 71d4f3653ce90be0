// Package kafka fans research-call lifecycle events out to the notification
// topic. Delivery to users is the consumer side's responsibility.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/marketcalls/research-call-engine/internal/models"
)

// CallEventMessage is the wire format published for every lifecycle event.
// EventID is unique per publish so consumers can deduplicate redeliveries.
type CallEventMessage struct {
	EventID      string            `json:"event_id"`
	CallID       int64             `json:"call_id"`
	Symbol       string            `json:"symbol"`
	Direction    models.Direction  `json:"direction"`
	EventType    models.EventType  `json:"event_type"`
	PriceAtEvent string            `json:"price_at_event,omitempty"`
	Status       models.CallStatus `json:"status"`
	Notes        string            `json:"notes,omitempty"`
	Timestamp    string            `json:"timestamp"`
}

// Publisher writes call events to Kafka.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Kafka publisher for the given topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Publisher{writer: writer}
}

// PublishEvent publishes one lifecycle event. Messages are keyed by call id
// so all events for a call land on one partition, preserving their order.
func (p *Publisher) PublishEvent(ctx context.Context, call *models.ResearchCall, event *models.ResearchCallEvent) error {
	msg := CallEventMessage{
		EventID:   uuid.NewString(),
		CallID:    call.ID,
		Symbol:    call.Symbol,
		Direction: call.Direction,
		EventType: event.EventType,
		Status:    call.Status,
		Notes:     event.Notes,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if event.PriceAtEvent.Valid {
		msg.PriceAtEvent = event.PriceAtEvent.Decimal.String()
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal call event: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("call-%d", call.ID)),
		Value: value,
	})
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
