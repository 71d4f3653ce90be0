package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// PriceCache is the interface for the price cache the tick consumer warms.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal, ttl time.Duration) error
}

// TickEvent represents a market tick from the data vendor's topic.
type TickEvent struct {
	EventType string        `json:"event_type"`
	Source    string        `json:"source"`
	Timestamp string        `json:"timestamp"`
	Data      TickEventData `json:"data"`
}

// TickEventData holds the tick payloads for the supported event types.
type TickEventData struct {
	// For TICK_BATCH events
	Ticks []Tick `json:"ticks,omitempty"`

	// For TICK events
	Symbol string `json:"symbol,omitempty"`
	Price  string `json:"price,omitempty"`
}

// Tick is a single symbol/price sample. Prices travel as strings to keep
// exact decimal semantics across the wire.
type Tick struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// TicksConsumer consumes market ticks and warms the price cache, so the
// sweep's cached feed mostly avoids on-demand quote API calls.
type TicksConsumer struct {
	reader *kafka.Reader
	cache  PriceCache
	ttl    time.Duration
}

// NewTicksConsumer creates a Kafka consumer for market tick events.
func NewTicksConsumer(brokers []string, topic, groupID string, cache PriceCache, ttl time.Duration) *TicksConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID + "-ticks",
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &TicksConsumer{
		reader: reader,
		cache:  cache,
		ttl:    ttl,
	}
}

// Start begins consuming messages from Kafka
func (c *TicksConsumer) Start(ctx context.Context) error {
	log.Printf("Starting ticks consumer for topic: %s", c.reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			log.Println("Ticks consumer shutting down...")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				log.Printf("Error reading tick message: %v", err)
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				log.Printf("Error processing tick message: %v", err)
				// Continue processing other messages
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *TicksConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event TickEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal tick event: %w", err)
	}

	switch event.EventType {
	case "TICK":
		return c.handleTick(ctx, Tick{Symbol: event.Data.Symbol, Price: event.Data.Price})

	case "TICK_BATCH":
		for _, tick := range event.Data.Ticks {
			if err := c.handleTick(ctx, tick); err != nil {
				log.Printf("Error caching tick for %s: %v", tick.Symbol, err)
			}
		}
		return nil

	default:
		log.Printf("Ignoring unknown tick event type: %s", event.EventType)
		return nil
	}
}

// handleTick parses and caches a single tick.
func (c *TicksConsumer) handleTick(ctx context.Context, tick Tick) error {
	symbol := strings.ToUpper(strings.TrimSpace(tick.Symbol))
	if symbol == "" {
		return fmt.Errorf("tick has no symbol")
	}

	price, err := decimal.NewFromString(tick.Price)
	if err != nil {
		return fmt.Errorf("unparseable tick price %q for %s: %w", tick.Price, symbol, err)
	}
	if !price.IsPositive() {
		return fmt.Errorf("non-positive tick price %s for %s", price, symbol)
	}

	return c.cache.SetPrice(ctx, symbol, price, c.ttl)
}

// Close closes the Kafka consumer
func (c *TicksConsumer) Close() error {
	return c.reader.Close()
}
