package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPriceCache records cached prices for assertions.
type mockPriceCache struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	ttls   map[string]time.Duration
	err    error
}

func newMockPriceCache() *mockPriceCache {
	return &mockPriceCache{
		prices: make(map[string]decimal.Decimal),
		ttls:   make(map[string]time.Duration),
	}
}

func (m *mockPriceCache) SetPrice(_ context.Context, symbol string, price decimal.Decimal, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.prices[symbol] = price
	m.ttls[symbol] = ttl
	return nil
}

func (m *mockPriceCache) get(symbol string) (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.prices[symbol]
	return price, ok
}

func newTestConsumer(cache PriceCache) *TicksConsumer {
	return &TicksConsumer{cache: cache, ttl: 60 * time.Second}
}

func TestProcessMessage_SingleTick(t *testing.T) {
	cache := newMockPriceCache()
	consumer := newTestConsumer(cache)

	msg := kafka.Message{Value: []byte(`{
		"event_type": "TICK",
		"source": "market-data-service",
		"timestamp": "2025-06-01T12:00:00Z",
		"data": {"symbol": "reliance", "price": "2543.75"}
	}`)}

	err := consumer.processMessage(context.Background(), msg)
	require.NoError(t, err)

	price, ok := cache.get("RELIANCE")
	require.True(t, ok, "symbol should be normalized to upper case")
	assert.Equal(t, "2543.75", price.String())
	assert.Equal(t, 60*time.Second, cache.ttls["RELIANCE"])
}

func TestProcessMessage_TickBatch(t *testing.T) {
	cache := newMockPriceCache()
	consumer := newTestConsumer(cache)

	msg := kafka.Message{Value: []byte(`{
		"event_type": "TICK_BATCH",
		"data": {"ticks": [
			{"symbol": "RELIANCE", "price": "2543.75"},
			{"symbol": "TCS", "price": "3999.00"},
			{"symbol": "INFY", "price": "bogus"}
		]}
	}`)}

	err := consumer.processMessage(context.Background(), msg)
	require.NoError(t, err)

	// The bad tick is skipped; the valid ones are cached.
	_, ok := cache.get("RELIANCE")
	assert.True(t, ok)
	_, ok = cache.get("TCS")
	assert.True(t, ok)
	_, ok = cache.get("INFY")
	assert.False(t, ok)
}

func TestProcessMessage_UnknownEventType(t *testing.T) {
	cache := newMockPriceCache()
	consumer := newTestConsumer(cache)

	msg := kafka.Message{Value: []byte(`{"event_type": "ORDER_FILLED", "data": {}}`)}
	err := consumer.processMessage(context.Background(), msg)
	assert.NoError(t, err)
	assert.Empty(t, cache.prices)
}

func TestProcessMessage_MalformedJSON(t *testing.T) {
	cache := newMockPriceCache()
	consumer := newTestConsumer(cache)

	msg := kafka.Message{Value: []byte(`{not json`)}
	err := consumer.processMessage(context.Background(), msg)
	assert.Error(t, err)
}

func TestHandleTick_Validation(t *testing.T) {
	cache := newMockPriceCache()
	consumer := newTestConsumer(cache)
	ctx := context.Background()

	tests := []struct {
		name string
		tick Tick
	}{
		{"missing symbol", Tick{Symbol: "", Price: "100.00"}},
		{"blank symbol", Tick{Symbol: "   ", Price: "100.00"}},
		{"unparseable price", Tick{Symbol: "RELIANCE", Price: "n/a"}},
		{"zero price", Tick{Symbol: "RELIANCE", Price: "0"}},
		{"negative price", Tick{Symbol: "RELIANCE", Price: "-5.00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := consumer.handleTick(ctx, tt.tick)
			assert.Error(t, err)
		})
	}
	assert.Empty(t, cache.prices)
}

func TestHandleTick_TrimsAndUppercases(t *testing.T) {
	cache := newMockPriceCache()
	consumer := newTestConsumer(cache)

	err := consumer.handleTick(context.Background(), Tick{Symbol: "  tcs ", Price: "3999.00"})
	require.NoError(t, err)

	_, ok := cache.get("TCS")
	assert.True(t, ok)
}
