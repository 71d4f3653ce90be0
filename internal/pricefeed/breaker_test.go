package pricefeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeed struct {
	mu    sync.Mutex
	price decimal.Decimal
	err   error
	calls int
}

func (f *stubFeed) FetchPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return decimal.Decimal{}, f.err
	}
	return f.price, nil
}

func (f *stubFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestBreakerFeed_PassesThrough(t *testing.T) {
	stub := &stubFeed{price: decimal.RequireFromString("2500.50")}
	feed := NewBreakerFeed(stub, DefaultBreakerSettings())

	price, err := feed.FetchPrice(context.Background(), "RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, "2500.5", price.String())
}

func TestBreakerFeed_WrapsUnderlyingError(t *testing.T) {
	stub := &stubFeed{err: errors.New("upstream timeout")}
	feed := NewBreakerFeed(stub, DefaultBreakerSettings())

	_, err := feed.FetchPrice(context.Background(), "RELIANCE")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

// After enough failures the breaker opens and fails fast without hitting the
// underlying feed.
func TestBreakerFeed_OpensOnFailures(t *testing.T) {
	stub := &stubFeed{err: errors.New("upstream timeout")}
	settings := BreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
	feed := NewBreakerFeed(stub, settings)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := feed.FetchPrice(ctx, "RELIANCE")
		require.Error(t, err)
	}
	callsAtTrip := stub.callCount()
	require.Equal(t, 3, callsAtTrip)

	// Circuit is now open: further fetches fail without reaching the feed.
	_, err := feed.FetchPrice(ctx, "RELIANCE")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.Equal(t, callsAtTrip, stub.callCount())
}

func TestBreakerFeed_StaysClosedUnderMinRequests(t *testing.T) {
	stub := &stubFeed{err: errors.New("upstream timeout")}
	settings := DefaultBreakerSettings() // MinRequests: 5
	feed := NewBreakerFeed(stub, settings)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		feed.FetchPrice(ctx, "RELIANCE")
	}

	// Below the minimum request count the breaker still forwards.
	_, err := feed.FetchPrice(ctx, "RELIANCE")
	assert.Error(t, err)
	assert.Equal(t, 4, stub.callCount())
}
