package pricefeed

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures circuit breaker behavior
type BreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultBreakerSettings returns the settings used in production.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// BreakerFeed wraps a Feed with circuit breaker functionality. While the
// breaker is open every fetch fails fast as ErrPriceUnavailable, so a dead
// quote API degrades into per-call feed failures instead of a stalled sweep.
type BreakerFeed struct {
	feed    Feed
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerFeed wraps the feed with a circuit breaker.
func NewBreakerFeed(feed Feed, settings BreakerSettings) *BreakerFeed {
	gbSettings := gobreaker.Settings{
		Name:        "PriceFeedCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &BreakerFeed{
		feed:    feed,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// FetchPrice executes the fetch through the breaker.
func (b *BreakerFeed) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.feed.FetchPrice(ctx, symbol)
	})
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, symbol, err)
	}
	price, ok := res.(decimal.Decimal)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s: unexpected breaker result", ErrPriceUnavailable, symbol)
	}
	return price, nil
}

var _ Feed = (*BreakerFeed)(nil)
