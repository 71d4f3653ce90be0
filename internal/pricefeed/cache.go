package pricefeed

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketcalls/research-call-engine/internal/redis"
)

// CachedFeed serves prices from a Redis TTL cache, falling back to the
// underlying feed on a miss. The cache is owned here, not by global state:
// stale entries age out by TTL and a cache outage degrades to direct fetches.
type CachedFeed struct {
	feed  Feed
	cache *redis.Client
	ttl   time.Duration
}

// NewCachedFeed wraps the feed with a price cache.
func NewCachedFeed(feed Feed, cache *redis.Client, ttl time.Duration) *CachedFeed {
	return &CachedFeed{feed: feed, cache: cache, ttl: ttl}
}

// FetchPrice returns the cached price when fresh, otherwise fetches and
// caches. Cache write failures are logged, never surfaced: the price was
// obtained.
func (c *CachedFeed) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if price, err := c.cache.GetPrice(ctx, symbol); err == nil {
		return price, nil
	} else if !redis.IsCacheMiss(err) {
		log.Printf("Price cache read failed for %s: %v", symbol, err)
	}

	price, err := c.feed.FetchPrice(ctx, symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if err := c.cache.SetPrice(ctx, symbol, price, c.ttl); err != nil {
		log.Printf("Price cache write failed for %s: %v", symbol, err)
	}
	return price, nil
}

var _ Feed = (*CachedFeed)(nil)
