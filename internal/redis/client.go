// Package redis provides the TTL price cache that sits in front of the
// market-data feed. Prices are stored as exact decimal strings, never floats.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/marketcalls/research-call-engine/internal/config"
)

// Client wraps the Redis client with price-cache operations
type Client struct {
	rdb *redis.Client
}

// New creates a new Redis client
func New(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetPrice caches a sampled price for a symbol with TTL.
func (c *Client) SetPrice(ctx context.Context, symbol string, price decimal.Decimal, ttl time.Duration) error {
	key := priceKey(symbol)
	return c.rdb.Set(ctx, key, price.String(), ttl).Err()
}

// GetPrice retrieves a cached price. Returns redis.Nil via the wrapped error
// when the key is absent or expired.
func (c *Client) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	raw, err := c.rdb.Get(ctx, priceKey(symbol)).Result()
	if err != nil {
		return decimal.Decimal{}, err
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse cached price for %s: %w", symbol, err)
	}
	return price, nil
}

// IsCacheMiss reports whether the error from GetPrice means the key was not
// present.
func IsCacheMiss(err error) bool {
	return err == redis.Nil
}

// Delete removes cached entries.
func (c *Client) Delete(ctx context.Context, symbols ...string) error {
	keys := make([]string, 0, len(symbols))
	for _, s := range symbols {
		keys = append(keys, priceKey(s))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func priceKey(symbol string) string {
	return fmt.Sprintf("quote:%s:price", symbol)
}
