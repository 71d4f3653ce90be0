// Package pricefeed defines the market-data port the monitoring sweep
// consumes, with an HTTP implementation, a circuit breaker wrapper, and a
// Redis-backed TTL cache.
package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable is returned when no price could be obtained for a
// symbol. The sweep treats it as transient: the failure is recorded for the
// call and the next scheduled sweep is the retry.
var ErrPriceUnavailable = errors.New("price unavailable")

// Feed fetches the current market price of a symbol. Implementations are
// read-only and safe for concurrent use.
type Feed interface {
	FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// HTTPFeed fetches quotes from a market-data HTTP API.
type HTTPFeed struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFeed creates a feed against the given base URL. The timeout bounds
// every fetch; a timed-out fetch surfaces as ErrPriceUnavailable.
func NewHTTPFeed(baseURL string, timeout time.Duration) *HTTPFeed {
	return &HTTPFeed{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type quoteResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// FetchPrice requests a quote for the symbol. Prices travel as strings end to
// end so no precision is lost to float parsing.
func (f *HTTPFeed) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/quote?symbol=%s", f.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to build quote request for %s: %w", symbol, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("%w: %s: quote API returned %d", ErrPriceUnavailable, symbol, resp.StatusCode)
	}

	var quote quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s: malformed quote: %v", ErrPriceUnavailable, symbol, err)
	}

	price, err := decimal.NewFromString(quote.Price)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s: unparseable price %q", ErrPriceUnavailable, symbol, quote.Price)
	}
	return price, nil
}
