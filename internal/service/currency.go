package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"truemarket-api/internal/clock"
	"truemarket-api/internal/model"

	"github.com/shopspring/decimal"
)

// cachedRate is a rate snapshot kept past its TTL so conversions can fall
// back to stale data when the feed is down.
type cachedRate struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

// CurrencyConverter converts minor-unit amounts to USD cents.
type CurrencyConverter struct {
	feed  RateFeed
	clock clock.Clock
	ttl   time.Duration

	mu    sync.RWMutex
	rates map[string]cachedRate
}

// NewCurrencyConverter creates a converter with the given cache TTL.
func NewCurrencyConverter(feed RateFeed, clk clock.Clock, ttl time.Duration) *CurrencyConverter {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &CurrencyConverter{
		feed:  feed,
		clock: clk,
		ttl:   ttl,
		rates: make(map[string]cachedRate),
	}
}

// ToUSD converts an amount in the smallest unit of the given currency to
// USD cents. Zero amounts convert to zero without consulting the feed.
// An empty currency is treated as already-USD and returned unchanged, the
// same as an explicit "USD"; callers with a currency that is merely
// unknown must not pass it as "". When the feed is unreachable a stale
// cached rate is used; with no cached rate at all the conversion fails
// with model.ErrRateUnavailable.
func (c *CurrencyConverter) ToUSD(ctx context.Context, amount int64, currency string) (int64, error) {
	if amount == 0 {
		return 0, nil
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == "USD" {
		return amount, nil
	}

	now := c.clock.Now()

	if cached, ok := c.lookup(currency); ok && now.Sub(cached.fetchedAt) < c.ttl {
		return applyRate(amount, cached.rate), nil
	}

	rate, err := c.feed.FetchUSDRate(ctx, currency)
	if err != nil {
		cached, ok := c.lookup(currency)
		if !ok {
			return 0, fmt.Errorf("%w: %s: %v", model.ErrRateUnavailable, currency, err)
		}
		log.Printf("[CurrencyConverter] Rate fetch failed for %s, using stale rate from %s: %v",
			currency, cached.fetchedAt.Format(time.RFC3339), err)
		return applyRate(amount, cached.rate), nil
	}

	c.store(currency, cachedRate{rate: rate, fetchedAt: now})
	return applyRate(amount, rate), nil
}

func (c *CurrencyConverter) lookup(currency string) (cachedRate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.rates[currency]
	return cached, ok
}

func (c *CurrencyConverter) store(currency string, cached cachedRate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rates[currency] = cached
}

// applyRate multiplies the amount by the rate and rounds half up to a
// whole number of cents.
func applyRate(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}
