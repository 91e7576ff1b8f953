package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RateFeed provides exchange rates from an external source.
type RateFeed interface {
	// FetchUSDRate returns the conversion rate from one unit of the given
	// currency to USD.
	FetchUSDRate(ctx context.Context, currency string) (decimal.Decimal, error)
}

// ExchangeRateAPI fetches rates from the exchangerate-api.com v4 endpoint.
type ExchangeRateAPI struct {
	baseURL    string
	httpClient *http.Client
}

// NewExchangeRateAPI creates a rate feed against the given base URL.
func NewExchangeRateAPI(baseURL string, timeout time.Duration) *ExchangeRateAPI {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ExchangeRateAPI{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// rateResponse mirrors the relevant part of the v4/latest payload.
type rateResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// FetchUSDRate fetches the latest rates for the given base currency and
// returns its USD rate.
func (a *ExchangeRateAPI) FetchUSDRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))

	url := fmt.Sprintf("%s/v4/latest/%s", a.baseURL, currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rates for %s: %w", currency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetch rates for %s: unexpected status %d", currency, resp.StatusCode)
	}

	var payload rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("decode rates for %s: %w", currency, err)
	}

	rate, ok := payload.Rates["USD"]
	if !ok {
		return decimal.Zero, fmt.Errorf("no USD rate in response for %s", currency)
	}
	if rate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("non-positive USD rate %s for %s", rate, currency)
	}

	return rate, nil
}
