// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package revenue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"github.com/tavari-hq/admix/pkg/log"
)

// RateTTL bounds how long a fetched exchange rate is reused. Rates
// refresh at most hourly.
const RateTTL = time.Hour

// fallbackRates are used whenever no live rate is available. Keyed
// "FROM/TO".
var fallbackRates = map[string]decimal.Decimal{
	"USD/CAD": decimal.NewFromFloat(1.35),
	"EUR/CAD": decimal.NewFromFloat(1.47),
	"GBP/CAD": decimal.NewFromFloat(1.71),
	"CAD/USD": decimal.NewFromFloat(0.74),
}

// RateSource resolves and caches currency exchange rates.
type RateSource struct {
	client *http.Client
	url    string // empty disables live fetches
	cache  *expirable.LRU[string, decimal.Decimal]
	log    log.Logger
}

// NewRateSource creates a rate source. url is the live rate endpoint;
// when empty only the fixed fallback table is used.
func NewRateSource(url string, logger log.Logger) *RateSource {
	if logger == nil {
		logger = log.NoLog
	}
	return &RateSource{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
		cache:  expirable.NewLRU[string, decimal.Decimal](32, nil, RateTTL),
		log:    logger,
	}
}

// Rate returns the conversion rate from one currency to another. The
// result is cached for RateTTL; the fixed fallback is used (and also
// cached) when the live endpoint is unavailable.
func (r *RateSource) Rate(ctx context.Context, from, to string) decimal.Decimal {
	if from == to {
		return decimal.NewFromInt(1)
	}

	key := from + "/" + to
	if rate, ok := r.cache.Get(key); ok {
		return rate
	}

	rate, err := r.fetch(ctx, from, to)
	if err != nil {
		rate = r.fallback(from, to)
		r.log.Warn("live exchange rate unavailable, using fallback",
			"pair", key, "rate", rate.String(), "error", err)
	}
	r.cache.Add(key, rate)
	return rate
}

type rateResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

func (r *RateSource) fetch(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if r.url == "" {
		return decimal.Zero, fmt.Errorf("no rate endpoint configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s?base=%s&symbols=%s", r.url, from, to), nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate endpoint returned %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, err
	}
	rate, ok := body.Rates[to]
	if !ok || rate <= 0 {
		return decimal.Zero, fmt.Errorf("no %s rate in response", to)
	}
	return decimal.NewFromFloat(rate), nil
}

func (r *RateSource) fallback(from, to string) decimal.Decimal {
	if rate, ok := fallbackRates[from+"/"+to]; ok {
		return rate
	}
	// Unknown pair: record at face value rather than invent a rate.
	return decimal.NewFromInt(1)
}
