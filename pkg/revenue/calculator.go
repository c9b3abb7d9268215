// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package revenue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tavari-hq/admix/pkg/log"
	"github.com/tavari-hq/admix/pkg/metric"
	"github.com/tavari-hq/admix/pkg/storage"
)

// SettlementCurrency is the single currency all revenue is recorded
// and paid out in.
const SettlementCurrency = "CAD"

// moneyPlaces is the precision money amounts are rounded to before the
// remainder is folded into the business share.
const moneyPlaces = 6

var ErrUnknownProvider = errors.New("unknown provider")

// Commission is a three-way split of gross revenue. Fractions sum to 1.
type Commission struct {
	API      decimal.Decimal
	Tavari   decimal.Decimal
	Business decimal.Decimal
}

// defaultCommissions is the built-in fraction table per provider.
func defaultCommissions() map[string]Commission {
	return map[string]Commission{
		"spotify":  {API: dec("0.30"), Tavari: dec("0.10"), Business: dec("0.60")},
		"google":   {API: dec("0.32"), Tavari: dec("0.10"), Business: dec("0.58")},
		"siriusxm": {API: dec("0.35"), Tavari: dec("0.10"), Business: dec("0.55")},
		"networks": {API: dec("0.40"), Tavari: dec("0.15"), Business: dec("0.45")},
	}
}

// fallbackPrice is the documented per-play price used when a provider
// omits one.
type fallbackPrice struct {
	amount   decimal.Decimal
	currency string
}

func defaultFallbackPrices() map[string]fallbackPrice {
	return map[string]fallbackPrice{
		"spotify":  {dec("0.015"), "USD"},
		"google":   {dec("0.012"), "USD"},
		"siriusxm": {dec("0.020"), "CAD"},
		"networks": {dec("0.008"), "USD"},
	}
}

// subNetworkFallbackPrices override the generic networks price for
// known sub-networks.
func defaultSubNetworkPrices() map[string]fallbackPrice {
	return map[string]fallbackPrice{
		"audiogo": {dec("0.010"), "USD"},
		"adswizz": {dec("0.009"), "USD"},
		"triton":  {dec("0.007"), "USD"},
	}
}

// Play is the revenue-relevant view of one delivered ad.
type Play struct {
	AdPlayID   string
	BusinessID string
	Provider   string
	SubNetwork string // set for the aggregate provider
	Amount     decimal.Decimal
	Currency   string
}

// Calculator turns provider-reported prices into settled, split
// revenue records. It owns the exchange-rate cache and the default
// commission table.
type Calculator struct {
	store   *storage.Storage
	rates   *RateSource
	metrics *metric.Metrics
	log     log.Logger

	commissions      map[string]Commission
	fallbackPrices   map[string]fallbackPrice
	subNetworkPrices map[string]fallbackPrice

	mu        sync.RWMutex
	overrides map[string]decimal.Decimal // businessID → business share override

	now func() time.Time
}

// NewCalculator creates a revenue calculator over the given store.
func NewCalculator(store *storage.Storage, rates *RateSource, opts ...CalcOption) *Calculator {
	c := &Calculator{
		store:            store,
		rates:            rates,
		log:              log.NoLog,
		commissions:      defaultCommissions(),
		fallbackPrices:   defaultFallbackPrices(),
		subNetworkPrices: defaultSubNetworkPrices(),
		overrides:        make(map[string]decimal.Decimal),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CalcOption configures a Calculator.
type CalcOption func(*Calculator)

func WithCalcLogger(l log.Logger) CalcOption {
	return func(c *Calculator) { c.log = l }
}

func WithCalcMetrics(m *metric.Metrics) CalcOption {
	return func(c *Calculator) { c.metrics = m }
}

func WithCalcClock(now func() time.Time) CalcOption {
	return func(c *Calculator) { c.now = now }
}

// SetBusinessShareOverride replaces the business fraction for one
// business. The API share stays fixed; the tavari share absorbs the
// difference, clamped at zero.
func (c *Calculator) SetBusinessShareOverride(businessID string, share decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[businessID] = share
}

// ResolveCommission returns the fraction triple in effect for a
// provider and business.
func (c *Calculator) ResolveCommission(provider, businessID string) (Commission, error) {
	base, ok := c.commissions[provider]
	if !ok {
		return Commission{}, ErrUnknownProvider
	}

	c.mu.RLock()
	override, hasOverride := c.overrides[businessID]
	c.mu.RUnlock()
	if !hasOverride {
		return base, nil
	}

	one := decimal.NewFromInt(1)
	tavari := one.Sub(override).Sub(base.API)
	if tavari.IsNegative() {
		tavari = decimal.Zero
	}
	return Commission{API: base.API, Tavari: tavari, Business: override}, nil
}

// CalculateAdRevenue computes and persists the revenue record for one
// ad play: resolve commissions, fall back to the documented price when
// the provider omitted one, split with the rounding remainder folded
// into the business share, convert to the settlement currency with one
// cached rate, persist, then best-effort bump the daily running total.
func (c *Calculator) CalculateAdRevenue(ctx context.Context, play Play) (*storage.RevenueRecord, error) {
	commission, err := c.ResolveCommission(play.Provider, play.BusinessID)
	if err != nil {
		return nil, err
	}

	gross, currency := c.resolvePrice(play)
	api, tavari, business := split(gross, commission)

	rate := decimal.NewFromInt(1)
	settledGross := gross
	if currency != SettlementCurrency {
		rate = c.rates.Rate(ctx, currency, SettlementCurrency)
		settledGross = gross.Mul(rate).Round(moneyPlaces)
		api = api.Mul(rate).Round(moneyPlaces)
		tavari = tavari.Mul(rate).Round(moneyPlaces)
		// Same rate for all three; fold the new remainder into the
		// business payout so the sum invariant survives conversion.
		business = settledGross.Sub(api).Sub(tavari)
	}

	rec := storage.RevenueRecord{
		ID:               uuid.NewString(),
		AdPlayID:         play.AdPlayID,
		BusinessID:       play.BusinessID,
		APIProvider:      play.Provider,
		RevenueType:      "ad_play",
		GrossRevenue:     settledGross,
		APICommission:    api,
		TavariCommission: tavari,
		BusinessPayout:   business,
		Currency:         SettlementCurrency,
		ExchangeRate:     rate,
		OriginalCurrency: currency,
		OriginalAmount:   gross,
		PaymentStatus:    storage.PaymentPending,
		CreatedAt:        c.now(),
	}

	if err := c.store.InsertRevenueRecord(ctx, rec); err != nil {
		return nil, err
	}
	if c.metrics != nil {
		settled, _ := settledGross.Float64()
		c.metrics.RevenueRecorded.WithLabelValues(play.Provider).Add(settled)
	}

	// Best-effort daily running total; a failure here never fails the
	// overall call.
	date := rec.CreatedAt.UTC().Format("2006-01-02")
	if err := c.store.IncrementDailyTotal(ctx, play.BusinessID, date, settledGross); err != nil {
		c.log.Warn("daily revenue total not updated",
			"business", play.BusinessID, "error", err)
	}

	return &rec, nil
}

// resolvePrice extracts the gross price and native currency, using the
// provider's documented fallback when the response omitted a price.
func (c *Calculator) resolvePrice(play Play) (decimal.Decimal, string) {
	if play.Amount.IsPositive() && play.Currency != "" {
		return play.Amount, play.Currency
	}
	if play.SubNetwork != "" {
		if p, ok := c.subNetworkPrices[play.SubNetwork]; ok {
			return p.amount, p.currency
		}
	}
	if p, ok := c.fallbackPrices[play.Provider]; ok {
		return p.amount, p.currency
	}
	return decimal.Zero, SettlementCurrency
}

// split divides gross by the commission fractions. API and tavari
// shares are rounded; business takes the exact remainder so the three
// always sum to gross.
func split(gross decimal.Decimal, c Commission) (api, tavari, business decimal.Decimal) {
	api = gross.Mul(c.API).Round(moneyPlaces)
	tavari = gross.Mul(c.Tavari).Round(moneyPlaces)
	business = gross.Sub(api).Sub(tavari)
	return api, tavari, business
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
