// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package revenue

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe selects the stats aggregation window.
type Timeframe string

const (
	TimeframeToday  Timeframe = "today"
	Timeframe7Days  Timeframe = "7days"
	Timeframe30Days Timeframe = "30days"
)

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(s) {
	case TimeframeToday, Timeframe7Days, Timeframe30Days:
		return Timeframe(s), nil
	}
	return "", fmt.Errorf("invalid timeframe %q", s)
}

// Stats is the aggregated revenue view for one business. Amounts are
// in the settlement currency.
type Stats struct {
	Timeframe         Timeframe                  `json:"timeframe"`
	TotalRevenue      decimal.Decimal            `json:"total_revenue"`
	TotalPlays        int64                      `json:"total_plays"`
	AverageCPM        decimal.Decimal            `json:"average_cpm"`
	RevenueByProvider map[string]decimal.Decimal `json:"revenue_by_provider"`
	RevenueByDay      map[string]decimal.Decimal `json:"revenue_by_day"`
	PendingPayout     decimal.Decimal            `json:"pending_payout"`
	PaidOut           decimal.Decimal            `json:"paid_out"`
}

// Stats aggregates revenue records for the timeframe. An empty result
// set yields all-zero fields, never an error.
func (c *Calculator) Stats(ctx context.Context, businessID string, timeframe Timeframe) (*Stats, error) {
	now := c.now().UTC()
	var since time.Time
	switch timeframe {
	case TimeframeToday:
		since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case Timeframe7Days:
		since = now.AddDate(0, 0, -7)
	case Timeframe30Days:
		since = now.AddDate(0, 0, -30)
	default:
		return nil, fmt.Errorf("invalid timeframe %q", timeframe)
	}

	agg, err := c.store.AggregateRevenue(ctx, businessID, since)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Timeframe:         timeframe,
		TotalRevenue:      agg.TotalRevenue,
		TotalPlays:        agg.TotalPlays,
		AverageCPM:        decimal.Zero,
		RevenueByProvider: agg.RevenueByProvider,
		RevenueByDay:      agg.RevenueByDay,
		PendingPayout:     agg.PendingPayout,
		PaidOut:           agg.PaidOut,
	}
	if agg.TotalPlays > 0 {
		stats.AverageCPM = agg.TotalRevenue.
			Div(decimal.NewFromInt(agg.TotalPlays)).
			Mul(decimal.NewFromInt(1000)).
			Round(moneyPlaces)
	}
	return stats, nil
}
