// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package revenue

import (
	"context"

	"github.com/shopspring/decimal"
)

// PayoutRun summarizes one batch payout pass.
type PayoutRun struct {
	BusinessesPaid    int             `json:"businesses_paid"`
	BusinessesSkipped int             `json:"businesses_skipped"`
	RecordsPaid       int             `json:"records_paid"`
	TotalPaid         decimal.Decimal `json:"total_paid"`
}

// ProcessPayouts marks pending revenue as paid, business by business.
// A business whose pending sum meets the minimum has all its pending
// records marked paid in one operation; payouts are all-or-nothing per
// business per run, never partial.
func (c *Calculator) ProcessPayouts(ctx context.Context, minimum decimal.Decimal) (*PayoutRun, error) {
	groups, err := c.store.SelectPendingGroupedByBusiness(ctx)
	if err != nil {
		return nil, err
	}

	run := &PayoutRun{TotalPaid: decimal.Zero}
	for _, g := range groups {
		if g.Total.LessThan(minimum) {
			run.BusinessesSkipped++
			if c.metrics != nil {
				c.metrics.PayoutsSkipped.Inc()
			}
			c.log.Debug("business below payout minimum",
				"business", g.BusinessID, "pending", g.Total.String())
			continue
		}
		if err := c.store.MarkPaid(ctx, g.RecordIDs); err != nil {
			return run, err
		}
		run.BusinessesPaid++
		run.RecordsPaid += len(g.RecordIDs)
		run.TotalPaid = run.TotalPaid.Add(g.Total)
		if c.metrics != nil {
			c.metrics.PayoutsProcessed.Inc()
		}
		c.log.Info("business paid out",
			"business", g.BusinessID,
			"records", len(g.RecordIDs),
			"amount", g.Total.String())
	}
	return run, nil
}
