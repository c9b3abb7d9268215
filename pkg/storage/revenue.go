// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InsertRevenueRecord persists the accounting for one ad play.
func (s *Storage) InsertRevenueRecord(ctx context.Context, rec RevenueRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ad_revenue (
			id, ad_play_id, business_id, api_provider, revenue_type,
			gross_revenue, api_commission, tavari_commission, business_payout,
			currency, exchange_rate, original_currency, original_amount,
			payment_status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AdPlayID, rec.BusinessID, rec.APIProvider, rec.RevenueType,
		rec.GrossRevenue.String(), rec.APICommission.String(),
		rec.TavariCommission.String(), rec.BusinessPayout.String(),
		rec.Currency, rec.ExchangeRate.String(), rec.OriginalCurrency,
		rec.OriginalAmount.String(), string(rec.PaymentStatus), rec.CreatedAt.UTC().Format(TimeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert revenue record: %w", err)
	}
	return nil
}

// RevenueAggregate is the raw aggregation backing GetRevenueStats.
type RevenueAggregate struct {
	TotalRevenue      decimal.Decimal
	TotalPlays        int64
	RevenueByProvider map[string]decimal.Decimal
	RevenueByDay      map[string]decimal.Decimal
	PendingPayout     decimal.Decimal
	PaidOut           decimal.Decimal
}

// AggregateRevenue sums revenue records for one business created at or
// after the given instant. An empty result set yields zeroed fields.
func (s *Storage) AggregateRevenue(ctx context.Context, businessID string, since time.Time) (RevenueAggregate, error) {
	agg := RevenueAggregate{
		TotalRevenue:      decimal.Zero,
		RevenueByProvider: make(map[string]decimal.Decimal),
		RevenueByDay:      make(map[string]decimal.Decimal),
		PendingPayout:     decimal.Zero,
		PaidOut:           decimal.Zero,
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT api_provider, gross_revenue, business_payout, payment_status,
		       strftime('%Y-%m-%d', created_at)
		FROM ad_revenue
		WHERE business_id = ? AND created_at >= ?`,
		businessID, since.UTC().Format(TimeLayout),
	)
	if err != nil {
		return agg, fmt.Errorf("aggregate revenue: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var provider, gross, payout, status, day string
		if err := rows.Scan(&provider, &gross, &payout, &status, &day); err != nil {
			return agg, fmt.Errorf("scan revenue row: %w", err)
		}
		g, err := decimal.NewFromString(gross)
		if err != nil {
			return agg, fmt.Errorf("parse gross revenue: %w", err)
		}
		p, err := decimal.NewFromString(payout)
		if err != nil {
			return agg, fmt.Errorf("parse business payout: %w", err)
		}

		agg.TotalPlays++
		agg.TotalRevenue = agg.TotalRevenue.Add(g)
		agg.RevenueByProvider[provider] = agg.RevenueByProvider[provider].Add(g)
		agg.RevenueByDay[day] = agg.RevenueByDay[day].Add(g)
		if status == string(PaymentPaid) {
			agg.PaidOut = agg.PaidOut.Add(p)
		} else {
			agg.PendingPayout = agg.PendingPayout.Add(p)
		}
	}
	return agg, rows.Err()
}

// SelectPendingGroupedByBusiness returns every business with pending
// revenue, with record IDs and the pending payout sum.
func (s *Storage) SelectPendingGroupedByBusiness(ctx context.Context) ([]PendingGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT business_id, id, business_payout
		FROM ad_revenue
		WHERE payment_status = ?
		ORDER BY business_id, created_at`,
		string(PaymentPending),
	)
	if err != nil {
		return nil, fmt.Errorf("select pending revenue: %w", err)
	}
	defer rows.Close()

	var (
		groups  []PendingGroup
		current *PendingGroup
	)
	for rows.Next() {
		var businessID, id, payout string
		if err := rows.Scan(&businessID, &id, &payout); err != nil {
			return nil, fmt.Errorf("scan pending row: %w", err)
		}
		p, err := decimal.NewFromString(payout)
		if err != nil {
			return nil, fmt.Errorf("parse business payout: %w", err)
		}
		if current == nil || current.BusinessID != businessID {
			groups = append(groups, PendingGroup{BusinessID: businessID, Total: decimal.Zero})
			current = &groups[len(groups)-1]
		}
		current.RecordIDs = append(current.RecordIDs, id)
		current.Total = current.Total.Add(p)
	}
	return groups, rows.Err()
}

// MarkPaid flips the given revenue records to paid in one statement.
func (s *Storage) MarkPaid(ctx context.Context, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	query := "UPDATE ad_revenue SET payment_status = ? WHERE id IN (?"
	args := make([]interface{}, 0, len(recordIDs)+1)
	args = append(args, string(PaymentPaid), recordIDs[0])
	for _, id := range recordIDs[1:] {
		query += ",?"
		args = append(args, id)
	}
	query += ")"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	return nil
}

// IncrementDailyTotal bumps the business's running revenue total for
// the day. Best-effort bookkeeping; callers swallow failures.
func (s *Storage) IncrementDailyTotal(ctx context.Context, businessID, date string, amount decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin daily total: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		"SELECT total FROM revenue_totals WHERE business_id = ? AND date = ?",
		businessID, date,
	).Scan(&current)
	switch err {
	case nil:
		running, perr := decimal.NewFromString(current)
		if perr != nil {
			return fmt.Errorf("parse daily total: %w", perr)
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE revenue_totals SET total = ? WHERE business_id = ? AND date = ?",
			running.Add(amount).String(), businessID, date,
		)
	case sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			"INSERT INTO revenue_totals (business_id, date, total) VALUES (?, ?, ?)",
			businessID, date, amount.String(),
		)
	default:
		return fmt.Errorf("read daily total: %w", err)
	}
	if err != nil {
		return fmt.Errorf("write daily total: %w", err)
	}
	return tx.Commit()
}

// GetRevenueRecord fetches a record by ad play ID, for tests and
// diagnostics.
func (s *Storage) GetRevenueRecord(ctx context.Context, adPlayID string) (RevenueRecord, error) {
	var (
		rec                        RevenueRecord
		gross, api, tavari, payout string
		rate, original, status     string
		createdAt                  time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, ad_play_id, business_id, api_provider, revenue_type,
		       gross_revenue, api_commission, tavari_commission, business_payout,
		       currency, exchange_rate, original_currency, original_amount,
		       payment_status, created_at
		FROM ad_revenue WHERE ad_play_id = ?`,
		adPlayID,
	).Scan(
		&rec.ID, &rec.AdPlayID, &rec.BusinessID, &rec.APIProvider, &rec.RevenueType,
		&gross, &api, &tavari, &payout,
		&rec.Currency, &rate, &rec.OriginalCurrency, &original,
		&status, &createdAt,
	)
	if err != nil {
		return RevenueRecord{}, fmt.Errorf("get revenue record: %w", err)
	}
	// The driver hands DATETIME columns back as time.Time, so scan it
	// directly instead of re-parsing the stored layout.
	rec.CreatedAt = createdAt.UTC()

	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&rec.GrossRevenue, gross},
		{&rec.APICommission, api},
		{&rec.TavariCommission, tavari},
		{&rec.BusinessPayout, payout},
		{&rec.ExchangeRate, rate},
		{&rec.OriginalAmount, original},
	}
	for _, f := range fields {
		d, perr := decimal.NewFromString(f.src)
		if perr != nil {
			return RevenueRecord{}, fmt.Errorf("parse revenue record: %w", perr)
		}
		*f.dst = d
	}
	rec.PaymentStatus = PaymentStatus(status)
	return rec, nil
}
