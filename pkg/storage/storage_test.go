// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := openTest(t)
	// Re-running against an already-migrated database is a no-op.
	require.NoError(t, s.migrate())

	var n int
	row := s.DB().QueryRow(`SELECT COUNT(*) FROM schema_migrations`)
	require.NoError(t, row.Scan(&n))
	assert.Greater(t, n, 0)
}

func TestAdSettingsDefaultsWhenAbsent(t *testing.T) {
	s := openTest(t)

	settings, err := s.GetAdSettings(context.Background(), "biz-new")
	require.NoError(t, err)
	assert.False(t, settings.Enabled, "ads are opt-in")
	assert.Equal(t, 5, settings.Frequency)
	assert.Equal(t, 6, settings.MaxAdsPerHour)
	assert.Zero(t, settings.VolumeAdjustment)
}

func TestAdSettingsUpsertRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	in := AdSettings{Enabled: true, Frequency: 3, MaxAdsPerHour: 10, VolumeAdjustment: -2}
	require.NoError(t, s.UpsertAdSettings(ctx, "biz-1", in))

	out, err := s.GetAdSettings(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// Second upsert overwrites in place.
	in.Frequency = 7
	require.NoError(t, s.UpsertAdSettings(ctx, "biz-1", in))
	out, err = s.GetAdSettings(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 7, out.Frequency)
}

func TestCountPlaysSinceWindow(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, age := range []time.Duration{10 * time.Minute, 30 * time.Minute, 2 * time.Hour} {
		require.NoError(t, s.InsertAdPlay(ctx, AdPlay{
			ID:         uuid.NewString(),
			BusinessID: "biz-1",
			AdID:       "ad",
			Provider:   "spotify",
			PlayedAt:   now.Add(-age),
		}), "play %d", i)
	}
	// Another business's plays never count.
	require.NoError(t, s.InsertAdPlay(ctx, AdPlay{
		ID: uuid.NewString(), BusinessID: "biz-2", AdID: "ad",
		Provider: "spotify", PlayedAt: now,
	}))

	n, err := s.CountPlaysSince(ctx, "biz-1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only plays inside the trailing hour count")
}

func TestApplyPerformanceDeltaCounts(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	const day = "2025-07-10"

	apply := func(success, failure, served bool, ms float64) {
		require.NoError(t, s.ApplyPerformanceDelta(ctx, PerformanceDelta{
			BusinessID:     "biz-1",
			APIProvider:    "spotify",
			DateRecorded:   day,
			Success:        success,
			Failure:        failure,
			AdServed:       served,
			ResponseTimeMs: ms,
		}))
	}

	apply(true, false, true, 100)   // fill
	apply(false, true, false, 300)  // fault
	apply(false, false, false, 200) // no-fill

	row, err := s.GetPerformance(ctx, "biz-1", "spotify", day)
	require.NoError(t, err)
	assert.EqualValues(t, 3, row.TotalRequests)
	assert.EqualValues(t, 1, row.SuccessfulRequests)
	assert.EqualValues(t, 1, row.FailedRequests, "no-fill is not a failure")
	assert.EqualValues(t, 1, row.TotalAdsServed)
	assert.InDelta(t, 200.0, row.AvgResponseTimeMs, 0.001)
	assert.InDelta(t, 1.0/3.0, row.FillRate, 0.001, "no-fill lowers the fill rate")
}

func TestGetPerformanceAbsentIsZero(t *testing.T) {
	s := openTest(t)

	row, err := s.GetPerformance(context.Background(), "biz-x", "spotify", "2025-01-01")
	require.NoError(t, err)
	assert.Zero(t, row.TotalRequests)
	assert.Zero(t, row.FillRate)
	assert.Equal(t, "biz-x", row.BusinessID)
}

func TestPerformanceCountersIsolatedPerDayAndProvider(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for _, key := range []struct{ provider, day string }{
		{"spotify", "2025-07-10"},
		{"spotify", "2025-07-11"},
		{"google", "2025-07-10"},
	} {
		require.NoError(t, s.ApplyPerformanceDelta(ctx, PerformanceDelta{
			BusinessID:   "biz-1",
			APIProvider:  key.provider,
			DateRecorded: key.day,
			Success:      true,
			AdServed:     true,
		}))
	}

	row, err := s.GetPerformance(ctx, "biz-1", "spotify", "2025-07-10")
	require.NoError(t, err)
	assert.EqualValues(t, 1, row.TotalRequests, "each (provider, day) keeps its own row")
}

func testRecord(businessID, payout string, status PaymentStatus, createdAt time.Time) RevenueRecord {
	amount := decimal.RequireFromString(payout)
	return RevenueRecord{
		ID:               uuid.NewString(),
		AdPlayID:         uuid.NewString(),
		BusinessID:       businessID,
		APIProvider:      "spotify",
		RevenueType:      "ad_play",
		GrossRevenue:     amount,
		APICommission:    decimal.Zero,
		TavariCommission: decimal.Zero,
		BusinessPayout:   amount,
		Currency:         "CAD",
		ExchangeRate:     decimal.NewFromInt(1),
		OriginalCurrency: "CAD",
		OriginalAmount:   amount,
		PaymentStatus:    status,
		CreatedAt:        createdAt,
	}
}

func TestRevenueRecordRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	rec := testRecord("biz-1", "0.012345", PaymentPending, time.Now())
	rec.GrossRevenue = decimal.RequireFromString("0.02025")
	rec.APICommission = decimal.RequireFromString("0.006075")
	rec.TavariCommission = decimal.RequireFromString("0.002025")
	rec.BusinessPayout = decimal.RequireFromString("0.01215")
	rec.ExchangeRate = decimal.RequireFromString("1.35")
	rec.OriginalCurrency = "USD"
	require.NoError(t, s.InsertRevenueRecord(ctx, rec))

	got, err := s.GetRevenueRecord(ctx, rec.AdPlayID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.True(t, got.GrossRevenue.Equal(rec.GrossRevenue), "money survives the TEXT column exactly")
	assert.True(t, got.APICommission.Equal(rec.APICommission))
	assert.True(t, got.TavariCommission.Equal(rec.TavariCommission))
	assert.True(t, got.BusinessPayout.Equal(rec.BusinessPayout))
	assert.True(t, got.ExchangeRate.Equal(rec.ExchangeRate))
	assert.Equal(t, "USD", got.OriginalCurrency)
	assert.Equal(t, PaymentPending, got.PaymentStatus)
	assert.WithinDuration(t, rec.CreatedAt.UTC(), got.CreatedAt, time.Second,
		"created_at survives the DATETIME column")
}

func TestInsertRevenueRecordRejectsDuplicatePlay(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	rec := testRecord("biz-1", "0.01", PaymentPending, time.Now())
	require.NoError(t, s.InsertRevenueRecord(ctx, rec))

	dupe := testRecord("biz-1", "0.01", PaymentPending, time.Now())
	dupe.AdPlayID = rec.AdPlayID
	require.Error(t, s.InsertRevenueRecord(ctx, dupe),
		"one revenue record per ad play")
}

func TestSelectPendingGroupedByBusiness(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRevenueRecord(ctx, testRecord("biz-b", "10", PaymentPending, time.Now())))
	require.NoError(t, s.InsertRevenueRecord(ctx, testRecord("biz-a", "5", PaymentPending, time.Now())))
	require.NoError(t, s.InsertRevenueRecord(ctx, testRecord("biz-a", "7", PaymentPending, time.Now())))
	require.NoError(t, s.InsertRevenueRecord(ctx, testRecord("biz-a", "100", PaymentPaid, time.Now())))

	groups, err := s.SelectPendingGroupedByBusiness(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "biz-a", groups[0].BusinessID)
	assert.Len(t, groups[0].RecordIDs, 2)
	assert.True(t, groups[0].Total.Equal(decimal.RequireFromString("12")), "paid records are excluded")
	assert.Equal(t, "biz-b", groups[1].BusinessID)
}

func TestMarkPaid(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	a := testRecord("biz-1", "10", PaymentPending, time.Now())
	b := testRecord("biz-1", "20", PaymentPending, time.Now())
	require.NoError(t, s.InsertRevenueRecord(ctx, a))
	require.NoError(t, s.InsertRevenueRecord(ctx, b))

	require.NoError(t, s.MarkPaid(ctx, []string{a.ID, b.ID}))

	groups, err := s.SelectPendingGroupedByBusiness(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestIncrementDailyTotal(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.IncrementDailyTotal(ctx, "biz-1", "2025-07-10", decimal.RequireFromString("0.02")))
	require.NoError(t, s.IncrementDailyTotal(ctx, "biz-1", "2025-07-10", decimal.RequireFromString("0.03")))
	require.NoError(t, s.IncrementDailyTotal(ctx, "biz-1", "2025-07-11", decimal.RequireFromString("0.07")))

	var total string
	row := s.DB().QueryRow(`SELECT total FROM revenue_totals WHERE business_id = ? AND date = ?`,
		"biz-1", "2025-07-10")
	require.NoError(t, row.Scan(&total))
	assert.True(t, decimal.RequireFromString(total).Equal(decimal.RequireFromString("0.05")))
}

func TestAggregateRevenue(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.InsertRevenueRecord(ctx, testRecord("biz-1", "0.02", PaymentPending, now)))
	require.NoError(t, s.InsertRevenueRecord(ctx, testRecord("biz-1", "0.03", PaymentPaid, now)))
	old := testRecord("biz-1", "0.50", PaymentPending, now.AddDate(0, 0, -40))
	require.NoError(t, s.InsertRevenueRecord(ctx, old))

	agg, err := s.AggregateRevenue(ctx, "biz-1", now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.EqualValues(t, 2, agg.TotalPlays)
	assert.True(t, agg.TotalRevenue.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, agg.PendingPayout.Equal(decimal.RequireFromString("0.02")))
	assert.True(t, agg.PaidOut.Equal(decimal.RequireFromString("0.03")))
}
