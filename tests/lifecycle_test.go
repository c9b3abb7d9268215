// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tests

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tavari-hq/admix/pkg/ads"
	"github.com/tavari-hq/admix/pkg/providers"
	"github.com/tavari-hq/admix/pkg/revenue"
	"github.com/tavari-hq/admix/pkg/storage"
)

// TestEndToEndAdLifecycle walks the whole pipeline: settings, a served
// ad, its persisted play and revenue, stats, and finally a payout.
func TestEndToEndAdLifecycle(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	// 1. Storage and revenue engine
	store, err := storage.Open(":memory:")
	require.NoError(err)
	defer store.Close()

	calc := revenue.NewCalculator(store, revenue.NewRateSource("", nil))

	// 2. Registry with a deterministic always-fill provider
	mock := providers.NewMock("spotify", 1, 1.0, 99)
	mock.SetCPM(decimal.RequireFromString("0.015"), "USD")
	registry := ads.NewRegistry(
		func(businessID string) []ads.Provider { return []ads.Provider{mock} },
		store, calc,
	)
	defer registry.DestroyAll()

	// 3. Enable ads for the business
	require.NoError(store.UpsertAdSettings(ctx, "biz-e2e", storage.AdSettings{
		Enabled:       true,
		Frequency:     5,
		MaxAdsPerHour: 6,
	}))

	manager, err := registry.Initialize(ctx, "biz-e2e")
	require.NoError(err)

	// 4. Serve an ad at the frequency boundary
	served := manager.GetNextAd(ctx, 5, false)
	require.NotNil(served)
	require.NotEmpty(served.PlayID)
	require.Equal("spotify", served.ProviderName)

	// 5. Report the completed play back
	manager.ReportPlay(served.PlayID, ads.PlayData{Completed: true})
	manager.Destroy()
	require.Equal([]string{served.PlayID}, mock.Played())

	// 6. The play and its settled revenue are on disk
	rec, err := store.GetRevenueRecord(ctx, served.PlayID)
	require.NoError(err)
	require.Equal("CAD", rec.Currency)
	require.True(rec.GrossRevenue.Equal(decimal.RequireFromString("0.02025")),
		"0.015 USD settles at the 1.35 fallback")
	sum := rec.APICommission.Add(rec.TavariCommission).Add(rec.BusinessPayout)
	require.True(sum.Equal(rec.GrossRevenue))

	// 7. Stats see the play
	stats, err := calc.Stats(ctx, "biz-e2e", revenue.TimeframeToday)
	require.NoError(err)
	require.EqualValues(1, stats.TotalPlays)
	require.True(stats.PendingPayout.Equal(rec.BusinessPayout))

	// 8. Below the minimum nothing pays out; at zero minimum it does
	run, err := calc.ProcessPayouts(ctx, decimal.RequireFromString("25.00"))
	require.NoError(err)
	require.Zero(run.BusinessesPaid)

	run, err = calc.ProcessPayouts(ctx, decimal.Zero)
	require.NoError(err)
	require.Equal(1, run.BusinessesPaid)
	require.True(run.TotalPaid.Equal(rec.BusinessPayout))

	// 9. Paid revenue moves out of pending
	stats, err = calc.Stats(ctx, "biz-e2e", revenue.TimeframeToday)
	require.NoError(err)
	require.True(stats.PendingPayout.IsZero())
	require.True(stats.PaidOut.Equal(rec.BusinessPayout))
}
