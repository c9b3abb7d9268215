// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ads

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tavari-hq/admix/pkg/log"
	"github.com/tavari-hq/admix/pkg/metric"
	"github.com/tavari-hq/admix/pkg/revenue"
	"github.com/tavari-hq/admix/pkg/storage"
)

var ErrMissingBusinessID = errors.New("business id is required")

// hourlyWindow is the trailing window the max-ads-per-hour cap is
// evaluated over.
const hourlyWindow = time.Hour

// RevenueService is the slice of the revenue calculator the manager
// uses after each delivered ad.
type RevenueService interface {
	CalculateAdRevenue(ctx context.Context, play revenue.Play) (*storage.RevenueRecord, error)
	Stats(ctx context.Context, businessID string, timeframe revenue.Timeframe) (*revenue.Stats, error)
}

// Manager runs the ad waterfall for one business: scheduling gates,
// provider trials in priority order, persistence and revenue on a win,
// and per-provider performance tracking. One instance per business.
type Manager struct {
	businessID string
	targeting  Targeting

	providers []Provider
	cache     *AdCache
	store     *storage.Storage
	revenue   RevenueService
	metrics   *metric.Metrics
	log       log.Logger

	mu       sync.RWMutex
	settings storage.AdSettings

	// served correlates play IDs with the provider that supplied the
	// ad, so completion telemetry can be routed back.
	served *expirable.LRU[string, string]

	listeners []func(PlayEvent)

	// wg tracks fire-and-forget dispatches so Destroy can drain them.
	wg  sync.WaitGroup
	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l log.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithMetrics(mt *metric.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithTargeting(t Targeting) Option {
	return func(m *Manager) { m.targeting = t }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.cache = NewAdCache(ttl) }
}

// WithPlayListener registers a callback invoked (non-blocking) after
// every delivered ad.
func WithPlayListener(fn func(PlayEvent)) Option {
	return func(m *Manager) { m.listeners = append(m.listeners, fn) }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager for one business. Providers are ordered
// by ascending priority; the order is fixed for the manager's lifetime.
func NewManager(businessID string, providers []Provider, store *storage.Storage, rev RevenueService, opts ...Option) (*Manager, error) {
	if businessID == "" {
		return nil, ErrMissingBusinessID
	}

	m := &Manager{
		businessID: businessID,
		providers:  sortByPriority(providers),
		cache:      NewAdCache(DefaultCacheTTL),
		store:      store,
		revenue:    rev,
		log:        log.NoLog,
		settings:   storage.DefaultAdSettings(),
		served:     expirable.NewLRU[string, string](256, nil, time.Hour),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("business", businessID)
	return m, nil
}

// Initialize loads the business's settings and bootstraps every
// provider. A provider whose bootstrap fails is logged and left
// inactive; the manager itself only fails when settings can't be read.
func (m *Manager) Initialize(ctx context.Context) error {
	settings, err := m.store.GetAdSettings(ctx, m.businessID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.settings = settings
	m.mu.Unlock()

	for _, p := range m.providers {
		if err := p.Initialize(ctx); err != nil {
			m.log.Warn("provider initialization failed",
				"provider", p.Info().Name, "error", err)
		}
	}
	return nil
}

// Settings returns the settings currently applied to scheduling.
func (m *Manager) Settings() storage.AdSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// UpdateSettings persists the new settings and then atomically swaps
// the in-memory copy. In-flight requests keep the settings they
// started with.
func (m *Manager) UpdateSettings(ctx context.Context, settings storage.AdSettings) error {
	if err := m.store.UpsertAdSettings(ctx, m.businessID, settings); err != nil {
		return err
	}
	m.mu.Lock()
	m.settings = settings
	m.mu.Unlock()
	return nil
}

// GetNextAd makes one scheduling decision: either an ad to play after
// the current track, or nil. It never returns an error for expected
// conditions (disabled, gated, capped, no-fill everywhere).
func (m *Manager) GetNextAd(ctx context.Context, trackCount int, forceRequest bool) *ServedAd {
	settings := m.Settings()

	if !settings.Enabled {
		return nil
	}

	if !forceRequest {
		if settings.Frequency <= 0 || trackCount%settings.Frequency != 0 {
			m.decision("gated")
			return nil
		}
	}

	if m.atHourlyCap(ctx, settings) {
		m.decision("capped")
		m.log.Debug("hourly ad cap reached", "max_per_hour", settings.MaxAdsPerHour)
		return nil
	}

	ad, depth := m.waterfall(ctx)
	if m.metrics != nil {
		m.metrics.WaterfallDepth.Observe(float64(depth))
	}
	if ad == nil {
		m.decision("exhausted")
		return nil
	}

	m.decision("served")
	return m.deliver(ctx, ad, settings)
}

// atHourlyCap checks plays in the trailing 60 minutes. Best-effort: a
// failed count is logged and does not block the request, and two
// concurrent calls may both pass the check.
func (m *Manager) atHourlyCap(ctx context.Context, settings storage.AdSettings) bool {
	if settings.MaxAdsPerHour <= 0 {
		return false
	}
	n, err := m.store.CountPlaysSince(ctx, m.businessID, m.now().Add(-hourlyWindow))
	if err != nil {
		m.log.Warn("hourly cap check failed", "error", err)
		return false
	}
	return n >= settings.MaxAdsPerHour
}

// waterfall tries providers in ascending priority order and returns
// the first descriptor, plus how many providers were contacted. A
// higher-priority winner means lower-priority providers are never
// invoked for this request.
func (m *Manager) waterfall(ctx context.Context) (*AdDescriptor, int) {
	targeting := m.requestTargeting()
	contacted := 0

	for _, p := range m.providers {
		info := p.Info()
		if !info.Active {
			continue
		}

		if cached, ok := m.cache.Take(info.Name); ok {
			if m.metrics != nil {
				m.metrics.CacheHits.WithLabelValues(info.Name).Inc()
			}
			m.log.Debug("serving cached ad", "provider", info.Name, "ad", cached.ID)
			return cached, contacted
		}

		start := m.now()
		ad, err := p.RequestAd(ctx, targeting)
		latency := m.now().Sub(start)
		contacted++

		switch {
		case err != nil:
			// Transport or auth fault: record the failed attempt and
			// keep walking.
			m.recordAttempt(info.Name, attemptFailure, latency, false)
			m.log.Warn("provider request failed",
				"provider", info.Name,
				"latency_ms", latency.Milliseconds(),
				"error", err)

		case ad == nil:
			// Legitimate no-fill; not a failure.
			m.recordAttempt(info.Name, attemptNoFill, latency, false)
			m.log.Debug("provider no-fill", "provider", info.Name)

		default:
			m.recordAttempt(info.Name, attemptSuccess, latency, true)
			m.cache.Put(info.Name, ad)
			return ad, contacted
		}
	}
	return nil, contacted
}

// deliver runs step five of the waterfall: persist the play, compute
// revenue, publish the play event and hand the descriptor back. A
// persistence fault never discards the already-won ad, but revenue is
// skipped for an unrecorded play.
func (m *Manager) deliver(ctx context.Context, ad *AdDescriptor, settings storage.AdSettings) *ServedAd {
	playID := uuid.NewString()
	playedAt := m.now()

	play := storage.AdPlay{
		ID:         playID,
		BusinessID: m.businessID,
		AdID:       ad.ID,
		Provider:   ad.ProviderName,
		PlayedAt:   playedAt,
	}

	if err := m.store.InsertAdPlay(ctx, play); err != nil {
		// Revenue must never be fabricated for an unrecorded play.
		m.log.Error("ad play not persisted, revenue skipped",
			"play", playID, "ad", ad.ID, "error", err)
	} else if m.revenue != nil {
		if _, err := m.revenue.CalculateAdRevenue(ctx, revenue.Play{
			AdPlayID:   playID,
			BusinessID: m.businessID,
			Provider:   ad.ProviderName,
			SubNetwork: ad.Metadata["sub_network"],
			Amount:     ad.CPM,
			Currency:   ad.Currency,
		}); err != nil {
			m.log.Error("revenue record not persisted",
				"play", playID, "error", err)
		}
	}

	m.served.Add(playID, ad.ProviderName)
	if m.metrics != nil {
		m.metrics.AdsServed.WithLabelValues(ad.ProviderName).Inc()
	}

	event := PlayEvent{
		BusinessID: m.businessID,
		PlayID:     playID,
		Ad:         *ad,
		PlayedAt:   playedAt,
	}
	for _, fn := range m.listeners {
		fn := fn
		m.dispatch(func() { fn(event) })
	}

	return &ServedAd{
		AdDescriptor:     *ad,
		PlayID:           playID,
		VolumeAdjustment: settings.VolumeAdjustment,
	}
}

// ReportPlay routes completion telemetry for a delivered ad back to
// the provider that supplied it. Best-effort: dispatched without
// waiting, faults swallowed by the adapter.
func (m *Manager) ReportPlay(playID string, data PlayData) {
	providerName, ok := m.served.Get(playID)
	if !ok {
		m.log.Debug("play report for unknown play", "play", playID)
		return
	}
	for _, p := range m.providers {
		if p.Info().Name != providerName {
			continue
		}
		p := p
		m.dispatch(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			p.ReportPlay(ctx, playID, data)
		})
		return
	}
}

// RevenueStats aggregates this business's revenue for the timeframe.
func (m *Manager) RevenueStats(ctx context.Context, timeframe revenue.Timeframe) (*revenue.Stats, error) {
	return m.revenue.Stats(ctx, m.businessID, timeframe)
}

// HealthCheck collects a health report from every provider.
func (m *Manager) HealthCheck(ctx context.Context) map[string]HealthReport {
	reports := make(map[string]HealthReport, len(m.providers))
	for _, p := range m.providers {
		reports[p.Info().Name] = p.HealthCheck(ctx)
	}
	return reports
}

// ClearCache drops cached descriptors for one provider, or all of them
// when providerName is empty.
func (m *Manager) ClearCache(providerName string) {
	m.cache.Clear(providerName)
}

// Destroy drains in-flight fire-and-forget work and clears the cache.
// The manager must not be used afterwards.
func (m *Manager) Destroy() {
	m.wg.Wait()
	m.cache.Clear("")
}

// BusinessID returns the business this manager schedules for.
func (m *Manager) BusinessID() string {
	return m.businessID
}

// requestTargeting stamps the time of day onto the configured
// targeting.
func (m *Manager) requestTargeting() Targeting {
	t := m.targeting
	switch h := m.now().Hour(); {
	case h < 6:
		t.TimeOfDay = "night"
	case h < 12:
		t.TimeOfDay = "morning"
	case h < 18:
		t.TimeOfDay = "afternoon"
	default:
		t.TimeOfDay = "evening"
	}
	return t
}

type attemptResult string

const (
	attemptSuccess attemptResult = "fill"
	attemptNoFill  attemptResult = "no_fill"
	attemptFailure attemptResult = "fault"
)

// recordAttempt updates prometheus counters synchronously and the
// persisted daily counter without waiting. Counter faults are
// swallowed here and surface only through logs.
func (m *Manager) recordAttempt(provider string, result attemptResult, latency time.Duration, served bool) {
	if m.metrics != nil {
		m.metrics.ProviderRequests.WithLabelValues(provider, string(result)).Inc()
		m.metrics.ProviderLatency.WithLabelValues(provider).Observe(latency.Seconds())
	}

	delta := storage.PerformanceDelta{
		BusinessID:     m.businessID,
		APIProvider:    provider,
		DateRecorded:   m.now().UTC().Format("2006-01-02"),
		Success:        result == attemptSuccess,
		Failure:        result == attemptFailure,
		ResponseTimeMs: float64(latency.Milliseconds()),
		AdServed:       served,
	}
	m.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.ApplyPerformanceDelta(ctx, delta); err != nil {
			m.log.Warn("performance counter not updated",
				"provider", provider, "error", err)
		}
	})
}

func (m *Manager) decision(outcome string) {
	if m.metrics != nil {
		m.metrics.SchedulingDecisions.WithLabelValues(outcome).Inc()
	}
}

func (m *Manager) dispatch(fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}
