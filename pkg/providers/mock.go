// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package providers

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tavari-hq/admix/pkg/ads"
)

// Mock is a deterministic stand-in for a real ad network, used by the
// daemon when mock providers are configured and by tests. Fill is
// decided by a seeded RNG so runs are reproducible.
type Mock struct {
	name     string
	priority int
	fillRate float64
	cpm      decimal.Decimal
	currency string

	mu        sync.Mutex
	rng       *rand.Rand
	active    bool
	initErr   error
	reqErr    error
	requests  int
	played    []string
	nextAdSeq int
}

// NewMock creates a mock provider with the given fill probability.
func NewMock(name string, priority int, fillRate float64, seed int64) *Mock {
	return &Mock{
		name:     name,
		priority: priority,
		fillRate: fillRate,
		cpm:      decimal.RequireFromString("0.015"),
		currency: "USD",
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// SetCPM overrides the price the mock quotes on every fill.
func (m *Mock) SetCPM(cpm decimal.Decimal, currency string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cpm = cpm
	m.currency = currency
}

// FailInitialize makes the next Initialize return err.
func (m *Mock) FailInitialize(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// FailRequests makes every RequestAd return err until cleared with nil.
func (m *Mock) FailRequests(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqErr = err
}

// Requests reports how many times RequestAd was called.
func (m *Mock) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// Played returns the ad IDs reported through ReportPlay.
func (m *Mock) Played() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.played))
	copy(out, m.played)
	return out
}

func (m *Mock) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initErr != nil {
		return m.initErr
	}
	m.active = true
	return nil
}

func (m *Mock) RequestAd(ctx context.Context, t ads.Targeting) (*ads.AdDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++

	if m.reqErr != nil {
		return nil, m.reqErr
	}
	if m.rng.Float64() >= m.fillRate {
		return nil, nil
	}

	m.nextAdSeq++
	return &ads.AdDescriptor{
		ID:              fmt.Sprintf("%s-ad-%d", m.name, m.nextAdSeq),
		Title:           fmt.Sprintf("Mock spot %d", m.nextAdSeq),
		Advertiser:      "Mock Advertiser",
		AudioURL:        fmt.Sprintf("https://mock.invalid/%s/%d.mp3", m.name, m.nextAdSeq),
		DurationSeconds: 30,
		CPM:             m.cpm,
		Currency:        m.currency,
		ProviderName:    m.name,
	}, nil
}

func (m *Mock) ReportPlay(ctx context.Context, adID string, data ads.PlayData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = append(m.played, adID)
}

func (m *Mock) HealthCheck(ctx context.Context) ads.HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return ads.HealthReport{Status: ads.HealthError, Error: "not initialized"}
	}
	return ads.HealthReport{Status: ads.HealthHealthy}
}

func (m *Mock) Info() ads.ProviderInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ads.ProviderInfo{
		Name:              m.name,
		Priority:          m.priority,
		Active:            m.active,
		RequestsPerMinute: 600,
	}
}
