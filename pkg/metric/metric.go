// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all prometheus metrics for the ad-mediation pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// Scheduling metrics
	SchedulingDecisions *prometheus.CounterVec // outcome: served, gated, capped, disabled, exhausted
	WaterfallDepth      prometheus.Histogram

	// Provider metrics
	ProviderRequests *prometheus.CounterVec // provider, result: fill, no_fill, fault
	ProviderLatency  *prometheus.HistogramVec
	CacheHits        *prometheus.CounterVec
	AdsServed        *prometheus.CounterVec

	// Revenue metrics
	RevenueRecorded  *prometheus.CounterVec // provider; value in settlement currency
	PayoutsProcessed prometheus.Counter
	PayoutsSkipped   prometheus.Counter

	// API metrics
	RequestsProcessed *prometheus.CounterVec // method, status
}

// NewMetrics creates and registers all admix metrics on a private registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		SchedulingDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admix",
			Name:      "scheduling_decisions_total",
			Help:      "Scheduling decisions by outcome",
		}, []string{"outcome"}),

		WaterfallDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "admix",
			Name:      "waterfall_depth",
			Help:      "Number of providers contacted per waterfall pass",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),

		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admix",
			Name:      "provider_requests_total",
			Help:      "Ad requests issued per provider by result",
		}, []string{"provider", "result"}),

		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "admix",
			Name:      "provider_request_seconds",
			Help:      "Provider ad request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),

		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admix",
			Name:      "ad_cache_hits_total",
			Help:      "Cached ad descriptors consumed per provider",
		}, []string{"provider"}),

		AdsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admix",
			Name:      "ads_served_total",
			Help:      "Ads delivered to the player per provider",
		}, []string{"provider"}),

		RevenueRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admix",
			Name:      "revenue_recorded_total",
			Help:      "Gross revenue recorded in settlement currency per provider",
		}, []string{"provider"}),

		PayoutsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "admix",
			Name:      "payouts_processed_total",
			Help:      "Businesses paid out across payout runs",
		}),

		PayoutsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "admix",
			Name:      "payouts_skipped_total",
			Help:      "Businesses below the payout minimum across payout runs",
		}),

		RequestsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admix",
			Name:      "api_requests_processed_total",
			Help:      "API requests processed by method and status",
		}, []string{"method", "status"}),
	}

	collectors := []prometheus.Collector{
		m.SchedulingDecisions,
		m.WaterfallDepth,
		m.ProviderRequests,
		m.ProviderLatency,
		m.CacheHits,
		m.AdsServed,
		m.RevenueRecorded,
		m.PayoutsProcessed,
		m.PayoutsSkipped,
		m.RequestsProcessed,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Gatherer returns the prometheus gatherer for metrics export.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Registerer returns the prometheus registerer.
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}
