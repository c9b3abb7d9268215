// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the settlement state of a revenue record.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// AdPlay is one delivered ad. Created exactly once per waterfall win;
// has at most one associated RevenueRecord.
type AdPlay struct {
	ID         string
	BusinessID string
	AdID       string
	Provider   string
	PlayedAt   time.Time
}

// RevenueRecord is the settled accounting for one ad play. The three
// shares always sum exactly to GrossRevenue; any rounding remainder is
// folded into BusinessPayout. Immutable except for the pending→paid
// transition.
type RevenueRecord struct {
	ID               string
	AdPlayID         string
	BusinessID       string
	APIProvider      string
	RevenueType      string
	GrossRevenue     decimal.Decimal
	APICommission    decimal.Decimal
	TavariCommission decimal.Decimal
	BusinessPayout   decimal.Decimal
	Currency         string
	ExchangeRate     decimal.Decimal
	OriginalCurrency string
	OriginalAmount   decimal.Decimal
	PaymentStatus    PaymentStatus
	CreatedAt        time.Time
}

// PerformanceCounter is the daily per-provider request ledger for one
// business.
type PerformanceCounter struct {
	BusinessID         string
	APIProvider        string
	DateRecorded       string // YYYY-MM-DD
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	AvgResponseTimeMs  float64
	TotalAdsServed     int64
	FillRate           float64
}

// AdSettings is the per-business scheduling configuration.
type AdSettings struct {
	Enabled          bool
	Frequency        int
	MaxAdsPerHour    int
	VolumeAdjustment int
}

// DefaultAdSettings is what a business gets before anyone has saved
// settings for it. Ads stay off until explicitly enabled.
func DefaultAdSettings() AdSettings {
	return AdSettings{
		Enabled:          false,
		Frequency:        5,
		MaxAdsPerHour:    6,
		VolumeAdjustment: 0,
	}
}

// PendingGroup is one business's pending revenue, as returned by
// SelectPendingGroupedByBusiness.
type PendingGroup struct {
	BusinessID string
	RecordIDs  []string
	Total      decimal.Decimal
}
