// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// PerformanceDelta is one attempt's contribution to the daily counter.
// Success and Failure are mutually exclusive; both false records a
// no-fill, which counts as a request without a fault.
type PerformanceDelta struct {
	BusinessID     string
	APIProvider    string
	DateRecorded   string // YYYY-MM-DD
	Success        bool
	Failure        bool
	ResponseTimeMs float64
	AdServed       bool
}

// ApplyPerformanceDelta folds one request attempt into the daily
// (business, provider) counter row. The running average response time
// and fill rate are recomputed in SQL; if the upsert fails it falls
// back to an explicit read-modify-write, which tolerates
// double-counting under concurrent races.
func (s *Storage) ApplyPerformanceDelta(ctx context.Context, d PerformanceDelta) error {
	success, failed, served := 0, 0, 0
	if d.Success {
		success = 1
	}
	if d.Failure {
		failed = 1
	}
	if d.AdServed {
		served = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ad_performance (
			business_id, api_provider, date_recorded,
			total_requests, successful_requests, failed_requests,
			avg_response_time_ms, total_ads_served, fill_rate
		) VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT(business_id, api_provider, date_recorded) DO UPDATE SET
			total_requests = total_requests + 1,
			successful_requests = successful_requests + excluded.successful_requests,
			failed_requests = failed_requests + excluded.failed_requests,
			avg_response_time_ms =
				(avg_response_time_ms * total_requests + excluded.avg_response_time_ms)
				/ (total_requests + 1),
			total_ads_served = total_ads_served + excluded.total_ads_served,
			fill_rate =
				CAST(successful_requests + excluded.successful_requests AS REAL)
				/ (total_requests + 1)`,
		d.BusinessID, d.APIProvider, d.DateRecorded,
		success, failed, d.ResponseTimeMs, served, float64(success),
	)
	if err == nil {
		return nil
	}

	return s.applyPerformanceDeltaRMW(ctx, d)
}

// applyPerformanceDeltaRMW is the fallback path when the upsert fails.
func (s *Storage) applyPerformanceDeltaRMW(ctx context.Context, d PerformanceDelta) error {
	row, err := s.GetPerformance(ctx, d.BusinessID, d.APIProvider, d.DateRecorded)
	if err != nil {
		return err
	}

	total := row.TotalRequests + 1
	row.AvgResponseTimeMs = (row.AvgResponseTimeMs*float64(row.TotalRequests) + d.ResponseTimeMs) / float64(total)
	row.TotalRequests = total
	if d.Success {
		row.SuccessfulRequests++
	}
	if d.Failure {
		row.FailedRequests++
	}
	if d.AdServed {
		row.TotalAdsServed++
	}
	row.FillRate = float64(row.SuccessfulRequests) / float64(total)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ad_performance (
			business_id, api_provider, date_recorded,
			total_requests, successful_requests, failed_requests,
			avg_response_time_ms, total_ads_served, fill_rate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(business_id, api_provider, date_recorded) DO UPDATE SET
			total_requests = excluded.total_requests,
			successful_requests = excluded.successful_requests,
			failed_requests = excluded.failed_requests,
			avg_response_time_ms = excluded.avg_response_time_ms,
			total_ads_served = excluded.total_ads_served,
			fill_rate = excluded.fill_rate`,
		row.BusinessID, row.APIProvider, row.DateRecorded,
		row.TotalRequests, row.SuccessfulRequests, row.FailedRequests,
		row.AvgResponseTimeMs, row.TotalAdsServed, row.FillRate,
	)
	if err != nil {
		return fmt.Errorf("performance read-modify-write: %w", err)
	}
	return nil
}

// GetPerformance returns the daily counter row, zero-valued when absent.
func (s *Storage) GetPerformance(ctx context.Context, businessID, provider, date string) (PerformanceCounter, error) {
	row := PerformanceCounter{
		BusinessID:   businessID,
		APIProvider:  provider,
		DateRecorded: date,
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT total_requests, successful_requests, failed_requests,
		       avg_response_time_ms, total_ads_served, fill_rate
		FROM ad_performance
		WHERE business_id = ? AND api_provider = ? AND date_recorded = ?`,
		businessID, provider, date,
	).Scan(
		&row.TotalRequests, &row.SuccessfulRequests, &row.FailedRequests,
		&row.AvgResponseTimeMs, &row.TotalAdsServed, &row.FillRate,
	)
	if err == sql.ErrNoRows {
		return row, nil
	}
	if err != nil {
		return PerformanceCounter{}, fmt.Errorf("get performance: %w", err)
	}
	return row, nil
}
