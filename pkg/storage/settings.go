// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// GetAdSettings returns the business's settings, or the defaults if
// none have been saved yet.
func (s *Storage) GetAdSettings(ctx context.Context, businessID string) (AdSettings, error) {
	var (
		settings AdSettings
		enabled  int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT enabled, frequency, max_ads_per_hour, volume_adjustment
		FROM ad_settings WHERE business_id = ?`,
		businessID,
	).Scan(&enabled, &settings.Frequency, &settings.MaxAdsPerHour, &settings.VolumeAdjustment)
	if err == sql.ErrNoRows {
		return DefaultAdSettings(), nil
	}
	if err != nil {
		return AdSettings{}, fmt.Errorf("get ad settings: %w", err)
	}
	settings.Enabled = enabled != 0
	return settings, nil
}

// UpsertAdSettings saves the business's settings.
func (s *Storage) UpsertAdSettings(ctx context.Context, businessID string, settings AdSettings) error {
	enabled := 0
	if settings.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ad_settings (business_id, enabled, frequency, max_ads_per_hour, volume_adjustment, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(business_id) DO UPDATE SET
			enabled = excluded.enabled,
			frequency = excluded.frequency,
			max_ads_per_hour = excluded.max_ads_per_hour,
			volume_adjustment = excluded.volume_adjustment,
			updated_at = CURRENT_TIMESTAMP`,
		businessID, enabled, settings.Frequency, settings.MaxAdsPerHour, settings.VolumeAdjustment,
	)
	if err != nil {
		return fmt.Errorf("upsert ad settings: %w", err)
	}
	return nil
}
