// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"fmt"
	"time"
)

// TimeLayout is how timestamps are stored: UTC, second precision,
// lexically sortable.
const TimeLayout = "2006-01-02 15:04:05"

// InsertAdPlay records a delivered ad.
func (s *Storage) InsertAdPlay(ctx context.Context, play AdPlay) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ad_plays (id, business_id, ad_id, provider, played_at)
		VALUES (?, ?, ?, ?, ?)`,
		play.ID, play.BusinessID, play.AdID, play.Provider, play.PlayedAt.UTC().Format(TimeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert ad play: %w", err)
	}
	return nil
}

// CountPlaysSince returns how many ads a business played after the
// given instant. Backs the trailing-hour cap.
func (s *Storage) CountPlaysSince(ctx context.Context, businessID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ad_plays
		WHERE business_id = ? AND played_at >= ?`,
		businessID, since.UTC().Format(TimeLayout),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count plays: %w", err)
	}
	return n, nil
}
