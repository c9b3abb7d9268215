// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ads

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdDescriptor is the normalized ad returned by every provider
// adapter. Immutable; produced once per successful waterfall pass.
type AdDescriptor struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Advertiser      string            `json:"advertiser"`
	AudioURL        string            `json:"audio_url"`
	DurationSeconds int               `json:"duration_seconds"`
	CPM             decimal.Decimal   `json:"cpm"`
	Currency        string            `json:"currency"`
	ProviderName    string            `json:"provider_name"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ServedAd is a delivered descriptor tagged with the play ID and the
// business's configured volume adjustment.
type ServedAd struct {
	AdDescriptor
	PlayID           string `json:"play_id"`
	VolumeAdjustment int    `json:"volume_adjustment"`
}

// Targeting carries the generic targeting fields each adapter maps to
// its provider-specific request shape.
type Targeting struct {
	BusinessType string `json:"business_type"`
	Location     string `json:"location"`
	TimeOfDay    string `json:"time_of_day"`
}

// PlayData is the completion telemetry reported back after an ad ran.
type PlayData struct {
	Completed      bool          `json:"completed"`
	PlayedDuration time.Duration `json:"played_duration"`
	Error          string        `json:"error,omitempty"`
}

// PlayEvent is what the manager publishes after each delivered ad, for
// the player UI event feed.
type PlayEvent struct {
	BusinessID string       `json:"business_id"`
	PlayID     string       `json:"play_id"`
	Ad         AdDescriptor `json:"ad"`
	PlayedAt   time.Time    `json:"played_at"`
}
