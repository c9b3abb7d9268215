// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tavari-hq/admix/pkg/ads"
	"github.com/tavari-hq/admix/pkg/config"
	"github.com/tavari-hq/admix/pkg/log"
)

// Spotify serves audio ads from the Spotify Ad Studio API.
type Spotify struct {
	cfg    config.ProviderConfig
	client *http.Client
	tokens *TokenSource
	log    log.Logger

	mu     sync.RWMutex
	active bool
}

// NewSpotify creates the Spotify adapter.
func NewSpotify(cfg config.ProviderConfig, logger log.Logger) *Spotify {
	if logger == nil {
		logger = log.NoLog
	}
	client := newHTTPClient(cfg.Timeout)
	return &Spotify{
		cfg:    cfg,
		client: client,
		tokens: NewTokenSource(clientCredentialsRefresh(client, cfg.TokenURL, cfg.ClientID, cfg.ClientSecret)),
		log:    logger.With("provider", NameSpotify),
	}
}

// Initialize bootstraps the OAuth token.
func (s *Spotify) Initialize(ctx context.Context) error {
	if _, err := s.tokens.Token(ctx); err != nil {
		return &ads.AuthError{Provider: NameSpotify, Err: err}
	}
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	return nil
}

// spotifyAdResponse is the Ad Studio reply shape.
type spotifyAdResponse struct {
	Ad *struct {
		ID              string  `json:"id"`
		Title           string  `json:"title"`
		Advertiser      string  `json:"advertiser"`
		AudioURL        string  `json:"audio_url"`
		DurationSeconds int     `json:"duration_seconds"`
		CPM             float64 `json:"cpm"`
		Currency        string  `json:"currency"`
	} `json:"ad"`
}

// RequestAd asks for one audio ad matching the targeting. A 204 or an
// empty body is a legitimate no-fill.
func (s *Spotify) RequestAd(ctx context.Context, t ads.Targeting) (*ads.AdDescriptor, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, &ads.AuthError{Provider: NameSpotify, Err: err}
	}

	q := url.Values{
		"format":     {"audio"},
		"categories": {strings.Join(categoriesFor(t.BusinessType), ",")},
		"market":     {countryFor(t.Location)},
		"daypart":    {t.TimeOfDay},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/ad-requests?%s", s.cfg.Endpoint, q.Encode()), nil)
	if err != nil {
		return nil, &ads.TransportError{Provider: NameSpotify, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ads.TransportError{Provider: NameSpotify, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		s.tokens.Invalidate()
		return nil, faultFromStatus(NameSpotify, resp.StatusCode)
	default:
		return nil, faultFromStatus(NameSpotify, resp.StatusCode)
	}

	var body spotifyAdResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &ads.TransportError{Provider: NameSpotify, Err: err}
	}
	if body.Ad == nil || body.Ad.AudioURL == "" {
		return nil, nil
	}

	currency := body.Ad.Currency
	if currency == "" {
		currency = "USD"
	}
	return &ads.AdDescriptor{
		ID:              body.Ad.ID,
		Title:           body.Ad.Title,
		Advertiser:      body.Ad.Advertiser,
		AudioURL:        body.Ad.AudioURL,
		DurationSeconds: body.Ad.DurationSeconds,
		CPM:             decimal.NewFromFloat(body.Ad.CPM),
		Currency:        currency,
		ProviderName:    NameSpotify,
	}, nil
}

// ReportPlay posts completion telemetry. Best-effort: failures are
// logged and dropped.
func (s *Spotify) ReportPlay(ctx context.Context, adID string, data ads.PlayData) {
	payload, _ := json.Marshal(map[string]interface{}{
		"completed":      data.Completed,
		"played_seconds": int(data.PlayedDuration.Seconds()),
		"error":          data.Error,
	})
	token, err := s.tokens.Token(ctx)
	if err != nil {
		s.log.Debug("play report skipped, no token", "ad", adID, "error", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/ads/%s/events", s.cfg.Endpoint, adID),
		strings.NewReader(string(payload)))
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Debug("play report failed", "ad", adID, "error", err)
		return
	}
	resp.Body.Close()
}

// HealthCheck verifies a usable token can be obtained.
func (s *Spotify) HealthCheck(ctx context.Context) ads.HealthReport {
	if _, err := s.tokens.Token(ctx); err != nil {
		return ads.HealthReport{Status: ads.HealthError, Error: err.Error()}
	}
	return ads.HealthReport{Status: ads.HealthHealthy}
}

// Info returns the static adapter descriptor.
func (s *Spotify) Info() ads.ProviderInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ads.ProviderInfo{
		Name:              NameSpotify,
		Priority:          s.cfg.Priority,
		Active:            s.active,
		RequestsPerMinute: 60,
	}
}
