// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tavari-hq/admix/pkg/ads"
	"github.com/tavari-hq/admix/pkg/config"
	"github.com/tavari-hq/admix/pkg/log"
)

// GoogleAdManager serves audio ads from a Google Ad Manager network.
type GoogleAdManager struct {
	cfg    config.ProviderConfig
	client *http.Client
	tokens *TokenSource
	log    log.Logger

	mu     sync.RWMutex
	active bool
}

// NewGoogleAdManager creates the Google Ad Manager adapter.
func NewGoogleAdManager(cfg config.ProviderConfig, logger log.Logger) *GoogleAdManager {
	if logger == nil {
		logger = log.NoLog
	}
	client := newHTTPClient(cfg.Timeout)
	return &GoogleAdManager{
		cfg:    cfg,
		client: client,
		tokens: NewTokenSource(clientCredentialsRefresh(client, cfg.TokenURL, cfg.ClientID, cfg.ClientSecret)),
		log:    logger.With("provider", NameGoogle),
	}
}

func (g *GoogleAdManager) Initialize(ctx context.Context) error {
	if _, err := g.tokens.Token(ctx); err != nil {
		return &ads.AuthError{Provider: NameGoogle, Err: err}
	}
	g.mu.Lock()
	g.active = true
	g.mu.Unlock()
	return nil
}

// gamAdRequest is the Ad Manager request body.
type gamAdRequest struct {
	AdUnit    string `json:"adUnit"`
	Format    string `json:"format"`
	Targeting struct {
		Categories []string `json:"categories"`
		Country    string   `json:"country"`
		Daypart    string   `json:"daypart"`
	} `json:"targeting"`
}

// gamAdResponse is the Ad Manager reply; an empty ads list is no-fill.
type gamAdResponse struct {
	Ads []struct {
		AdID           string `json:"adId"`
		Headline       string `json:"headline"`
		Brand          string `json:"brand"`
		MediaURL       string `json:"mediaUrl"`
		DurationMillis int    `json:"durationMillis"`
		CPMMicros      int64  `json:"cpmMicros"`
		CurrencyCode   string `json:"currencyCode"`
	} `json:"ads"`
}

func (g *GoogleAdManager) RequestAd(ctx context.Context, t ads.Targeting) (*ads.AdDescriptor, error) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, &ads.AuthError{Provider: NameGoogle, Err: err}
	}

	reqBody := gamAdRequest{AdUnit: g.cfg.ClientID, Format: "audio"}
	reqBody.Targeting.Categories = categoriesFor(t.BusinessType)
	reqBody.Targeting.Country = countryFor(t.Location)
	reqBody.Targeting.Daypart = t.TimeOfDay
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ads.TransportError{Provider: NameGoogle, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/networks/audio:request", g.cfg.Endpoint),
		bytes.NewReader(payload))
	if err != nil {
		return nil, &ads.TransportError{Provider: NameGoogle, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &ads.TransportError{Provider: NameGoogle, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		g.tokens.Invalidate()
		return nil, faultFromStatus(NameGoogle, resp.StatusCode)
	default:
		return nil, faultFromStatus(NameGoogle, resp.StatusCode)
	}

	var body gamAdResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &ads.TransportError{Provider: NameGoogle, Err: err}
	}
	if len(body.Ads) == 0 {
		return nil, nil
	}

	ad := body.Ads[0]
	if ad.MediaURL == "" {
		return nil, nil
	}
	currency := ad.CurrencyCode
	if currency == "" {
		currency = "USD"
	}
	return &ads.AdDescriptor{
		ID:              ad.AdID,
		Title:           ad.Headline,
		Advertiser:      ad.Brand,
		AudioURL:        ad.MediaURL,
		DurationSeconds: ad.DurationMillis / 1000,
		CPM:             decimal.New(ad.CPMMicros, -6),
		Currency:        currency,
		ProviderName:    NameGoogle,
	}, nil
}

func (g *GoogleAdManager) ReportPlay(ctx context.Context, adID string, data ads.PlayData) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		g.log.Debug("play report skipped, no token", "ad", adID, "error", err)
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"adId":          adID,
		"completed":     data.Completed,
		"playedMillis":  data.PlayedDuration.Milliseconds(),
		"playbackError": data.Error,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/networks/audio:report", g.cfg.Endpoint),
		bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Debug("play report failed", "ad", adID, "error", err)
		return
	}
	resp.Body.Close()
}

func (g *GoogleAdManager) HealthCheck(ctx context.Context) ads.HealthReport {
	if _, err := g.tokens.Token(ctx); err != nil {
		return ads.HealthReport{Status: ads.HealthError, Error: err.Error()}
	}
	return ads.HealthReport{Status: ads.HealthHealthy}
}

func (g *GoogleAdManager) Info() ads.ProviderInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return ads.ProviderInfo{
		Name:              NameGoogle,
		Priority:          g.cfg.Priority,
		Active:            g.active,
		RequestsPerMinute: 120,
	}
}
