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

// SiriusXM serves audio spots from the SiriusXM Media ad network.
// Authentication is a static API key (ClientSecret); there is no token
// exchange. Prices come back in CAD.
type SiriusXM struct {
	cfg    config.ProviderConfig
	client *http.Client
	log    log.Logger

	mu     sync.RWMutex
	active bool
}

// NewSiriusXM creates the SiriusXM adapter.
func NewSiriusXM(cfg config.ProviderConfig, logger log.Logger) *SiriusXM {
	if logger == nil {
		logger = log.NoLog
	}
	return &SiriusXM{
		cfg:    cfg,
		client: newHTTPClient(cfg.Timeout),
		log:    logger.With("provider", NameSiriusXM),
	}
}

// Initialize validates the API key against the status endpoint.
func (s *SiriusXM) Initialize(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Endpoint+"/api/v2/status", nil)
	if err != nil {
		return &ads.TransportError{Provider: NameSiriusXM, Err: err}
	}
	req.Header.Set("X-Api-Key", s.cfg.ClientSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return &ads.TransportError{Provider: NameSiriusXM, Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return faultFromStatus(NameSiriusXM, resp.StatusCode)
	}

	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	return nil
}

// sxmSpotResponse is the SiriusXM reply. A response with filled=false
// carries no spot.
type sxmSpotResponse struct {
	Filled bool `json:"filled"`
	Spot   struct {
		SpotID     string  `json:"spot_id"`
		SpotName   string  `json:"spot_name"`
		Sponsor    string  `json:"sponsor"`
		StreamURL  string  `json:"stream_url"`
		LengthSecs int     `json:"length_secs"`
		RateCAD    float64 `json:"rate_cad"`
	} `json:"spot"`
}

func (s *SiriusXM) RequestAd(ctx context.Context, t ads.Targeting) (*ads.AdDescriptor, error) {
	q := url.Values{}
	q.Set("venue_type", strings.Join(categoriesFor(t.BusinessType), ","))
	q.Set("region", countryFor(t.Location))
	q.Set("daypart", t.TimeOfDay)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v2/spots/next?%s", s.cfg.Endpoint, q.Encode()), nil)
	if err != nil {
		return nil, &ads.TransportError{Provider: NameSiriusXM, Err: err}
	}
	req.Header.Set("X-Api-Key", s.cfg.ClientSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ads.TransportError{Provider: NameSiriusXM, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, faultFromStatus(NameSiriusXM, resp.StatusCode)
	}

	var body sxmSpotResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &ads.TransportError{Provider: NameSiriusXM, Err: err}
	}
	if !body.Filled || body.Spot.StreamURL == "" {
		return nil, nil
	}

	return &ads.AdDescriptor{
		ID:              body.Spot.SpotID,
		Title:           body.Spot.SpotName,
		Advertiser:      body.Spot.Sponsor,
		AudioURL:        body.Spot.StreamURL,
		DurationSeconds: body.Spot.LengthSecs,
		CPM:             decimal.NewFromFloat(body.Spot.RateCAD),
		Currency:        "CAD",
		ProviderName:    NameSiriusXM,
	}, nil
}

func (s *SiriusXM) ReportPlay(ctx context.Context, adID string, data ads.PlayData) {
	q := url.Values{}
	q.Set("completed", fmt.Sprintf("%t", data.Completed))
	q.Set("played_secs", fmt.Sprintf("%d", int(data.PlayedDuration.Seconds())))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/v2/spots/%s/impression?%s", s.cfg.Endpoint, url.PathEscape(adID), q.Encode()), nil)
	if err != nil {
		return
	}
	req.Header.Set("X-Api-Key", s.cfg.ClientSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Debug("impression report failed", "spot", adID, "error", err)
		return
	}
	resp.Body.Close()
}

func (s *SiriusXM) HealthCheck(ctx context.Context) ads.HealthReport {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Endpoint+"/api/v2/status", nil)
	if err != nil {
		return ads.HealthReport{Status: ads.HealthError, Error: err.Error()}
	}
	req.Header.Set("X-Api-Key", s.cfg.ClientSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return ads.HealthReport{Status: ads.HealthError, Error: err.Error()}
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ads.HealthReport{
			Status: ads.HealthDegraded,
			Error:  fmt.Sprintf("status endpoint returned %d", resp.StatusCode),
		}
	}
	return ads.HealthReport{Status: ads.HealthHealthy}
}

func (s *SiriusXM) Info() ads.ProviderInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ads.ProviderInfo{
		Name:              NameSiriusXM,
		Priority:          s.cfg.Priority,
		Active:            s.active,
		RequestsPerMinute: 30,
	}
}
