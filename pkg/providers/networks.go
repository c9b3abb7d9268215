// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/shopspring/decimal"

	"github.com/tavari-hq/admix/pkg/ads"
	"github.com/tavari-hq/admix/pkg/config"
	"github.com/tavari-hq/admix/pkg/log"
	"github.com/tavari-hq/admix/pkg/vast"
)

// Networks aggregates several small audio ad networks behind a single
// provider. Each sub-network is tried in priority order; the first fill
// wins. Programmatic sub-networks speak OpenRTB 2.x and may answer with
// a VAST document in the bid markup; the rest use a plain JSON call.
type Networks struct {
	cfg    config.NetworksConfig
	client *http.Client
	log    log.Logger

	// subs is ordered by priority and immutable after construction;
	// the per-sub active flag carries the mutable state.
	subs []*subNetwork
}

type subNetwork struct {
	cfg    config.SubNetworkConfig
	tokens *TokenSource // nil for API-key sub-networks

	mu     sync.RWMutex
	active bool
}

func (sn *subNetwork) isActive() bool {
	sn.mu.RLock()
	defer sn.mu.RUnlock()
	return sn.active
}

func (sn *subNetwork) setActive(v bool) {
	sn.mu.Lock()
	sn.active = v
	sn.mu.Unlock()
}

// NewNetworks creates the aggregate adapter from its sub-network
// configuration.
func NewNetworks(cfg config.NetworksConfig, logger log.Logger) *Networks {
	if logger == nil {
		logger = log.NoLog
	}
	client := newHTTPClient(cfg.Timeout)

	subs := make([]*subNetwork, 0, len(cfg.SubNetworks))
	for _, sc := range cfg.SubNetworks {
		sn := &subNetwork{cfg: sc}
		if sc.TokenURL != "" {
			sn.tokens = NewTokenSource(clientCredentialsRefresh(client, sc.TokenURL, sc.Name, sc.APIKey))
		}
		subs = append(subs, sn)
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].cfg.Priority < subs[j].cfg.Priority
	})

	return &Networks{
		cfg:    cfg,
		client: client,
		log:    logger.With("provider", NameNetworks),
		subs:   subs,
	}
}

// Initialize probes every sub-network. Unreachable sub-networks are
// marked inactive and skipped by the waterfall; the adapter as a whole
// fails only when no sub-network is usable.
func (n *Networks) Initialize(ctx context.Context) error {
	usable := 0
	for _, sn := range n.subs {
		if err := n.initSub(ctx, sn); err != nil {
			n.log.Warn("sub-network unavailable", "sub_network", sn.cfg.Name, "error", err)
			sn.setActive(false)
			continue
		}
		sn.setActive(true)
		usable++
	}
	if usable == 0 {
		return &ads.TransportError{Provider: NameNetworks, Err: fmt.Errorf("no usable sub-networks of %d configured", len(n.subs))}
	}
	return nil
}

func (n *Networks) initSub(ctx context.Context, sn *subNetwork) error {
	if sn.tokens != nil {
		_, err := sn.tokens.Token(ctx)
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sn.cfg.Endpoint+"/status", nil)
	if err != nil {
		return err
	}
	if sn.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", sn.cfg.APIKey)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status probe: HTTP %d", resp.StatusCode)
	}
	return nil
}

// RequestAd walks the sub-networks by priority. A sub-network fault is
// logged and the walk continues; the adapter only returns an error when
// every active sub-network faulted.
func (n *Networks) RequestAd(ctx context.Context, t ads.Targeting) (*ads.AdDescriptor, error) {
	var lastErr error
	faults := 0
	tried := 0
	for _, sn := range n.subs {
		if !sn.isActive() {
			continue
		}
		tried++

		var (
			ad  *ads.AdDescriptor
			err error
		)
		if sn.cfg.OpenRTB {
			ad, err = n.requestOpenRTB(ctx, sn, t)
		} else {
			ad, err = n.requestJSON(ctx, sn, t)
		}
		if err != nil {
			n.log.Debug("sub-network fault", "sub_network", sn.cfg.Name, "error", err)
			lastErr = err
			faults++
			continue
		}
		if ad == nil {
			continue
		}
		if ad.Metadata == nil {
			ad.Metadata = make(map[string]string, 1)
		}
		ad.Metadata["sub_network"] = sn.cfg.Name
		ad.ProviderName = NameNetworks
		return ad, nil
	}

	if tried > 0 && faults == tried {
		return nil, lastErr
	}
	return nil, nil
}

// requestOpenRTB sends an audio bid request and converts the winning
// bid into a descriptor. Markup starting with a VAST tag is parsed for
// the real creative; otherwise the markup is taken as a direct audio
// URL.
func (n *Networks) requestOpenRTB(ctx context.Context, sn *subNetwork, t ads.Targeting) (*ads.AdDescriptor, error) {
	bidReq := &openrtb2.BidRequest{
		ID: uuid.NewString(),
		Imp: []openrtb2.Imp{{
			ID: "1",
			Audio: &openrtb2.Audio{
				MinDuration: 10,
				MaxDuration: 60,
				MIMEs:       []string{"audio/mpeg", "audio/mp4", "audio/aac"},
			},
		}},
		Site: &openrtb2.Site{
			Cat: categoriesFor(t.BusinessType),
		},
		Device: &openrtb2.Device{
			Geo: &openrtb2.Geo{Country: countryFor(t.Location)},
		},
		Cur: []string{"USD", "CAD"},
	}

	payload, err := json.Marshal(bidReq)
	if err != nil {
		return nil, &ads.TransportError{Provider: NameNetworks, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sn.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &ads.TransportError{Provider: NameNetworks, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Openrtb-Version", "2.6")
	if err := n.authorize(ctx, sn, req); err != nil {
		return nil, err
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, &ads.TransportError{Provider: NameNetworks, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		if sn.tokens != nil {
			sn.tokens.Invalidate()
		}
		return nil, faultFromStatus(NameNetworks, resp.StatusCode)
	default:
		return nil, faultFromStatus(NameNetworks, resp.StatusCode)
	}

	var bidResp openrtb2.BidResponse
	if err := json.NewDecoder(resp.Body).Decode(&bidResp); err != nil {
		return nil, &ads.TransportError{Provider: NameNetworks, Err: err}
	}
	if len(bidResp.SeatBid) == 0 || len(bidResp.SeatBid[0].Bid) == 0 {
		return nil, nil
	}

	bid := bidResp.SeatBid[0].Bid[0]
	currency := bidResp.Cur
	if currency == "" {
		currency = "USD"
	}

	desc := &ads.AdDescriptor{
		ID:       bid.AdID,
		CPM:      decimal.NewFromFloat(bid.Price),
		Currency: currency,
	}
	if desc.ID == "" {
		desc.ID = bid.ID
	}

	markup := strings.TrimSpace(bid.AdM)
	switch {
	case strings.Contains(markup, "<VAST"):
		doc, err := vast.Parse([]byte(markup))
		if err != nil {
			return nil, &ads.TransportError{Provider: NameNetworks, Err: fmt.Errorf("bad VAST markup: %w", err)}
		}
		creative, ok := doc.FirstAudioCreative()
		if !ok {
			return nil, nil
		}
		desc.Title = creative.Title
		desc.Advertiser = creative.Advertiser
		desc.AudioURL = creative.AudioURL
		desc.DurationSeconds = creative.DurationSeconds
		if creative.AdID != "" {
			desc.ID = creative.AdID
		}
	case markup != "":
		desc.AudioURL = markup
	default:
		return nil, nil
	}

	if desc.AudioURL == "" {
		return nil, nil
	}
	return desc, nil
}

// netAdResponse is the plain JSON reply of non-programmatic
// sub-networks.
type netAdResponse struct {
	Ad *struct {
		ID         string  `json:"id"`
		Name       string  `json:"name"`
		Advertiser string  `json:"advertiser"`
		AudioURL   string  `json:"audio_url"`
		Duration   int     `json:"duration"`
		Price      float64 `json:"price"`
		Currency   string  `json:"currency"`
	} `json:"ad"`
}

func (n *Networks) requestJSON(ctx context.Context, sn *subNetwork, t ads.Targeting) (*ads.AdDescriptor, error) {
	body, err := json.Marshal(map[string]interface{}{
		"format":     "audio",
		"categories": categoriesFor(t.BusinessType),
		"country":    countryFor(t.Location),
		"daypart":    t.TimeOfDay,
	})
	if err != nil {
		return nil, &ads.TransportError{Provider: NameNetworks, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sn.cfg.Endpoint+"/ads/request", bytes.NewReader(body))
	if err != nil {
		return nil, &ads.TransportError{Provider: NameNetworks, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if err := n.authorize(ctx, sn, req); err != nil {
		return nil, err
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, &ads.TransportError{Provider: NameNetworks, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		if sn.tokens != nil {
			sn.tokens.Invalidate()
		}
		return nil, faultFromStatus(NameNetworks, resp.StatusCode)
	default:
		return nil, faultFromStatus(NameNetworks, resp.StatusCode)
	}

	var reply netAdResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, &ads.TransportError{Provider: NameNetworks, Err: err}
	}
	if reply.Ad == nil || reply.Ad.AudioURL == "" {
		return nil, nil
	}

	currency := reply.Ad.Currency
	if currency == "" {
		currency = "USD"
	}
	return &ads.AdDescriptor{
		ID:              reply.Ad.ID,
		Title:           reply.Ad.Name,
		Advertiser:      reply.Ad.Advertiser,
		AudioURL:        reply.Ad.AudioURL,
		DurationSeconds: reply.Ad.Duration,
		CPM:             decimal.NewFromFloat(reply.Ad.Price),
		Currency:        currency,
	}, nil
}

func (n *Networks) authorize(ctx context.Context, sn *subNetwork, req *http.Request) error {
	if sn.tokens != nil {
		token, err := sn.tokens.Token(ctx)
		if err != nil {
			return &ads.AuthError{Provider: NameNetworks, Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
	if sn.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", sn.cfg.APIKey)
	}
	return nil
}

// ReportPlay forwards the impression to the sub-network named in the ad
// metadata. The play ID routing happens in the manager; here the adID
// already belongs to the sub-network that filled.
func (n *Networks) ReportPlay(ctx context.Context, adID string, data ads.PlayData) {
	// Sub-networks in this tier bill on the bid, not on impression
	// callbacks. Log for reconciliation only.
	n.log.Debug("play reported", "ad", adID, "completed", data.Completed,
		"played", data.PlayedDuration.String())
}

func (n *Networks) HealthCheck(ctx context.Context) ads.HealthReport {
	detail := make(map[string]ads.HealthStatus, len(n.subs))
	healthy := 0
	for _, sn := range n.subs {
		if sn.isActive() {
			detail[sn.cfg.Name] = ads.HealthHealthy
			healthy++
		} else {
			detail[sn.cfg.Name] = ads.HealthError
		}
	}
	switch {
	case healthy == len(n.subs) && healthy > 0:
		return ads.HealthReport{Status: ads.HealthHealthy, Detail: detail}
	case healthy > 0:
		return ads.HealthReport{Status: ads.HealthDegraded, Detail: detail}
	default:
		return ads.HealthReport{Status: ads.HealthError, Detail: detail, Error: "no active sub-networks"}
	}
}

func (n *Networks) Info() ads.ProviderInfo {
	active := false
	for _, sn := range n.subs {
		if sn.isActive() {
			active = true
			break
		}
	}
	return ads.ProviderInfo{
		Name:              NameNetworks,
		Priority:          n.cfg.Priority,
		Active:            active,
		RequestsPerMinute: 240,
	}
}
