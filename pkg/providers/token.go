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
	"time"

	"golang.org/x/sync/singleflight"
)

// tokenSlack renews tokens slightly before their reported expiry so an
// outbound call never leaves with a token about to lapse mid-flight.
const tokenSlack = 30 * time.Second

// RefreshFunc obtains a fresh token and its expiry.
type RefreshFunc func(ctx context.Context) (token string, expiry time.Time, err error)

// TokenSource caches a provider auth token and refreshes it on demand.
// Refresh is single-flight: concurrent callers needing a refresh share
// one in-flight call instead of issuing duplicates.
type TokenSource struct {
	mu      sync.RWMutex
	token   string
	expiry  time.Time
	refresh RefreshFunc
	sf      singleflight.Group
	now     func() time.Time
}

// NewTokenSource creates a token source around a refresh function.
func NewTokenSource(refresh RefreshFunc) *TokenSource {
	return &TokenSource{refresh: refresh, now: time.Now}
}

// Token returns a valid token, refreshing first when the cached one is
// missing or expired.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := t.current(); ok {
		return tok, nil
	}

	v, err, _ := t.sf.Do("refresh", func() (interface{}, error) {
		// A racing caller may have refreshed while we queued.
		if tok, ok := t.current(); ok {
			return tok, nil
		}
		token, expiry, err := t.refresh(ctx)
		if err != nil {
			return nil, err
		}
		t.mu.Lock()
		t.token, t.expiry = token, expiry
		t.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token, forcing the next call to refresh.
func (t *TokenSource) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.mu.Unlock()
}

// Valid reports whether a usable token is cached.
func (t *TokenSource) Valid() bool {
	_, ok := t.current()
	return ok
}

// Expiry returns the cached token's expiry.
func (t *TokenSource) Expiry() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expiry
}

func (t *TokenSource) current() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.token == "" || !t.now().Add(tokenSlack).Before(t.expiry) {
		return "", false
	}
	return t.token, true
}

// oauthTokenResponse is the standard client-credentials grant reply.
type oauthTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// clientCredentialsRefresh builds a RefreshFunc that performs an OAuth
// client-credentials grant against tokenURL.
func clientCredentialsRefresh(client *http.Client, tokenURL, clientID, clientSecret string) RefreshFunc {
	return func(ctx context.Context) (string, time.Time, error) {
		form := url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {clientID},
			"client_secret": {clientSecret},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL,
			strings.NewReader(form.Encode()))
		if err != nil {
			return "", time.Time{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := client.Do(req)
		if err != nil {
			return "", time.Time{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", time.Time{}, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
		}

		var body oauthTokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", time.Time{}, err
		}
		if body.AccessToken == "" {
			return "", time.Time{}, fmt.Errorf("token endpoint returned empty token")
		}
		expiresIn := body.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = 3600
		}
		return body.AccessToken, time.Now().Add(time.Duration(expiresIn) * time.Second), nil
	}
}
