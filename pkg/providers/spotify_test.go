// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavari-hq/admix/pkg/ads"
	"github.com/tavari-hq/admix/pkg/config"
)

// spotifyFixture stands up a token endpoint plus an ad endpoint whose
// behavior the test controls per request.
func spotifyFixture(t *testing.T, adHandler http.HandlerFunc) *Spotify {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"t","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/ad-requests", adHandler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewSpotify(config.ProviderConfig{
		ClientID:     "cid",
		ClientSecret: "cs",
		Endpoint:     srv.URL,
		TokenURL:     srv.URL + "/token",
		Priority:     1,
		Timeout:      2 * time.Second,
	}, nil)
}

func TestSpotifyRequestAdFill(t *testing.T) {
	sp := spotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		assert.Equal(t, "audio", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ad":{"id":"sp-1","title":"Summer Sale","advertiser":"Acme",
			"audio_url":"https://cdn.example/sp-1.mp3","duration_seconds":30,
			"cpm":0.018,"currency":"USD"}}`))
	})
	require.NoError(t, sp.Initialize(context.Background()))

	ad, err := sp.RequestAd(context.Background(), ads.Targeting{BusinessType: "cafe", Location: "CA-ON"})
	require.NoError(t, err)
	require.NotNil(t, ad)
	assert.Equal(t, "sp-1", ad.ID)
	assert.Equal(t, NameSpotify, ad.ProviderName)
	assert.Equal(t, "USD", ad.Currency)
	assert.Equal(t, "0.018", ad.CPM.String())
	assert.Equal(t, 30, ad.DurationSeconds)
}

func TestSpotifyRequestAdNoFill(t *testing.T) {
	sp := spotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, sp.Initialize(context.Background()))

	ad, err := sp.RequestAd(context.Background(), ads.Targeting{})
	require.NoError(t, err)
	assert.Nil(t, ad, "204 is a no-fill, not a fault")
}

func TestSpotifyRequestAdAuthFault(t *testing.T) {
	sp := spotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	require.NoError(t, sp.Initialize(context.Background()))

	_, err := sp.RequestAd(context.Background(), ads.Targeting{})
	var authErr *ads.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, NameSpotify, authErr.Provider)
	assert.False(t, sp.tokens.Valid(), "401 must invalidate the cached token")
}

func TestSpotifyRequestAdServerFault(t *testing.T) {
	sp := spotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	require.NoError(t, sp.Initialize(context.Background()))

	_, err := sp.RequestAd(context.Background(), ads.Targeting{})
	var transportErr *ads.TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestSpotifyInitializeBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sp := NewSpotify(config.ProviderConfig{
		ClientID: "cid", ClientSecret: "bad",
		Endpoint: srv.URL, TokenURL: srv.URL + "/token",
	}, nil)

	err := sp.Initialize(context.Background())
	var authErr *ads.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, sp.Info().Active)
}

func TestGoogleAdManagerRequestAd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"g","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/networks/audio:request", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ads":[{"adId":"g-9","headline":"Back to School","brand":"Borealis",
			"mediaUrl":"https://cdn.example/g-9.aac","durationMillis":15000,
			"cpmMicros":12000,"currencyCode":"USD"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGoogleAdManager(config.ProviderConfig{
		ClientID: "net-1", ClientSecret: "cs",
		Endpoint: srv.URL, TokenURL: srv.URL + "/token",
		Priority: 2,
	}, nil)
	require.NoError(t, g.Initialize(context.Background()))

	ad, err := g.RequestAd(context.Background(), ads.Targeting{BusinessType: "gym"})
	require.NoError(t, err)
	require.NotNil(t, ad)
	assert.Equal(t, "g-9", ad.ID)
	assert.Equal(t, 15, ad.DurationSeconds)
	assert.Equal(t, "0.012", ad.CPM.String())
}

func TestGoogleAdManagerEmptyAdsIsNoFill(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"g","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/networks/audio:request", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ads":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGoogleAdManager(config.ProviderConfig{
		ClientID: "net-1", ClientSecret: "cs",
		Endpoint: srv.URL, TokenURL: srv.URL + "/token",
	}, nil)
	require.NoError(t, g.Initialize(context.Background()))

	ad, err := g.RequestAd(context.Background(), ads.Targeting{})
	require.NoError(t, err)
	assert.Nil(t, ad)
}

func TestSiriusXMRequestAd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key-1" {
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	mux.HandleFunc("/api/v2/spots/next", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"filled":true,"spot":{"spot_id":"sx-3","spot_name":"Drive Home",
			"sponsor":"Northwind","stream_url":"https://cdn.example/sx-3.mp3",
			"length_secs":20,"rate_cad":0.02}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sx := NewSiriusXM(config.ProviderConfig{
		ClientSecret: "key-1", Endpoint: srv.URL, Priority: 3,
	}, nil)
	require.NoError(t, sx.Initialize(context.Background()))

	ad, err := sx.RequestAd(context.Background(), ads.Targeting{BusinessType: "bar"})
	require.NoError(t, err)
	require.NotNil(t, ad)
	assert.Equal(t, "sx-3", ad.ID)
	assert.Equal(t, "CAD", ad.Currency, "SiriusXM quotes in CAD")
	assert.Equal(t, "0.02", ad.CPM.String())
}

func TestSiriusXMUnfilledResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/status", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/api/v2/spots/next", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"filled":false}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sx := NewSiriusXM(config.ProviderConfig{ClientSecret: "k", Endpoint: srv.URL}, nil)
	require.NoError(t, sx.Initialize(context.Background()))

	ad, err := sx.RequestAd(context.Background(), ads.Targeting{})
	require.NoError(t, err)
	assert.Nil(t, ad)
}

func TestSiriusXMHealthCheckDegraded(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sx := NewSiriusXM(config.ProviderConfig{ClientSecret: "k", Endpoint: srv.URL}, nil)

	report := sx.HealthCheck(context.Background())
	assert.Equal(t, ads.HealthDegraded, report.Status)
	assert.Contains(t, report.Error, "503")
}

func TestMockDeterminism(t *testing.T) {
	a := NewMock("spotify", 1, 0.5, 42)
	b := NewMock("spotify", 1, 0.5, 42)
	require.NoError(t, a.Initialize(context.Background()))
	require.NoError(t, b.Initialize(context.Background()))

	for i := 0; i < 20; i++ {
		adA, errA := a.RequestAd(context.Background(), ads.Targeting{})
		adB, errB := b.RequestAd(context.Background(), ads.Targeting{})
		require.NoError(t, errA)
		require.NoError(t, errB)
		assert.Equal(t, adA == nil, adB == nil, "same seed must fill identically at call %d", i)
	}
}

func TestMockFaultInjection(t *testing.T) {
	m := NewMock("spotify", 1, 1.0, 1)
	require.NoError(t, m.Initialize(context.Background()))

	boom := &ads.TransportError{Provider: "spotify", Err: errors.New("connection refused")}
	m.FailRequests(boom)
	_, err := m.RequestAd(context.Background(), ads.Targeting{})
	require.ErrorIs(t, err, boom)

	m.FailRequests(nil)
	ad, err := m.RequestAd(context.Background(), ads.Targeting{})
	require.NoError(t, err)
	require.NotNil(t, ad)
	assert.Equal(t, 2, m.Requests())
}
