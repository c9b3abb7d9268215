// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavari-hq/admix/pkg/ads"
	"github.com/tavari-hq/admix/pkg/config"
)

const sampleVAST = `<?xml version="1.0" encoding="UTF-8"?>
<VAST version="4.0">
  <Ad id="net-77">
    <InLine>
      <AdSystem>AudioGo</AdSystem>
      <AdTitle>Evening Rush</AdTitle>
      <Creatives>
        <Creative>
          <Linear>
            <Duration>00:00:25</Duration>
            <MediaFiles>
              <MediaFile type="audio/mpeg">https://cdn.example/net-77.mp3</MediaFile>
            </MediaFiles>
          </Linear>
        </Creative>
      </Creatives>
    </InLine>
  </Ad>
</VAST>`

func jsonSubServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/ads/request", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNetworksWaterfallSkipsFaultedSub(t *testing.T) {
	failing := jsonSubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	filling := jsonSubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ad":{"id":"tw-5","name":"Lunch Deal","advertiser":"Cascadia",
			"audio_url":"https://cdn.example/tw-5.mp3","duration":15,"price":0.007,"currency":"USD"}}`))
	})

	n := NewNetworks(config.NetworksConfig{
		Priority: 4,
		SubNetworks: []config.SubNetworkConfig{
			{Name: "audiogo", Endpoint: failing.URL, APIKey: "k1", Priority: 1},
			{Name: "triton", Endpoint: filling.URL, APIKey: "k2", Priority: 2},
		},
	}, nil)
	require.NoError(t, n.Initialize(context.Background()))

	ad, err := n.RequestAd(context.Background(), ads.Targeting{BusinessType: "retail"})
	require.NoError(t, err, "a later fill absorbs an earlier sub-network fault")
	require.NotNil(t, ad)
	assert.Equal(t, "tw-5", ad.ID)
	assert.Equal(t, NameNetworks, ad.ProviderName)
	assert.Equal(t, "triton", ad.Metadata["sub_network"])
}

func TestNetworksAllSubsFault(t *testing.T) {
	failing := jsonSubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	n := NewNetworks(config.NetworksConfig{
		SubNetworks: []config.SubNetworkConfig{
			{Name: "audiogo", Endpoint: failing.URL, Priority: 1},
			{Name: "adswizz", Endpoint: failing.URL, Priority: 2},
		},
	}, nil)
	require.NoError(t, n.Initialize(context.Background()))

	_, err := n.RequestAd(context.Background(), ads.Targeting{})
	var transportErr *ads.TransportError
	require.ErrorAs(t, err, &transportErr,
		"when every sub-network faults the adapter reports a fault")
}

func TestNetworksAllSubsNoFill(t *testing.T) {
	empty := jsonSubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	n := NewNetworks(config.NetworksConfig{
		SubNetworks: []config.SubNetworkConfig{
			{Name: "audiogo", Endpoint: empty.URL, Priority: 1},
		},
	}, nil)
	require.NoError(t, n.Initialize(context.Background()))

	ad, err := n.RequestAd(context.Background(), ads.Targeting{})
	require.NoError(t, err)
	assert.Nil(t, ad)
}

func TestNetworksOpenRTBWithVASTMarkup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			return
		}
		var bidReq openrtb2.BidRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&bidReq))
		require.Len(t, bidReq.Imp, 1)
		require.NotNil(t, bidReq.Imp[0].Audio, "bid request must carry an audio impression")

		resp := openrtb2.BidResponse{
			ID:  bidReq.ID,
			Cur: "USD",
			SeatBid: []openrtb2.SeatBid{{
				Bid: []openrtb2.Bid{{
					ID:    "bid-1",
					ImpID: bidReq.Imp[0].ID,
					Price: 0.009,
					AdM:   sampleVAST,
				}},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	n := NewNetworks(config.NetworksConfig{
		SubNetworks: []config.SubNetworkConfig{
			{Name: "adswizz", Endpoint: srv.URL, APIKey: "k", Priority: 1, OpenRTB: true},
		},
	}, nil)
	require.NoError(t, n.Initialize(context.Background()))

	ad, err := n.RequestAd(context.Background(), ads.Targeting{BusinessType: "cafe", Location: "CA-ON"})
	require.NoError(t, err)
	require.NotNil(t, ad)
	assert.Equal(t, "net-77", ad.ID, "creative ID from the VAST document wins")
	assert.Equal(t, "Evening Rush", ad.Title)
	assert.Equal(t, "https://cdn.example/net-77.mp3", ad.AudioURL)
	assert.Equal(t, 25, ad.DurationSeconds)
	assert.Equal(t, "0.009", ad.CPM.String())
	assert.Equal(t, "adswizz", ad.Metadata["sub_network"])
}

func TestNetworksInitializeMarksUnreachableInactive(t *testing.T) {
	up := jsonSubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	n := NewNetworks(config.NetworksConfig{
		SubNetworks: []config.SubNetworkConfig{
			{Name: "audiogo", Endpoint: "http://127.0.0.1:1", Priority: 1},
			{Name: "triton", Endpoint: up.URL, Priority: 2},
		},
	}, nil)
	require.NoError(t, n.Initialize(context.Background()),
		"one reachable sub-network keeps the adapter usable")

	report := n.HealthCheck(context.Background())
	assert.Equal(t, ads.HealthDegraded, report.Status)
	assert.Equal(t, ads.HealthError, report.Detail["audiogo"])
	assert.Equal(t, ads.HealthHealthy, report.Detail["triton"])
}

func TestNetworksInitializeAllUnreachable(t *testing.T) {
	n := NewNetworks(config.NetworksConfig{
		SubNetworks: []config.SubNetworkConfig{
			{Name: "audiogo", Endpoint: "http://127.0.0.1:1", Priority: 1},
		},
	}, nil)
	err := n.Initialize(context.Background())
	var transportErr *ads.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.False(t, n.Info().Active)
}
