// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package providers

import (
	"github.com/tavari-hq/admix/pkg/ads"
	"github.com/tavari-hq/admix/pkg/config"
	"github.com/tavari-hq/admix/pkg/log"
)

// FromConfig builds the provider factory the manager registry uses.
// Adapters with no credentials configured are left out of the
// waterfall. When mock providers are selected the whole waterfall is
// replaced with deterministic doubles, one per configured slot.
func FromConfig(cfg config.Config, logger log.Logger) ads.ProviderFactory {
	if cfg.UseMockProviders {
		return mockFactory(cfg)
	}
	return func(businessID string) []ads.Provider {
		providers := make([]ads.Provider, 0, 4)
		if cfg.Spotify.ClientID != "" {
			providers = append(providers, NewSpotify(cfg.Spotify, logger))
		}
		if cfg.GoogleAds.ClientID != "" {
			providers = append(providers, NewGoogleAdManager(cfg.GoogleAds, logger))
		}
		if cfg.SiriusXM.ClientSecret != "" {
			providers = append(providers, NewSiriusXM(cfg.SiriusXM, logger))
		}
		if len(cfg.Networks.SubNetworks) > 0 {
			providers = append(providers, NewNetworks(cfg.Networks, logger))
		}
		return providers
	}
}

func mockFactory(cfg config.Config) ads.ProviderFactory {
	return func(businessID string) []ads.Provider {
		// Seed per business so two managers never share an RNG but a
		// given business replays identically.
		seed := cfg.MockSeed
		for _, c := range businessID {
			seed = seed*31 + int64(c)
		}
		return []ads.Provider{
			NewMock(NameSpotify, cfg.Spotify.Priority, cfg.MockFillRate, seed),
			NewMock(NameGoogle, cfg.GoogleAds.Priority, cfg.MockFillRate, seed+1),
			NewMock(NameSiriusXM, cfg.SiriusXM.Priority, cfg.MockFillRate, seed+2),
			NewMock(NameNetworks, cfg.Networks.Priority, cfg.MockFillRate, seed+3),
		}
	}
}
