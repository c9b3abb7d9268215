// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package providers holds the concrete ad-supply adapters behind the
// ads.Provider contract: Spotify, Google Ad Manager, SiriusXM Media,
// the Networks aggregate, and the deterministic mock.
package providers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tavari-hq/admix/pkg/ads"
)

// Canonical provider names. These also key the revenue commission and
// fallback-price tables.
const (
	NameSpotify  = "spotify"
	NameGoogle   = "google"
	NameSiriusXM = "siriusxm"
	NameNetworks = "networks"
)

// defaultTimeout bounds every outbound provider call so one slow
// provider cannot stall the scheduling decision.
const defaultTimeout = 5 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// businessCategories maps the POS business type to ad category slugs
// shared across adapters. Unknown types fall back to "retail".
var businessCategories = map[string][]string{
	"restaurant": {"food_drink", "dining"},
	"bar":        {"food_drink", "nightlife"},
	"cafe":       {"food_drink", "coffee"},
	"retail":     {"shopping", "retail"},
	"salon":      {"beauty", "services"},
	"gym":        {"fitness", "health"},
	"grocery":    {"shopping", "food_drink"},
}

func categoriesFor(businessType string) []string {
	if cats, ok := businessCategories[strings.ToLower(businessType)]; ok {
		return cats
	}
	return []string{"retail"}
}

// countryFor reduces a location ("CA-ON", "US-WA", "CA") to its
// country code for geo targeting. Empty input defaults to CA, the
// product's home market.
func countryFor(location string) string {
	if location == "" {
		return "CA"
	}
	if idx := strings.IndexAny(location, "-_"); idx > 0 {
		return strings.ToUpper(location[:idx])
	}
	return strings.ToUpper(location)
}

// faultFromStatus classifies an unexpected HTTP status into the
// provider fault taxonomy.
func faultFromStatus(provider string, status int) error {
	err := fmt.Errorf("unexpected status %d", status)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &ads.AuthError{Provider: provider, Err: err}
	}
	return &ads.TransportError{Provider: provider, Err: err}
}
