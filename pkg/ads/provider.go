// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ads

import (
	"context"
	"fmt"
	"sort"
)

// Provider is the capability contract every ad-supply integration
// implements. RequestAd returns (nil, nil) on a legitimate no-fill;
// transport and auth faults are typed errors so the waterfall can tell
// them apart.
type Provider interface {
	// Initialize performs auth/token bootstrap. An aggregate provider
	// bootstraps each sub-network independently and fails only when
	// zero usable endpoints remain.
	Initialize(ctx context.Context) error

	// RequestAd maps the generic targeting to the provider's request
	// shape, issues the call and normalizes the reply.
	RequestAd(ctx context.Context, t Targeting) (*AdDescriptor, error)

	// ReportPlay is best-effort telemetry. Failures are logged by the
	// adapter, never surfaced.
	ReportPlay(ctx context.Context, adID string, data PlayData)

	// HealthCheck reports current reachability, with per-sub-endpoint
	// detail for aggregate providers.
	HealthCheck(ctx context.Context) HealthReport

	// Info returns the static descriptor for diagnostics.
	Info() ProviderInfo
}

// ProviderInfo describes an adapter for diagnostics and ordering.
type ProviderInfo struct {
	Name              string `json:"name"`
	Priority          int    `json:"priority"`
	Active            bool   `json:"active"`
	RequestsPerMinute int    `json:"requests_per_minute,omitempty"`
}

// HealthStatus is the coarse health of a provider or sub-endpoint.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthError    HealthStatus = "error"
)

// HealthReport is the result of a provider health check.
type HealthReport struct {
	Status HealthStatus            `json:"status"`
	Detail map[string]HealthStatus `json:"detail,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

// TransportError is a network/HTTP/timeout fault from a provider call.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport fault: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError is a token refresh or credential fault.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth fault: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// sortByPriority orders providers ascending by priority; lower numbers
// are tried first.
func sortByPriority(providers []Provider) []Provider {
	sorted := make([]Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Info().Priority < sorted[j].Info().Priority
	})
	return sorted
}
