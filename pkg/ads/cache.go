// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ads

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheTTL bounds how long a pre-fetched descriptor may be
// served without re-asking the provider.
const DefaultCacheTTL = 5 * time.Minute

// AdCache is a short-lived, provider-scoped store of pre-fetched ad
// descriptors. One descriptor per provider; Take consumes it.
type AdCache struct {
	entries *expirable.LRU[string, *AdDescriptor]
}

// NewAdCache creates a cache holding at most one descriptor per
// provider, expiring after ttl.
func NewAdCache(ttl time.Duration) *AdCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &AdCache{
		entries: expirable.NewLRU[string, *AdDescriptor](16, nil, ttl),
	}
}

// Put stores the provider's latest descriptor.
func (c *AdCache) Put(provider string, ad *AdDescriptor) {
	c.entries.Add(provider, ad)
}

// Take removes and returns the cached descriptor for a provider.
func (c *AdCache) Take(provider string) (*AdDescriptor, bool) {
	ad, ok := c.entries.Get(provider)
	if !ok {
		return nil, false
	}
	c.entries.Remove(provider)
	return ad, true
}

// Clear drops the entry for one provider, or everything when provider
// is empty.
func (c *AdCache) Clear(provider string) {
	if provider == "" {
		c.entries.Purge()
		return
	}
	c.entries.Remove(provider)
}

// Len reports how many providers currently have a cached descriptor.
func (c *AdCache) Len() int {
	return c.entries.Len()
}
