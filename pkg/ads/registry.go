// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ads

import (
	"context"
	"errors"
	"sync"

	"github.com/tavari-hq/admix/pkg/storage"
)

var ErrUnknownBusiness = errors.New("no manager for business")

// ProviderFactory builds a fresh provider set for one business.
// Adapters hold per-business tokens and state, so they are never
// shared across managers.
type ProviderFactory func(businessID string) []Provider

// Registry owns one Manager per business with an explicit
// Initialize/Destroy lifecycle, replacing any notion of a process-wide
// provider singleton.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*Manager

	factory ProviderFactory
	store   *storage.Storage
	revenue RevenueService
	opts    []Option
}

// NewRegistry creates a registry. The options are applied to every
// manager it builds.
func NewRegistry(factory ProviderFactory, store *storage.Storage, rev RevenueService, opts ...Option) *Registry {
	return &Registry{
		managers: make(map[string]*Manager),
		factory:  factory,
		store:    store,
		revenue:  rev,
		opts:     opts,
	}
}

// Initialize returns the business's manager, creating and initializing
// it on first use.
func (r *Registry) Initialize(ctx context.Context, businessID string) (*Manager, error) {
	r.mu.RLock()
	m, ok := r.managers[businessID]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.managers[businessID]; ok {
		return m, nil
	}

	m, err := NewManager(businessID, r.factory(businessID), r.store, r.revenue, r.opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}
	r.managers[businessID] = m
	return m, nil
}

// Get returns an already-initialized manager.
func (r *Registry) Get(businessID string) (*Manager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[businessID]
	if !ok {
		return nil, ErrUnknownBusiness
	}
	return m, nil
}

// Destroy tears down one business's manager.
func (r *Registry) Destroy(businessID string) {
	r.mu.Lock()
	m, ok := r.managers[businessID]
	delete(r.managers, businessID)
	r.mu.Unlock()
	if ok {
		m.Destroy()
	}
}

// DestroyAll tears down every manager, for daemon shutdown.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	managers := r.managers
	r.managers = make(map[string]*Manager)
	r.mu.Unlock()
	for _, m := range managers {
		m.Destroy()
	}
}
