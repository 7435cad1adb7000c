// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package fingerprint provides the stable per-device identifier the content
// service uses to let anonymous commenters delete their own comments.
package fingerprint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"peablog/internal/storage"
)

// Provider hands out the device fingerprint, creating and persisting it on
// first use. It is never cleared, not even on logout.
type Provider struct {
	store storage.Store

	mu     sync.Mutex
	cached string
}

// New creates a provider persisting under storage.KeyFingerprint.
func New(store storage.Store) *Provider {
	return &Provider{store: store}
}

// Get returns the fingerprint, generating one if none is persisted.
func (p *Provider) Get(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached, nil
	}

	v, ok, err := p.store.Get(ctx, storage.KeyFingerprint)
	if err != nil {
		return "", fmt.Errorf("fingerprint read: %w", err)
	}
	if ok && v != "" {
		p.cached = v
		return v, nil
	}

	v = uuid.NewString()
	if err := p.store.Set(ctx, storage.KeyFingerprint, v); err != nil {
		return "", fmt.Errorf("fingerprint persist: %w", err)
	}
	slog.Debug("fingerprint generated")
	p.cached = v
	return v, nil
}

// Stored returns the persisted fingerprint without generating one.
func (p *Provider) Stored(ctx context.Context) (string, bool, error) {
	p.mu.Lock()
	cached := p.cached
	p.mu.Unlock()
	if cached != "" {
		return cached, true, nil
	}

	v, ok, err := p.store.Get(ctx, storage.KeyFingerprint)
	if err != nil {
		return "", false, fmt.Errorf("fingerprint read: %w", err)
	}
	return v, ok && v != "", nil
}
