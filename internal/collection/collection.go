// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package collection is the client-side cache of a paginated remote list
// plus the one entity currently being viewed (the detail cache).
//
// A Store never talks to the service itself. Each operation receives the
// remote call as a function and applies its result with the store's merge
// policy: page 1 (or no page) replaces the list, later pages append, and
// mutations are written through only after the service confirms them.
//
// The lock is held only while a settled result is applied, never across a
// remote call. Concurrent fetches therefore settle in arrival order and the
// last one to settle wins, unless Supersede is set.
package collection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrSuperseded is returned by Fetch and Search when the response was
// dropped: the store was Reset while the call was in flight, or, in
// Supersede mode, a newer fetch settled first.
var ErrSuperseded = errors.New("collection: response superseded by a newer fetch")

// PageRequest selects a page. Zero fields mean "use the store's current value".
type PageRequest struct {
	Page     int
	PageSize int
}

// Page is one server response for a paginated list.
type Page[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
}

// State is a snapshot of the list cache.
type State[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
	Loading  bool
}

// HasMore reports whether the server holds entries not yet loaded.
func (s State[T]) HasMore() bool { return len(s.Items) < s.Total }

// FetchFunc performs the remote list call for the effective request.
type FetchFunc[T any] func(ctx context.Context, req PageRequest) (Page[T], error)

// MutateFunc performs a remote call that returns the authoritative entity.
type MutateFunc[T any] func(ctx context.Context) (T, error)

// CallFunc performs a remote call with no entity in the response.
type CallFunc func(ctx context.Context) error

// Options configures a Store.
type Options[T any] struct {
	Name     string        // used in log lines
	ID       func(T) int64 // identity of an entity
	PageSize int           // initial page size
	Logger   *slog.Logger
	// Supersede drops a fetch response when a fetch started later has
	// already been applied.
	Supersede bool
	// Clone deep-copies an entity handed out by State, Items and Current.
	// Without it those return shallow copies that share slices and pointers
	// with the cache.
	Clone func(T) T
}

// Store caches one paginated collection and one detail entity.
type Store[T any] struct {
	name      string
	id        func(T) int64
	logger    *slog.Logger
	supersede bool
	clone     func(T) T

	mu       sync.RWMutex
	items    []T
	total    int
	page     int
	pageSize int
	loading  bool
	current  *T

	started uint64 // generation of the last fetch started
	applied uint64 // generation of the newest fetch applied
	epoch   uint64 // bumped by Reset
}

// New creates an empty store on page 1.
func New[T any](opts Options[T]) *Store[T] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store[T]{
		name:      opts.Name,
		id:        opts.ID,
		logger:    logger,
		supersede: opts.Supersede,
		clone:     opts.Clone,
		page:      1,
		pageSize:  opts.PageSize,
	}
}

// Fetch loads a page. A request for page 0 or 1 replaces the cached items,
// any later page is appended without de-duplication. Total, Page and
// PageSize always take the server's values. On failure nothing but Loading
// changes.
func (s *Store[T]) Fetch(ctx context.Context, req PageRequest, fn FetchFunc[T]) (Page[T], error) {
	return s.fetch(ctx, req, fn, false, "fetch")
}

// Search loads a page and always replaces the cached items. Unlike Fetch,
// zero fields are passed through so the service applies its own defaults.
func (s *Store[T]) Search(ctx context.Context, req PageRequest, fn FetchFunc[T]) (Page[T], error) {
	return s.fetch(ctx, req, fn, true, "search")
}

func (s *Store[T]) fetch(ctx context.Context, req PageRequest, fn FetchFunc[T], search bool, op string) (Page[T], error) {
	replace := search || req.Page <= 1

	s.mu.Lock()
	s.loading = true
	s.started++
	gen := s.started
	epoch := s.epoch
	eff := req
	if !search {
		if eff.Page == 0 {
			eff.Page = s.page
		}
		if eff.PageSize == 0 {
			eff.PageSize = s.pageSize
		}
	}
	s.mu.Unlock()

	resp, err := fn(ctx, eff)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false

	if err != nil {
		s.logger.Warn("collection "+op+" failed", "store", s.name, "page", eff.Page, "error", err)
		return Page[T]{}, err
	}
	if epoch != s.epoch {
		s.logger.Debug("collection response dropped after reset", "store", s.name, "generation", gen)
		return resp, ErrSuperseded
	}
	if s.supersede && gen < s.applied {
		s.logger.Debug("collection response superseded", "store", s.name, "generation", gen)
		return resp, ErrSuperseded
	}
	s.applied = gen

	if replace {
		s.items = append([]T(nil), resp.Items...)
	} else {
		s.items = append(s.items, resp.Items...)
	}
	s.total = resp.Total
	s.page = resp.Page
	s.pageSize = resp.PageSize
	return resp, nil
}

// Create runs fn and prepends the entity the service returned. Total and
// Page are left alone.
func (s *Store[T]) Create(ctx context.Context, fn MutateFunc[T]) (T, error) {
	item, err := fn(ctx)
	if err != nil {
		s.logger.Warn("collection create failed", "store", s.name, "error", err)
		return item, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]T{item}, s.items...)
	return item, nil
}

// Update runs fn and replaces the cached entries and the detail entity that
// share the returned entity's id.
func (s *Store[T]) Update(ctx context.Context, fn MutateFunc[T]) (T, error) {
	item, err := fn(ctx)
	if err != nil {
		s.logger.Warn("collection update failed", "store", s.name, "error", err)
		return item, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id(item)
	for i := range s.items {
		if s.id(s.items[i]) == id {
			s.items[i] = item
		}
	}
	if s.current != nil && s.id(*s.current) == id {
		c := item
		s.current = &c
	}
	return item, nil
}

// Delete runs fn and then drops every cached entry with id. The detail
// entity is cleared if it has that id.
func (s *Store[T]) Delete(ctx context.Context, id int64, fn CallFunc) error {
	if err := fn(ctx); err != nil {
		s.logger.Warn("collection delete failed", "store", s.name, "id", id, "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0:0]
	for _, it := range s.items {
		if s.id(it) != id {
			kept = append(kept, it)
		}
	}
	s.items = kept
	if s.current != nil && s.id(*s.current) == id {
		s.current = nil
	}
	return nil
}

// Apply runs fn and, once it succeeds, applies mutate to the cached entries
// and the detail entity with id.
func (s *Store[T]) Apply(ctx context.Context, id int64, fn CallFunc, mutate func(*T)) error {
	if err := fn(ctx); err != nil {
		s.logger.Warn("collection apply failed", "store", s.name, "id", id, "error", err)
		return err
	}
	s.Patch(id, mutate)
	return nil
}

// Patch applies mutate to the cached entries and the detail entity with id
// without a remote call. It reports whether anything matched. Callers use it
// for changes the service has already confirmed.
func (s *Store[T]) Patch(id int64, mutate func(*T)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := false
	for i := range s.items {
		if s.id(s.items[i]) == id {
			mutate(&s.items[i])
			matched = true
		}
	}
	if s.current != nil && s.id(*s.current) == id {
		c := *s.current
		mutate(&c)
		s.current = &c
		matched = true
	}
	return matched
}

// Load runs fn and holds its result as the detail entity. List fetches never
// touch the detail entity.
func (s *Store[T]) Load(ctx context.Context, fn MutateFunc[T]) (T, error) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	item, err := fn(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.logger.Warn("collection load failed", "store", s.name, "error", err)
		return item, err
	}
	c := item
	s.current = &c
	return item, nil
}

// Current returns the detail entity.
func (s *Store[T]) Current() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		var zero T
		return zero, false
	}
	if s.clone != nil {
		return s.clone(*s.current), true
	}
	return *s.current, true
}

// ClearCurrent empties the detail cache.
func (s *Store[T]) ClearCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// Reset drops items, the detail entity and the total, and returns to page 1.
// The page size is kept. Fetches still in flight settle with ErrSuperseded.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.items = nil
	s.current = nil
	s.total = 0
	s.page = 1
}

// State returns a copy of the list cache. Entities are deep-copied only
// when Options.Clone is set.
func (s *Store[T]) State() State[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State[T]{
		Items:    s.copyItems(),
		Total:    s.total,
		Page:     s.page,
		PageSize: s.pageSize,
		Loading:  s.loading,
	}
}

// Items returns a copy of the cached entries, deep only with Options.Clone.
func (s *Store[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyItems()
}

func (s *Store[T]) copyItems() []T {
	out := append([]T(nil), s.items...)
	if s.clone != nil {
		for i := range out {
			out[i] = s.clone(out[i])
		}
	}
	return out
}

// HasMore reports whether the server holds entries not yet loaded.
func (s *Store[T]) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items) < s.total
}
