// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalog enumerates the clips available for labeling. The set is
// append-only while the process runs: a rescan merges newly discovered ids
// after the known ones and never drops an id whose file disappeared.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/vlabel/internal/log"
	"github.com/ManuGH/vlabel/internal/metrics"
	"golang.org/x/time/rate"
)

// Catalog is the ordered, growable set of video ids.
type Catalog struct {
	src   Source
	index *Index

	mu  sync.RWMutex
	ids []string
	pos map[string]int

	refreshMu sync.Mutex
	lazy      *rate.Sometimes
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithIndex persists discovery order in idx.
func WithIndex(idx *Index) Option {
	return func(c *Catalog) { c.index = idx }
}

// WithLazyRefresh lets MaybeRefresh rescan at most once per interval.
// Zero disables lazy rescans.
func WithLazyRefresh(interval time.Duration) Option {
	return func(c *Catalog) {
		if interval > 0 {
			c.lazy = &rate.Sometimes{Interval: interval}
		}
	}
}

// New loads the persisted order (if any) and runs an initial scan.
func New(ctx context.Context, src Source, opts ...Option) (*Catalog, error) {
	c := &Catalog{src: src, pos: make(map[string]int)}
	for _, opt := range opts {
		opt(c)
	}

	if c.index != nil {
		known, err := c.index.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load catalog index: %w", err)
		}
		c.merge(known)
	}
	if _, err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	// The initial scan counts as the first lazy run.
	if c.lazy != nil {
		c.lazy.Do(func() {})
	}
	return c, nil
}

// merge appends unknown ids and returns the ones added.
func (c *Catalog) merge(ids []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var added []string
	for _, id := range ids {
		if _, ok := c.pos[id]; ok {
			continue
		}
		c.pos[id] = len(c.ids)
		c.ids = append(c.ids, id)
		added = append(added, id)
	}
	return added
}

// Refresh rescans the source and merges new ids. It returns how many were
// added.
func (c *Catalog) Refresh(ctx context.Context) (int, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	logger := log.WithComponent("catalog")
	scanned, err := c.src.Scan(ctx)
	metrics.RecordCatalogRefresh(err)
	if err != nil {
		return 0, fmt.Errorf("refresh catalog: %w", err)
	}

	added := c.merge(scanned)
	if len(added) > 0 && c.index != nil {
		if err := c.index.Add(ctx, c.src.Name(), added); err != nil {
			// In-memory order is still correct for this run.
			logger.Warn().Err(err).Msg("persist catalog index")
		}
	}

	n := c.Len()
	metrics.SetCatalogSize(n)
	if len(added) > 0 {
		logger.Info().
			Str(log.FieldEvent, "catalog.refreshed").
			Str("source", c.src.Name()).
			Int("added", len(added)).
			Int("total", n).
			Msg("catalog grew")
	}
	return len(added), nil
}

// MaybeRefresh rescans if the lazy interval has elapsed since the last run.
// Errors are logged, not returned: a failed rescan leaves the known set intact.
func (c *Catalog) MaybeRefresh(ctx context.Context) {
	if c.lazy == nil {
		return
	}
	c.lazy.Do(func() {
		if _, err := c.Refresh(ctx); err != nil {
			logger := log.WithComponent("catalog")
			logger.Warn().Err(err).Msg("lazy rescan failed")
		}
	})
}

// List returns a copy of the ids in discovery order.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Len is the catalog size.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

// Contains reports whether id has been discovered.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.Position(id)
	return ok
}

// Position returns id's discovery index.
func (c *Catalog) Position(id string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.pos[id]
	return i, ok
}

// URL resolves a playable URL for a known id.
func (c *Catalog) URL(ctx context.Context, id string) (string, error) {
	if !c.Contains(id) {
		return "", fmt.Errorf("%w: %s", ErrUnknownVideo, id)
	}
	return c.src.URL(ctx, id)
}

// Source exposes the backing source, e.g. for serving local files.
func (c *Catalog) Source() Source { return c.src }
