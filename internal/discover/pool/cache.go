// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/discover"
	"github.com/tomtom215/marquee/internal/metrics"
)

// Store persists the global pool. UpsertPoolCandidates refreshes popularity,
// votes and FetchedAt of existing rows and never changes their Source or
// CreatedAt.
type Store interface {
	UpsertPoolCandidates(ctx context.Context, mediaType discover.MediaType, candidates []discover.PoolCandidate) error
	GetPoolCandidates(ctx context.Context, mediaType discover.MediaType) ([]discover.PoolCandidate, error)
}

type cacheEntry struct {
	candidates []discover.PoolCandidate
	loadedAt   time.Time
}

// Cache is a read-through cache of the global pool keyed by media type.
// Entries older than maxAge are treated as stale and excluded.
type Cache struct {
	store  Store
	maxAge time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[discover.MediaType]cacheEntry
}

// NewCache creates a pool cache. A zero maxAge disables staleness checks.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewCache(store Store, maxAge time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{
		store:   store,
		maxAge:  maxAge,
		now:     time.Now,
		logger:  logger.With().Str("component", "pool_cache").Logger(),
		entries: make(map[discover.MediaType]cacheEntry),
	}
}

// Upsert writes candidates into the pool with a fresh FetchedAt and drops the
// cached entry so the next read reflects the merged store state.
func (c *Cache) Upsert(ctx context.Context, mediaType discover.MediaType, candidates []discover.RawCandidate) error {
	now := c.now().UTC()
	rows := make([]discover.PoolCandidate, len(candidates))
	for i := range candidates {
		rows[i] = discover.PoolCandidate{
			RawCandidate: candidates[i],
			FetchedAt:    now,
			CreatedAt:    now,
		}
		rows[i].MediaType = mediaType
	}

	if err := c.store.UpsertPoolCandidates(ctx, mediaType, rows); err != nil {
		return fmt.Errorf("upsert pool %s: %w", mediaType, err)
	}

	c.Invalidate(mediaType)
	c.logger.Debug().Str("media_type", mediaType.String()).Int("candidates", len(rows)).Msg("pool upserted")
	return nil
}

// Get returns the fresh pool candidates of a media type, loading them from
// the store on a miss.
func (c *Cache) Get(ctx context.Context, mediaType discover.MediaType) ([]discover.PoolCandidate, error) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[mediaType]
	c.mu.RUnlock()
	if ok && !c.expired(entry.loadedAt, now) {
		return entry.candidates, nil
	}

	rows, err := c.store.GetPoolCandidates(ctx, mediaType)
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", mediaType, err)
	}

	fresh := make([]discover.PoolCandidate, 0, len(rows))
	for i := range rows {
		if !c.expired(rows[i].FetchedAt, now) {
			fresh = append(fresh, rows[i])
		}
	}

	c.mu.Lock()
	c.entries[mediaType] = cacheEntry{candidates: fresh, loadedAt: now}
	c.mu.Unlock()

	metrics.DiscoveryPoolSize.WithLabelValues(mediaType.String()).Set(float64(len(fresh)))
	if stale := len(rows) - len(fresh); stale > 0 {
		c.logger.Debug().Str("media_type", mediaType.String()).Int("stale", stale).Msg("ignoring stale pool entries")
	}
	return fresh, nil
}

// GetRaw returns the fresh pool as raw candidates.
func (c *Cache) GetRaw(ctx context.Context, mediaType discover.MediaType) ([]discover.RawCandidate, error) {
	rows, err := c.Get(ctx, mediaType)
	if err != nil {
		return nil, err
	}
	out := make([]discover.RawCandidate, len(rows))
	for i := range rows {
		out[i] = ToRaw(&rows[i])
	}
	return out, nil
}

// Invalidate drops the cached entry of a media type.
func (c *Cache) Invalidate(mediaType discover.MediaType) {
	c.mu.Lock()
	delete(c.entries, mediaType)
	c.mu.Unlock()
}

func (c *Cache) expired(t, now time.Time) bool {
	return c.maxAge > 0 && now.Sub(t) > c.maxAge
}

// ToRaw converts a pool row back into a raw candidate.
func ToRaw(p *discover.PoolCandidate) discover.RawCandidate {
	return p.RawCandidate
}
