// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package detailcache keeps enrichment details in BadgerDB with a TTL so
// repeated runs do not refetch the same titles from the provider.
package detailcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/discover"
	"github.com/tomtom215/marquee/internal/discover/enrich"
	"github.com/tomtom215/marquee/internal/metrics"
)

// keyPrefix namespaces detail entries in the Badger keyspace.
const keyPrefix = "details:"

// DefaultTTL is used when Config.TTL is zero.
const DefaultTTL = 7 * 24 * time.Hour

// Config configures the cache.
type Config struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	TTL      time.Duration
}

// Cache wraps a DetailFetcher with a persistent read-through cache.
type Cache struct {
	db     *badger.DB
	next   enrich.DetailFetcher
	ttl    time.Duration
	logger zerolog.Logger
}

var _ enrich.DetailFetcher = (*Cache)(nil)

// Open opens the badger database and wraps next.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func Open(cfg Config, next enrich.DetailFetcher, logger zerolog.Logger) (*Cache, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open detail cache: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		db:     db,
		next:   next,
		ttl:    ttl,
		logger: logger.With().Str("component", "detailcache").Logger(),
	}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(mediaType discover.MediaType, externalID int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%d", keyPrefix, mediaType, externalID))
}

// Details returns cached details or fetches and stores them. Cache read or
// write failures fall through to the provider and are only logged.
func (c *Cache) Details(ctx context.Context, mediaType discover.MediaType, externalID int64) (*discover.Details, error) {
	key := cacheKey(mediaType, externalID)

	cached, err := c.get(key)
	switch {
	case err == nil:
		metrics.DetailCacheHits.Inc()
		return cached, nil
	case !errors.Is(err, badger.ErrKeyNotFound):
		c.logger.Warn().Err(err).Int64("external_id", externalID).Msg("detail cache read failed")
	}
	metrics.DetailCacheMisses.Inc()

	d, err := c.next.Details(ctx, mediaType, externalID)
	if err != nil {
		return nil, err
	}

	if err := c.put(key, d); err != nil {
		c.logger.Warn().Err(err).Int64("external_id", externalID).Msg("detail cache write failed")
	}
	return d, nil
}

func (c *Cache) get(key []byte) (*discover.Details, error) {
	var d discover.Details
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &d)
		})
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Cache) put(key []byte, d *discover.Details) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, data).WithTTL(c.ttl))
	})
}

// Invalidate drops the cached entry of one title.
func (c *Cache) Invalidate(mediaType discover.MediaType, externalID int64) error {
	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(cacheKey(mediaType, externalID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
