// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

package store

import (
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/crescendo-app/crescendo/internal/logging"
	"github.com/crescendo-app/crescendo/internal/metrics"
	"github.com/crescendo-app/crescendo/internal/models"
)

// RecommendationCache memoizes accepted result lists by request fingerprint.
// Expiry is delegated to Badger's native TTL, so an entry past its TTL is
// simply absent.
type RecommendationCache struct {
	store *Store
	ttl   time.Duration
}

// NewRecommendationCache creates a cache with the given entry TTL.
func NewRecommendationCache(store *Store, ttl time.Duration) *RecommendationCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RecommendationCache{store: store, ttl: ttl}
}

// Get returns the cached items for a fingerprint. A corrupt entry is deleted
// and reported as a miss.
func (c *RecommendationCache) Get(fingerprint string) ([]models.Candidate, bool) {
	key := []byte(cachePrefix + fingerprint)

	var raw []byte
	err := c.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}

	var items []models.Candidate
	if err := json.Unmarshal(raw, &items); err != nil {
		logging.Warn().Err(err).Str("fingerprint", fingerprint).Msg("corrupt cache entry dropped")
		c.delete(key)
		metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}

	metrics.CacheRequests.WithLabelValues("hit").Inc()
	return items, true
}

// Put stores the items for a fingerprint, replacing any live entry.
func (c *RecommendationCache) Put(fingerprint string, items []models.Candidate) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	key := []byte(cachePrefix + fingerprint)
	return c.store.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, raw).WithTTL(c.ttl))
	})
}

// Purge removes every cache entry and returns how many were dropped.
func (c *RecommendationCache) Purge() (int, error) {
	prefix := []byte(cachePrefix)
	dropped := 0

	err := c.store.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
			dropped++
		}
		return nil
	})
	if err != nil {
		return dropped, fmt.Errorf("purge cache: %w", err)
	}
	return dropped, nil
}

func (c *RecommendationCache) delete(key []byte) {
	_ = c.store.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}
