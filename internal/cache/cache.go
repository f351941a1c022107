// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

// Package cache provides a thread-safe in-memory memo cache with per-entry
// TTLs. It backs the MusicBrainz lookup layer, where positive and negative
// results carry different lifetimes.
package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// entry is one cached item with its expiration instant.
type entry struct {
	data      interface{}
	expiresAt time.Time
}

// Cache is a thread-safe TTL memo cache. Expired entries are reaped lazily
// on Get and periodically by a background sweep.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once

	stats struct {
		mu        sync.Mutex
		hits      int64
		misses    int64
		evictions int64
	}
}

// Stats is a read-only snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int64
}

// sweepInterval is how often the background sweep reaps expired entries.
const sweepInterval = 5 * time.Minute

// New creates a cache whose entries default to the given TTL. A background
// sweep goroutine runs until Stop is called.
func New(ttl time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Get returns the cached value for key, if present and unexpired. Expired
// entries are deleted on access and counted as misses.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.count(&c.stats.misses)
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		if c.evictIfExpired(key) {
			c.count(&c.stats.evictions)
		}
		// A concurrent Set may have refreshed the key between the two lock
		// acquisitions; the value read above is stale either way.
		c.count(&c.stats.misses)
		return nil, false
	}

	c.count(&c.stats.hits)
	return e.data, true
}

// evictIfExpired deletes the entry for key only if it is still expired when
// rechecked under the write lock, so an eviction can never drop an entry a
// concurrent Set just refreshed. Reports whether an entry was removed.
func (c *Cache) evictIfExpired(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().Before(e.expiresAt) {
		return false
	}
	delete(c.entries, key)
	return true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit TTL, overwriting any
// existing entry.
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{data: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes the entry for key. Safe to call for absent keys.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if ok {
		c.count(&c.stats.evictions)
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := int64(len(c.entries))
	c.entries = make(map[string]entry)
	c.mu.Unlock()

	c.stats.mu.Lock()
	c.stats.evictions += n
	c.stats.mu.Unlock()
}

// Stop terminates the background sweep. Idempotent.
func (c *Cache) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	keys := int64(len(c.entries))
	c.mu.RUnlock()

	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	return Stats{
		Hits:      c.stats.hits,
		Misses:    c.stats.misses,
		Evictions: c.stats.evictions,
		Keys:      keys,
	}
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

// sweep removes every expired entry.
func (c *Cache) sweep() {
	now := time.Now()
	c.mu.Lock()
	evicted := int64(0)
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	c.mu.Unlock()

	c.stats.mu.Lock()
	c.stats.evictions += evicted
	c.stats.mu.Unlock()
}

func (c *Cache) count(field *int64) {
	c.stats.mu.Lock()
	*field++
	c.stats.mu.Unlock()
}

// GenerateKey derives a compact cache key from a namespace and parameters.
// Parameters are JSON-serialized then hashed, so structurally equal inputs
// produce identical keys.
func GenerateKey(namespace string, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", namespace, params)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", namespace, sum[:16])
}
