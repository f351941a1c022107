// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

// Package ratelimit provides per-key token buckets for outbound calls.
// One bucket exists per backend key (provider id or external-service name);
// unrelated keys never contend on the same lock beyond the registry map.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/crescendo-app/crescendo/internal/metrics"
)

// ErrLimited is returned when a token could not be acquired within the
// bounded wait.
var ErrLimited = errors.New("rate limit exceeded")

// DefaultMaxWait bounds how long Acquire blocks for a token.
const DefaultMaxWait = 10 * time.Second

// Options configures one bucket.
type Options struct {
	// Rate is the refill rate in tokens per second.
	Rate float64

	// Burst is the bucket capacity. At most Burst token grants can be
	// outstanding at any instant.
	Burst int

	// MaxWait bounds how long an acquirer blocks. Zero means DefaultMaxWait.
	MaxWait time.Duration
}

// bucket wraps a limiter with its wait bound and last access time.
type bucket struct {
	limiter    *rate.Limiter
	maxWait    time.Duration
	lastAccess time.Time
}

// Registry holds one token bucket per backend key.
type Registry struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	defaults Options
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a registry. Keys acquired without prior Configure get
// the supplied defaults.
func NewRegistry(defaults Options) *Registry {
	if defaults.Rate <= 0 {
		defaults.Rate = 1
	}
	if defaults.Burst < 1 {
		defaults.Burst = 1
	}
	if defaults.MaxWait <= 0 {
		defaults.MaxWait = DefaultMaxWait
	}
	return &Registry{
		buckets:  make(map[string]*bucket),
		defaults: defaults,
		stop:     make(chan struct{}),
	}
}

// Configure sets the bucket parameters for a key, replacing any existing
// bucket. Call once per backend at startup.
func (r *Registry) Configure(key string, opts Options) {
	if opts.Rate <= 0 {
		opts.Rate = r.defaults.Rate
	}
	if opts.Burst < 1 {
		opts.Burst = r.defaults.Burst
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = r.defaults.MaxWait
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets[key] = &bucket{
		limiter:    rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		maxWait:    opts.MaxWait,
		lastAccess: time.Now(),
	}
}

// Acquire blocks until one token is available for the key, the bounded wait
// elapses, or ctx is cancelled. Returns ErrLimited when the wait bound is
// exceeded; ctx.Err() when cancelled first. Waiters are served without a
// strict ordering guarantee.
func (r *Registry) Acquire(ctx context.Context, key string) error {
	b := r.get(key)

	waitCtx, cancel := context.WithTimeout(ctx, b.maxWait)
	defer cancel()

	start := time.Now()
	err := b.limiter.Wait(waitCtx)
	metrics.RateLimitWaits.WithLabelValues(key).Observe(time.Since(start).Seconds())

	if err == nil {
		return nil
	}
	// Distinguish caller cancellation from the wait bound.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: key %q waited %s", ErrLimited, key, b.maxWait)
}

// Allow reports whether a token is immediately available, consuming one if so.
func (r *Registry) Allow(key string) bool {
	return r.get(key).limiter.Allow()
}

// get returns the bucket for key, creating one with defaults if absent.
func (r *Registry) get(key string) *bucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Limit(r.defaults.Rate), r.defaults.Burst),
			maxWait: r.defaults.MaxWait,
		}
		r.buckets[key] = b
	}
	b.lastAccess = time.Now()
	return b
}

// StartCleanup launches a background loop that drops buckets idle longer than
// maxIdle. Configured buckets recreated on next use keep default options, so
// only call this when dynamic keys are expected.
func (r *Registry) StartCleanup(interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.cleanup(maxIdle)
			case <-r.stop:
				return
			}
		}
	}()
}

// cleanup removes buckets not accessed within maxIdle.
func (r *Registry) cleanup(maxIdle time.Duration) {
	threshold := time.Now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, b := range r.buckets {
		if b.lastAccess.Before(threshold) {
			delete(r.buckets, key)
		}
	}
}

// Stop terminates the cleanup loop. Safe to call multiple times.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}
