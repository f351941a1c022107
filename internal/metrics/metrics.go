// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

// Package metrics defines the Prometheus collectors for the recommendation
// pipeline. All collectors are registered on the default registry and exposed
// via the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderRequests counts provider gateway calls by backend and outcome
	// (success, unauthorized, rate_limited, unreachable, timeout, malformed,
	// rejected).
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crescendo_provider_requests_total",
		Help: "Provider gateway calls by backend and outcome",
	}, []string{"provider", "outcome"})

	// ProviderLatency observes end-to-end provider call latency.
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crescendo_provider_latency_seconds",
		Help:    "Provider call latency",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"provider"})

	// ProviderTokens counts estimated tokens consumed per backend and
	// direction (prompt, completion).
	ProviderTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crescendo_provider_tokens_total",
		Help: "Estimated token usage by backend and direction",
	}, []string{"provider", "direction"})

	// BreakerState exposes circuit breaker state per provider
	// (0=closed, 1=half-open, 2=open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crescendo_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"provider"})

	// BreakerTransitions counts circuit breaker state transitions.
	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crescendo_breaker_transitions_total",
		Help: "Circuit breaker state transitions",
	}, []string{"provider", "from", "to"})

	// ValidationVerdicts counts candidate screening outcomes.
	ValidationVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crescendo_validation_verdicts_total",
		Help: "Candidate screening outcomes",
	}, []string{"outcome"})

	// CacheRequests counts recommendation cache lookups by result (hit, miss).
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crescendo_cache_requests_total",
		Help: "Recommendation cache lookups by result",
	}, []string{"result"})

	// LookupRequests counts reference lookups by result
	// (match, no_match, error, cached).
	LookupRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crescendo_lookup_requests_total",
		Help: "Reference lookup requests by result",
	}, []string{"result"})

	// RateLimitWaits observes time spent waiting for a rate-limit token.
	RateLimitWaits = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crescendo_ratelimit_wait_seconds",
		Help:    "Time spent waiting for rate limiter tokens",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"key"})

	// InvocationRounds observes strategy rounds executed per invocation.
	InvocationRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crescendo_invocation_rounds",
		Help:    "Strategy rounds per invocation",
		Buckets: []float64{1, 2, 3, 4, 5, 8, 10, 15, 20},
	})

	// Invocations counts pipeline invocations by result
	// (satisfied, exhausted, cancelled, error, cache_hit).
	Invocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crescendo_invocations_total",
		Help: "Pipeline invocations by result",
	}, []string{"result"})
)
