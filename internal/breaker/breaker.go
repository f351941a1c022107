// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

// Package breaker tracks per-provider health with the circuit breaker
// pattern. After a configured number of consecutive failures a provider's
// circuit opens and calls fail fast for a cool-down interval; a single trial
// call is then allowed, and its outcome closes or reopens the circuit.
//
// DETERMINISM NOTE: sony/gobreaker uses real time for its cool-down
// calculations. The timing governs recovery, not data integrity; tests use
// short timeouts rather than mocking the breaker.
package breaker

import (
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/crescendo-app/crescendo/internal/logging"
	"github.com/crescendo-app/crescendo/internal/metrics"
)

// ErrOpen is returned when a call is rejected because the circuit is open
// (or the half-open trial slot is taken).
var ErrOpen = errors.New("circuit open")

// Settings configures breakers created by a Registry.
type Settings struct {
	// Threshold is the consecutive-failure count that opens the circuit.
	Threshold uint32

	// Cooldown is how long the circuit stays open before a trial call.
	Cooldown time.Duration
}

// Registry holds one circuit breaker per provider id. Shared across all
// concurrent invocations; breakers for unrelated providers never interact.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
	settings Settings
}

// NewRegistry creates a breaker registry with the given settings.
func NewRegistry(settings Settings) *Registry {
	if settings.Threshold == 0 {
		settings.Threshold = 5
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 2 * time.Minute
	}
	return &Registry{
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		settings: settings,
	}
}

// Execute runs fn under the provider's circuit breaker. Returns ErrOpen when
// the circuit rejects the call without invoking fn.
func (r *Registry) Execute(providerID string, fn func() (any, error)) (any, error) {
	result, err := r.get(providerID).Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrOpen
		}
		return nil, err
	}
	return result, nil
}

// State returns the current circuit state name for diagnostics.
func (r *Registry) State(providerID string) string {
	return r.get(providerID).State().String()
}

// get returns the breaker for a provider, creating it on first use.
func (r *Registry) get(providerID string) *gobreaker.CircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[providerID]; ok {
		return cb
	}

	threshold := r.settings.Threshold
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        providerID,
		MaxRequests: 1, // single trial call in half-open state
		Timeout:     r.settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state transition")

			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.BreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	metrics.BreakerState.WithLabelValues(providerID).Set(stateToFloat(gobreaker.StateClosed))
	r.breakers[providerID] = cb
	return cb
}

// stateToFloat converts breaker state to a numeric gauge value.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
