// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

// Package gateway is the single entry point for outbound model calls. Every
// invocation passes through the provider's rate-limit bucket, its circuit
// breaker, and a bounded exponential-backoff retry loop, in that order.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/crescendo-app/crescendo/internal/breaker"
	"github.com/crescendo-app/crescendo/internal/logging"
	"github.com/crescendo-app/crescendo/internal/metrics"
	"github.com/crescendo-app/crescendo/internal/provider"
	"github.com/crescendo-app/crescendo/internal/ratelimit"
)

// Config bounds the retry loop.
type Config struct {
	// RetryAttempts is the maximum number of retries after the first attempt.
	RetryAttempts uint64

	// RetryInitialInterval is the first backoff delay.
	RetryInitialInterval time.Duration

	// RetryMaxElapsed caps the total time spent retrying one invocation.
	RetryMaxElapsed time.Duration
}

// Gateway composes the provider registry with the resilience layers.
type Gateway struct {
	providers *provider.Registry
	limits    *ratelimit.Registry
	breakers  *breaker.Registry
	cfg       Config
}

// New creates a gateway. Zero config fields get conservative defaults.
func New(providers *provider.Registry, limits *ratelimit.Registry, breakers *breaker.Registry, cfg Config) *Gateway {
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 500 * time.Millisecond
	}
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = 2 * time.Minute
	}
	return &Gateway{
		providers: providers,
		limits:    limits,
		breakers:  breakers,
		cfg:       cfg,
	}
}

// Invoke executes one generation request against the named provider,
// retrying transient failures with exponential backoff. Unauthorized and
// malformed-response failures are never retried; an open circuit fails the
// invocation immediately rather than spinning through the cool-down.
func (g *Gateway) Invoke(ctx context.Context, providerID string, req provider.Request) (*provider.Envelope, error) {
	p, err := g.providers.Get(providerID)
	if err != nil {
		return nil, err
	}

	attempt := 0
	operation := func() (*provider.Envelope, error) {
		attempt++
		env, err := g.attempt(ctx, providerID, p, req)
		g.record(providerID, env, err)

		if err == nil {
			return env, nil
		}

		logging.Debug().
			Err(err).
			Str("provider", providerID).
			Int("attempt", attempt).
			Msg("provider call failed")

		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		// An open circuit means the cool-down has to elapse; retrying inside
		// this invocation would only burn the backoff budget.
		if errors.Is(err, breaker.ErrOpen) {
			return nil, backoff.Permanent(fmt.Errorf("%w: circuit open for %q", provider.ErrUnreachable, providerID))
		}
		if !provider.Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.cfg.RetryInitialInterval
	bo.MaxElapsedTime = g.cfg.RetryMaxElapsed

	env, err := backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, g.cfg.RetryAttempts), ctx))
	if err != nil {
		logging.Warn().
			Err(err).
			Str("provider", providerID).
			Int("attempts", attempt).
			Msg("provider invocation exhausted")
		return nil, err
	}
	return env, nil
}

// callOutcome carries a non-health failure through the breaker without
// counting it as a breaker failure.
type callOutcome struct {
	env *provider.Envelope
	err error
}

// attempt executes a single rate-limited, breaker-guarded call.
func (g *Gateway) attempt(ctx context.Context, providerID string, p provider.Provider, req provider.Request) (*provider.Envelope, error) {
	if err := g.limits.Acquire(ctx, providerID); err != nil {
		if errors.Is(err, ratelimit.ErrLimited) {
			return nil, fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
		}
		return nil, err
	}

	res, err := g.breakers.Execute(providerID, func() (any, error) {
		env, err := p.Generate(ctx, req)
		// Only health failures trip the breaker. Auth and parse failures say
		// nothing about backend availability; 429 is backpressure, not outage.
		if err != nil && healthFailure(err) {
			return nil, err
		}
		return callOutcome{env: env, err: err}, nil
	})
	if err != nil {
		return nil, err
	}
	out := res.(callOutcome)
	return out.env, out.err
}

// healthFailure reports whether the error should count against the circuit.
func healthFailure(err error) bool {
	return errors.Is(err, provider.ErrUnreachable) || errors.Is(err, provider.ErrTimeout)
}

// record updates per-attempt metrics.
func (g *Gateway) record(providerID string, env *provider.Envelope, err error) {
	metrics.ProviderRequests.WithLabelValues(providerID, provider.Outcome(err)).Inc()
	if env != nil {
		metrics.ProviderLatency.WithLabelValues(providerID).Observe(env.Latency.Seconds())
		metrics.ProviderTokens.WithLabelValues(providerID, "prompt").Add(float64(env.PromptTokens))
		metrics.ProviderTokens.WithLabelValues(providerID, "completion").Add(float64(env.CompletionTokens))
	}
}

// BreakerState exposes the circuit state for a provider, for diagnostics.
func (g *Gateway) BreakerState(providerID string) string {
	return g.breakers.State(providerID)
}

// Providers lists registered provider ids.
func (g *Gateway) Providers() []string {
	return g.providers.Names()
}
