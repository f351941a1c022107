// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

// Package provider abstracts the interchangeable LLM backends behind one
// contract: a structured request in, a normalized response envelope out.
// Backends are selected from a registry keyed on provider id; failures are
// classified into a small taxonomy that the gateway's retry policy consumes.
package provider

import (
	"context"
	"errors"
	"time"
)

// Failure kinds. Unauthorized and MalformedResponse are never retried; the
// rest are transient and eligible for retry.
var (
	// ErrUnreachable covers connection failures, 5xx responses, and open
	// circuits.
	ErrUnreachable = errors.New("provider unreachable")

	// ErrUnauthorized covers 401/403 responses; a configuration error.
	ErrUnauthorized = errors.New("provider unauthorized")

	// ErrRateLimited covers 429 responses and local bucket exhaustion.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrMalformedResponse covers undecodable or empty backend payloads.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrTimeout covers deadline expiry on the outbound call.
	ErrTimeout = errors.New("provider timeout")

	// ErrUnknownProvider is returned by the registry for unregistered ids.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Retryable reports whether the failure kind is transient.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnreachable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// Outcome returns the metrics label for a call result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	default:
		return "error"
	}
}

// Request is one structured generation request. Built once per round;
// immutable afterwards.
type Request struct {
	// System carries the instruction preamble.
	System string

	// User carries the sampled library excerpt and the ask.
	User string

	// MaxTokens caps the completion length.
	MaxTokens int

	// Temperature steers sampling; providers clamp to their own ranges.
	Temperature float64
}

// Envelope normalizes the N backend wire formats into one response shape.
type Envelope struct {
	// Text is the raw model output; free-form prose possibly containing a
	// JSON payload.
	Text string

	// Provider is the backend that produced the response.
	Provider string

	// Model is the concrete model name reported by the backend.
	Model string

	// PromptTokens and CompletionTokens are usage estimates as reported by
	// the backend (zero when not reported).
	PromptTokens     int
	CompletionTokens int

	// Latency is the end-to-end call duration.
	Latency time.Duration
}

// Provider is the uniform contract over backend APIs.
type Provider interface {
	// Name returns the registry id (e.g. "openai").
	Name() string

	// Generate executes one outbound call and normalizes the result.
	// Errors wrap exactly one failure kind sentinel.
	Generate(ctx context.Context, req Request) (*Envelope, error)
}
