// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

// Package config defines the Crescendo configuration model and its layered
// loader (defaults, optional YAML file, environment variables).
package config

import (
	"fmt"
	"time"

	"github.com/crescendo-app/crescendo/internal/validation"
)

// Config is the root configuration for the service.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Store       StoreConfig       `koanf:"store"`
	Engine      EngineConfig      `koanf:"engine"`
	MusicBrainz MusicBrainzConfig `koanf:"musicbrainz"`
	Providers   ProvidersConfig   `koanf:"providers"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig configures the zerolog global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// StoreConfig configures the BadgerDB-backed cache and history store.
type StoreConfig struct {
	// Path is the on-disk store directory. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory runs the store without persistence (tests, ephemeral deploys).
	InMemory bool `koanf:"in_memory"`

	// GCInterval is how often value-log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval"`

	// CacheTTL is the lifetime of a cached recommendation list.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// HistoryCooldown is how long a suggested item is suppressed across runs.
	HistoryCooldown time.Duration `koanf:"history_cooldown"`
}

// EngineConfig bounds the iterative recommendation strategy.
type EngineConfig struct {
	// MaxRounds caps provider round-trips per invocation.
	MaxRounds int `koanf:"max_rounds" validate:"min=1,max=20"`

	// StagnationRounds is the number of consecutive zero-accept rounds
	// tolerated before giving up.
	StagnationRounds int `koanf:"stagnation_rounds" validate:"min=1"`

	// DefaultTargetCount is used when the host omits a target.
	DefaultTargetCount int `koanf:"default_target_count" validate:"min=1,max=100"`

	// Overrequest multiplies the per-round shortfall to absorb expected
	// rejections (e.g. 2 asks for twice the shortfall).
	Overrequest int `koanf:"overrequest" validate:"min=1,max=5"`

	// RetryAttempts caps gateway attempts per provider call.
	RetryAttempts int `koanf:"retry_attempts" validate:"min=1,max=10"`

	// RetryMaxElapsed bounds total backoff time per provider call.
	RetryMaxElapsed time.Duration `koanf:"retry_max_elapsed"`

	// BreakerThreshold is the consecutive-failure count that opens a
	// provider's circuit.
	BreakerThreshold int `koanf:"breaker_threshold" validate:"min=1"`

	// BreakerCooldown is how long an open circuit waits before a trial call.
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`

	// InvocationTimeout is the default whole-invocation deadline.
	InvocationTimeout time.Duration `koanf:"invocation_timeout"`
}

// MusicBrainzConfig configures the external reference lookup.
type MusicBrainzConfig struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// UserAgent identifies this client to MusicBrainz, per their API policy.
	UserAgent string `koanf:"user_agent" validate:"required"`

	// RequestsPerSecond respects the published rate limit (~1 rps).
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`

	Timeout time.Duration `koanf:"timeout"`

	// PositiveTTL caches confirmed matches; NegativeTTL caches misses briefly
	// so a late indexing pass can still rescue a candidate.
	PositiveTTL time.Duration `koanf:"positive_ttl"`
	NegativeTTL time.Duration `koanf:"negative_ttl"`
}

// ProvidersConfig holds one block per supported backend.
type ProvidersConfig struct {
	OpenAI    OpenAIConfig    `koanf:"openai"`
	Anthropic AnthropicConfig `koanf:"anthropic"`
	Ollama    OllamaConfig    `koanf:"ollama"`
}

// OpenAIConfig configures the OpenAI chat-completions backend.
type OpenAIConfig struct {
	Enabled           bool          `koanf:"enabled"`
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	Model             string        `koanf:"model"`
	TokenBudget       int           `koanf:"token_budget" validate:"min=256"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerMinute int           `koanf:"requests_per_minute" validate:"min=1"`
	Burst             int           `koanf:"burst" validate:"min=1"`
}

// AnthropicConfig configures the Anthropic messages backend.
type AnthropicConfig struct {
	Enabled           bool          `koanf:"enabled"`
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	Model             string        `koanf:"model"`
	TokenBudget       int           `koanf:"token_budget" validate:"min=256"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerMinute int           `koanf:"requests_per_minute" validate:"min=1"`
	Burst             int           `koanf:"burst" validate:"min=1"`
}

// OllamaConfig configures a local Ollama backend. No credentials required.
type OllamaConfig struct {
	Enabled           bool          `koanf:"enabled"`
	BaseURL           string        `koanf:"base_url"`
	Model             string        `koanf:"model"`
	TokenBudget       int           `koanf:"token_budget" validate:"min=256"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerMinute int           `koanf:"requests_per_minute" validate:"min=1"`
	Burst             int           `koanf:"burst" validate:"min=1"`
}

// defaultConfig returns a Config with all sensible default values. Defaults
// are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8484,
			Timeout:         120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Store: StoreConfig{
			Path:            "/data/crescendo",
			InMemory:        false,
			GCInterval:      10 * time.Minute,
			CacheTTL:        6 * time.Hour,
			HistoryCooldown: 30 * 24 * time.Hour,
		},
		Engine: EngineConfig{
			MaxRounds:          5,
			StagnationRounds:   2,
			DefaultTargetCount: 10,
			Overrequest:        2,
			RetryAttempts:      3,
			RetryMaxElapsed:    30 * time.Second,
			BreakerThreshold:   5,
			BreakerCooldown:    2 * time.Minute,
			InvocationTimeout:  90 * time.Second,
		},
		MusicBrainz: MusicBrainzConfig{
			BaseURL:           "https://musicbrainz.org",
			UserAgent:         "Crescendo/1.0 (https://github.com/crescendo-app/crescendo)",
			RequestsPerSecond: 1.0,
			Timeout:           10 * time.Second,
			PositiveTTL:       24 * time.Hour,
			NegativeTTL:       15 * time.Minute,
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				Enabled:           false,
				BaseURL:           "https://api.openai.com",
				Model:             "gpt-4o-mini",
				TokenBudget:       4000,
				Timeout:           60 * time.Second,
				RequestsPerMinute: 30,
				Burst:             5,
			},
			Anthropic: AnthropicConfig{
				Enabled:           false,
				BaseURL:           "https://api.anthropic.com",
				Model:             "claude-3-5-haiku-latest",
				TokenBudget:       4000,
				Timeout:           60 * time.Second,
				RequestsPerMinute: 30,
				Burst:             5,
			},
			Ollama: OllamaConfig{
				Enabled:           true,
				BaseURL:           "http://127.0.0.1:11434",
				Model:             "llama3.1",
				TokenBudget:       3000,
				Timeout:           120 * time.Second,
				RequestsPerMinute: 60,
				Burst:             10,
			},
		},
	}
}

// Validate checks struct tags and cross-field constraints.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if c.Providers.OpenAI.Enabled && c.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("providers.openai.api_key is required when openai is enabled")
	}
	if c.Providers.Anthropic.Enabled && c.Providers.Anthropic.APIKey == "" {
		return fmt.Errorf("providers.anthropic.api_key is required when anthropic is enabled")
	}
	if !c.Providers.OpenAI.Enabled && !c.Providers.Anthropic.Enabled && !c.Providers.Ollama.Enabled {
		return fmt.Errorf("at least one provider must be enabled")
	}
	if c.Engine.StagnationRounds > c.Engine.MaxRounds {
		return fmt.Errorf("engine.stagnation_rounds must not exceed engine.max_rounds")
	}
	return nil
}
