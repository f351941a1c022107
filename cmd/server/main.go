// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

// Command server runs the Crescendo recommendation service: an HTTP API in
// front of the AI-provider gateway, the MusicBrainz-backed validation
// pipeline, and the embedded cache/history store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crescendo-app/crescendo/internal/api"
	"github.com/crescendo-app/crescendo/internal/breaker"
	"github.com/crescendo-app/crescendo/internal/config"
	"github.com/crescendo-app/crescendo/internal/engine"
	"github.com/crescendo-app/crescendo/internal/gateway"
	"github.com/crescendo-app/crescendo/internal/logging"
	"github.com/crescendo-app/crescendo/internal/musicbrainz"
	"github.com/crescendo-app/crescendo/internal/provider"
	"github.com/crescendo-app/crescendo/internal/ratelimit"
	"github.com/crescendo-app/crescendo/internal/store"
	"github.com/crescendo-app/crescendo/internal/supervisor"
	"github.com/crescendo-app/crescendo/internal/supervisor/services"
	"github.com/crescendo-app/crescendo/internal/validation"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("starting crescendo")

	db, err := store.Open(store.Options{
		Path:     cfg.Store.Path,
		InMemory: cfg.Store.InMemory,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	recCache := store.NewRecommendationCache(db, cfg.Store.CacheTTL)
	history := store.NewHistoryStore(db)

	limits := ratelimit.NewRegistry(ratelimit.Options{Rate: 1, Burst: 1})
	limits.Configure(musicbrainz.RateLimitKey, ratelimit.Options{
		Rate:  cfg.MusicBrainz.RequestsPerSecond,
		Burst: 1,
	})

	breakers := breaker.NewRegistry(breaker.Settings{
		Threshold: uint32(cfg.Engine.BreakerThreshold),
		Cooldown:  cfg.Engine.BreakerCooldown,
	})

	providers, budgets := buildProviders(cfg, limits)
	gw := gateway.New(providers, limits, breakers, gateway.Config{
		RetryAttempts:   uint64(cfg.Engine.RetryAttempts),
		RetryMaxElapsed: cfg.Engine.RetryMaxElapsed,
	})

	mb := musicbrainz.New(musicbrainz.Config{
		BaseURL:     cfg.MusicBrainz.BaseURL,
		UserAgent:   cfg.MusicBrainz.UserAgent,
		Timeout:     cfg.MusicBrainz.Timeout,
		PositiveTTL: cfg.MusicBrainz.PositiveTTL,
		NegativeTTL: cfg.MusicBrainz.NegativeTTL,
	}, limits)
	defer mb.Close()

	screener := validation.NewScreener(mb, history, cfg.Store.HistoryCooldown)

	eng := engine.New(gw, screener, recCache, history, engine.Config{
		MaxRounds:          cfg.Engine.MaxRounds,
		StagnationRounds:   cfg.Engine.StagnationRounds,
		OverrequestPercent: (cfg.Engine.Overrequest - 1) * 100,
		TokenBudgets:       budgets,
	})

	srv := api.NewServer(eng, gw, history, recCache, api.Config{
		CORSOrigins:       cfg.Server.CORSOrigins,
		RequestsPerMinute: cfg.Server.RateLimitReqs,
		DefaultTimeout:    cfg.Engine.InvocationTimeout,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(
		slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout},
	)
	tree.AddStorageService(services.NewMaintenanceService(db, cfg.Store.GCInterval))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", httpServer.Addr).Msg("serving")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	limits.Stop()
	logging.Info().Msg("shutdown complete")
	return nil
}

// buildProviders registers every enabled backend, configures its rate-limit
// bucket, and collects the per-provider prompt budgets.
func buildProviders(cfg *config.Config, limits *ratelimit.Registry) (*provider.Registry, map[string]int) {
	registry := provider.NewRegistry()
	budgets := make(map[string]int)

	if p := cfg.Providers.OpenAI; p.Enabled {
		registry.Register(provider.NewOpenAIClient(p.BaseURL, p.APIKey, p.Model, p.Timeout))
		limits.Configure("openai", ratelimit.Options{
			Rate:  float64(p.RequestsPerMinute) / 60,
			Burst: p.Burst,
		})
		budgets["openai"] = p.TokenBudget
	}
	if p := cfg.Providers.Anthropic; p.Enabled {
		registry.Register(provider.NewAnthropicClient(p.BaseURL, p.APIKey, p.Model, p.Timeout))
		limits.Configure("anthropic", ratelimit.Options{
			Rate:  float64(p.RequestsPerMinute) / 60,
			Burst: p.Burst,
		})
		budgets["anthropic"] = p.TokenBudget
	}
	if p := cfg.Providers.Ollama; p.Enabled {
		registry.Register(provider.NewOllamaClient(p.BaseURL, p.Model, p.Timeout))
		limits.Configure("ollama", ratelimit.Options{
			Rate:  float64(p.RequestsPerMinute) / 60,
			Burst: p.Burst,
		})
		budgets["ollama"] = p.TokenBudget
	}

	return registry, budgets
}
