// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

// Package api exposes the recommendation pipeline over HTTP. Expected
// pipeline failures (rejections, exhaustion, round failures) are part of a
// 200 response's diagnostics; HTTP error codes are reserved for bad requests
// and configuration problems.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crescendo-app/crescendo/internal/models"
)

// Recommender runs one pipeline invocation.
type Recommender interface {
	Recommend(ctx context.Context, snapshot *models.LibrarySnapshot, settings models.Settings) ([]models.Candidate, models.Diagnostics, error)
}

// ProviderInfo reports registered providers and their circuit state.
type ProviderInfo interface {
	Providers() []string
	BreakerState(providerID string) string
}

// HistoryLister reads the suggestion ledger.
type HistoryLister interface {
	ListRecent(limit int) ([]models.HistoryRecord, error)
}

// CachePurger drops all cached recommendation results.
type CachePurger interface {
	Purge() (int, error)
}

// Config carries the HTTP-facing settings.
type Config struct {
	// CORSOrigins lists allowed origins; empty disables CORS headers.
	CORSOrigins []string

	// RequestsPerMinute throttles clients per IP. Zero disables throttling.
	RequestsPerMinute int

	// DefaultTimeout bounds an invocation when the request doesn't set one.
	DefaultTimeout time.Duration

	// MaxBodyBytes caps the request body size.
	MaxBodyBytes int64
}

// Server wires the handlers to the pipeline.
type Server struct {
	engine    Recommender
	providers ProviderInfo
	history   HistoryLister
	cache     CachePurger
	cfg       Config
}

// NewServer creates the HTTP server facade. history and cache may be nil;
// their endpoints then report 503.
func NewServer(engine Recommender, providers ProviderInfo, history HistoryLister, cache CachePurger, cfg Config) *Server {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 5 * time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	return &Server{
		engine:    engine,
		providers: providers,
		history:   history,
		cache:     cache,
		cfg:       cfg,
	}
}

// Router assembles the route tree with its middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}
	if s.cfg.RequestsPerMinute > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RequestsPerMinute, time.Minute))
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/recommendations", s.handleRecommend)
		r.Get("/providers", s.handleProviders)
		r.Get("/history", s.handleHistory)
		r.Delete("/cache", s.handlePurgeCache)
	})

	return r
}
