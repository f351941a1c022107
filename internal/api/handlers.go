// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/crescendo-app/crescendo/internal/logging"
	"github.com/crescendo-app/crescendo/internal/models"
	"github.com/crescendo-app/crescendo/internal/prompt"
	"github.com/crescendo-app/crescendo/internal/provider"
)

// recommendRequest is the inbound invocation payload.
type recommendRequest struct {
	Library  models.LibrarySnapshot `json:"library"`
	Settings models.Settings        `json:"settings"`
}

// recommendResponse is the invocation result.
type recommendResponse struct {
	Items       []models.Candidate `json:"items"`
	Diagnostics models.Diagnostics `json:"diagnostics"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type providerStatus struct {
	ID           string `json:"id"`
	CircuitState string `json:"circuit_state"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Library.Artists) == 0 {
		writeError(w, http.StatusBadRequest, "library snapshot is empty")
		return
	}

	timeout := req.Settings.Timeout
	if timeout <= 0 || timeout > s.cfg.DefaultTimeout {
		timeout = s.cfg.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	items, diag, err := s.engine.Recommend(ctx, &req.Library, req.Settings)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if items == nil {
		items = []models.Candidate{}
	}
	writeJSON(w, http.StatusOK, recommendResponse{Items: items, Diagnostics: diag})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	ids := s.providers.Providers()
	out := make([]providerStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, providerStatus{
			ID:           id,
			CircuitState: s.providers.BreakerState(id),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history store not configured")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be an integer in [1,1000]")
			return
		}
		limit = n
	}

	recs, err := s.history.ListRecent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read history: "+err.Error())
		return
	}
	if recs == nil {
		recs = []models.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handlePurgeCache(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache not configured")
		return
	}

	n, err := s.cache.Purge()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "purge cache: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"purged": n})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps pipeline errors onto HTTP status codes. Only configuration
// problems and cancellation reach this path; everything else travels in
// diagnostics.
func statusFor(err error) int {
	switch {
	case errors.Is(err, provider.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, provider.ErrUnknownProvider),
		errors.Is(err, prompt.ErrBudgetExceeded):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		logging.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("elapsed", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
