// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/crescendo-app/crescendo/internal/models"
	"github.com/crescendo-app/crescendo/internal/provider"
)

// fakeEngine returns canned results, or an error when err is set.
type fakeEngine struct {
	items []models.Candidate
	diag  models.Diagnostics
	err   error
}

func (f *fakeEngine) Recommend(ctx context.Context, snapshot *models.LibrarySnapshot, settings models.Settings) ([]models.Candidate, models.Diagnostics, error) {
	return f.items, f.diag, f.err
}

type fakeProviders struct{}

func (fakeProviders) Providers() []string { return []string{"anthropic", "ollama", "openai"} }
func (fakeProviders) BreakerState(id string) string {
	if id == "openai" {
		return "open"
	}
	return "closed"
}

type fakeHistory struct {
	recs []models.HistoryRecord
	err  error
}

func (f *fakeHistory) ListRecent(limit int) ([]models.HistoryRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.recs) > limit {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

type fakeCache struct{ purged int }

func (f *fakeCache) Purge() (int, error) { return f.purged, nil }

func newTestServer(eng Recommender) *Server {
	return NewServer(eng, fakeProviders{}, &fakeHistory{recs: []models.HistoryRecord{
		{Artist: "Slint", Title: "Spiderland", TimesSuggested: 2},
	}}, &fakeCache{purged: 4}, Config{DefaultTimeout: time.Minute})
}

func recommendBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(recommendRequest{
		Library: models.LibrarySnapshot{Artists: []models.Artist{{Name: "Tortoise"}}},
		Settings: models.Settings{
			Provider:    "ollama",
			TargetCount: 5,
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewBuffer(body)
}

func TestRecommendEndpointSuccess(t *testing.T) {
	eng := &fakeEngine{
		items: []models.Candidate{{Artist: "Slint", Album: "Spiderland", Confidence: 0.9}},
		diag:  models.Diagnostics{Accepted: 1, Rounds: 1, Provider: "ollama"},
	}
	srv := newTestServer(eng)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recommendations", recommendBody(t))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp recommendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.Diagnostics.Accepted != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRecommendEndpointExpectedFailureIs200(t *testing.T) {
	// Zero accepted items with diagnostics is success, not an HTTP error.
	eng := &fakeEngine{
		items: nil,
		diag:  models.Diagnostics{RejectedHallucinated: 10, Rounds: 2, Exhausted: true},
	}
	srv := newTestServer(eng)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recommendations", recommendBody(t))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp recommendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Items == nil || len(resp.Items) != 0 {
		t.Errorf("items should be an empty array, got %v", resp.Items)
	}
	if resp.Diagnostics.RejectedHallucinated != 10 {
		t.Errorf("diagnostics lost: %+v", resp.Diagnostics)
	}
}

func TestRecommendEndpointUnauthorized(t *testing.T) {
	srv := newTestServer(&fakeEngine{err: provider.ErrUnauthorized})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recommendations", recommendBody(t))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRecommendEndpointUnknownProvider(t *testing.T) {
	srv := newTestServer(&fakeEngine{err: provider.ErrUnknownProvider})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recommendations", recommendBody(t))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRecommendEndpointBadBody(t *testing.T) {
	srv := newTestServer(&fakeEngine{})

	for _, body := range []string{"{not json", `{"library": {"artists": []}, "settings": {}}`} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/recommendations", bytes.NewBufferString(body))
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestProvidersEndpoint(t *testing.T) {
	srv := newTestServer(&fakeEngine{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out []providerStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d providers", len(out))
	}
	for _, p := range out {
		if p.ID == "openai" && p.CircuitState != "open" {
			t.Errorf("openai circuit = %q", p.CircuitState)
		}
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv := newTestServer(&fakeEngine{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=10", nil)
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var recs []models.HistoryRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 1 || recs[0].Artist != "Slint" {
		t.Errorf("recs = %+v", recs)
	}
}

func TestHistoryEndpointBadLimit(t *testing.T) {
	srv := newTestServer(&fakeEngine{})

	for _, limit := range []string{"0", "-5", "9999", "abc"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/history?limit="+limit, nil)
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit %q: status = %d, want 400", limit, rec.Code)
		}
	}
}

func TestPurgeCacheEndpoint(t *testing.T) {
	srv := newTestServer(&fakeEngine{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil)
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["purged"] != 4 {
		t.Errorf("purged = %d, want 4", out["purged"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&fakeEngine{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&fakeEngine{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
