// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

// Package engine drives the recommendation pipeline: prompt construction,
// provider invocation, candidate screening, and iterative re-querying until
// the target count is met or the round budget runs out. Rounds execute
// strictly sequentially; duplicate suppression depends on accumulated state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crescendo-app/crescendo/internal/logging"
	"github.com/crescendo-app/crescendo/internal/metrics"
	"github.com/crescendo-app/crescendo/internal/models"
	"github.com/crescendo-app/crescendo/internal/prompt"
	"github.com/crescendo-app/crescendo/internal/provider"
	"github.com/crescendo-app/crescendo/internal/store"
	"github.com/crescendo-app/crescendo/internal/validation"
)

// Invoker executes one provider call through the resilience layers.
type Invoker interface {
	Invoke(ctx context.Context, providerID string, req provider.Request) (*provider.Envelope, error)
}

// ResultCache memoizes accepted result lists by fingerprint.
type ResultCache interface {
	Get(fingerprint string) ([]models.Candidate, bool)
	Put(fingerprint string, items []models.Candidate) error
}

// HistoryRecorder appends accepted items to the cross-run ledger.
type HistoryRecorder interface {
	Record(artist, title string) error
}

// Config bounds one invocation.
type Config struct {
	// MaxRounds caps provider calls per invocation.
	MaxRounds int

	// StagnationRounds is how many consecutive zero-accept rounds end the
	// invocation early.
	StagnationRounds int

	// OverrequestPercent asks each round for this much more than the
	// shortfall, anticipating rejections.
	OverrequestPercent int

	// BaseSampleSize is the library excerpt size for the first round.
	BaseSampleSize int

	// SampleGrowth is how many entries the excerpt grows by after a round
	// that accepted nothing, to reduce repeat collisions.
	SampleGrowth int

	// DefaultTokenBudget applies when neither the settings nor the provider
	// configuration supply one.
	DefaultTokenBudget int

	// TokenBudgets maps provider id to its configured prompt budget.
	TokenBudgets map[string]int
}

func (c *Config) defaults() {
	if c.MaxRounds <= 0 {
		c.MaxRounds = 5
	}
	if c.StagnationRounds <= 0 {
		c.StagnationRounds = 2
	}
	if c.OverrequestPercent <= 0 {
		c.OverrequestPercent = 50
	}
	if c.BaseSampleSize <= 0 {
		c.BaseSampleSize = 40
	}
	if c.SampleGrowth <= 0 {
		c.SampleGrowth = 20
	}
	if c.DefaultTokenBudget <= 0 {
		c.DefaultTokenBudget = 4096
	}
}

// Engine is the orchestrator the host-facing API calls.
type Engine struct {
	invoker  Invoker
	screener *validation.Screener
	cache    ResultCache
	history  HistoryRecorder
	cfg      Config
}

// New creates an engine. cache and history may be nil for cacheless use.
func New(invoker Invoker, screener *validation.Screener, cache ResultCache, history HistoryRecorder, cfg Config) *Engine {
	cfg.defaults()
	return &Engine{
		invoker:  invoker,
		screener: screener,
		cache:    cache,
		history:  history,
		cfg:      cfg,
	}
}

// Recommend runs one full invocation. Expected failure modes (round
// failures, rejection, exhaustion) are reported through diagnostics with a
// nil error; the error return is reserved for configuration problems
// (unknown provider, bad credentials, impossible budget) and for
// cancellation before any item was accepted.
func (e *Engine) Recommend(ctx context.Context, snapshot *models.LibrarySnapshot, settings models.Settings) (accepted []models.Candidate, diag models.Diagnostics, err error) {
	start := time.Now()

	mode := settings.Mode
	if !mode.Valid() {
		mode = models.ModeSimilar
	}

	diag = models.Diagnostics{
		CorrelationID: uuid.NewString(),
		Provider:      settings.Provider,
		Mode:          string(mode),
	}
	defer func() {
		diag.ElapsedMS = time.Since(start).Milliseconds()
	}()

	// A backend's output is adversarial input; nothing it provokes may
	// escape the orchestrator boundary as a panic.
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Interface("panic", r).
				Str("correlation_id", diag.CorrelationID).
				Msg("invocation panicked")
			accepted = nil
			diag.Error = fmt.Sprintf("internal error: %v", r)
			metrics.Invocations.WithLabelValues("error").Inc()
			err = nil
		}
	}()

	if verr := validation.ValidateStruct(settings); verr != nil {
		return nil, diag, fmt.Errorf("invalid settings: %w", verr)
	}

	budget := settings.TokenBudget
	if budget <= 0 {
		budget = e.cfg.TokenBudgets[settings.Provider]
	}
	if budget <= 0 {
		budget = e.cfg.DefaultTokenBudget
	}

	libraryHash := snapshot.Hash()
	diag.LibraryHash = libraryHash

	fingerprint := store.Fingerprint(libraryHash, settings.Provider, mode, settings.TargetCount)
	if e.cache != nil {
		if items, ok := e.cache.Get(fingerprint); ok {
			diag.CacheHit = true
			diag.Accepted = len(items)
			metrics.Invocations.WithLabelValues("cache_hit").Inc()
			return items, diag, nil
		}
	}

	accepted = make([]models.Candidate, 0, settings.TargetCount)
	seen := make(map[string]struct{})
	sampleSize := e.cfg.BaseSampleSize
	stagnant := 0

	log := logging.With().
		Str("correlation_id", diag.CorrelationID).
		Str("provider", settings.Provider).
		Logger()

	for round := 1; round <= e.cfg.MaxRounds; round++ {
		shortfall := settings.TargetCount - len(accepted)
		if shortfall <= 0 {
			break
		}
		diag.Rounds = round

		requestCount := shortfall + shortfall*e.cfg.OverrequestPercent/100
		req, berr := prompt.Build(snapshot, mode, requestCount, budget, sampleSize)
		if berr != nil {
			if errors.Is(berr, prompt.ErrBudgetExceeded) {
				return nil, diag, berr
			}
			return nil, diag, fmt.Errorf("build prompt: %w", berr)
		}

		env, ierr := e.invoker.Invoke(ctx, settings.Provider, req)
		if ierr != nil {
			if errors.Is(ierr, provider.ErrUnauthorized) || errors.Is(ierr, provider.ErrUnknownProvider) {
				return nil, diag, ierr
			}
			if ctx.Err() != nil {
				return e.finishCancelled(ctx, accepted, &diag)
			}

			// A failed round is normal operation; the next round may succeed.
			diag.RoundFailures++
			log.Warn().Err(ierr).Int("round", round).Msg("round failed")
			if stagnant++; stagnant >= e.cfg.StagnationRounds {
				break
			}
			continue
		}

		diag.PromptTokens += env.PromptTokens
		diag.CompletionTokens += env.CompletionTokens

		cands, perr := provider.ExtractCandidates(env.Text)
		if perr != nil {
			diag.MalformedPayloads++
			diag.RoundFailures++
			log.Warn().Err(perr).Int("round", round).Msg("unparseable round payload")
			if stagnant++; stagnant >= e.cfg.StagnationRounds {
				break
			}
			continue
		}
		for i := range cands {
			cands[i].Provider = env.Provider
		}

		roundAccepted := 0
		for _, verdict := range e.screener.ScreenAll(ctx, cands, snapshot, seen) {
			// Over-request surplus: valid but never delivered, so it stays
			// out of the counts. diag.Accepted always equals len(accepted).
			if verdict.Outcome == models.Accepted && len(accepted) >= settings.TargetCount {
				continue
			}
			diag.CountVerdict(verdict)
			if verdict.Outcome != models.Accepted {
				continue
			}
			accepted = append(accepted, verdict.Candidate)
			roundAccepted++
			if e.history != nil {
				if herr := e.history.Record(verdict.Candidate.Artist, verdict.Candidate.Album); herr != nil {
					log.Warn().Err(herr).Msg("history write failed")
				}
			}
		}

		log.Debug().
			Int("round", round).
			Int("candidates", len(cands)).
			Int("accepted", roundAccepted).
			Int("total", len(accepted)).
			Msg("round complete")

		if ctx.Err() != nil {
			return e.finishCancelled(ctx, accepted, &diag)
		}

		if roundAccepted == 0 {
			// More context next round; repeat collisions usually mean the
			// model keeps drawing from the same slice of the library.
			sampleSize += e.cfg.SampleGrowth
			if stagnant++; stagnant >= e.cfg.StagnationRounds {
				break
			}
		} else {
			stagnant = 0
		}
	}

	metrics.InvocationRounds.Observe(float64(diag.Rounds))

	if len(accepted) < settings.TargetCount {
		diag.Exhausted = true
		metrics.Invocations.WithLabelValues("exhausted").Inc()
	} else {
		metrics.Invocations.WithLabelValues("satisfied").Inc()
	}

	if e.cache != nil && len(accepted) > 0 {
		if cerr := e.cache.Put(fingerprint, accepted); cerr != nil {
			log.Warn().Err(cerr).Msg("cache write failed")
		}
	}

	return accepted, diag, nil
}

// finishCancelled implements the cancellation contract: a partial result is
// returned as a success, but cancellation before any acceptance is an error
// distinct from "succeeded with zero items".
func (e *Engine) finishCancelled(ctx context.Context, accepted []models.Candidate, diag *models.Diagnostics) ([]models.Candidate, models.Diagnostics, error) {
	diag.Cancelled = true
	metrics.Invocations.WithLabelValues("cancelled").Inc()
	if len(accepted) == 0 {
		return nil, *diag, ctx.Err()
	}
	return accepted, *diag, nil
}
