// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

// Package models defines the core data types shared across the recommendation
// pipeline: the host-supplied library snapshot, per-invocation requests and
// settings, candidate suggestions, validation verdicts, and diagnostics.
package models

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Album is a single release owned by the library.
type Album struct {
	// Title is the album title as known to the host library.
	Title string `json:"title"`

	// Year is the release year (0 if unknown).
	Year int `json:"year,omitempty"`
}

// Artist is one library entry with its known releases and metadata.
type Artist struct {
	// Name is the artist name as known to the host library.
	Name string `json:"name" validate:"required"`

	// Albums lists the releases the library owns for this artist.
	Albums []Album `json:"albums,omitempty"`

	// Genres lists genre tags, most significant first.
	Genres []string `json:"genres,omitempty"`

	// AddedAt is when the artist was added to the library.
	AddedAt time.Time `json:"added_at,omitempty"`
}

// PrimaryGenre returns the first genre tag, or "unknown" when untagged.
func (a Artist) PrimaryGenre() string {
	if len(a.Genres) == 0 {
		return "unknown"
	}
	return a.Genres[0]
}

// LibrarySnapshot is an immutable view of the host's music library for one
// invocation. The pipeline never mutates it.
type LibrarySnapshot struct {
	Artists []Artist `json:"artists" validate:"required,dive"`
}

// Hash returns a stable hex digest of the snapshot contents. Artist and album
// order in the input does not affect the result, so hosts may send entries in
// any order and still hit the cache.
func (s *LibrarySnapshot) Hash() string {
	lines := make([]string, 0, len(s.Artists))
	for _, artist := range s.Artists {
		titles := make([]string, 0, len(artist.Albums))
		for _, album := range artist.Albums {
			titles = append(titles, NormalizeName(album.Title))
		}
		sort.Strings(titles)
		lines = append(lines, NormalizeName(artist.Name)+"|"+strings.Join(titles, ","))
	}
	sort.Strings(lines)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return fmt.Sprintf("%x", sum[:16])
}

// Contains reports whether the library already owns the given artist, or the
// given artist+album pair when title is non-empty. Matching is exact after
// normalization.
func (s *LibrarySnapshot) Contains(artist, title string) bool {
	wantArtist := NormalizeName(artist)
	wantTitle := NormalizeName(title)

	for _, a := range s.Artists {
		if NormalizeName(a.Name) != wantArtist {
			continue
		}
		if wantTitle == "" {
			return true
		}
		for _, album := range a.Albums {
			if NormalizeName(album.Title) == wantTitle {
				return true
			}
		}
	}
	return false
}

// NormalizeName lowercases, trims, and collapses internal whitespace so that
// "The Beatles" and "the  beatles " compare equal. Used for duplicate checks,
// history keys, and the snapshot hash.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// DiscoveryMode steers how adventurous the prompt instructions are.
type DiscoveryMode string

const (
	// ModeSimilar asks for artists close to the library's core taste.
	ModeSimilar DiscoveryMode = "similar"
	// ModeAdjacent asks for neighboring genres and scenes.
	ModeAdjacent DiscoveryMode = "adjacent"
	// ModeExploratory asks for deliberately unfamiliar territory.
	ModeExploratory DiscoveryMode = "exploratory"
)

// Valid reports whether the mode is one of the known values.
func (m DiscoveryMode) Valid() bool {
	switch m {
	case ModeSimilar, ModeAdjacent, ModeExploratory:
		return true
	}
	return false
}

// Settings is the per-invocation configuration supplied by the host.
type Settings struct {
	// Provider selects the backend (e.g. "openai", "anthropic", "ollama").
	Provider string `json:"provider" validate:"required"`

	// TargetCount is how many accepted recommendations the host wants.
	TargetCount int `json:"target_count" validate:"min=1,max=100"`

	// Mode is the discovery mode. Defaults to "similar" when empty.
	Mode DiscoveryMode `json:"mode,omitempty"`

	// TokenBudget caps the prompt size in estimated tokens. Zero means the
	// provider's configured default.
	TokenBudget int `json:"token_budget,omitempty" validate:"omitempty,min=256"`

	// Timeout bounds the whole invocation. Zero means the server default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Candidate is a single artist/album suggestion emitted by a backend.
// It is mutable only during validation (confidence may be lowered when the
// reference lookup is unavailable) and frozen afterwards.
type Candidate struct {
	// Artist is the suggested artist name.
	Artist string `json:"artist"`

	// Album is the suggested release title; empty for artist-only suggestions.
	Album string `json:"album,omitempty"`

	// Confidence is the provider-supplied score in [0,1]. Treated as a
	// tie-breaker, never a hard gate.
	Confidence float64 `json:"confidence,omitempty"`

	// Rationale is the provider's free-text reason for the suggestion.
	Rationale string `json:"rationale,omitempty"`

	// Provider records which backend produced the candidate.
	Provider string `json:"provider,omitempty"`
}

// Key returns the normalized dedupe key for the candidate.
func (c Candidate) Key() string {
	if c.Album == "" {
		return NormalizeName(c.Artist)
	}
	return NormalizeName(c.Artist) + "|" + NormalizeName(c.Album)
}

// VerdictOutcome classifies the result of screening one candidate.
type VerdictOutcome int

const (
	// Accepted means the candidate passed all checks.
	Accepted VerdictOutcome = iota
	// RejectedDuplicate means the candidate is already owned or was suggested
	// within the cooldown window.
	RejectedDuplicate
	// RejectedHallucinated means the reference lookup succeeded and found no
	// trace of the candidate.
	RejectedHallucinated
	// RejectedMalformed means the candidate failed structural checks.
	RejectedMalformed
)

// String returns the wire name for the outcome.
func (o VerdictOutcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case RejectedDuplicate:
		return "rejected_duplicate"
	case RejectedHallucinated:
		return "rejected_hallucinated"
	case RejectedMalformed:
		return "rejected_malformed"
	default:
		return "unknown"
	}
}

// Verdict is the screening decision for one candidate.
type Verdict struct {
	Candidate Candidate      `json:"candidate"`
	Outcome   VerdictOutcome `json:"outcome"`

	// Evidence is a short human-readable justification (e.g. "library match",
	// "0 MusicBrainz matches").
	Evidence string `json:"evidence,omitempty"`

	// LookupMatches is the external reference match count, when a lookup ran.
	LookupMatches int `json:"lookup_matches,omitempty"`

	// LookupFailed marks candidates passed through fail-open because the
	// reference service was unavailable.
	LookupFailed bool `json:"lookup_failed,omitempty"`
}

// HistoryRecord is one entry in the cross-run suppression ledger.
type HistoryRecord struct {
	Artist          string    `json:"artist"`
	Title           string    `json:"title,omitempty"`
	LastSuggestedAt time.Time `json:"last_suggested_at"`
	TimesSuggested  int       `json:"times_suggested"`
}

// Diagnostics summarizes one invocation for the host. Rejection is normal
// operation, so rejected counts live here rather than in errors.
type Diagnostics struct {
	CorrelationID        string `json:"correlation_id"`
	Provider             string `json:"provider"`
	Mode                 string `json:"mode"`
	LibraryHash          string `json:"library_hash,omitempty"`
	Rounds               int    `json:"rounds"`
	CacheHit             bool   `json:"cache_hit"`
	Accepted             int    `json:"accepted"`
	RejectedDuplicate    int    `json:"rejected_duplicate"`
	RejectedHallucinated int    `json:"rejected_hallucinated"`
	RejectedMalformed    int    `json:"rejected_malformed"`
	LookupFailures       int    `json:"lookup_failures"`
	RoundFailures        int    `json:"round_failures"`
	MalformedPayloads    int    `json:"malformed_payloads"`
	PromptTokens         int    `json:"prompt_tokens"`
	CompletionTokens     int    `json:"completion_tokens"`
	Cancelled            bool   `json:"cancelled,omitempty"`
	Exhausted            bool   `json:"exhausted,omitempty"`
	Error                string `json:"error,omitempty"`
	ElapsedMS            int64  `json:"elapsed_ms"`
}

// CountVerdict folds one screening verdict into the diagnostics.
func (d *Diagnostics) CountVerdict(v Verdict) {
	switch v.Outcome {
	case Accepted:
		d.Accepted++
	case RejectedDuplicate:
		d.RejectedDuplicate++
	case RejectedHallucinated:
		d.RejectedHallucinated++
	case RejectedMalformed:
		d.RejectedMalformed++
	}
	if v.LookupFailed {
		d.LookupFailures++
	}
}
