// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

package validation

import (
	"context"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/crescendo-app/crescendo/internal/logging"
	"github.com/crescendo-app/crescendo/internal/metrics"
	"github.com/crescendo-app/crescendo/internal/models"
)

// Length caps for candidate fields. Anything longer is model noise, not a
// plausible artist or album name.
const (
	maxArtistLen = 200
	maxAlbumLen  = 300
)

// lookupFailurePenalty is multiplied into the confidence of candidates passed
// through fail-open when the reference service was unavailable.
const lookupFailurePenalty = 0.5

// Lookup is the external reference search used for existence checks.
type Lookup interface {
	SearchArtist(ctx context.Context, artist string) (int, error)
	SearchRelease(ctx context.Context, artist, title string) (int, error)
}

// History answers whether an item was suggested within the cooldown window.
type History interface {
	HasRecent(artist, title string, cooldown time.Duration) (bool, error)
}

// Screener decides the fate of each candidate: structural checks first, then
// duplicate suppression against the library, the cross-run history, and the
// current invocation, then an existence check against the reference lookup.
// A failed lookup never rejects; the candidate passes through with lowered
// confidence.
type Screener struct {
	lookup   Lookup
	history  History
	cooldown time.Duration
}

// NewScreener creates a screener. cooldown bounds the history suppression
// window.
func NewScreener(lookup Lookup, history History, cooldown time.Duration) *Screener {
	return &Screener{
		lookup:   lookup,
		history:  history,
		cooldown: cooldown,
	}
}

// Screen judges one candidate. seen is the within-invocation dedupe set,
// keyed by Candidate.Key; accepted and duplicate keys are added to it.
func (s *Screener) Screen(ctx context.Context, c models.Candidate, snapshot *models.LibrarySnapshot, seen map[string]struct{}) models.Verdict {
	v := s.screen(ctx, c, snapshot, seen)
	metrics.ValidationVerdicts.WithLabelValues(v.Outcome.String()).Inc()
	return v
}

// ScreenAll judges candidates in order, threading the seen set through so a
// batch containing the same suggestion twice accepts it only once.
func (s *Screener) ScreenAll(ctx context.Context, cands []models.Candidate, snapshot *models.LibrarySnapshot, seen map[string]struct{}) []models.Verdict {
	out := make([]models.Verdict, 0, len(cands))
	for _, c := range cands {
		out = append(out, s.Screen(ctx, c, snapshot, seen))
	}
	return out
}

func (s *Screener) screen(ctx context.Context, c models.Candidate, snapshot *models.LibrarySnapshot, seen map[string]struct{}) models.Verdict {
	if reason := structuralProblem(c); reason != "" {
		return models.Verdict{Candidate: c, Outcome: models.RejectedMalformed, Evidence: reason}
	}
	c.Confidence = clamp01(c.Confidence)

	key := c.Key()
	if _, dup := seen[key]; dup {
		return models.Verdict{Candidate: c, Outcome: models.RejectedDuplicate, Evidence: "repeated within invocation"}
	}
	if snapshot.Contains(c.Artist, c.Album) {
		seen[key] = struct{}{}
		return models.Verdict{Candidate: c, Outcome: models.RejectedDuplicate, Evidence: "library match"}
	}
	if s.history != nil {
		recent, err := s.history.HasRecent(c.Artist, c.Album, s.cooldown)
		if err != nil {
			// Unreadable history degrades to empty, never to a rejection.
			logging.Warn().Err(err).Str("artist", c.Artist).Msg("history read failed")
		} else if recent {
			seen[key] = struct{}{}
			return models.Verdict{Candidate: c, Outcome: models.RejectedDuplicate, Evidence: "suggested within cooldown"}
		}
	}

	matches, err := s.exists(ctx, c)
	if err != nil {
		// Fail open: an unavailable reference service must not starve output.
		c.Confidence = clamp01(c.Confidence * lookupFailurePenalty)
		seen[key] = struct{}{}
		return models.Verdict{
			Candidate:    c,
			Outcome:      models.Accepted,
			Evidence:     "reference lookup unavailable",
			LookupFailed: true,
		}
	}
	if matches == 0 {
		// Remember the key so a later round re-suggesting the same
		// fabrication is dropped as a repeat instead of re-screened.
		seen[key] = struct{}{}
		return models.Verdict{
			Candidate: c,
			Outcome:   models.RejectedHallucinated,
			Evidence:  "0 reference matches",
		}
	}

	seen[key] = struct{}{}
	return models.Verdict{
		Candidate:     c,
		Outcome:       models.Accepted,
		Evidence:      fmt.Sprintf("%d reference matches", matches),
		LookupMatches: matches,
	}
}

// exists queries the reference lookup. Album suggestions search the release
// index; artist-only suggestions search the artist index.
func (s *Screener) exists(ctx context.Context, c models.Candidate) (int, error) {
	if s.lookup == nil {
		return 0, fmt.Errorf("no reference lookup configured")
	}
	if c.Album != "" {
		return s.lookup.SearchRelease(ctx, c.Artist, c.Album)
	}
	return s.lookup.SearchArtist(ctx, c.Artist)
}

// structuralProblem returns a rejection reason for malformed candidates, or
// "" when the candidate is structurally sound. Scanning is explicit
// character-class work; no regex.
func structuralProblem(c models.Candidate) string {
	if models.NormalizeName(c.Artist) == "" {
		return "empty artist"
	}
	if utf8.RuneCountInString(c.Artist) > maxArtistLen {
		return "artist name implausibly long"
	}
	if utf8.RuneCountInString(c.Album) > maxAlbumLen {
		return "album title implausibly long"
	}
	if hasControlChars(c.Artist) || hasControlChars(c.Album) {
		return "control characters in name"
	}
	return ""
}

// hasControlChars reports whether s contains control characters.
func hasControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
