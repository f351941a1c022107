// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

// Package prompt builds token-budgeted provider requests from a library
// snapshot. Construction is fully deterministic: identical snapshot, mode,
// counts, and budget produce byte-identical output, which the cache
// fingerprint depends on.
package prompt

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/crescendo-app/crescendo/internal/models"
	"github.com/crescendo-app/crescendo/internal/provider"
)

// Version tags the prompt construction scheme. Bump on any change that alters
// generated bytes so stale cache entries stop matching.
const Version = "v1"

// ErrBudgetExceeded is returned when the instructions alone do not fit the
// token budget. This is an input error, not a retry condition.
var ErrBudgetExceeded = errors.New("prompt token budget exceeded")

// headroomPercent of the budget is reserved for instructions and output
// space; only the remainder is available for the library excerpt.
const headroomPercent = 30

// maxAlbumsPerEntry bounds how many owned releases one excerpt line lists.
const maxAlbumsPerEntry = 3

// Build samples the snapshot into a provider request. sampleSize is how many
// library entries to aim for before budget truncation; the excerpt is cut at
// entry boundaries, never mid-entry.
func Build(snapshot *models.LibrarySnapshot, mode models.DiscoveryMode, targetCount, tokenBudget, sampleSize int) (provider.Request, error) {
	if !mode.Valid() {
		mode = models.ModeSimilar
	}

	system := instructions(mode, targetCount)

	excerptBudget := tokenBudget * (100 - headroomPercent) / 100
	reserved := tokenBudget - excerptBudget
	if EstimateTokens(system) > reserved {
		return provider.Request{}, fmt.Errorf("%w: instructions need %d tokens, budget reserves %d",
			ErrBudgetExceeded, EstimateTokens(system), reserved)
	}

	excerpt := buildExcerpt(snapshot, sampleSize, excerptBudget)

	var user strings.Builder
	user.WriteString("Here is a sample of my music library:\n\n")
	user.WriteString(excerpt)
	user.WriteString(fmt.Sprintf("\nRecommend %d albums I do not own.", targetCount))

	return provider.Request{
		System:      system,
		User:        user.String(),
		MaxTokens:   completionTokens(targetCount),
		Temperature: temperature(mode),
	}, nil
}

// buildExcerpt renders up to sampleSize library entries, proportionally
// across genres, truncated deterministically at entry boundaries when the
// budget runs out.
func buildExcerpt(snapshot *models.LibrarySnapshot, sampleSize, budget int) string {
	sampled := sample(snapshot, sampleSize)

	var b strings.Builder
	used := 0
	for _, a := range sampled {
		line := renderEntry(a)
		cost := EstimateTokens(line)
		if used+cost > budget {
			break
		}
		b.WriteString(line)
		used += cost
	}
	return b.String()
}

// sample selects up to n artists with proportional representation across
// primary genres. Genres and artists are visited in sorted order so the
// selection is stable.
func sample(snapshot *models.LibrarySnapshot, n int) []models.Artist {
	if n <= 0 || len(snapshot.Artists) == 0 {
		return nil
	}

	byGenre := make(map[string][]models.Artist)
	for _, a := range snapshot.Artists {
		g := a.PrimaryGenre()
		byGenre[g] = append(byGenre[g], a)
	}

	genres := make([]string, 0, len(byGenre))
	for g := range byGenre {
		sort.Slice(byGenre[g], func(i, j int) bool {
			gi := byGenre[g]
			return models.NormalizeName(gi[i].Name) < models.NormalizeName(gi[j].Name)
		})
		genres = append(genres, g)
	}
	sort.Strings(genres)

	// Round-robin across genres, one artist per genre per pass. Larger genres
	// stay in rotation longer, so representation tracks genre size.
	out := make([]models.Artist, 0, n)
	for pass := 0; len(out) < n; pass++ {
		took := false
		for _, g := range genres {
			if pass < len(byGenre[g]) {
				out = append(out, byGenre[g][pass])
				took = true
				if len(out) == n {
					break
				}
			}
		}
		if !took {
			break
		}
	}
	return out
}

// renderEntry formats one artist as a single excerpt line.
func renderEntry(a models.Artist) string {
	var b strings.Builder
	b.WriteString("- ")
	b.WriteString(a.Name)
	b.WriteString(" (")
	b.WriteString(a.PrimaryGenre())
	b.WriteString(")")

	if len(a.Albums) > 0 {
		titles := make([]string, 0, maxAlbumsPerEntry)
		for i, album := range a.Albums {
			if i == maxAlbumsPerEntry {
				break
			}
			titles = append(titles, album.Title)
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(titles, ", "))
	}
	b.WriteString("\n")
	return b.String()
}

// instructions returns the system preamble for the discovery mode, including
// the output schema the parser expects.
func instructions(mode models.DiscoveryMode, targetCount int) string {
	var ask string
	switch mode {
	case models.ModeAdjacent:
		ask = "Recommend albums from genres and scenes neighboring the listener's taste, not more of the same."
	case models.ModeExploratory:
		ask = "Recommend albums from deliberately unfamiliar territory the listener likely never encountered."
	default:
		ask = "Recommend albums closely matched to the listener's demonstrated taste."
	}

	return fmt.Sprintf(`You are a music recommendation engine. %s
Only recommend real, released albums. Never invent artists or titles.
Do not recommend anything already in the listener's library.
Respond with a JSON array of exactly %d objects, no other text:
[{"artist": "...", "album": "...", "confidence": 0.0, "rationale": "..."}]
confidence is your certainty in [0,1] that the album exists and fits.`, ask, targetCount)
}

// temperature steers sampling per mode; more adventurous modes run hotter.
func temperature(mode models.DiscoveryMode) float64 {
	switch mode {
	case models.ModeAdjacent:
		return 0.8
	case models.ModeExploratory:
		return 1.0
	default:
		return 0.6
	}
}

// completionTokens sizes the output allowance to the requested count.
func completionTokens(targetCount int) int {
	n := targetCount * 60
	if n < 512 {
		return 512
	}
	if n > 2048 {
		return 2048
	}
	return n
}

// EstimateTokens approximates the token count of a string. Backends tokenize
// differently; ~4 bytes per token is a serviceable upper-bound heuristic.
func EstimateTokens(s string) int {
	return len(s)/4 + 1
}
