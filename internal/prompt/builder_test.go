// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

package prompt

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/crescendo-app/crescendo/internal/models"
)

func testSnapshot() *models.LibrarySnapshot {
	snap := &models.LibrarySnapshot{}
	for i := 0; i < 30; i++ {
		snap.Artists = append(snap.Artists, models.Artist{
			Name:   fmt.Sprintf("Rock Artist %02d", i),
			Genres: []string{"rock"},
			Albums: []models.Album{{Title: fmt.Sprintf("Album %02d", i)}},
		})
	}
	for i := 0; i < 10; i++ {
		snap.Artists = append(snap.Artists, models.Artist{
			Name:   fmt.Sprintf("Jazz Artist %02d", i),
			Genres: []string{"jazz"},
		})
	}
	return snap
}

func TestBuildDeterministic(t *testing.T) {
	snap := testSnapshot()

	r1, err := Build(snap, models.ModeSimilar, 10, 4000, 20)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r2, err := Build(snap, models.ModeSimilar, 10, 4000, 20)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if r1.System != r2.System || r1.User != r2.User {
		t.Fatal("identical inputs must produce byte-identical prompts")
	}
}

func TestBuildDeterministicAcrossInputOrder(t *testing.T) {
	snap := testSnapshot()

	shuffled := &models.LibrarySnapshot{Artists: make([]models.Artist, len(snap.Artists))}
	copy(shuffled.Artists, snap.Artists)
	for i, j := 0, len(shuffled.Artists)-1; i < j; i, j = i+1, j-1 {
		shuffled.Artists[i], shuffled.Artists[j] = shuffled.Artists[j], shuffled.Artists[i]
	}

	r1, _ := Build(snap, models.ModeSimilar, 10, 4000, 20)
	r2, _ := Build(shuffled, models.ModeSimilar, 10, 4000, 20)
	if r1.User != r2.User {
		t.Fatal("artist input order must not affect the excerpt")
	}
}

func TestBuildRespectsBudget(t *testing.T) {
	snap := testSnapshot()

	for _, budget := range []int{1500, 2000, 4000, 16000} {
		req, err := Build(snap, models.ModeSimilar, 10, budget, 1000)
		if err != nil {
			t.Fatalf("Build(budget=%d): %v", budget, err)
		}
		total := EstimateTokens(req.System) + EstimateTokens(req.User)
		if total > budget {
			t.Errorf("budget %d: prompt estimates %d tokens", budget, total)
		}
	}
}

func TestBuildBudgetTooSmall(t *testing.T) {
	_, err := Build(testSnapshot(), models.ModeSimilar, 10, 100, 20)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("got %v, want ErrBudgetExceeded", err)
	}
}

func TestBuildNeverTruncatesMidEntry(t *testing.T) {
	snap := testSnapshot()

	// A budget that can only fit a handful of entries.
	req, err := Build(snap, models.ModeSimilar, 10, 1600, 1000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, line := range strings.Split(req.User, "\n") {
		if strings.HasPrefix(line, "- ") && !strings.Contains(line, "(") {
			t.Errorf("entry truncated mid-line: %q", line)
		}
	}
}

func TestSampleProportionalAcrossGenres(t *testing.T) {
	snap := testSnapshot() // 30 rock, 10 jazz

	picked := sample(snap, 12)
	if len(picked) != 12 {
		t.Fatalf("sampled %d, want 12", len(picked))
	}

	jazz := 0
	for _, a := range picked {
		if a.PrimaryGenre() == "jazz" {
			jazz++
		}
	}
	// Round-robin keeps the minority genre represented.
	if jazz == 0 {
		t.Error("minority genre absent from sample")
	}
	if jazz == len(picked) {
		t.Error("majority genre absent from sample")
	}
}

func TestSampleCapsAtLibrarySize(t *testing.T) {
	snap := &models.LibrarySnapshot{Artists: []models.Artist{
		{Name: "Only One", Genres: []string{"folk"}},
	}}

	picked := sample(snap, 50)
	if len(picked) != 1 {
		t.Fatalf("sampled %d, want 1", len(picked))
	}
}

func TestBuildModeInstructionsDiffer(t *testing.T) {
	snap := testSnapshot()

	similar, _ := Build(snap, models.ModeSimilar, 5, 4000, 10)
	exploratory, _ := Build(snap, models.ModeExploratory, 5, 4000, 10)

	if similar.System == exploratory.System {
		t.Error("modes should produce different instructions")
	}
	if exploratory.Temperature <= similar.Temperature {
		t.Error("exploratory mode should run hotter")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 1 {
		t.Errorf("empty = %d", got)
	}
	if got := EstimateTokens(strings.Repeat("a", 400)); got != 101 {
		t.Errorf("400 bytes = %d, want 101", got)
	}
}
