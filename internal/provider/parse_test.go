// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

package provider

import (
	"errors"
	"testing"
)

func TestExtractCandidatesBareArray(t *testing.T) {
	text := `[{"artist": "Boards of Canada", "album": "Geogaddi", "confidence": 0.9, "reason": "warm analog textures"}]`

	cands, err := ExtractCandidates(text)
	if err != nil {
		t.Fatalf("ExtractCandidates: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	c := cands[0]
	if c.Artist != "Boards of Canada" || c.Album != "Geogaddi" {
		t.Errorf("unexpected candidate %+v", c)
	}
	if c.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", c.Confidence)
	}
	if c.Rationale != "warm analog textures" {
		t.Errorf("rationale = %q", c.Rationale)
	}
}

func TestExtractCandidatesSurroundingProse(t *testing.T) {
	text := "Sure! Based on your library, here are some suggestions:\n\n" +
		`[{"artist": "Stereolab", "title": "Dots and Loops"}, {"artist": "Broadcast", "title": "Tender Buttons"}]` +
		"\n\nEnjoy the music!"

	cands, err := ExtractCandidates(text)
	if err != nil {
		t.Fatalf("ExtractCandidates: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	// "title" maps onto Album.
	if cands[0].Album != "Dots and Loops" {
		t.Errorf("title alias not mapped: %+v", cands[0])
	}
}

func TestExtractCandidatesMarkdownFences(t *testing.T) {
	text := "Here you go:\n```json\n[{\"artist\": \"Can\", \"album\": \"Future Days\"}]\n```\n"

	cands, err := ExtractCandidates(text)
	if err != nil {
		t.Fatalf("ExtractCandidates: %v", err)
	}
	if len(cands) != 1 || cands[0].Artist != "Can" {
		t.Fatalf("unexpected result %+v", cands)
	}
}

func TestExtractCandidatesWrappedObject(t *testing.T) {
	text := `{"recommendations": [{"artist": "Neu!", "album": "Neu! 75", "rationale": "motorik pioneers"}]}`

	cands, err := ExtractCandidates(text)
	if err != nil {
		t.Fatalf("ExtractCandidates: %v", err)
	}
	if len(cands) != 1 || cands[0].Rationale != "motorik pioneers" {
		t.Fatalf("unexpected result %+v", cands)
	}
}

func TestExtractCandidatesSkipsNonJSONBrackets(t *testing.T) {
	text := `[note: these are great] Anyway: [{"artist": "Faust", "album": "Faust IV"}]`

	cands, err := ExtractCandidates(text)
	if err != nil {
		t.Fatalf("ExtractCandidates: %v", err)
	}
	if len(cands) != 1 || cands[0].Artist != "Faust" {
		t.Fatalf("unexpected result %+v", cands)
	}
}

func TestExtractCandidatesBracketsInsideStrings(t *testing.T) {
	text := `[{"artist": "Godspeed You! Black Emperor", "album": "Lift Your Skinny Fists [Like Antennas to Heaven]"}]`

	cands, err := ExtractCandidates(text)
	if err != nil {
		t.Fatalf("ExtractCandidates: %v", err)
	}
	if cands[0].Album != "Lift Your Skinny Fists [Like Antennas to Heaven]" {
		t.Fatalf("bracketed album title mangled: %q", cands[0].Album)
	}
}

func TestExtractCandidatesNoPayload(t *testing.T) {
	for _, text := range []string{
		"I cannot help with that request.",
		"",
		"[1, 2, 3]", // JSON, but not candidates
	} {
		_, err := ExtractCandidates(text)
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("ExtractCandidates(%q): expected ErrMalformedResponse, got %v", text, err)
		}
	}
}
