// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

package models

import "testing"

func TestNormalizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"The Beatles", "the beatles"},
		{"  the   BEATLES  ", "the beatles"},
		{"Sigur Rós", "sigur rós"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := NormalizeName(tc.in); got != tc.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSnapshotHashOrderInsensitive(t *testing.T) {
	a := &LibrarySnapshot{Artists: []Artist{
		{Name: "Low", Albums: []Album{{Title: "Secret Name"}, {Title: "Drums and Guns"}}},
		{Name: "Slint", Albums: []Album{{Title: "Spiderland"}}},
	}}
	b := &LibrarySnapshot{Artists: []Artist{
		{Name: "Slint", Albums: []Album{{Title: "Spiderland"}}},
		{Name: "Low", Albums: []Album{{Title: "Drums and Guns"}, {Title: "Secret Name"}}},
	}}

	if a.Hash() != b.Hash() {
		t.Error("input order must not change the snapshot hash")
	}

	c := &LibrarySnapshot{Artists: []Artist{
		{Name: "Slint", Albums: []Album{{Title: "Tweez"}}},
	}}
	if a.Hash() == c.Hash() {
		t.Error("different content must change the snapshot hash")
	}
}

func TestSnapshotContains(t *testing.T) {
	snap := &LibrarySnapshot{Artists: []Artist{
		{Name: "Boards of Canada", Albums: []Album{{Title: "Music Has the Right to Children"}}},
	}}

	if !snap.Contains("boards of canada", "MUSIC HAS THE RIGHT TO CHILDREN") {
		t.Error("normalized artist+album should match")
	}
	if !snap.Contains("Boards of Canada", "") {
		t.Error("artist-only query should match")
	}
	if snap.Contains("Boards of Canada", "Geogaddi") {
		t.Error("unowned album should not match")
	}
	if snap.Contains("Autechre", "") {
		t.Error("unknown artist should not match")
	}
}

func TestCandidateKey(t *testing.T) {
	c := Candidate{Artist: " The  Field ", Album: "From Here We Go Sublime"}
	if c.Key() != "the field|from here we go sublime" {
		t.Errorf("Key() = %q", c.Key())
	}

	artistOnly := Candidate{Artist: "Burial"}
	if artistOnly.Key() != "burial" {
		t.Errorf("Key() = %q", artistOnly.Key())
	}
}

func TestDiscoveryModeValid(t *testing.T) {
	for _, m := range []DiscoveryMode{ModeSimilar, ModeAdjacent, ModeExploratory} {
		if !m.Valid() {
			t.Errorf("%q should be valid", m)
		}
	}
	if DiscoveryMode("aggressive").Valid() {
		t.Error("unknown mode accepted")
	}
}

func TestDiagnosticsCountVerdict(t *testing.T) {
	var d Diagnostics
	d.CountVerdict(Verdict{Outcome: Accepted})
	d.CountVerdict(Verdict{Outcome: Accepted, LookupFailed: true})
	d.CountVerdict(Verdict{Outcome: RejectedDuplicate})
	d.CountVerdict(Verdict{Outcome: RejectedHallucinated})
	d.CountVerdict(Verdict{Outcome: RejectedMalformed})

	if d.Accepted != 2 || d.RejectedDuplicate != 1 || d.RejectedHallucinated != 1 || d.RejectedMalformed != 1 {
		t.Errorf("counts wrong: %+v", d)
	}
	if d.LookupFailures != 1 {
		t.Errorf("LookupFailures = %d", d.LookupFailures)
	}
}

func TestVerdictOutcomeString(t *testing.T) {
	cases := map[VerdictOutcome]string{
		Accepted:             "accepted",
		RejectedDuplicate:    "rejected_duplicate",
		RejectedHallucinated: "rejected_hallucinated",
		RejectedMalformed:    "rejected_malformed",
	}
	for o, want := range cases {
		if o.String() != want {
			t.Errorf("String() = %q, want %q", o.String(), want)
		}
	}
}
