// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

package provider

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/crescendo-app/crescendo/internal/models"
)

// candidateWire tolerates the field-name drift seen across backends:
// "album" vs "title", "reason" vs "rationale".
type candidateWire struct {
	Artist     string  `json:"artist"`
	Album      string  `json:"album"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Rationale  string  `json:"rationale"`
}

// wireObject tolerates responses that wrap the array in an object.
type wireObject struct {
	Recommendations []candidateWire `json:"recommendations"`
	Items           []candidateWire `json:"items"`
}

// ExtractCandidates parses free-form model output into candidates. Models
// routinely surround the payload with prose or markdown fences, so the parser
// scans for the first well-formed JSON array (or wrapping object) and ignores
// everything around it.
func ExtractCandidates(text string) ([]models.Candidate, error) {
	text = stripFences(text)

	// Prefer a bare array. Prose may contain bracketed text that balances
	// but is not JSON, so scan forward past failed attempts (bounded).
	rest := text
	for attempt := 0; attempt < 8; attempt++ {
		payload, offset, ok := firstBalanced(rest, '[', ']')
		if !ok {
			break
		}
		var wires []candidateWire
		if err := json.Unmarshal([]byte(payload), &wires); err == nil {
			if out, err := fromWire(wires); err == nil {
				return out, nil
			}
		}
		rest = rest[offset+1:]
	}

	// Fall back to an object wrapping the array.
	if payload, _, ok := firstBalanced(text, '{', '}'); ok {
		var obj wireObject
		if err := json.Unmarshal([]byte(payload), &obj); err == nil {
			if len(obj.Recommendations) > 0 {
				return fromWire(obj.Recommendations)
			}
			if len(obj.Items) > 0 {
				return fromWire(obj.Items)
			}
		}
	}

	return nil, fmt.Errorf("%w: no JSON payload found in %d bytes of output", ErrMalformedResponse, len(text))
}

// fromWire converts wire candidates. Entries are kept even when structurally
// suspect; screening classifies and counts them later.
func fromWire(wires []candidateWire) ([]models.Candidate, error) {
	out := make([]models.Candidate, 0, len(wires))
	for _, w := range wires {
		album := w.Album
		if album == "" {
			album = w.Title
		}
		rationale := w.Rationale
		if rationale == "" {
			rationale = w.Reason
		}
		out = append(out, models.Candidate{
			Artist:     strings.TrimSpace(w.Artist),
			Album:      strings.TrimSpace(album),
			Confidence: w.Confidence,
			Rationale:  strings.TrimSpace(rationale),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty candidate array", ErrMalformedResponse)
	}
	return out, nil
}

// stripFences removes markdown code fences, keeping their contents.
func stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// firstBalanced returns the first balanced open..close region of the text
// and the region's start offset, tracking JSON string boundaries so brackets
// inside strings don't count. Linear single pass; no backtracking.
func firstBalanced(text string, open, close byte) (string, int, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case open:
			if start < 0 {
				start = i
			}
			depth++
		case close:
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return text[start : i+1], start, true
			}
		}
	}
	return "", 0, false
}
