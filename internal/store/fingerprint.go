// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

package store

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/crescendo-app/crescendo/internal/models"
	"github.com/crescendo-app/crescendo/internal/prompt"
)

// Fingerprint derives the deterministic cache key for one invocation shape.
// The prompt construction version is part of the key so that prompt changes
// invalidate cached results instead of serving entries built under different
// rules.
func Fingerprint(libraryHash, providerID string, mode models.DiscoveryMode, targetCount int) string {
	material := strings.Join([]string{
		libraryHash,
		providerID,
		string(mode),
		fmt.Sprintf("%d", targetCount),
		prompt.Version,
	}, "|")

	sum := sha256.Sum256([]byte(material))
	return fmt.Sprintf("%x", sum[:16])
}
