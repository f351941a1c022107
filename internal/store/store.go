// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

// Package store persists the recommendation cache and the cross-run
// suggestion history in an embedded Badger database. Both tolerate a cold
// start (absent database = empty state) and degrade corrupt records to
// absence rather than failure.
package store

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/crescendo-app/crescendo/internal/logging"
)

// Key prefixes. One database holds both keyspaces.
const (
	cachePrefix   = "reccache:"
	historyPrefix = "history:"
)

// Options configures the embedded database.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all state in memory; used by tests.
	InMemory bool
}

// Store owns the Badger database shared by the cache and history keyspaces.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path)
	}
	// Badger's own logger is chatty at INFO; route through ours at the
	// levels that matter.
	bopts = bopts.WithLogger(badgerLogger{})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open store at %q: %w", opts.Path, err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC performs one value-log garbage collection pass. Badger asks callers
// to do this periodically; ErrNoRewrite just means there was nothing to do.
func (s *Store) RunGC() {
	for {
		if err := s.db.RunValueLogGC(0.5); err != nil {
			return
		}
	}
}

// badgerLogger adapts Badger's logger interface onto ours.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, args ...interface{}) {
	logging.Error().Msgf("badger: "+f, args...)
}
func (badgerLogger) Warningf(f string, args ...interface{}) {
	logging.Warn().Msgf("badger: "+f, args...)
}
func (badgerLogger) Infof(f string, args ...interface{})  {}
func (badgerLogger) Debugf(f string, args ...interface{}) {}
