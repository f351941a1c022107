// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

package store

import (
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/crescendo-app/crescendo/internal/logging"
	"github.com/crescendo-app/crescendo/internal/models"
)

// HistoryStore is the cross-run suppression ledger. Writes are upserts; a
// record that cannot be decoded is treated as absent.
type HistoryStore struct {
	store *Store
}

// NewHistoryStore creates a history store over the shared database.
func NewHistoryStore(store *Store) *HistoryStore {
	return &HistoryStore{store: store}
}

// historyKey builds the normalized ledger key for an item.
func historyKey(artist, title string) []byte {
	return []byte(historyPrefix + models.NormalizeName(artist) + "|" + models.NormalizeName(title))
}

// HasRecent reports whether the item was suggested within the cooldown
// window. Absent and corrupt records both answer false.
func (h *HistoryStore) HasRecent(artist, title string, cooldown time.Duration) (bool, error) {
	var raw []byte
	err := h.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(historyKey(artist, title))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read history: %w", err)
	}

	var rec models.HistoryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		logging.Warn().Err(err).Str("artist", artist).Msg("corrupt history record ignored")
		return false, nil
	}
	return time.Since(rec.LastSuggestedAt) < cooldown, nil
}

// Record upserts the ledger entry for an item, bumping its suggestion count.
func (h *HistoryStore) Record(artist, title string) error {
	key := historyKey(artist, title)
	now := time.Now().UTC()

	return h.store.db.Update(func(txn *badger.Txn) error {
		rec := models.HistoryRecord{Artist: artist, Title: title}

		item, err := txn.Get(key)
		if err == nil {
			raw, err := item.ValueCopy(nil)
			if err == nil {
				var prev models.HistoryRecord
				if json.Unmarshal(raw, &prev) == nil {
					rec = prev
				}
			}
		} else if err != badger.ErrKeyNotFound {
			return fmt.Errorf("read history for upsert: %w", err)
		}

		rec.LastSuggestedAt = now
		rec.TimesSuggested++

		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode history record: %w", err)
		}
		return txn.Set(key, raw)
	})
}

// ListRecent returns up to limit records, most recently suggested first.
// Corrupt records are skipped.
func (h *HistoryStore) ListRecent(limit int) ([]models.HistoryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	prefix := []byte(historyPrefix)

	var out []models.HistoryRecord
	err := h.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec models.HistoryRecord
			if json.Unmarshal(raw, &rec) != nil {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSuggestedAt.After(out[j].LastSuggestedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
