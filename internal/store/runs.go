package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const runPrefix = "run:"

// runKey orders lexically by start time: fixed-width nanoseconds, then run ID.
func runKey(r *RunRecord) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", runPrefix, r.StartedAt.UnixNano(), r.ID))
}

// SaveRun stores a run summary in BadgerDB, expiring after the history TTL
func (s *Store) SaveRun(ctx context.Context, r *RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	return s.badger.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(runKey(r), data)
		if s.historyTTL > 0 {
			e = e.WithTTL(s.historyTTL)
		}
		return txn.SetEntry(e)
	})
}

// ListRuns returns up to limit run summaries, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	runs := make([]RunRecord, 0, limit)
	err := s.badger.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(runPrefix + "\xff")); it.Valid() && len(runs) < limit; it.Next() {
			var r RunRecord
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &r)
			}); err != nil {
				return fmt.Errorf("failed to decode run %s: %w", it.Item().Key(), err)
			}
			runs = append(runs, r)
		}
		return nil
	})
	return runs, err
}
