// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/stayware/cloudsync/internal/logging"
)

// BadgerStore implements Store on an embedded BadgerDB. Keys are
// "<kind>:<id>" so each kind occupies its own prefix range and List can
// iterate with prefix seeks.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a BadgerDB at dir and wraps it in a
// BadgerStore. Badger's own logger is silenced; operational events surface
// through our structured logger instead.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}

	logging.Debug().Str("dir", dir).Msg("Record store opened")
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already-open BadgerDB.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func recordKey(kind, id string) []byte {
	return []byte(kind + ":" + id)
}

// Put creates or replaces the record under (kind, id).
func (s *BadgerStore) Put(ctx context.Context, kind, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", kind, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(kind, id), data)
	})
}

// Get loads the record under (kind, id) into v.
func (s *BadgerStore) Get(ctx context.Context, kind, id string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(kind, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s record: %w", kind, err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

// Delete removes the record under (kind, id). Deleting a missing record is
// not an error.
func (s *BadgerStore) Delete(ctx context.Context, kind, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(recordKey(kind, id))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete %s record: %w", kind, err)
		}
		return nil
	})
}

// List iterates all records of kind in key order.
func (s *BadgerStore) List(ctx context.Context, kind string, fn func(id string, data []byte) error) error {
	prefix := []byte(kind + ":")

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			id := string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				return fn(id, val)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Close flushes and closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
