// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

type testRecord struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

// openTestBadger opens an in-memory Badger instance scoped to the test.
func openTestBadger(t *testing.T) *BadgerStore {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewBadgerStore(db)
}

// storeImpls returns the implementations under test keyed by name.
func storeImpls(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"badger": openTestBadger(t),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			want := testRecord{ID: "r1", Value: 42}
			if err := s.Put(ctx, "thing", "r1", want); err != nil {
				t.Fatalf("Put: %v", err)
			}

			var got testRecord
			if err := s.Get(ctx, "thing", "r1", &got); err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != want {
				t.Errorf("Get = %+v, want %+v", got, want)
			}
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()

	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			var got testRecord
			err := s.Get(context.Background(), "thing", "absent", &got)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Get missing = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.Put(ctx, "thing", "r1", testRecord{ID: "r1"}); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := s.Delete(ctx, "thing", "r1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}

			var got testRecord
			if err := s.Get(ctx, "thing", "r1", &got); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after delete = %v, want ErrNotFound", err)
			}

			// Deleting a missing record is not an error.
			if err := s.Delete(ctx, "thing", "r1"); err != nil {
				t.Errorf("Delete missing = %v, want nil", err)
			}
		})
	}
}

func TestStoreListKindIsolation(t *testing.T) {
	t.Parallel()

	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, id := range []string{"b", "a", "c"} {
				if err := s.Put(ctx, "thing", id, testRecord{ID: id}); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}
			if err := s.Put(ctx, "other", "x", testRecord{ID: "x"}); err != nil {
				t.Fatalf("Put other kind: %v", err)
			}

			var ids []string
			err := s.List(ctx, "thing", func(id string, data []byte) error {
				ids = append(ids, id)
				return nil
			})
			if err != nil {
				t.Fatalf("List: %v", err)
			}

			want := []string{"a", "b", "c"}
			if len(ids) != len(want) {
				t.Fatalf("List returned %v, want %v", ids, want)
			}
			for i := range want {
				if ids[i] != want[i] {
					t.Errorf("List[%d] = %q, want %q", i, ids[i], want[i])
				}
			}
		})
	}
}

func TestStoreListAbort(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("stop")

	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, id := range []string{"a", "b"} {
				if err := s.Put(ctx, "thing", id, testRecord{ID: id}); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}

			seen := 0
			err := s.List(ctx, "thing", func(id string, data []byte) error {
				seen++
				return wantErr
			})
			if !errors.Is(err, wantErr) {
				t.Errorf("List = %v, want %v", err, wantErr)
			}
			if seen != 1 {
				t.Errorf("callback ran %d times, want 1", seen)
			}
		})
	}
}
