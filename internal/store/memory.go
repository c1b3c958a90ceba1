// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"
)

// MemoryStore is an in-memory Store used by tests and available as a
// storage backend for ephemeral deployments. Behavior mirrors BadgerStore:
// records round-trip through JSON and List yields key order.
type MemoryStore struct {
	mu    sync.RWMutex
	kinds map[string]map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{kinds: make(map[string]map[string][]byte)}
}

// Put creates or replaces the record under (kind, id).
func (s *MemoryStore) Put(ctx context.Context, kind, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.kinds[kind]
	if !ok {
		records = make(map[string][]byte)
		s.kinds[kind] = records
	}
	records[id] = data
	return nil
}

// Get loads the record under (kind, id) into v.
func (s *MemoryStore) Get(ctx context.Context, kind, id string, v any) error {
	s.mu.RLock()
	data, ok := s.kinds[kind][id]
	s.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// Delete removes the record under (kind, id).
func (s *MemoryStore) Delete(ctx context.Context, kind, id string) error {
	s.mu.Lock()
	delete(s.kinds[kind], id)
	s.mu.Unlock()
	return nil
}

// List iterates all records of kind in id order. The iteration works on a
// snapshot so callbacks may write back into the store.
func (s *MemoryStore) List(ctx context.Context, kind string, fn func(id string, data []byte) error) error {
	s.mu.RLock()
	records := s.kinds[kind]
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	snapshot := make(map[string][]byte, len(records))
	for id, data := range records {
		snapshot[id] = data
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id, snapshot[id]); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
