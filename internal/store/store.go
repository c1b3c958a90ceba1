// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

// Package store provides the embedded record store backing accounts,
// properties, webhook registrations, and the sync log. Records are JSON
// documents keyed by (kind, id); BadgerDB is the durable implementation
// and MemoryStore backs tests.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no record exists for the given kind and id.
var ErrNotFound = errors.New("store: record not found")

// Store is the persistence interface shared by all record kinds.
//
// Put marshals v and writes it under (kind, id), creating or replacing.
// Get unmarshals the record into v, which must be a pointer.
// List streams every record of a kind in key order; the callback receives
// the raw JSON and may return an error to abort iteration.
type Store interface {
	Put(ctx context.Context, kind, id string, v any) error
	Get(ctx context.Context, kind, id string, v any) error
	Delete(ctx context.Context, kind, id string) error
	List(ctx context.Context, kind string, fn func(id string, data []byte) error) error
	Close() error
}
