// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

// Package synclog maintains the append-only log of tracked operations: API
// calls, webhook deliveries, token refreshes, and sync units. Every entry
// moves through a small state machine
//
//	pending -> processing -> {success | partial | error | skipped}
//	error -> retry -> pending
//
// and failed entries are re-run in place: a retry transitions the same
// record back to pending with retry_count incremented, rather than
// appending a duplicate entry.
package synclog

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/stayware/cloudsync/internal/logging"
	"github.com/stayware/cloudsync/internal/models"
	"github.com/stayware/cloudsync/internal/store"
)

// SnapshotLimit bounds stored request/response snapshots.
const SnapshotLimit = 8 * 1024

// DefaultRetention is how long entries are kept before Purge removes them.
const DefaultRetention = 30 * 24 * time.Hour

// Recorder creates and transitions sync log entries.
type Recorder struct {
	store      store.Store
	maxRetries int
	now        func() time.Time
}

// NewRecorder creates a Recorder. maxRetries is the default retry budget
// stamped onto new entries.
func NewRecorder(s store.Store, maxRetries int) *Recorder {
	return &Recorder{
		store:      s,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// Begin appends a new entry in the processing state and returns it. The
// caller completes it with one of the Mark methods.
func (r *Recorder) Begin(ctx context.Context, op models.OperationType, accountID, propertyID, target string) (*models.SyncLogEntry, error) {
	now := r.now().UTC()
	entry := &models.SyncLogEntry{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		PropertyID: propertyID,
		Operation:  op,
		Target:     target,
		Status:     models.SyncProcessing,
		CreatedAt:  now,
		StartedAt:  now,
		MaxRetries: r.maxRetries,
	}

	if err := r.store.Put(ctx, models.KindSyncLog, entry.ID, entry); err != nil {
		return nil, fmt.Errorf("append sync log entry: %w", err)
	}
	return entry, nil
}

// MarkSuccess completes an entry successfully.
func (r *Recorder) MarkSuccess(ctx context.Context, entry *models.SyncLogEntry) error {
	return r.complete(ctx, entry, models.SyncSuccess)
}

// MarkPartial completes an entry that succeeded for some units and failed
// for others.
func (r *Recorder) MarkPartial(ctx context.Context, entry *models.SyncLogEntry, message string) error {
	entry.ErrorMessage = message
	return r.complete(ctx, entry, models.SyncPartial)
}

// MarkSkipped completes an entry that was deliberately not processed, for
// example a duplicate webhook delivery.
func (r *Recorder) MarkSkipped(ctx context.Context, entry *models.SyncLogEntry, reason string) error {
	entry.ErrorMessage = reason
	return r.complete(ctx, entry, models.SyncSkipped)
}

// MarkError completes an entry as failed. If the entry has retry budget
// left it transitions to retry with the next attempt scheduled at
// now + 2^retry_count minutes; otherwise it stays in the terminal error
// state.
func (r *Recorder) MarkError(ctx context.Context, entry *models.SyncLogEntry, opErr error) error {
	if opErr != nil {
		entry.ErrorMessage = opErr.Error()
	}

	if entry.RetryCount < entry.MaxRetries {
		return r.scheduleRetry(ctx, entry)
	}
	return r.complete(ctx, entry, models.SyncError)
}

// scheduleRetry moves a failed entry into the retry state. The backoff
// doubles per attempt: 1, 2, 4, 8 minutes.
func (r *Recorder) scheduleRetry(ctx context.Context, entry *models.SyncLogEntry) error {
	now := r.now().UTC()
	backoff := time.Duration(math.Pow(2, float64(entry.RetryCount))) * time.Minute

	entry.Status = models.SyncRetry
	entry.CompletedAt = now
	entry.NextRetry = now.Add(backoff)
	if !entry.StartedAt.IsZero() {
		entry.DurationMs = now.Sub(entry.StartedAt).Milliseconds()
	}

	if err := r.store.Put(ctx, models.KindSyncLog, entry.ID, entry); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}

	logging.Debug().
		Str("entry_id", entry.ID).
		Str("target", entry.Target).
		Int("retry_count", entry.RetryCount).
		Time("next_retry", entry.NextRetry).
		Msg("Sync log entry scheduled for retry")
	return nil
}

// Reopen transitions a retry-scheduled entry back to processing for its
// next attempt, incrementing retry_count on the same record.
func (r *Recorder) Reopen(ctx context.Context, entry *models.SyncLogEntry) error {
	now := r.now().UTC()

	entry.Status = models.SyncProcessing
	entry.RetryCount++
	entry.StartedAt = now
	entry.CompletedAt = time.Time{}
	entry.NextRetry = time.Time{}
	entry.DurationMs = 0

	if err := r.store.Put(ctx, models.KindSyncLog, entry.ID, entry); err != nil {
		return fmt.Errorf("reopen sync log entry: %w", err)
	}
	return nil
}

func (r *Recorder) complete(ctx context.Context, entry *models.SyncLogEntry, status models.SyncStatus) error {
	now := r.now().UTC()

	entry.Status = status
	entry.CompletedAt = now
	entry.NextRetry = time.Time{}
	if !entry.StartedAt.IsZero() {
		entry.DurationMs = now.Sub(entry.StartedAt).Milliseconds()
	}

	if err := r.store.Put(ctx, models.KindSyncLog, entry.ID, entry); err != nil {
		return fmt.Errorf("complete sync log entry: %w", err)
	}
	return nil
}

// AttachSnapshots stores bounded request/response snapshots on the entry.
// The entry is persisted by the next Mark call.
func AttachSnapshots(entry *models.SyncLogEntry, request, response []byte) {
	entry.RequestSnapshot = Truncate(request)
	entry.ResponseSnapshot = Truncate(response)
}

// AttachPayload stores the complete request body on the entry. Entries
// that are re-driven from their snapshot (webhook deliveries) must keep
// the whole payload; a truncated one would replay as broken JSON.
func AttachPayload(entry *models.SyncLogEntry, body []byte) {
	entry.RequestSnapshot = string(body)
}

// Truncate bounds a snapshot at SnapshotLimit bytes.
func Truncate(data []byte) string {
	if len(data) <= SnapshotLimit {
		return string(data)
	}
	return string(data[:SnapshotLimit]) + "...[truncated]"
}

// DueRetries returns entries in the retry state whose next attempt time has
// passed.
func (r *Recorder) DueRetries(ctx context.Context) ([]*models.SyncLogEntry, error) {
	now := r.now().UTC()
	var due []*models.SyncLogEntry

	err := r.store.List(ctx, models.KindSyncLog, func(id string, data []byte) error {
		var entry models.SyncLogEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("decode sync log entry %s: %w", id, err)
		}
		if entry.RetryDue(now) {
			due = append(due, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return due, nil
}

// Get returns a single entry by id.
func (r *Recorder) Get(ctx context.Context, id string) (*models.SyncLogEntry, error) {
	var entry models.SyncLogEntry
	if err := r.store.Get(ctx, models.KindSyncLog, id, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Filter selects sync log entries in List.
type Filter struct {
	AccountID  string
	PropertyID string
	Operation  models.OperationType
	Status     models.SyncStatus
	BatchID    string
	Limit      int
}

func (f Filter) matches(e *models.SyncLogEntry) bool {
	if f.AccountID != "" && e.AccountID != f.AccountID {
		return false
	}
	if f.PropertyID != "" && e.PropertyID != f.PropertyID {
		return false
	}
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.BatchID != "" && e.BatchID != f.BatchID {
		return false
	}
	return true
}

// List returns entries matching the filter, newest first.
func (r *Recorder) List(ctx context.Context, f Filter) ([]*models.SyncLogEntry, error) {
	var entries []*models.SyncLogEntry

	err := r.store.List(ctx, models.KindSyncLog, func(id string, data []byte) error {
		var entry models.SyncLogEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("decode sync log entry %s: %w", id, err)
		}
		if f.matches(&entry) {
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortByCreatedDesc(entries)

	if f.Limit > 0 && len(entries) > f.Limit {
		entries = entries[:f.Limit]
	}
	return entries, nil
}

func sortByCreatedDesc(entries []*models.SyncLogEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

// Purge removes terminal entries older than the retention window and
// returns how many were deleted. In-flight and retry-scheduled entries are
// never purged.
func (r *Recorder) Purge(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := r.now().UTC().Add(-retention)

	var stale []string
	err := r.store.List(ctx, models.KindSyncLog, func(id string, data []byte) error {
		var entry models.SyncLogEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("decode sync log entry %s: %w", id, err)
		}
		if entry.Status.Terminal() && entry.CreatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range stale {
		if err := r.store.Delete(ctx, models.KindSyncLog, id); err != nil {
			logging.Warn().Err(err).Str("entry_id", id).Msg("Failed to purge sync log entry")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		logging.Info().Int("deleted", deleted).Dur("retention", retention).Msg("Purged sync log entries")
	}
	return deleted, nil
}

// Stats summarizes entries by status.
type Stats struct {
	Total      int                       `json:"total"`
	ByStatus   map[models.SyncStatus]int `json:"by_status"`
	RetryQueue int                       `json:"retry_queue"`
}

// Stats aggregates the current log contents.
func (r *Recorder) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[models.SyncStatus]int)}

	err := r.store.List(ctx, models.KindSyncLog, func(id string, data []byte) error {
		var entry models.SyncLogEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("decode sync log entry %s: %w", id, err)
		}
		stats.Total++
		stats.ByStatus[entry.Status]++
		if entry.Status == models.SyncRetry {
			stats.RetryQueue++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
