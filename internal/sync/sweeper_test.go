// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stayware/cloudsync/internal/models"
	"github.com/stayware/cloudsync/internal/store"
	"github.com/stayware/cloudsync/internal/synclog"
)

type redispatchMock struct {
	calls []string
	err   error
}

func (m *redispatchMock) Redispatch(ctx context.Context, accountID, eventType string, body []byte) error {
	m.calls = append(m.calls, eventType)
	return m.err
}

// forceDue rewrites the entry's next retry into the past so the sweeper
// picks it up without waiting out the backoff.
func forceDue(t *testing.T, st store.Store, entry *models.SyncLogEntry) {
	t.Helper()
	entry.NextRetry = time.Now().UTC().Add(-time.Second)
	if err := st.Put(context.Background(), models.KindSyncLog, entry.ID, entry); err != nil {
		t.Fatalf("Put sync log entry: %v", err)
	}
}

func TestSweepRetriesModuleUnit(t *testing.T) {
	t.Parallel()

	o, st, recorder := newTestOrchestrator(t)
	seedAccountAndProperty(t, st)

	attempts := 0
	o.Register(&fakeModule{name: ModuleGuests, run: func(ctx context.Context, scope Scope) (Stats, error) {
		attempts++
		if attempts == 1 {
			return Stats{}, errors.New("guest listing unavailable")
		}
		return Stats{}, nil
	}})

	if _, err := o.SyncProperty(context.Background(), "prop-1", models.OpManual); err != nil {
		t.Fatalf("SyncProperty: %v", err)
	}

	entries, err := recorder.List(context.Background(), synclog.Filter{Status: models.SyncRetry})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("retry entries = %d, want 1", len(entries))
	}
	forceDue(t, st, entries[0])

	sweeper := NewSweeper(recorder, o, &redispatchMock{}, time.Minute)
	sweeper.Sweep(context.Background())

	if attempts != 2 {
		t.Errorf("module attempts = %d, want 2", attempts)
	}

	entry, err := recorder.Get(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Status != models.SyncSuccess {
		t.Errorf("Status = %q, want success", entry.Status)
	}
	if entry.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", entry.RetryCount)
	}
}

func TestSweepExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	o, st, recorder := newTestOrchestrator(t)
	seedAccountAndProperty(t, st)

	o.Register(&fakeModule{name: ModuleGuests, run: func(ctx context.Context, scope Scope) (Stats, error) {
		return Stats{}, errors.New("still broken")
	}})

	if _, err := o.SyncProperty(context.Background(), "prop-1", models.OpManual); err != nil {
		t.Fatalf("SyncProperty: %v", err)
	}

	sweeper := NewSweeper(recorder, o, &redispatchMock{}, time.Minute)
	var entryID string
	for i := 0; i < 3; i++ {
		entries, err := recorder.List(context.Background(), synclog.Filter{Status: models.SyncRetry})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("round %d: retry entries = %d, want 1", i, len(entries))
		}
		entryID = entries[0].ID
		forceDue(t, st, entries[0])
		sweeper.Sweep(context.Background())
	}

	entry, err := recorder.Get(context.Background(), entryID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Status != models.SyncError {
		t.Errorf("Status = %q, want terminal error", entry.Status)
	}
	if entry.RetryCount != entry.MaxRetries {
		t.Errorf("RetryCount = %d, want %d", entry.RetryCount, entry.MaxRetries)
	}
}

func TestSweepRedispatchesWebhook(t *testing.T) {
	t.Parallel()

	o, st, recorder := newTestOrchestrator(t)
	seedAccountAndProperty(t, st)

	entry, err := recorder.Begin(context.Background(), models.OpWebhook, "acct-1", "prop-1", "reservation/created")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	entry.RequestSnapshot = `{"object":"reservation","action":"created","reservationID":"res-1"}`
	if err := recorder.MarkError(context.Background(), entry, errors.New("handler failed")); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	forceDue(t, st, entry)

	redispatch := &redispatchMock{}
	sweeper := NewSweeper(recorder, o, redispatch, time.Minute)
	sweeper.Sweep(context.Background())

	if len(redispatch.calls) != 1 || redispatch.calls[0] != "reservation/created" {
		t.Fatalf("redispatch calls = %v", redispatch.calls)
	}

	final, err := recorder.Get(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != models.SyncSuccess {
		t.Errorf("Status = %q, want success", final.Status)
	}
}

func TestSchedulerRunSyncsStaleProperties(t *testing.T) {
	t.Parallel()

	o, st, _ := newTestOrchestrator(t)
	_, property := seedAccountAndProperty(t, st)

	fresh := &models.Property{
		ID:          "prop-2",
		ExternalID:  "198425",
		AccountID:   "acct-1",
		SyncEnabled: true,
		LastSyncAt:  time.Now().UTC(),
	}
	if err := store.PutProperty(context.Background(), st, fresh); err != nil {
		t.Fatalf("PutProperty: %v", err)
	}

	module := &fakeModule{name: ModuleProperties}
	o.Register(module)

	scheduler := NewScheduler(st, o, "@every 6h", 6*time.Hour)
	scheduler.Run(context.Background())

	if module.callCount() != 1 {
		t.Errorf("module ran %d times, want 1 (stale property only)", module.callCount())
	}

	updated, err := store.GetProperty(context.Background(), st, property.ID)
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if updated.LastSyncStatus != models.SyncSuccess {
		t.Errorf("stale property LastSyncStatus = %q", updated.LastSyncStatus)
	}
}
