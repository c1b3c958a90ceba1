// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package synclog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stayware/cloudsync/internal/models"
	"github.com/stayware/cloudsync/internal/store"
)

// newTestRecorder returns a Recorder on a memory store with a controllable
// clock.
func newTestRecorder(t *testing.T, maxRetries int) (*Recorder, *time.Time) {
	t.Helper()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRecorder(store.NewMemoryStore(), maxRetries)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestBeginAndMarkSuccess(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecorder(t, 3)
	ctx := context.Background()

	entry, err := r.Begin(ctx, models.OpAPICall, "acct-1", "prop-1", "getReservations")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if entry.Status != models.SyncProcessing {
		t.Errorf("Begin status = %q, want processing", entry.Status)
	}
	if entry.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", entry.MaxRetries)
	}

	if err := r.MarkSuccess(ctx, entry); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}

	got, err := r.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.SyncSuccess {
		t.Errorf("status = %q, want success", got.Status)
	}
	if got.CompletedAt.IsZero() {
		t.Error("CompletedAt not set")
	}
}

func TestMarkErrorSchedulesRetryWithBackoff(t *testing.T) {
	t.Parallel()

	r, now := newTestRecorder(t, 3)
	ctx := context.Background()

	entry, err := r.Begin(ctx, models.OpWebhook, "acct-1", "", "reservation/created")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// Attempt 0 fails: retry in 2^0 = 1 minute.
	if err := r.MarkError(ctx, entry, errors.New("connection refused")); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	if entry.Status != models.SyncRetry {
		t.Fatalf("status = %q, want retry", entry.Status)
	}
	if want := now.Add(time.Minute); !entry.NextRetry.Equal(want) {
		t.Errorf("NextRetry = %v, want %v", entry.NextRetry, want)
	}

	// Reopen and fail again: retry_count = 1, backoff 2 minutes.
	if err := r.Reopen(ctx, entry); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if entry.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", entry.RetryCount)
	}
	if err := r.MarkError(ctx, entry, errors.New("connection refused")); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	if want := now.Add(2 * time.Minute); !entry.NextRetry.Equal(want) {
		t.Errorf("NextRetry = %v, want %v", entry.NextRetry, want)
	}
}

func TestMarkErrorExhaustedBudgetIsTerminal(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecorder(t, 1)
	ctx := context.Background()

	entry, err := r.Begin(ctx, models.OpManual, "acct-1", "prop-1", "reservations")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if err := r.MarkError(ctx, entry, errors.New("boom")); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	if entry.Status != models.SyncRetry {
		t.Fatalf("first failure should schedule retry, got %q", entry.Status)
	}

	if err := r.Reopen(ctx, entry); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if err := r.MarkError(ctx, entry, errors.New("boom")); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	if entry.Status != models.SyncError {
		t.Errorf("exhausted entry status = %q, want error", entry.Status)
	}
	if !entry.NextRetry.IsZero() {
		t.Error("terminal entry should have no NextRetry")
	}
}

func TestRetryReusesSameRecord(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecorder(t, 3)
	ctx := context.Background()

	entry, err := r.Begin(ctx, models.OpScheduled, "acct-1", "prop-1", "guests")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := r.MarkError(ctx, entry, errors.New("boom")); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	if err := r.Reopen(ctx, entry); err != nil {
		t.Fatalf("Reopen: %v", err)
	}

	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("Total = %d, want 1 (retry must not append a new record)", stats.Total)
	}
}

func TestDueRetries(t *testing.T) {
	t.Parallel()

	r, now := newTestRecorder(t, 3)
	ctx := context.Background()

	entry, err := r.Begin(ctx, models.OpWebhook, "acct-1", "", "guest/created")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := r.MarkError(ctx, entry, errors.New("boom")); err != nil {
		t.Fatalf("MarkError: %v", err)
	}

	due, err := r.DueRetries(ctx)
	if err != nil {
		t.Fatalf("DueRetries: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("entry due immediately, backoff not applied")
	}

	*now = now.Add(90 * time.Second)
	due, err = r.DueRetries(ctx)
	if err != nil {
		t.Fatalf("DueRetries: %v", err)
	}
	if len(due) != 1 || due[0].ID != entry.ID {
		t.Errorf("DueRetries = %v, want the failed entry", due)
	}
}

func TestMarkSkipped(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecorder(t, 3)
	ctx := context.Background()

	entry, err := r.Begin(ctx, models.OpWebhook, "acct-1", "", "reservation/created")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := r.MarkSkipped(ctx, entry, "duplicate delivery"); err != nil {
		t.Fatalf("MarkSkipped: %v", err)
	}

	got, err := r.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.SyncSkipped {
		t.Errorf("status = %q, want skipped", got.Status)
	}
	if got.ErrorMessage != "duplicate delivery" {
		t.Errorf("ErrorMessage = %q", got.ErrorMessage)
	}
}

func TestPurgeRespectsRetentionAndState(t *testing.T) {
	t.Parallel()

	r, now := newTestRecorder(t, 3)
	ctx := context.Background()

	old, err := r.Begin(ctx, models.OpAPICall, "acct-1", "", "getHotels")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := r.MarkSuccess(ctx, old); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}

	oldRetry, err := r.Begin(ctx, models.OpWebhook, "acct-1", "", "guest/created")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := r.MarkError(ctx, oldRetry, errors.New("boom")); err != nil {
		t.Fatalf("MarkError: %v", err)
	}

	// Jump past retention; add one fresh entry.
	*now = now.Add(31 * 24 * time.Hour)
	fresh, err := r.Begin(ctx, models.OpAPICall, "acct-1", "", "getGuests")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := r.MarkSuccess(ctx, fresh); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}

	deleted, err := r.Purge(ctx, DefaultRetention)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Purge deleted %d, want 1 (terminal old entry only)", deleted)
	}

	if _, err := r.Get(ctx, old.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("old terminal entry should be purged, got %v", err)
	}
	if _, err := r.Get(ctx, oldRetry.ID); err != nil {
		t.Errorf("retry-scheduled entry must survive purge: %v", err)
	}
	if _, err := r.Get(ctx, fresh.ID); err != nil {
		t.Errorf("fresh entry must survive purge: %v", err)
	}
}

func TestListFilterAndOrder(t *testing.T) {
	t.Parallel()

	r, now := newTestRecorder(t, 3)
	ctx := context.Background()

	first, err := r.Begin(ctx, models.OpAPICall, "acct-1", "", "getHotels")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_ = r.MarkSuccess(ctx, first)

	*now = now.Add(time.Minute)
	second, err := r.Begin(ctx, models.OpAPICall, "acct-2", "", "getGuests")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_ = r.MarkSuccess(ctx, second)

	all, err := r.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].ID != second.ID {
		t.Errorf("List order wrong: got %d entries, newest = %v", len(all), all[0].ID)
	}

	onlyOne, err := r.List(ctx, Filter{AccountID: "acct-1"})
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(onlyOne) != 1 || onlyOne[0].ID != first.ID {
		t.Errorf("account filter returned %d entries", len(onlyOne))
	}
}

func TestTruncateSnapshots(t *testing.T) {
	t.Parallel()

	small := []byte("hello")
	if got := Truncate(small); got != "hello" {
		t.Errorf("Truncate(small) = %q", got)
	}

	big := bytes.Repeat([]byte("x"), SnapshotLimit+100)
	got := Truncate(big)
	if !strings.HasSuffix(got, "...[truncated]") {
		t.Error("oversized snapshot not marked truncated")
	}
	if len(got) > SnapshotLimit+len("...[truncated]") {
		t.Errorf("truncated snapshot too long: %d", len(got))
	}
}
