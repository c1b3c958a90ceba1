// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stayware/cloudsync/internal/models"
)

func TestAcquireWithinBurst(t *testing.T) {
	t.Parallel()

	r := NewRegistry(10, 5)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := r.Acquire(ctx, "acct-1"); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("burst acquires took %v, expected no blocking", elapsed)
	}
}

func TestAcquireBlocksBeyondBurst(t *testing.T) {
	t.Parallel()

	// 10 rps, burst 1: the second acquire must wait roughly 100ms.
	r := NewRegistry(10, 1)
	ctx := context.Background()

	if err := r.Acquire(ctx, "acct-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	start := time.Now()
	if err := r.Acquire(ctx, "acct-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("second acquire returned after %v, expected throttling", elapsed)
	}
}

func TestAccountsAreIndependent(t *testing.T) {
	t.Parallel()

	r := NewRegistry(1, 1)

	// Drain acct-1's bucket.
	if !r.Allow("acct-1") {
		t.Fatal("first Allow for acct-1 should pass")
	}
	if r.Allow("acct-1") {
		t.Fatal("acct-1 bucket should be empty")
	}

	// acct-2 has its own bucket.
	if !r.Allow("acct-2") {
		t.Error("acct-2 should not be throttled by acct-1's usage")
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	r := NewRegistry(0.001, 1)
	ctx := context.Background()

	if err := r.Acquire(ctx, "acct-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	if err := r.Acquire(ctx, "acct-1"); err == nil {
		t.Error("Acquire should fail when the context expires before a token is available")
	}
}

func TestUpdateOverridesDefaults(t *testing.T) {
	t.Parallel()

	r := NewRegistry(1, 1)
	r.Update("acct-1", 100, 10)

	allowed := 0
	for i := 0; i < 10; i++ {
		if r.Allow("acct-1") {
			allowed++
		}
	}
	if allowed != 10 {
		t.Errorf("allowed %d requests after burst update, want 10", allowed)
	}
}

func TestUpdateZeroFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	r := NewRegistry(1, 3)
	r.Update("acct-1", 0, 0)

	allowed := 0
	for i := 0; i < 5; i++ {
		if r.Allow("acct-1") {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("allowed %d requests, want default burst 3", allowed)
	}
}

func TestSeedRestoresStoredOverrides(t *testing.T) {
	t.Parallel()

	r := NewRegistry(1, 1)
	r.Seed([]*models.Account{
		{ID: "acct-1", RateLimit: 100, Burst: 10},
		{ID: "acct-2"}, // no override stored, stays at registry defaults
	})

	allowed := 0
	for i := 0; i < 10; i++ {
		if r.Allow("acct-1") {
			allowed++
		}
	}
	if allowed != 10 {
		t.Errorf("allowed %d requests for seeded account, want 10", allowed)
	}

	if !r.Allow("acct-2") {
		t.Fatal("first Allow for unseeded account should pass")
	}
	if r.Allow("acct-2") {
		t.Error("unseeded account should keep the default burst of 1")
	}
}

func TestRemoveResetsLimiter(t *testing.T) {
	t.Parallel()

	r := NewRegistry(1, 1)

	if !r.Allow("acct-1") {
		t.Fatal("first Allow should pass")
	}
	if r.Allow("acct-1") {
		t.Fatal("bucket should be drained")
	}

	r.Remove("acct-1")
	if !r.Allow("acct-1") {
		t.Error("recreated limiter should start with a full bucket")
	}
}
