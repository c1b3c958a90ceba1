// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package sync

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stayware/cloudsync/internal/logging"
	"github.com/stayware/cloudsync/internal/metrics"
	"github.com/stayware/cloudsync/internal/models"
	"github.com/stayware/cloudsync/internal/synclog"
)

// Redispatcher replays a webhook payload through the handler pipeline.
type Redispatcher interface {
	Redispatch(ctx context.Context, accountID, eventType string, body []byte) error
}

// Sweeper periodically re-drives sync log entries whose retry is due.
// Webhook delivery entries are redispatched from their stored payload;
// module unit entries re-run the module.
type Sweeper struct {
	recorder     *synclog.Recorder
	orchestrator *Orchestrator
	webhooks     Redispatcher
	interval     time.Duration
}

func NewSweeper(recorder *synclog.Recorder, orchestrator *Orchestrator, webhooks Redispatcher, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		recorder:     recorder,
		orchestrator: orchestrator,
		webhooks:     webhooks,
		interval:     interval,
	}
}

// Serve runs the sweep loop until the context ends.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logging.Info().Dur("interval", s.interval).Msg("Retry sweeper started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *Sweeper) String() string { return "retry-sweeper" }

// Sweep processes every due entry once. Entries that fail again go back
// through the retry state machine until their budget runs out.
func (s *Sweeper) Sweep(ctx context.Context) {
	due, err := s.recorder.DueRetries(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Retry sweep listing failed")
		return
	}
	metrics.SyncRetryQueueDepth.Set(float64(len(due)))
	if len(due) == 0 {
		return
	}

	logging.Info().Int("due", len(due)).Msg("Retry sweep processing due entries")
	for _, entry := range due {
		if ctx.Err() != nil {
			return
		}
		s.retry(ctx, entry)
	}
}

func (s *Sweeper) retry(ctx context.Context, entry *models.SyncLogEntry) {
	if err := s.recorder.Reopen(ctx, entry); err != nil {
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("Failed to reopen sync log entry")
		return
	}

	err := s.invoke(ctx, entry)
	if err != nil {
		// ErrSyncRunning is contention, not failure: put the entry back
		// without burning retry budget.
		if errors.Is(err, ErrSyncRunning) {
			entry.RetryCount--
		}
		_ = s.recorder.MarkError(ctx, entry, err)
		logging.Warn().
			Err(err).
			Str("entry_id", entry.ID).
			Str("target", entry.Target).
			Int("retry_count", entry.RetryCount).
			Msg("Retry attempt failed")
		return
	}

	_ = s.recorder.MarkSuccess(ctx, entry)
	logging.Info().
		Str("entry_id", entry.ID).
		Str("target", entry.Target).
		Int("retry_count", entry.RetryCount).
		Msg("Retry attempt succeeded")
}

// invoke routes the entry to its original operation. Webhook delivery
// entries carry an event type target ("object/action"); module unit
// targets never contain a slash.
func (s *Sweeper) invoke(ctx context.Context, entry *models.SyncLogEntry) error {
	if entry.Operation == models.OpWebhook && strings.Contains(entry.Target, "/") {
		return s.webhooks.Redispatch(ctx, entry.AccountID, entry.Target, []byte(entry.RequestSnapshot))
	}
	return s.orchestrator.RetryUnit(ctx, entry)
}
