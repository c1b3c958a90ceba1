// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package sync

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stayware/cloudsync/internal/logging"
	"github.com/stayware/cloudsync/internal/models"
	"github.com/stayware/cloudsync/internal/store"
)

// Scheduler fires full property syncs on a cron schedule. Properties
// whose last sync is newer than the staleness window are left alone.
type Scheduler struct {
	store        store.Store
	orchestrator *Orchestrator
	schedule     string
	staleAfter   time.Duration

	now func() time.Time
}

func NewScheduler(s store.Store, orchestrator *Orchestrator, schedule string, staleAfter time.Duration) *Scheduler {
	return &Scheduler{
		store:        s,
		orchestrator: orchestrator,
		schedule:     schedule,
		staleAfter:   staleAfter,
		now:          time.Now,
	}
}

// Serve runs the cron loop until the context ends. An empty schedule
// disables scheduled syncs; the service idles so the supervisor does not
// restart it.
func (s *Scheduler) Serve(ctx context.Context) error {
	if s.schedule == "" {
		logging.Info().Msg("Scheduled sync disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.Run(ctx) }); err != nil {
		return errors.New("sync: invalid cron schedule " + s.schedule)
	}

	logging.Info().Str("schedule", s.schedule).Dur("stale_after", s.staleAfter).Msg("Scheduled sync started")
	c.Start()
	<-ctx.Done()

	stop := c.Stop()
	<-stop.Done()
	return ctx.Err()
}

func (s *Scheduler) String() string { return "sync-scheduler" }

// Run syncs every enabled property whose last sync is stale. Contention
// with a running manual or webhook-triggered batch is skipped quietly.
func (s *Scheduler) Run(ctx context.Context) {
	accounts, err := store.ListActiveAccounts(ctx, s.store)
	if err != nil {
		logging.Error().Err(err).Msg("Scheduled sync could not list accounts")
		return
	}

	cutoff := s.now().UTC().Add(-s.staleAfter)
	for _, account := range accounts {
		properties, err := store.ListProperties(ctx, s.store, account.ID)
		if err != nil {
			logging.Error().Err(err).Str("account_id", account.ID).Msg("Scheduled sync could not list properties")
			continue
		}

		for _, property := range properties {
			if !property.SyncEnabled {
				continue
			}
			if s.staleAfter > 0 && property.LastSyncAt.After(cutoff) {
				continue
			}
			if ctx.Err() != nil {
				return
			}

			_, err := s.orchestrator.SyncProperty(ctx, property.ID, models.OpScheduled)
			switch {
			case err == nil:
			case errors.Is(err, ErrSyncRunning), errors.Is(err, ErrSyncDisabled):
				logging.Debug().Err(err).Str("property_id", property.ID).Msg("Scheduled sync skipped property")
			default:
				logging.Warn().Err(err).Str("property_id", property.ID).Msg("Scheduled sync failed for property")
			}
		}
	}
}
