// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package token

import (
	"context"
	"time"

	"github.com/stayware/cloudsync/internal/logging"
	"github.com/stayware/cloudsync/internal/store"
)

// RefreshScheduler proactively renews tokens in the background so
// interactive requests rarely pay the refresh cost. Accounts whose tokens
// expire within the horizon are refreshed on each sweep.
type RefreshScheduler struct {
	manager  *Manager
	store    store.Store
	horizon  time.Duration
	interval time.Duration
}

// NewRefreshScheduler creates a scheduler sweeping at interval and
// refreshing tokens that expire within horizon.
func NewRefreshScheduler(manager *Manager, s store.Store, horizon, interval time.Duration) *RefreshScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &RefreshScheduler{
		manager:  manager,
		store:    s,
		horizon:  horizon,
		interval: interval,
	}
}

// Serve runs the sweep loop until the context is canceled. It satisfies
// the suture service contract.
func (s *RefreshScheduler) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.interval).
		Dur("horizon", s.horizon).
		Msg("Token refresh scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep refreshes every active account whose token expires within the
// horizon. Failures are logged and do not stop the sweep.
func (s *RefreshScheduler) sweep(ctx context.Context) {
	accounts, err := store.ListActiveAccounts(ctx, s.store)
	if err != nil {
		logging.Error().Err(err).Msg("Token refresh sweep failed to list accounts")
		return
	}

	now := s.manager.now()
	for _, account := range accounts {
		if account.SealedRefreshToken == "" {
			continue
		}
		if account.TokenValid(now, s.horizon) {
			continue
		}

		lease := s.manager.lease(account.ID)
		lease.Lock()
		// Re-read under the lease in case an interactive request refreshed.
		current, err := store.GetAccount(ctx, s.manager.store, account.ID)
		if err == nil && !current.TokenValid(now, s.horizon) {
			if _, err := s.manager.refreshLocked(ctx, current, "scheduled"); err != nil {
				logging.Warn().
					Err(err).
					Str("account_id", account.ID).
					Msg("Scheduled token refresh failed")
			}
		}
		lease.Unlock()

		if ctx.Err() != nil {
			return
		}
	}
}

func (s *RefreshScheduler) String() string { return "token-refresh-scheduler" }
