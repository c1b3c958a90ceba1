// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

// Package ratelimit throttles outbound provider API calls per account
// using token buckets. Each account gets its own limiter so one busy
// account cannot starve the others.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/stayware/cloudsync/internal/logging"
	"github.com/stayware/cloudsync/internal/metrics"
	"github.com/stayware/cloudsync/internal/models"
)

// Registry holds one token bucket per account. Limiters are created lazily
// with the registry defaults and may be tuned per account afterwards.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	defaultRate  rate.Limit
	defaultBurst int
}

// NewRegistry creates a Registry with the given per-account defaults.
func NewRegistry(requestsPerSecond float64, burst int) *Registry {
	return &Registry{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// limiter returns the account's limiter, creating it on first use.
func (r *Registry) limiter(accountID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[accountID]
	if !ok {
		l = rate.NewLimiter(r.defaultRate, r.defaultBurst)
		r.limiters[accountID] = l
	}
	return l
}

// Acquire blocks until the account may issue a request or the context is
// canceled. The wait time is observed for metrics.
func (r *Registry) Acquire(ctx context.Context, accountID string) error {
	l := r.limiter(accountID)

	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for account %s: %w", accountID, err)
	}

	waited := time.Since(start)
	metrics.ObserveRateLimitWait(accountID, waited)
	if waited > time.Second {
		logging.Debug().
			Str("account_id", accountID).
			Dur("waited", waited).
			Msg("Request delayed by account rate limit")
	}
	return nil
}

// Allow reports whether the account may issue a request right now without
// blocking. It consumes a token when it returns true.
func (r *Registry) Allow(accountID string) bool {
	return r.limiter(accountID).Allow()
}

// Update sets account-specific limits, replacing the defaults. Zero or
// negative values fall back to the registry defaults.
func (r *Registry) Update(accountID string, requestsPerSecond float64, burst int) {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = r.defaultRate
	}
	if burst < 1 {
		burst = r.defaultBurst
	}

	l := r.limiter(accountID)
	l.SetLimit(limit)
	l.SetBurst(burst)

	logging.Debug().
		Str("account_id", accountID).
		Float64("requests_per_second", float64(limit)).
		Int("burst", burst).
		Msg("Account rate limit updated")
}

// Seed applies the stored per-account overrides, typically at startup so
// accounts do not run at registry defaults until their next admin update.
func (r *Registry) Seed(accounts []*models.Account) {
	for _, account := range accounts {
		if account.RateLimit <= 0 && account.Burst < 1 {
			continue
		}
		r.Update(account.ID, account.RateLimit, account.Burst)
	}
}

// Remove drops the account's limiter, releasing its state. A later Acquire
// recreates it with the defaults.
func (r *Registry) Remove(accountID string) {
	r.mu.Lock()
	delete(r.limiters, accountID)
	r.mu.Unlock()
}
