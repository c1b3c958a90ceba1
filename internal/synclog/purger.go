// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package synclog

import (
	"context"
	"time"

	"github.com/stayware/cloudsync/internal/logging"
)

// Purger enforces the sync log retention policy in the background. Only
// terminal entries older than the retention window are removed; entries
// still awaiting retry survive regardless of age.
type Purger struct {
	recorder  *Recorder
	retention time.Duration
	interval  time.Duration
}

func NewPurger(recorder *Recorder, retention, interval time.Duration) *Purger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Purger{recorder: recorder, retention: retention, interval: interval}
}

// Serve purges once at startup and then on every interval tick until the
// context ends.
func (p *Purger) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.purge(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.purge(ctx)
		}
	}
}

func (p *Purger) String() string { return "synclog-purger" }

func (p *Purger) purge(ctx context.Context) {
	if _, err := p.recorder.Purge(ctx, p.retention); err != nil {
		logging.Error().Err(err).Msg("Sync log purge failed")
	}
}
