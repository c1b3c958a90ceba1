// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package models

import "time"

// OperationType classifies what kind of tracked operation a sync log entry
// records.
type OperationType string

const (
	OpManual       OperationType = "manual"
	OpScheduled    OperationType = "scheduled"
	OpWebhook      OperationType = "webhook"
	OpAPICall      OperationType = "api_call"
	OpTokenRefresh OperationType = "token_refresh"
	OpImport       OperationType = "import"
	OpExport       OperationType = "export"
)

// SyncLogEntry is the append-only structured record of every API call,
// webhook delivery, token refresh, and sync unit. Entries move through the
// state machine
//
//	pending -> processing -> {success | partial | error | skipped}
//	error -> retry -> pending (same record, retry_count incremented)
//
// Invariants: RetryCount <= MaxRetries; NextRetry is only set while
// Status == retry.
type SyncLogEntry struct {
	ID         string `json:"id"`
	AccountID  string `json:"account_id"`
	PropertyID string `json:"property_id,omitempty"`

	Operation OperationType `json:"operation"`

	// Target names what was synchronized or called: a sync module name
	// ("reservations"), an API endpoint ("getReservations"), or a webhook
	// event type ("reservation/created").
	Target string `json:"target"`

	// ExternalID is the provider-side id of the affected object, when one
	// could be extracted.
	ExternalID string `json:"external_id,omitempty"`

	Status SyncStatus `json:"status"`

	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	HTTPStatus   int    `json:"http_status,omitempty"`

	// RequestID is the X-Request-ID correlating this entry with provider
	// support logs.
	RequestID string `json:"request_id,omitempty"`

	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
	NextRetry  time.Time `json:"next_retry,omitempty"`

	// BatchID groups the sync units of one orchestrator invocation.
	BatchID string `json:"batch_id,omitempty"`

	// Bounded request/response snapshots for diagnostics. Truncated at
	// write time; see synclog.SnapshotLimit.
	RequestSnapshot  string `json:"request_snapshot,omitempty"`
	ResponseSnapshot string `json:"response_snapshot,omitempty"`
}

// Retriable reports whether the entry is eligible for another attempt.
func (e *SyncLogEntry) Retriable() bool {
	return e.Status == SyncError && e.RetryCount < e.MaxRetries
}

// RetryDue reports whether a retry-scheduled entry is ready to run.
func (e *SyncLogEntry) RetryDue(now time.Time) bool {
	return e.Status == SyncRetry && !e.NextRetry.IsZero() && !now.Before(e.NextRetry)
}

// KindSyncLog is the record store kind under which sync log entries persist.
const KindSyncLog = "sync_log"
