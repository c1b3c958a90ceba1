// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package models

import "time"

// SyncStatus is the aggregate outcome of the most recent sync batch for a
// property, or the state of a single sync unit in the log.
type SyncStatus string

const (
	SyncPending    SyncStatus = "pending"
	SyncProcessing SyncStatus = "processing"
	SyncSuccess    SyncStatus = "success"
	SyncPartial    SyncStatus = "partial"
	SyncError      SyncStatus = "error"
	SyncSkipped    SyncStatus = "skipped"
	SyncRetry      SyncStatus = "retry"
)

// Terminal reports whether the status is a terminal state for a sync unit.
func (s SyncStatus) Terminal() bool {
	switch s {
	case SyncSuccess, SyncPartial, SyncError, SyncSkipped:
		return true
	default:
		return false
	}
}

// Property is a single hotel/establishment managed under an Account.
// ExternalID is the provider-side property identifier and is unique per
// account.
type Property struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	AccountID  string `json:"account_id"`

	SyncEnabled bool   `json:"sync_enabled"`
	Timezone    string `json:"timezone"`
	Currency    string `json:"currency"`

	LastSyncAt      time.Time  `json:"last_sync_at,omitempty"`
	LastSyncStatus  SyncStatus `json:"last_sync_status,omitempty"`
	LastSyncMessage string     `json:"last_sync_message,omitempty"`

	// ConsecutiveErrors counts back-to-back failed batches; reset to zero
	// on the first successful batch.
	ConsecutiveErrors int `json:"consecutive_errors"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KindProperty is the record store kind under which properties persist.
const KindProperty = "property"
