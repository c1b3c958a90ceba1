// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package models

import (
	"strings"
	"time"
)

// Provider webhook event types, namespaced as "object/action".
// The set is closed: the router dispatches on these tags and falls back to
// a default handler for anything else.
const (
	EventReservationCreated            = "reservation/created"
	EventReservationStatusChanged      = "reservation/status_changed"
	EventReservationDatesChanged       = "reservation/dates_changed"
	EventReservationAccomChanged       = "reservation/accommodation_changed"
	EventReservationDeleted            = "reservation/deleted"
	EventReservationNotesChanged       = "reservation/notes_changed"
	EventReservationCustomFieldsChange = "reservation/custom_fields_changed"
	EventReservationInvoiceRequested   = "reservation/invoice_requested"

	EventGuestCreated        = "guest/created"
	EventGuestAssigned       = "guest/assigned"
	EventGuestRemoved        = "guest/removed"
	EventGuestDetailsChanged = "guest/details_changed"

	EventTransactionCreated = "transaction/created"

	EventRoomConditionChanged = "housekeeping/room_condition_changed"

	EventRoomblockCreated = "roomblock/created"
	EventRoomblockRemoved = "roomblock/removed"

	EventAppStateChanged    = "integration/appstate_changed"
	EventAppSettingsChanged = "integration/appsettings_changed"

	EventNightAuditCompleted = "night_audit/completed"
)

// SplitEventType splits an "object/action" event type tag.
// Returns empty strings when the tag is not namespaced.
func SplitEventType(eventType string) (object, action string) {
	object, action, ok := strings.Cut(eventType, "/")
	if !ok {
		return "", ""
	}
	return object, action
}

// WebhookRegistration is a subscription to one event type for one
// account/property pair. PropertyID may be empty, in which case the
// registration applies to every property of the account.
//
// At most one active registration exists per (account, property-or-empty,
// event type) tuple; the webhook store enforces this at write time.
type WebhookRegistration struct {
	ID         string `json:"id"`
	AccountID  string `json:"account_id"`
	PropertyID string `json:"property_id,omitempty"`

	EventType string `json:"event_type"`

	// Secret is the HMAC-SHA256 key for signature validation, random,
	// at least 32 bytes. It never leaves the local system.
	Secret string `json:"secret"`

	Active bool `json:"active"`

	// RemoteSubscriptionID is the provider-side webhook subscription id,
	// set after a successful postWebhook registration.
	RemoteSubscriptionID string `json:"remote_subscription_id,omitempty"`

	// Delivery statistics, updated on every inbound event.
	LastReceivedAt time.Time `json:"last_received_at,omitempty"`
	TotalReceived  int64     `json:"total_received"`
	TotalProcessed int64     `json:"total_processed"`
	TotalFailed    int64     `json:"total_failed"`
	LastError      string    `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KindWebhookRegistration is the record store kind for webhook registrations.
const KindWebhookRegistration = "webhook_registration"
