// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/stayware/cloudsync/internal/logging"
	"github.com/stayware/cloudsync/internal/models"
	"github.com/stayware/cloudsync/internal/store"
	"github.com/stayware/cloudsync/internal/webhook"
)

// RegisterWebhookHandlers wires the core event types to targeted module
// syncs. An event re-syncs the module owning its object rather than
// patching single records from the payload: the provider's API is the
// source of truth, payloads are advisory.
//
// Event types without a handler here (room blocks, integration state,
// night audit) fall through to the router's default path: logged,
// published on the bus for extensions, and recorded in the sync log.
func RegisterWebhookHandlers(router *webhook.Router, o *Orchestrator, s store.Store) {
	reservations := targetedSync(o, s, ModuleReservations)
	for _, eventType := range []string{
		models.EventReservationCreated,
		models.EventReservationStatusChanged,
		models.EventReservationDatesChanged,
		models.EventReservationAccomChanged,
		models.EventReservationDeleted,
		models.EventReservationNotesChanged,
		models.EventReservationCustomFieldsChange,
		models.EventReservationInvoiceRequested,
	} {
		router.Handle(eventType, reservations)
	}

	guests := targetedSync(o, s, ModuleGuests)
	for _, eventType := range []string{
		models.EventGuestCreated,
		models.EventGuestAssigned,
		models.EventGuestRemoved,
		models.EventGuestDetailsChanged,
	} {
		router.Handle(eventType, guests)
	}

	router.Handle(models.EventTransactionCreated, targetedSync(o, s, ModulePayments))
	router.Handle(models.EventRoomConditionChanged, targetedSync(o, s, ModuleRoomTypes))
}

// targetedSync builds a handler that re-syncs one module for the event's
// property. A dependency violation means the property has never completed
// a full batch, so the handler falls back to syncing everything.
func targetedSync(o *Orchestrator, s store.Store, module string) webhook.Handler {
	return func(ctx context.Context, accountID string, event *models.WebhookEvent) error {
		if event.PropertyID == "" {
			logging.Debug().
				Str("account_id", accountID).
				Str("event_type", event.EventType()).
				Msg("Webhook event without property id, nothing to sync")
			return nil
		}

		property, err := store.FindPropertyByExternalID(ctx, s, event.PropertyID)
		if err != nil {
			return fmt.Errorf("resolve property %s: %w", event.PropertyID, err)
		}

		_, err = o.SyncProperty(ctx, property.ID, models.OpWebhook, module)
		if errors.Is(err, ErrDependencyOrder) {
			logging.Info().
				Str("property_id", property.ID).
				Str("module", module).
				Msg("Targeted sync needs a full batch first")
			_, err = o.SyncProperty(ctx, property.ID, models.OpWebhook)
		}
		return err
	}
}
