// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

// Package webhook receives, validates, and dispatches provider event
// deliveries. Processing order for a delivery is fixed:
//
//  1. resolve the registration for (property, event type)
//  2. verify the HMAC-SHA256 signature in constant time
//  3. parse the event body
//  4. deduplicate against recently seen deliveries
//  5. dispatch to the handler registered for the event type
//  6. publish the event on the in-process bus
//
// Every delivery, including duplicates and failures, produces a sync log
// entry.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/stayware/cloudsync/internal/logging"
	"github.com/stayware/cloudsync/internal/metrics"
	"github.com/stayware/cloudsync/internal/models"
	"github.com/stayware/cloudsync/internal/store"
	"github.com/stayware/cloudsync/internal/synclog"
)

var (
	// ErrUnknownRegistration is returned when no active registration covers
	// the delivery's property and event type.
	ErrUnknownRegistration = errors.New("webhook: no registration for delivery")

	// ErrBadSignature is returned when signature validation fails. The
	// delivery body is discarded unprocessed.
	ErrBadSignature = errors.New("webhook: invalid signature")

	// ErrBadPayload is returned when the delivery body is not a valid
	// event document.
	ErrBadPayload = errors.New("webhook: malformed payload")
)

// Handler processes one validated event. Handlers run synchronously in
// delivery order for a given delivery.
type Handler func(ctx context.Context, accountID string, event *models.WebhookEvent) error

// Router validates and dispatches inbound deliveries.
type Router struct {
	store    store.Store
	recorder *synclog.Recorder
	deduper  *Deduper
	bus      *Bus

	mu             sync.RWMutex
	handlers       map[string]Handler
	defaultHandler Handler

	now func() time.Time
}

// NewRouter creates a Router. bus may be nil to disable event publishing.
func NewRouter(s store.Store, recorder *synclog.Recorder, deduper *Deduper, bus *Bus) *Router {
	return &Router{
		store:    s,
		recorder: recorder,
		deduper:  deduper,
		bus:      bus,
		handlers: make(map[string]Handler),
		now:      time.Now,
	}
}

// Handle registers a handler for an event type tag ("reservation/created").
func (r *Router) Handle(eventType string, h Handler) {
	r.mu.Lock()
	r.handlers[eventType] = h
	r.mu.Unlock()
}

// HandleDefault registers the fallback handler for event types with no
// specific handler. Without one, unmatched events are logged and accepted.
func (r *Router) HandleDefault(h Handler) {
	r.mu.Lock()
	r.defaultHandler = h
	r.mu.Unlock()
}

func (r *Router) handlerFor(eventType string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.handlers[eventType]; ok {
		return h
	}
	return r.defaultHandler
}

// Process runs the full pipeline for one delivery. propertyRef is the
// provider property id from the URL path ("all" for catch-all routes);
// eventType is the object/action tag from the path; signature is the
// X-Webhook-Signature header value.
//
// The returned error classifies the rejection for the HTTP layer:
// ErrUnknownRegistration, ErrBadSignature, ErrBadPayload, or a handler
// error.
func (r *Router) Process(ctx context.Context, propertyRef, eventType, signature string, body []byte) error {
	start := r.now()

	if propertyRef == "all" {
		propertyRef = ""
	}

	registration, err := store.FindWebhookRegistration(ctx, r.store, propertyRef, eventType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.RecordWebhook(eventType, "unknown", r.now().Sub(start))
			return fmt.Errorf("%w: property %q event %q", ErrUnknownRegistration, propertyRef, eventType)
		}
		return fmt.Errorf("resolve registration: %w", err)
	}

	// Signature check precedes parsing: a signed body that fails
	// verification is not interpreted at all. Unsigned deliveries are
	// accepted, the provider omits the header on some event classes.
	if signature != "" && !VerifySignature(registration.Secret, signature, body) {
		r.recordDelivery(ctx, registration, false, "invalid signature")
		metrics.RecordWebhook(eventType, "invalid_signature", r.now().Sub(start))
		logging.Warn().
			Str("registration_id", registration.ID).
			Str("event_type", eventType).
			Msg("Webhook delivery rejected: signature mismatch")
		return ErrBadSignature
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		r.recordDelivery(ctx, registration, false, "malformed payload")
		metrics.RecordWebhook(eventType, "error", r.now().Sub(start))
		return fmt.Errorf("%w: %s", ErrBadPayload, err.Error())
	}
	event.Payload = body
	if event.Object == "" || event.Action == "" {
		object, action := models.SplitEventType(eventType)
		event.Object, event.Action = object, action
	}

	entry, _ := r.recorder.Begin(ctx, models.OpWebhook, registration.AccountID, registration.PropertyID, eventType)
	if entry != nil {
		entry.ExternalID = event.ObjectID()
		synclog.AttachPayload(entry, body)
	}

	fingerprint := Fingerprint(registration.AccountID, eventType, event.ObjectID(), event.Timestamp)
	if r.deduper.IsDuplicate(fingerprint) {
		if entry != nil {
			_ = r.recorder.MarkSkipped(ctx, entry, "duplicate delivery")
		}
		r.recordDelivery(ctx, registration, true, "")
		metrics.RecordWebhook(eventType, "duplicate", r.now().Sub(start))
		logging.Debug().
			Str("event_type", eventType).
			Str("external_id", event.ObjectID()).
			Msg("Duplicate webhook delivery skipped")
		return nil
	}

	if handler := r.handlerFor(eventType); handler != nil {
		if err := handler(ctx, registration.AccountID, &event); err != nil {
			if entry != nil {
				_ = r.recorder.MarkError(ctx, entry, err)
			}
			r.recordDelivery(ctx, registration, false, err.Error())
			metrics.RecordWebhook(eventType, "error", r.now().Sub(start))
			return fmt.Errorf("handle %s: %w", eventType, err)
		}
	} else {
		logging.Debug().Str("event_type", eventType).Msg("No handler for webhook event type, accepting")
	}

	if r.bus != nil {
		if err := r.bus.Publish(registration.AccountID, &event, body); err != nil {
			logging.Warn().Err(err).Str("event_type", eventType).Msg("Webhook event publish failed")
		}
	}

	if entry != nil {
		_ = r.recorder.MarkSuccess(ctx, entry)
	}
	r.recordDelivery(ctx, registration, true, "")
	metrics.RecordWebhook(eventType, "processed", r.now().Sub(start))
	return nil
}

// recordDelivery updates the registration's delivery statistics.
func (r *Router) recordDelivery(ctx context.Context, registration *models.WebhookRegistration, ok bool, lastError string) {
	registration.TotalReceived++
	registration.LastReceivedAt = r.now().UTC()
	if ok {
		registration.TotalProcessed++
	} else {
		registration.TotalFailed++
		registration.LastError = lastError
	}
	registration.UpdatedAt = registration.LastReceivedAt

	if err := store.PutWebhookRegistration(ctx, r.store, registration); err != nil {
		logging.Warn().Err(err).Str("registration_id", registration.ID).Msg("Failed to update webhook delivery stats")
	}
}

// Redispatch replays a previously validated delivery from its stored
// payload. Signature verification and deduplication already happened on
// first receipt, so only the handler runs; the caller owns sync log
// bookkeeping for the replay.
func (r *Router) Redispatch(ctx context.Context, accountID, eventType string, body []byte) error {
	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %s", ErrBadPayload, err.Error())
	}
	event.Payload = body
	if event.Object == "" || event.Action == "" {
		event.Object, event.Action = models.SplitEventType(eventType)
	}

	handler := r.handlerFor(eventType)
	if handler == nil {
		return nil
	}
	return handler(ctx, accountID, &event)
}
