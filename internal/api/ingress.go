// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stayware/cloudsync/internal/logging"
	"github.com/stayware/cloudsync/internal/webhook"
)

// maxWebhookBody bounds inbound delivery payloads.
const maxWebhookBody = 4 << 20

// WebhookIngress validates and dispatches one provider delivery.
type WebhookIngress interface {
	Process(ctx context.Context, propertyRef, eventType, signature string, body []byte) error
}

// Ingress terminates the provider's webhook deliveries at
// POST /webhook/{property}/{event_type}. The property segment is a
// provider property id or "all" for account-wide registrations.
type Ingress struct {
	router WebhookIngress
}

func NewIngress(router WebhookIngress) *Ingress {
	return &Ingress{router: router}
}

// Receive handles one delivery. The provider retries on non-2xx, so the
// response policy is deliberate: handler failures still return 200 (the
// retry sweep owns re-processing), unregistered events return 200 with
// success=false, and only bad signatures get a 401.
func (i *Ingress) Receive(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	propertyRef := chi.URLParam(r, "property")
	eventType := chi.URLParam(r, "*")
	if propertyRef == "" || eventType == "" {
		rw.BadRequest("missing property or event type")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		rw.BadRequest("unreadable request body")
		return
	}

	signature := r.Header.Get("X-Webhook-Signature")
	err = i.router.Process(r.Context(), propertyRef, eventType, signature, body)
	switch {
	case err == nil:
		rw.Success(map[string]string{"message": "accepted"})
	case errors.Is(err, webhook.ErrUnknownRegistration):
		// Answered 200: a non-2xx would make the provider redeliver an
		// event nobody is subscribed to.
		logging.Debug().
			Str("property", propertyRef).
			Str("event_type", eventType).
			Msg("Webhook delivery without registration")
		rw.writeJSON(http.StatusOK, APIResponse{
			Success: false,
			Error: &APIError{
				Code:    ErrCodeNotFound,
				Message: "no webhook registration for this property and event type",
			},
			Meta: rw.meta(),
		})
	case errors.Is(err, webhook.ErrBadSignature):
		rw.Unauthorized("signature verification failed")
	case errors.Is(err, webhook.ErrBadPayload):
		rw.BadRequest("malformed event payload")
	default:
		// Dispatch failed after validation; the delivery is logged and
		// scheduled for retry, so the provider must not redeliver.
		logging.Warn().
			Err(err).
			Str("property", propertyRef).
			Str("event_type", eventType).
			Msg("Webhook delivery accepted with processing failure")
		rw.Success(map[string]string{"message": "accepted, processing deferred"})
	}
}
