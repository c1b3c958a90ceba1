// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stayware/cloudsync/internal/logging"
	"github.com/stayware/cloudsync/internal/models"
	"github.com/stayware/cloudsync/internal/store"
)

var (
	// ErrRegistrationExists is returned when an active registration already
	// covers the same account, property, and event type.
	ErrRegistrationExists = errors.New("webhook: registration already exists")

	// ErrBadEventType is returned for event types that are not
	// "object/action" pairs.
	ErrBadEventType = errors.New("webhook: event type must be object/action")
)

// ProviderSubscriber is the subset of the API client the registrar uses to
// mirror registrations on the provider side.
type ProviderSubscriber interface {
	PostWebhook(ctx context.Context, accountID, propertyID, object, action, endpointURL string) (*models.WebhookSubscription, error)
	DeleteWebhook(ctx context.Context, accountID, subscriptionID string) error
}

// Registrar manages webhook registrations: the local record with its
// signing secret, and the provider-side subscription pointing back at our
// ingress URL.
//
// Provider mirroring is best effort. A registration whose provider call
// failed still exists locally with an empty RemoteSubscriptionID so the
// operator can see it and re-register; inbound deliveries for it validate
// normally.
type Registrar struct {
	store     store.Store
	provider  ProviderSubscriber
	publicURL string

	now func() time.Time
}

// NewRegistrar creates a Registrar. publicURL is the externally reachable
// base under which /webhook routes are served.
func NewRegistrar(s store.Store, provider ProviderSubscriber, publicURL string) *Registrar {
	return &Registrar{
		store:     s,
		provider:  provider,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		now:       time.Now,
	}
}

// endpointURL builds the ingress URL for a registration. An empty property
// id registers the catch-all route.
func (r *Registrar) endpointURL(propertyID, eventType string) string {
	property := propertyID
	if property == "" {
		property = "all"
	}
	return fmt.Sprintf("%s/webhook/%s/%s", r.publicURL, property, eventType)
}

// Register creates a registration for (account, property, eventType) with
// a fresh signing secret and subscribes the provider to our ingress URL.
// propertyID may be empty to cover all of the account's properties.
func (r *Registrar) Register(ctx context.Context, accountID, propertyID, eventType string) (*models.WebhookRegistration, error) {
	object, action := models.SplitEventType(eventType)
	if object == "" || action == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadEventType, eventType)
	}

	existing, err := store.ListWebhookRegistrations(ctx, r.store, accountID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	for _, w := range existing {
		if w.Active && w.PropertyID == propertyID && w.EventType == eventType {
			return nil, fmt.Errorf("%w: %s %s", ErrRegistrationExists, propertyID, eventType)
		}
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	registration := &models.WebhookRegistration{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		PropertyID: propertyID,
		EventType:  eventType,
		Secret:     secret,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	sub, err := r.provider.PostWebhook(ctx, accountID, propertyID, object, action, r.endpointURL(propertyID, eventType))
	if err != nil {
		registration.LastError = err.Error()
		logging.Warn().
			Err(err).
			Str("account_id", accountID).
			Str("event_type", eventType).
			Msg("Provider webhook subscription failed, registration kept local-only")
	} else {
		registration.RemoteSubscriptionID = sub.SubscriptionID
	}

	if err := store.PutWebhookRegistration(ctx, r.store, registration); err != nil {
		return nil, fmt.Errorf("persist registration: %w", err)
	}

	logging.Info().
		Str("registration_id", registration.ID).
		Str("account_id", accountID).
		Str("property_id", propertyID).
		Str("event_type", eventType).
		Bool("provider_subscribed", registration.RemoteSubscriptionID != "").
		Msg("Webhook registration created")
	return registration, nil
}

// Unregister removes a registration and, best effort, its provider-side
// subscription.
func (r *Registrar) Unregister(ctx context.Context, registrationID string) error {
	registration, err := store.GetWebhookRegistration(ctx, r.store, registrationID)
	if err != nil {
		return fmt.Errorf("load registration %s: %w", registrationID, err)
	}

	if registration.RemoteSubscriptionID != "" {
		if err := r.provider.DeleteWebhook(ctx, registration.AccountID, registration.RemoteSubscriptionID); err != nil {
			logging.Warn().
				Err(err).
				Str("registration_id", registrationID).
				Str("subscription_id", registration.RemoteSubscriptionID).
				Msg("Provider webhook unsubscribe failed, removing local registration anyway")
		}
	}

	if err := r.store.Delete(ctx, models.KindWebhookRegistration, registrationID); err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}

	logging.Info().Str("registration_id", registrationID).Msg("Webhook registration removed")
	return nil
}

// Resubscribe retries the provider subscription for a local-only
// registration.
func (r *Registrar) Resubscribe(ctx context.Context, registrationID string) error {
	registration, err := store.GetWebhookRegistration(ctx, r.store, registrationID)
	if err != nil {
		return fmt.Errorf("load registration %s: %w", registrationID, err)
	}
	if registration.RemoteSubscriptionID != "" {
		return nil
	}

	object, action := models.SplitEventType(registration.EventType)
	sub, err := r.provider.PostWebhook(ctx, registration.AccountID, registration.PropertyID, object, action,
		r.endpointURL(registration.PropertyID, registration.EventType))
	if err != nil {
		registration.LastError = err.Error()
		registration.UpdatedAt = r.now().UTC()
		_ = store.PutWebhookRegistration(ctx, r.store, registration)
		return fmt.Errorf("provider subscription: %w", err)
	}

	registration.RemoteSubscriptionID = sub.SubscriptionID
	registration.LastError = ""
	registration.UpdatedAt = r.now().UTC()
	return store.PutWebhookRegistration(ctx, r.store, registration)
}
