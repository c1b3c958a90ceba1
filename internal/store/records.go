// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package store

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/stayware/cloudsync/internal/models"
)

// Typed accessors over the generic Store for the record kinds the rest of
// the application reads and writes.

// GetAccount loads one account.
func GetAccount(ctx context.Context, s Store, id string) (*models.Account, error) {
	var a models.Account
	if err := s.Get(ctx, models.KindAccount, id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// PutAccount creates or replaces an account.
func PutAccount(ctx context.Context, s Store, a *models.Account) error {
	return s.Put(ctx, models.KindAccount, a.ID, a)
}

// ListAccounts returns all accounts.
func ListAccounts(ctx context.Context, s Store) ([]*models.Account, error) {
	var accounts []*models.Account
	err := s.List(ctx, models.KindAccount, func(id string, data []byte) error {
		var a models.Account
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("decode account %s: %w", id, err)
		}
		accounts = append(accounts, &a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListActiveAccounts returns accounts with sync enabled.
func ListActiveAccounts(ctx context.Context, s Store) ([]*models.Account, error) {
	all, err := ListAccounts(ctx, s)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, a := range all {
		if a.Active {
			active = append(active, a)
		}
	}
	return active, nil
}

// GetProperty loads one property.
func GetProperty(ctx context.Context, s Store, id string) (*models.Property, error) {
	var p models.Property
	if err := s.Get(ctx, models.KindProperty, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PutProperty creates or replaces a property.
func PutProperty(ctx context.Context, s Store, p *models.Property) error {
	return s.Put(ctx, models.KindProperty, p.ID, p)
}

// ListProperties returns all properties, optionally filtered by account.
func ListProperties(ctx context.Context, s Store, accountID string) ([]*models.Property, error) {
	var properties []*models.Property
	err := s.List(ctx, models.KindProperty, func(id string, data []byte) error {
		var p models.Property
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode property %s: %w", id, err)
		}
		if accountID == "" || p.AccountID == accountID {
			properties = append(properties, &p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return properties, nil
}

// FindPropertyByExternalID locates a property by its provider-side id.
func FindPropertyByExternalID(ctx context.Context, s Store, externalID string) (*models.Property, error) {
	properties, err := ListProperties(ctx, s, "")
	if err != nil {
		return nil, err
	}
	for _, p := range properties {
		if p.ExternalID == externalID {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

// GetWebhookRegistration loads one webhook registration.
func GetWebhookRegistration(ctx context.Context, s Store, id string) (*models.WebhookRegistration, error) {
	var w models.WebhookRegistration
	if err := s.Get(ctx, models.KindWebhookRegistration, id, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// PutWebhookRegistration creates or replaces a webhook registration.
func PutWebhookRegistration(ctx context.Context, s Store, w *models.WebhookRegistration) error {
	return s.Put(ctx, models.KindWebhookRegistration, w.ID, w)
}

// ListWebhookRegistrations returns all registrations, optionally filtered
// by account.
func ListWebhookRegistrations(ctx context.Context, s Store, accountID string) ([]*models.WebhookRegistration, error) {
	var registrations []*models.WebhookRegistration
	err := s.List(ctx, models.KindWebhookRegistration, func(id string, data []byte) error {
		var w models.WebhookRegistration
		if err := json.Unmarshal(data, &w); err != nil {
			return fmt.Errorf("decode webhook registration %s: %w", id, err)
		}
		if accountID == "" || w.AccountID == accountID {
			registrations = append(registrations, &w)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return registrations, nil
}

// FindWebhookRegistration locates the registration matching a delivery's
// property and event type. A registration with an empty property id covers
// all properties of its account.
func FindWebhookRegistration(ctx context.Context, s Store, propertyID, eventType string) (*models.WebhookRegistration, error) {
	registrations, err := ListWebhookRegistrations(ctx, s, "")
	if err != nil {
		return nil, err
	}

	var wildcard *models.WebhookRegistration
	for _, w := range registrations {
		if !w.Active || w.EventType != eventType {
			continue
		}
		if w.PropertyID == propertyID {
			return w, nil
		}
		if w.PropertyID == "" {
			wildcard = w
		}
	}
	if wildcard != nil {
		return wildcard, nil
	}
	return nil, ErrNotFound
}
