// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateRequest runs go-playground/validator over a request struct and
// folds failures into one message suitable for a 400 response.
func validateRequest(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(problems, "; "))
}

// CreateAccountRequest is the body for POST /api/v1/accounts. The client
// secret arrives in plaintext exactly once and is sealed before storage.
type CreateAccountRequest struct {
	Name         string  `json:"name" validate:"required,min=1,max=200"`
	APIBase      string  `json:"api_base" validate:"omitempty,url"`
	ClientID     string  `json:"client_id" validate:"required,min=1"`
	ClientSecret string  `json:"client_secret" validate:"required,min=8"`
	RateLimit    float64 `json:"rate_limit" validate:"omitempty,gt=0,lte=100"`
	Burst        int     `json:"burst" validate:"omitempty,gt=0,lte=1000"`
}

// UpdateAccountRequest is the body for PUT /api/v1/accounts/{id}. Zero
// values leave the stored field untouched; ClientSecret is re-sealed when
// present.
type UpdateAccountRequest struct {
	Name         string  `json:"name" validate:"omitempty,min=1,max=200"`
	APIBase      string  `json:"api_base" validate:"omitempty,url"`
	ClientSecret string  `json:"client_secret" validate:"omitempty,min=8"`
	RateLimit    float64 `json:"rate_limit" validate:"omitempty,gt=0,lte=100"`
	Burst        int     `json:"burst" validate:"omitempty,gt=0,lte=1000"`
	Active       *bool   `json:"active"`
}

// OAuthExchangeRequest is the body for the setup code exchange.
type OAuthExchangeRequest struct {
	Code        string `json:"code" validate:"required,min=1"`
	RedirectURI string `json:"redirect_uri" validate:"required,url"`
}

// CreatePropertyRequest registers a provider property for syncing.
type CreatePropertyRequest struct {
	AccountID   string `json:"account_id" validate:"required"`
	ExternalID  string `json:"external_id" validate:"required"`
	Name        string `json:"name" validate:"omitempty,max=200"`
	SyncEnabled *bool  `json:"sync_enabled"`
}

// TriggerSyncRequest optionally narrows a manual sync to a module subset.
type TriggerSyncRequest struct {
	Modules []string `json:"modules" validate:"omitempty,dive,min=1"`
}

// CreateWebhookRegistrationRequest is the body for registering a webhook.
// An empty property id covers every property on the account.
type CreateWebhookRegistrationRequest struct {
	AccountID  string `json:"account_id" validate:"required"`
	PropertyID string `json:"property_id"`
	EventType  string `json:"event_type" validate:"required,contains=/"`
}

// SyncLogQuery is the validated query string for GET /api/v1/sync-log.
type SyncLogQuery struct {
	AccountID  string `validate:"omitempty"`
	PropertyID string `validate:"omitempty"`
	Operation  string `validate:"omitempty,oneof=manual scheduled webhook api_call token_refresh import export"`
	Status     string `validate:"omitempty,oneof=pending processing success error partial skipped retry"`
	BatchID    string `validate:"omitempty,uuid"`
	Limit      int    `validate:"min=0,max=1000"`
}
