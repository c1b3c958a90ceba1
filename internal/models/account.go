// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

// Package models defines the persistent entities shared across CloudSync:
// accounts, properties, webhook registrations, sync log entries, and the
// provider wire types.
package models

import "time"

// ConnectionStatus describes the health of an account's provider connection.
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionError        ConnectionStatus = "error"
)

// Account holds one tenant's credentials and configuration for the remote
// PMS API. Secret material (client secret, access token, refresh token) is
// stored sealed; the config.Sealer unseals it at the point of use and the
// plaintext is never persisted or logged.
//
// Multiple accounts may be active simultaneously; each is rate limited
// independently per the provider's per-account contract.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// APIBase is the versioned provider API base URL,
	// e.g. "https://hotels.example.com/api/v1.2".
	APIBase string `json:"api_base"`

	ClientID string `json:"client_id"`

	// Sealed credential fields (AES-256-GCM, base64).
	SealedClientSecret string `json:"sealed_client_secret"`
	SealedAccessToken  string `json:"sealed_access_token,omitempty"`
	SealedRefreshToken string `json:"sealed_refresh_token,omitempty"`

	TokenExpiresAt time.Time `json:"token_expires_at,omitempty"`

	// RateLimit is the provider-granted requests per second (5 standard,
	// 10 for tech partners). Burst is the bucket capacity.
	RateLimit float64 `json:"rate_limit"`
	Burst     int     `json:"burst"`

	Active bool             `json:"active"`
	Status ConnectionStatus `json:"status"`

	LastConnectionCheck time.Time `json:"last_connection_check,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenValid reports whether the access token is usable at the given
// instant, applying the skew buffer so tokens about to expire are treated
// as already expired.
func (a *Account) TokenValid(now time.Time, skew time.Duration) bool {
	if a.SealedAccessToken == "" {
		return false
	}
	if a.TokenExpiresAt.IsZero() {
		return false
	}
	return now.Add(skew).Before(a.TokenExpiresAt)
}

// KindAccount is the record store kind under which accounts persist.
const KindAccount = "account"
