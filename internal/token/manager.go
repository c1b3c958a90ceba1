// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

// Package token manages the OAuth2 token lifecycle for provider accounts:
// unsealing stored tokens, refreshing them ahead of expiry, and exchanging
// authorization codes during account setup.
//
// Concurrency: refreshes are serialized per account. A caller that finds a
// stale token takes the account's lease, re-reads the account, and skips
// the refresh if another goroutine already renewed it. Tokens leave this
// package only as plaintext strings handed to the API client; they are
// persisted sealed and never logged.
package token

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/stayware/cloudsync/internal/config"
	"github.com/stayware/cloudsync/internal/logging"
	"github.com/stayware/cloudsync/internal/metrics"
	"github.com/stayware/cloudsync/internal/models"
	"github.com/stayware/cloudsync/internal/store"
	"github.com/stayware/cloudsync/internal/synclog"
)

var (
	// ErrNoRefreshToken is returned when an account has no refresh token
	// to renew with; the account must be re-authorized.
	ErrNoRefreshToken = errors.New("token: account has no refresh token")

	// ErrRefreshRejected is returned when the provider rejects the refresh
	// grant, usually because the refresh token was revoked.
	ErrRefreshRejected = errors.New("token: refresh rejected by provider")
)

// Manager owns token state for all accounts.
type Manager struct {
	store    store.Store
	sealer   *config.Sealer
	recorder *synclog.Recorder
	client   *http.Client

	tokenURL string
	skew     time.Duration

	mu     sync.Mutex
	leases map[string]*sync.Mutex

	now func() time.Time
}

// NewManager creates a Manager. The recorder may be nil in tests; token
// refreshes are then not logged.
func NewManager(s store.Store, sealer *config.Sealer, recorder *synclog.Recorder, cfg config.ProviderConfig) *Manager {
	return &Manager{
		store:    s,
		sealer:   sealer,
		recorder: recorder,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		tokenURL: cfg.TokenURL,
		skew:     cfg.RefreshSkew,
		leases:   make(map[string]*sync.Mutex),
		now:      time.Now,
	}
}

// lease returns the account's refresh mutex, creating it on first use.
func (m *Manager) lease(accountID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leases[accountID]
	if !ok {
		l = &sync.Mutex{}
		m.leases[accountID] = l
	}
	return l
}

// Token returns a valid access token for the account, refreshing it first
// if it is missing or expires within the skew window.
func (m *Manager) Token(ctx context.Context, accountID string) (string, error) {
	account, err := store.GetAccount(ctx, m.store, accountID)
	if err != nil {
		return "", fmt.Errorf("load account %s: %w", accountID, err)
	}

	if account.TokenValid(m.now(), m.skew) {
		return m.sealer.Open(account.SealedAccessToken)
	}

	lease := m.lease(accountID)
	lease.Lock()
	defer lease.Unlock()

	// Another caller may have refreshed while we waited on the lease.
	account, err = store.GetAccount(ctx, m.store, accountID)
	if err != nil {
		return "", fmt.Errorf("reload account %s: %w", accountID, err)
	}
	if account.TokenValid(m.now(), m.skew) {
		return m.sealer.Open(account.SealedAccessToken)
	}

	return m.refreshLocked(ctx, account, "expiry")
}

// ForceRefresh discards the current access token and obtains a new one.
// Used after a 401 response indicates the token was revoked server-side.
func (m *Manager) ForceRefresh(ctx context.Context, accountID string) (string, error) {
	lease := m.lease(accountID)
	lease.Lock()
	defer lease.Unlock()

	account, err := store.GetAccount(ctx, m.store, accountID)
	if err != nil {
		return "", fmt.Errorf("load account %s: %w", accountID, err)
	}
	return m.refreshLocked(ctx, account, "unauthorized")
}

// refreshLocked performs the refresh_token grant. The account lease must be
// held by the caller.
func (m *Manager) refreshLocked(ctx context.Context, account *models.Account, trigger string) (string, error) {
	var entry *models.SyncLogEntry
	if m.recorder != nil {
		entry, _ = m.recorder.Begin(ctx, models.OpTokenRefresh, account.ID, "", "refresh_token")
	}

	accessToken, err := m.refresh(ctx, account)
	metrics.RecordTokenRefresh(account.ID, trigger, err)

	if err != nil {
		account.Status = models.ConnectionError
		account.UpdatedAt = m.now().UTC()
		if putErr := store.PutAccount(ctx, m.store, account); putErr != nil {
			logging.Error().Err(putErr).Str("account_id", account.ID).Msg("Failed to persist account after refresh failure")
		}
		if entry != nil {
			_ = m.recorder.MarkError(ctx, entry, err)
		}
		logging.Warn().
			Err(err).
			Str("account_id", account.ID).
			Str("trigger", trigger).
			Msg("Token refresh failed")
		return "", err
	}

	if entry != nil {
		_ = m.recorder.MarkSuccess(ctx, entry)
	}
	logging.Info().
		Str("account_id", account.ID).
		Str("trigger", trigger).
		Time("expires_at", account.TokenExpiresAt).
		Msg("Access token refreshed")
	return accessToken, nil
}

// refresh executes the grant and persists the sealed result on the account.
func (m *Manager) refresh(ctx context.Context, account *models.Account) (string, error) {
	if account.SealedRefreshToken == "" {
		return "", ErrNoRefreshToken
	}

	refreshToken, err := m.sealer.Open(account.SealedRefreshToken)
	if err != nil {
		return "", fmt.Errorf("unseal refresh token: %w", err)
	}
	clientSecret, err := m.sealer.Open(account.SealedClientSecret)
	if err != nil {
		return "", fmt.Errorf("unseal client secret: %w", err)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {account.ClientID},
		"client_secret": {clientSecret},
	}

	tok, err := m.postTokenForm(ctx, form)
	if err != nil {
		return "", err
	}

	if err := m.storeTokens(ctx, account, tok); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Exchange performs the authorization_code grant during account setup and
// persists the resulting token pair.
func (m *Manager) Exchange(ctx context.Context, accountID, code, redirectURI string) error {
	lease := m.lease(accountID)
	lease.Lock()
	defer lease.Unlock()

	account, err := store.GetAccount(ctx, m.store, accountID)
	if err != nil {
		return fmt.Errorf("load account %s: %w", accountID, err)
	}

	clientSecret, err := m.sealer.Open(account.SealedClientSecret)
	if err != nil {
		return fmt.Errorf("unseal client secret: %w", err)
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {account.ClientID},
		"client_secret": {clientSecret},
	}
	if redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}

	tok, err := m.postTokenForm(ctx, form)
	metrics.RecordTokenRefresh(accountID, "exchange", err)
	if err != nil {
		return err
	}

	if err := m.storeTokens(ctx, account, tok); err != nil {
		return err
	}

	logging.Info().
		Str("account_id", accountID).
		Time("expires_at", account.TokenExpiresAt).
		Msg("Authorization code exchanged")
	return nil
}

// postTokenForm posts the grant to the token endpoint and decodes the
// response. Response bodies are never logged; they contain token material.
func (m *Manager) postTokenForm(ctx context.Context, form url.Values) (*models.TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tok models.TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}
	return &tok, nil
}

// storeTokens seals and persists a token pair on the account. The refresh
// token rotates: when the provider returns a new one it replaces the old.
func (m *Manager) storeTokens(ctx context.Context, account *models.Account, tok *models.TokenResponse) error {
	sealedAccess, err := m.sealer.Seal(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	account.SealedAccessToken = sealedAccess

	if tok.RefreshToken != "" {
		sealedRefresh, err := m.sealer.Seal(tok.RefreshToken)
		if err != nil {
			return fmt.Errorf("seal refresh token: %w", err)
		}
		account.SealedRefreshToken = sealedRefresh
	}

	now := m.now().UTC()
	account.TokenExpiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	account.Status = models.ConnectionConnected
	account.UpdatedAt = now

	if err := store.PutAccount(ctx, m.store, account); err != nil {
		return fmt.Errorf("persist account tokens: %w", err)
	}

	metrics.TokenExpirySeconds.WithLabelValues(account.ID).Set(float64(tok.ExpiresIn))
	return nil
}
