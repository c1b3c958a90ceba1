// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/stayware/cloudsync/internal/config"
	"github.com/stayware/cloudsync/internal/models"
	"github.com/stayware/cloudsync/internal/store"
	syncengine "github.com/stayware/cloudsync/internal/sync"
	"github.com/stayware/cloudsync/internal/synclog"
)

// maxBodyBytes bounds admin API request bodies.
const maxBodyBytes = 1 << 20

// SyncTrigger starts a property sync batch.
type SyncTrigger interface {
	SyncProperty(ctx context.Context, propertyID string, trigger models.OperationType, modules ...string) (*syncengine.Result, error)
}

// TokenExchanger turns an authorization code into stored credentials.
type TokenExchanger interface {
	Exchange(ctx context.Context, accountID, code, redirectURI string) error
}

// ConnectionTester verifies provider connectivity for an account.
type ConnectionTester interface {
	GetUserInfo(ctx context.Context, accountID string) (*models.UserInfo, error)
}

// WebhookAdmin manages webhook registrations including the provider-side
// subscription.
type WebhookAdmin interface {
	Register(ctx context.Context, accountID, propertyID, eventType string) (*models.WebhookRegistration, error)
	Unregister(ctx context.Context, registrationID string) error
	Resubscribe(ctx context.Context, registrationID string) error
}

// LimiterAdmin applies per-account rate limit overrides.
type LimiterAdmin interface {
	Update(accountID string, requestsPerSecond float64, burst int)
	Remove(accountID string)
}

// Handler carries the admin API dependencies.
type Handler struct {
	store    store.Store
	sealer   *config.Sealer
	recorder *synclog.Recorder
	sync     SyncTrigger
	tokens   TokenExchanger
	provider ConnectionTester
	webhooks WebhookAdmin
	limiter  LimiterAdmin
}

func NewHandler(s store.Store, sealer *config.Sealer, recorder *synclog.Recorder, sync SyncTrigger, tokens TokenExchanger, provider ConnectionTester, webhooks WebhookAdmin, limiter LimiterAdmin) *Handler {
	return &Handler{
		store:    s,
		sealer:   sealer,
		recorder: recorder,
		sync:     sync,
		tokens:   tokens,
		provider: provider,
		webhooks: webhooks,
		limiter:  limiter,
	}
}

// accountView is the externally visible account shape. Sealed material is
// replaced with a masked marker so credentials never leave the process.
type accountView struct {
	ID                  string                  `json:"id"`
	Name                string                  `json:"name"`
	APIBase             string                  `json:"api_base,omitempty"`
	ClientID            string                  `json:"client_id"`
	ClientSecret        string                  `json:"client_secret"`
	HasAccessToken      bool                    `json:"has_access_token"`
	HasRefreshToken     bool                    `json:"has_refresh_token"`
	TokenExpiresAt      time.Time               `json:"token_expires_at,omitempty"`
	RateLimit           float64                 `json:"rate_limit"`
	Burst               int                     `json:"burst"`
	Active              bool                    `json:"active"`
	Status              models.ConnectionStatus `json:"status"`
	LastConnectionCheck time.Time               `json:"last_connection_check,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
}

func viewAccount(a *models.Account) accountView {
	return accountView{
		ID:                  a.ID,
		Name:                a.Name,
		APIBase:             a.APIBase,
		ClientID:            a.ClientID,
		ClientSecret:        config.MaskCredential(a.SealedClientSecret),
		HasAccessToken:      a.SealedAccessToken != "",
		HasRefreshToken:     a.SealedRefreshToken != "",
		TokenExpiresAt:      a.TokenExpiresAt,
		RateLimit:           a.RateLimit,
		Burst:               a.Burst,
		Active:              a.Active,
		Status:              a.Status,
		LastConnectionCheck: a.LastConnectionCheck,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// CreateAccount handles POST /api/v1/accounts.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req CreateAccountRequest
	if err := decodeBody(w, r, &req); err != nil {
		rw.BadRequest("invalid request body")
		return
	}
	if err := validateRequest(&req); err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	sealed, err := h.sealer.Seal(req.ClientSecret)
	if err != nil {
		rw.InternalError("failed to seal client secret")
		return
	}

	now := time.Now().UTC()
	account := &models.Account{
		ID:                 uuid.New().String(),
		Name:               req.Name,
		APIBase:            req.APIBase,
		ClientID:           req.ClientID,
		SealedClientSecret: sealed,
		RateLimit:          req.RateLimit,
		Burst:              req.Burst,
		Active:             true,
		Status:             models.ConnectionDisconnected,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := store.PutAccount(r.Context(), h.store, account); err != nil {
		rw.InternalError("failed to store account")
		return
	}
	h.limiter.Update(account.ID, account.RateLimit, account.Burst)
	rw.Created(viewAccount(account))
}

// ListAccounts handles GET /api/v1/accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	accounts, err := store.ListAccounts(r.Context(), h.store)
	if err != nil {
		rw.InternalError("failed to list accounts")
		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, viewAccount(account))
	}
	rw.SuccessWithCount(views, len(views))
}

// GetAccount handles GET /api/v1/accounts/{id}.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	account, err := store.GetAccount(r.Context(), h.store, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("account not found")
			return
		}
		rw.InternalError("failed to load account")
		return
	}
	rw.Success(viewAccount(account))
}

// UpdateAccount handles PUT /api/v1/accounts/{id}.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	account, err := store.GetAccount(r.Context(), h.store, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("account not found")
			return
		}
		rw.InternalError("failed to load account")
		return
	}

	var req UpdateAccountRequest
	if err := decodeBody(w, r, &req); err != nil {
		rw.BadRequest("invalid request body")
		return
	}
	if err := validateRequest(&req); err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	if req.Name != "" {
		account.Name = req.Name
	}
	if req.APIBase != "" {
		account.APIBase = req.APIBase
	}
	if req.ClientSecret != "" {
		sealed, err := h.sealer.Seal(req.ClientSecret)
		if err != nil {
			rw.InternalError("failed to seal client secret")
			return
		}
		account.SealedClientSecret = sealed
	}
	if req.RateLimit > 0 {
		account.RateLimit = req.RateLimit
	}
	if req.Burst > 0 {
		account.Burst = req.Burst
	}
	if req.Active != nil {
		// Accounts soft-deactivate; sync log history keeps referencing
		// them.
		account.Active = *req.Active
	}
	account.UpdatedAt = time.Now().UTC()

	if err := store.PutAccount(r.Context(), h.store, account); err != nil {
		rw.InternalError("failed to store account")
		return
	}
	h.limiter.Update(account.ID, account.RateLimit, account.Burst)
	rw.Success(viewAccount(account))
}

// DeactivateAccount handles DELETE /api/v1/accounts/{id}. The record is
// kept for sync log references.
func (h *Handler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	account, err := store.GetAccount(r.Context(), h.store, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("account not found")
			return
		}
		rw.InternalError("failed to load account")
		return
	}

	account.Active = false
	account.UpdatedAt = time.Now().UTC()
	if err := store.PutAccount(r.Context(), h.store, account); err != nil {
		rw.InternalError("failed to store account")
		return
	}
	h.limiter.Remove(account.ID)
	rw.NoContent()
}

// ExchangeOAuthCode handles POST /api/v1/accounts/{id}/oauth/exchange.
func (h *Handler) ExchangeOAuthCode(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	accountID := chi.URLParam(r, "id")

	var req OAuthExchangeRequest
	if err := decodeBody(w, r, &req); err != nil {
		rw.BadRequest("invalid request body")
		return
	}
	if err := validateRequest(&req); err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	if err := h.tokens.Exchange(r.Context(), accountID, req.Code, req.RedirectURI); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("account not found")
			return
		}
		rw.Error(http.StatusBadGateway, ErrCodeExternalService, "authorization code exchange failed")
		return
	}
	rw.Success(map[string]string{"message": "credentials stored"})
}

// TestConnection handles POST /api/v1/accounts/{id}/test.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	accountID := chi.URLParam(r, "id")

	account, err := store.GetAccount(r.Context(), h.store, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("account not found")
			return
		}
		rw.InternalError("failed to load account")
		return
	}

	info, testErr := h.provider.GetUserInfo(r.Context(), accountID)

	account.LastConnectionCheck = time.Now().UTC()
	if testErr != nil {
		account.Status = models.ConnectionError
	} else {
		account.Status = models.ConnectionConnected
	}
	if err := store.PutAccount(r.Context(), h.store, account); err != nil {
		rw.InternalError("failed to store account")
		return
	}

	if testErr != nil {
		rw.Error(http.StatusBadGateway, ErrCodeExternalService, "provider connection failed: "+testErr.Error())
		return
	}
	rw.Success(map[string]any{
		"message":  "connection ok",
		"userinfo": info,
	})
}

// CreateProperty handles POST /api/v1/properties.
func (h *Handler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req CreatePropertyRequest
	if err := decodeBody(w, r, &req); err != nil {
		rw.BadRequest("invalid request body")
		return
	}
	if err := validateRequest(&req); err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	if _, err := store.GetAccount(r.Context(), h.store, req.AccountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("account not found")
			return
		}
		rw.InternalError("failed to load account")
		return
	}

	if existing, err := store.FindPropertyByExternalID(r.Context(), h.store, req.ExternalID); err == nil && existing != nil {
		rw.Conflict("property already registered")
		return
	}

	now := time.Now().UTC()
	property := &models.Property{
		ID:          uuid.New().String(),
		ExternalID:  req.ExternalID,
		Name:        req.Name,
		AccountID:   req.AccountID,
		SyncEnabled: req.SyncEnabled == nil || *req.SyncEnabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.PutProperty(r.Context(), h.store, property); err != nil {
		rw.InternalError("failed to store property")
		return
	}
	rw.Created(property)
}

// ListProperties handles GET /api/v1/properties with an optional
// account_id filter.
func (h *Handler) ListProperties(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	properties, err := store.ListProperties(r.Context(), h.store, r.URL.Query().Get("account_id"))
	if err != nil {
		rw.InternalError("failed to list properties")
		return
	}
	rw.SuccessWithCount(properties, len(properties))
}

// GetProperty handles GET /api/v1/properties/{id}.
func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	property, err := store.GetProperty(r.Context(), h.store, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("property not found")
			return
		}
		rw.InternalError("failed to load property")
		return
	}
	rw.Success(property)
}

// TriggerSync handles POST /api/v1/properties/{id}/sync.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	propertyID := chi.URLParam(r, "id")

	var req TriggerSyncRequest
	if r.ContentLength > 0 {
		if err := decodeBody(w, r, &req); err != nil {
			rw.BadRequest("invalid request body")
			return
		}
		if err := validateRequest(&req); err != nil {
			rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
			return
		}
	}

	result, err := h.sync.SyncProperty(r.Context(), propertyID, models.OpManual, req.Modules...)
	switch {
	case err == nil:
		rw.Success(result)
	case errors.Is(err, store.ErrNotFound):
		rw.NotFound("property not found")
	case errors.Is(err, syncengine.ErrSyncRunning):
		rw.Error(http.StatusConflict, ErrCodeSyncAlreadyRunning, "a sync batch is already running for this property")
	case errors.Is(err, syncengine.ErrSyncDisabled), errors.Is(err, syncengine.ErrNoCredentials),
		errors.Is(err, syncengine.ErrUnknownModule), errors.Is(err, syncengine.ErrDependencyOrder):
		rw.BadRequest(err.Error())
	default:
		rw.InternalError("sync failed: " + err.Error())
	}
}

// CreateWebhookRegistration handles POST /api/v1/webhooks.
func (h *Handler) CreateWebhookRegistration(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req CreateWebhookRegistrationRequest
	if err := decodeBody(w, r, &req); err != nil {
		rw.BadRequest("invalid request body")
		return
	}
	if err := validateRequest(&req); err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	registration, err := h.webhooks.Register(r.Context(), req.AccountID, req.PropertyID, req.EventType)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			rw.NotFound("account or property not found")
		default:
			// Registration conflicts and malformed event types surface
			// with their own messages.
			rw.BadRequest(err.Error())
		}
		return
	}
	rw.Created(registration)
}

// ListWebhookRegistrations handles GET /api/v1/webhooks.
func (h *Handler) ListWebhookRegistrations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	registrations, err := store.ListWebhookRegistrations(r.Context(), h.store, r.URL.Query().Get("account_id"))
	if err != nil {
		rw.InternalError("failed to list webhook registrations")
		return
	}
	rw.SuccessWithCount(registrations, len(registrations))
}

// DeleteWebhookRegistration handles DELETE /api/v1/webhooks/{id}. The
// provider-side unsubscribe is best-effort; local deletion always wins.
func (h *Handler) DeleteWebhookRegistration(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := h.webhooks.Unregister(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("webhook registration not found")
			return
		}
		rw.InternalError("failed to delete webhook registration")
		return
	}
	rw.NoContent()
}

// ResubscribeWebhook handles POST /api/v1/webhooks/{id}/resubscribe,
// retrying the provider-side subscription for a local-only registration.
func (h *Handler) ResubscribeWebhook(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := h.webhooks.Resubscribe(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("webhook registration not found")
			return
		}
		rw.Error(http.StatusBadGateway, ErrCodeExternalService, "provider subscription failed: "+err.Error())
		return
	}
	rw.Success(map[string]string{"message": "subscribed"})
}

// ListSyncLog handles GET /api/v1/sync-log.
func (h *Handler) ListSyncLog(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q := r.URL.Query()

	limit := 100
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			rw.BadRequest("limit must be an integer")
			return
		}
		limit = parsed
	}

	query := SyncLogQuery{
		AccountID:  q.Get("account_id"),
		PropertyID: q.Get("property_id"),
		Operation:  q.Get("operation"),
		Status:     q.Get("status"),
		BatchID:    q.Get("batch_id"),
		Limit:      limit,
	}
	if err := validateRequest(&query); err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	entries, err := h.recorder.List(r.Context(), synclog.Filter{
		AccountID:  query.AccountID,
		PropertyID: query.PropertyID,
		Operation:  models.OperationType(query.Operation),
		Status:     models.SyncStatus(query.Status),
		BatchID:    query.BatchID,
		Limit:      query.Limit,
	})
	if err != nil {
		rw.InternalError("failed to list sync log")
		return
	}
	rw.SuccessWithCount(entries, len(entries))
}

// SyncLogStats handles GET /api/v1/sync-log/stats.
func (h *Handler) SyncLogStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	stats, err := h.recorder.Stats(r.Context())
	if err != nil {
		rw.InternalError("failed to aggregate sync log stats")
		return
	}
	rw.Success(stats)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := "ok"
	accounts, err := store.ListActiveAccounts(r.Context(), h.store)
	if err != nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeInternalError, "record store unavailable")
		return
	}

	rw.Success(map[string]any{
		"status":          status,
		"active_accounts": len(accounts),
		"time":            time.Now().UTC(),
	})
}
