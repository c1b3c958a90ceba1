// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

// Package pms implements the outbound client for the provider's cloud API.
// Every call runs the same pipeline: acquire the account's rate limit
// token, attach a fresh bearer token and request id, execute with retry,
// and record the outcome in the sync log.
//
// Retry policy per error kind:
//   - auth (401): refresh the token once, then retry the request once
//   - rate_limit (429): honor Retry-After, else exponential backoff
//   - server (5xx) and network: exponential backoff (1s, 2s, 4s)
//   - validation (4xx) and api envelope failures: no retry
package pms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/stayware/cloudsync/internal/config"
	"github.com/stayware/cloudsync/internal/logging"
	"github.com/stayware/cloudsync/internal/metrics"
	"github.com/stayware/cloudsync/internal/models"
	"github.com/stayware/cloudsync/internal/ratelimit"
	"github.com/stayware/cloudsync/internal/store"
	"github.com/stayware/cloudsync/internal/synclog"
)

// maxResponseBody bounds how much of a response is read (4 MB).
const maxResponseBody = 4 << 20

// TokenSource supplies bearer tokens for accounts. *token.Manager is the
// production implementation.
type TokenSource interface {
	Token(ctx context.Context, accountID string) (string, error)
	ForceRefresh(ctx context.Context, accountID string) (string, error)
}

// Client is the provider API client shared by all accounts.
type Client struct {
	store    store.Store
	tokens   TokenSource
	limiter  *ratelimit.Registry
	recorder *synclog.Recorder

	httpClient *http.Client
	baseURL    string

	maxRetries     int
	retryBaseDelay time.Duration

	// exec wraps the whole retry loop of one call; the circuit breaker
	// installs itself here. Nil means direct execution.
	exec func(func() (*models.Envelope, error)) (*models.Envelope, error)
}

// NewClient creates a Client. recorder may be nil; API calls are then not
// logged to the sync log.
func NewClient(s store.Store, tokens TokenSource, limiter *ratelimit.Registry, recorder *synclog.Recorder, cfg config.ProviderConfig) *Client {
	return &Client{
		store:    s,
		tokens:   tokens,
		limiter:  limiter,
		recorder: recorder,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL:        cfg.BaseURL,
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: time.Second,
	}
}

// Do executes one provider API call for the account. GET params become the
// query string; for POST, PUT, and DELETE they are form-encoded into the
// body, matching the provider's API contract. The decoded envelope is
// returned on success.
func (c *Client) Do(ctx context.Context, accountID, method, endpoint string, params url.Values) (*models.Envelope, error) {
	account, err := store.GetAccount(ctx, c.store, accountID)
	if err != nil {
		return nil, &APIError{Kind: KindConfiguration, Endpoint: endpoint, Err: err}
	}

	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = logging.GenerateRequestID()
	}

	var entry *models.SyncLogEntry
	if c.recorder != nil {
		entry, _ = c.recorder.Begin(ctx, models.OpAPICall, accountID, "", endpoint)
		if entry != nil {
			entry.RequestID = requestID
		}
	}

	var httpStatus, retries int
	call := func() (*models.Envelope, error) {
		var envelope *models.Envelope
		var callErr error
		envelope, httpStatus, retries, callErr = c.doWithRetry(ctx, account, method, endpoint, params, requestID)
		return envelope, callErr
	}

	var envelope *models.Envelope
	if c.exec != nil {
		envelope, err = c.exec(call)
	} else {
		envelope, err = call()
	}

	if entry != nil {
		entry.HTTPStatus = httpStatus
		entry.RetryCount = retries
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				entry.ErrorCode = string(apiErr.Kind)
			}
			// Failed API calls are not re-driven from the log; the caller
			// owns retry semantics for the surrounding sync unit.
			entry.MaxRetries = 0
			_ = c.recorder.MarkError(ctx, entry, err)
		} else {
			_ = c.recorder.MarkSuccess(ctx, entry)
		}
	}

	return envelope, err
}

// doWithRetry runs the request attempts. It returns the last HTTP status
// observed and the number of retries spent, for sync log bookkeeping.
func (c *Client) doWithRetry(ctx context.Context, account *models.Account, method, endpoint string, params url.Values, requestID string) (*models.Envelope, int, int, error) {
	var (
		lastStatus int
		lastErr    error
		refreshed  bool
		retries    int
	)

	token, err := c.tokens.Token(ctx, account.ID)
	if err != nil {
		return nil, 0, 0, &APIError{Kind: KindAuth, Endpoint: endpoint, RequestID: requestID, Err: err}
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, lastStatus, retries, err
		}

		// Every attempt consumes a rate limit token, including retries.
		if err := c.limiter.Acquire(ctx, account.ID); err != nil {
			return nil, lastStatus, retries, &APIError{Kind: KindNetwork, Endpoint: endpoint, RequestID: requestID, Err: err}
		}

		start := time.Now()
		envelope, status, err := c.attempt(ctx, account, token, method, endpoint, params, requestID)
		metrics.RecordProviderRequest(endpoint, method, status, time.Since(start))
		lastStatus = status

		if err == nil {
			return envelope, status, retries, nil
		}
		lastErr = err

		kind := KindOf(err)
		switch kind {
		case KindAuth:
			// One forced refresh per call: a second 401 means the account
			// needs re-authorization, not another refresh.
			if refreshed {
				metrics.RecordProviderError(endpoint, string(kind))
				return nil, status, retries, err
			}
			refreshed = true
			retries++
			metrics.RecordProviderRetry(endpoint, string(kind))

			token, err = c.tokens.ForceRefresh(ctx, account.ID)
			if err != nil {
				return nil, status, retries, &APIError{Kind: KindAuth, Endpoint: endpoint, StatusCode: status, RequestID: requestID, Err: err}
			}
			continue

		case KindRateLimit, KindServer, KindNetwork:
			if attempt == c.maxRetries {
				metrics.RecordProviderError(endpoint, string(kind))
				return nil, status, retries, lastErr
			}
			retries++
			metrics.RecordProviderRetry(endpoint, string(kind))

			delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
			if kind == KindRateLimit {
				var apiErr *APIError
				if errors.As(err, &apiErr) && apiErr.Message != "" {
					if seconds, parseErr := strconv.Atoi(apiErr.Message); parseErr == nil && seconds > 0 {
						delay = time.Duration(seconds) * time.Second
					}
				}
			}

			logging.Debug().
				Str("endpoint", endpoint).
				Str("account_id", account.ID).
				Str("kind", string(kind)).
				Dur("delay", delay).
				Int("attempt", attempt).
				Msg("Retrying provider request")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, lastStatus, retries, ctx.Err()
			}
			continue

		default:
			metrics.RecordProviderError(endpoint, string(kind))
			return nil, status, retries, err
		}
	}

	return nil, lastStatus, retries, lastErr
}

// attempt performs a single HTTP exchange and classifies the outcome.
// For rate limit responses the Retry-After value travels in the error
// message so the retry loop can honor it.
func (c *Client) attempt(ctx context.Context, account *models.Account, token, method, endpoint string, params url.Values, requestID string) (*models.Envelope, int, error) {
	base := account.APIBase
	if base == "" {
		base = c.baseURL
	}
	reqURL := strings.TrimSuffix(base, "/") + "/" + endpoint

	var body io.Reader
	switch method {
	case http.MethodGet:
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
	default:
		if len(params) > 0 {
			body = strings.NewReader(params.Encode())
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, 0, &APIError{Kind: KindConfiguration, Endpoint: endpoint, RequestID: requestID, Err: err}
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &APIError{Kind: KindNetwork, Endpoint: endpoint, RequestID: requestID, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, &APIError{Kind: KindNetwork, Endpoint: endpoint, StatusCode: resp.StatusCode, RequestID: requestID, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		kind := classifyStatus(resp.StatusCode)
		apiErr := &APIError{
			Kind:       kind,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			RequestID:  requestID,
		}
		if kind == KindRateLimit {
			apiErr.Message = resp.Header.Get("Retry-After")
		} else {
			apiErr.Message = synclog.Truncate(respBody)
		}
		return nil, resp.StatusCode, apiErr
	}

	// An absent success flag means success; the provider omits it on
	// some read endpoints.
	envelope := models.Envelope{Success: true}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, resp.StatusCode, &APIError{Kind: KindAPI, Endpoint: endpoint, StatusCode: resp.StatusCode, RequestID: requestID, Err: fmt.Errorf("decode response: %w", err)}
	}

	if !envelope.Success {
		return nil, resp.StatusCode, &APIError{
			Kind:       KindAPI,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    envelope.Message,
			RequestID:  requestID,
		}
	}

	return &envelope, resp.StatusCode, nil
}

// Get performs a GET call and unmarshals the envelope data into out.
func (c *Client) Get(ctx context.Context, accountID, endpoint string, params url.Values, out any) error {
	envelope, err := c.Do(ctx, accountID, http.MethodGet, endpoint, params)
	if err != nil {
		return err
	}
	return decodeData(endpoint, envelope, out)
}

// Post performs a POST call and unmarshals the envelope data into out.
// out may be nil when the caller only needs success or failure.
func (c *Client) Post(ctx context.Context, accountID, endpoint string, params url.Values, out any) error {
	envelope, err := c.Do(ctx, accountID, http.MethodPost, endpoint, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeData(endpoint, envelope, out)
}

// Put performs a PUT call.
func (c *Client) Put(ctx context.Context, accountID, endpoint string, params url.Values, out any) error {
	envelope, err := c.Do(ctx, accountID, http.MethodPut, endpoint, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeData(endpoint, envelope, out)
}

// Delete performs a DELETE call.
func (c *Client) Delete(ctx context.Context, accountID, endpoint string, params url.Values) error {
	_, err := c.Do(ctx, accountID, http.MethodDelete, endpoint, params)
	return err
}

func decodeData(endpoint string, envelope *models.Envelope, out any) error {
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &APIError{Kind: KindAPI, Endpoint: endpoint, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}
