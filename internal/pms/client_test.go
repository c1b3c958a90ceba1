// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package pms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stayware/cloudsync/internal/config"
	"github.com/stayware/cloudsync/internal/models"
	"github.com/stayware/cloudsync/internal/ratelimit"
	"github.com/stayware/cloudsync/internal/store"
	"github.com/stayware/cloudsync/internal/synclog"
)

// stubTokens is a TokenSource with function fields for per-test behavior.
type stubTokens struct {
	token        func(ctx context.Context, accountID string) (string, error)
	forceRefresh func(ctx context.Context, accountID string) (string, error)
}

func (s *stubTokens) Token(ctx context.Context, accountID string) (string, error) {
	if s.token != nil {
		return s.token(ctx, accountID)
	}
	return "test-token", nil
}

func (s *stubTokens) ForceRefresh(ctx context.Context, accountID string) (string, error) {
	if s.forceRefresh != nil {
		return s.forceRefresh(ctx, accountID)
	}
	return "refreshed-token", nil
}

// newTestClient builds a Client against the given server with fast retries.
func newTestClient(t *testing.T, serverURL string, tokens TokenSource) (*Client, store.Store) {
	t.Helper()

	st := store.NewMemoryStore()
	account := &models.Account{
		ID:      "acct-1",
		APIBase: serverURL,
		Active:  true,
	}
	if err := store.PutAccount(context.Background(), st, account); err != nil {
		t.Fatalf("PutAccount: %v", err)
	}

	c := NewClient(st, tokens, ratelimit.NewRegistry(1000, 1000), nil, config.ProviderConfig{
		BaseURL:        serverURL,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     3,
	})
	c.retryBaseDelay = time.Millisecond
	return c, st
}

func TestDoAttachesAuthAndRequestID(t *testing.T) {
	t.Parallel()

	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte(`{"success":true,"data":{"sub":"u1"}}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, &stubTokens{})

	info, err := c.GetUserInfo(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetUserInfo: %v", err)
	}
	if info.Sub != "u1" {
		t.Errorf("Sub = %q, want u1", info.Sub)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Error("X-Request-ID not set")
	}
}

func TestDoRetriesRateLimitWithRetryAfter(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, &stubTokens{})

	if _, err := c.Do(context.Background(), "acct-1", http.MethodGet, "getHotels", nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, &stubTokens{})

	if _, err := c.Do(context.Background(), "acct-1", http.MethodGet, "getHotels", nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, &stubTokens{})

	_, err := c.Do(context.Background(), "acct-1", http.MethodGet, "getHotels", nil)
	if KindOf(err) != KindServer {
		t.Fatalf("Do = %v, want server kind", err)
	}
	// MaxRetries 3 means 4 total attempts.
	if calls.Load() != 4 {
		t.Errorf("calls = %d, want 4", calls.Load())
	}
}

func TestDoUnauthorizedRefreshesOnce(t *testing.T) {
	t.Parallel()

	var calls, refreshes atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer refreshed-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	tokens := &stubTokens{
		token: func(ctx context.Context, accountID string) (string, error) {
			return "stale-token", nil
		},
		forceRefresh: func(ctx context.Context, accountID string) (string, error) {
			refreshes.Add(1)
			return "refreshed-token", nil
		},
	}
	c, _ := newTestClient(t, srv.URL, tokens)

	if _, err := c.Do(context.Background(), "acct-1", http.MethodGet, "getHotels", nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes.Load())
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestDoSecondUnauthorizedFails(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, &stubTokens{})

	_, err := c.Do(context.Background(), "acct-1", http.MethodGet, "getHotels", nil)
	if KindOf(err) != KindAuth {
		t.Fatalf("Do = %v, want auth kind", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (refresh once, then give up)", calls.Load())
	}
}

func TestDoValidationErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"message":"missing propertyID"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, &stubTokens{})

	_, err := c.Do(context.Background(), "acct-1", http.MethodGet, "getReservations", nil)
	if KindOf(err) != KindValidation {
		t.Fatalf("Do = %v, want validation kind", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", calls.Load())
	}
	if Retriable(err) {
		t.Error("validation errors must not be retriable")
	}
}

func TestDoEnvelopeFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"property not found"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, &stubTokens{})

	_, err := c.Do(context.Background(), "acct-1", http.MethodGet, "getHotelDetails", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Do = %v, want APIError", err)
	}
	if apiErr.Kind != KindAPI {
		t.Errorf("Kind = %q, want api", apiErr.Kind)
	}
	if apiErr.Message != "property not found" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestDoTreatsAbsentSuccessFlagAsSuccess(t *testing.T) {
	t.Parallel()

	// Some read endpoints return a bare data envelope with no success
	// flag at all; those responses are successes.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"propertyID":"198424","propertyName":"Harbor View"}]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, &stubTokens{})

	hotels, err := c.GetHotels(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetHotels: %v", err)
	}
	if len(hotels) != 1 || hotels[0].PropertyID != "198424" {
		t.Errorf("hotels = %+v, want one with propertyID 198424", hotels)
	}
}

func TestDoUnknownAccount(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, "http://127.0.0.1:0", &stubTokens{})

	_, err := c.Do(context.Background(), "absent", http.MethodGet, "getHotels", nil)
	if KindOf(err) != KindConfiguration {
		t.Errorf("Do = %v, want configuration kind", err)
	}
}

func TestPostSendsFormBody(t *testing.T) {
	t.Parallel()

	var gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseForm(); err == nil {
			gotBody = r.PostForm.Encode()
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"subscriptionID":"sub-1"}}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, &stubTokens{})

	sub, err := c.PostWebhook(context.Background(), "acct-1", "prop-1", "reservation", "created", "https://cs.example.com/webhook/prop-1/reservation/created")
	if err != nil {
		t.Fatalf("PostWebhook: %v", err)
	}
	if sub.SubscriptionID != "sub-1" {
		t.Errorf("SubscriptionID = %q", sub.SubscriptionID)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotBody == "" {
		t.Error("POST body empty")
	}
}

func TestErrorKindClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   ErrorKind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{429, KindRateLimit},
		{500, KindServer},
		{502, KindServer},
		{400, KindValidation},
		{404, KindValidation},
		{422, KindValidation},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestDoRecordsCallLogEntry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c, st := newTestClient(t, srv.URL, &stubTokens{})
	recorder := synclog.NewRecorder(st, 3)
	c.recorder = recorder

	if _, err := c.Do(context.Background(), "acct-1", http.MethodGet, "getHotels", nil); err != nil {
		t.Fatalf("Do: %v", err)
	}

	entries, err := recorder.List(context.Background(), synclog.Filter{Operation: models.OpAPICall})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Status != models.SyncSuccess {
		t.Errorf("Status = %q, want success", entry.Status)
	}
	if entry.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", entry.RetryCount)
	}
	if entry.Target != "getHotels" {
		t.Errorf("Target = %q", entry.Target)
	}
	if entry.RequestID == "" {
		t.Error("RequestID not recorded")
	}
}
