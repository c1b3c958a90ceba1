// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/stayware/cloudsync/internal/config"
	"github.com/stayware/cloudsync/internal/webhook"
)

type ingressRouterMock struct {
	process func(ctx context.Context, propertyRef, eventType, signature string, body []byte) error
}

func (m *ingressRouterMock) Process(ctx context.Context, propertyRef, eventType, signature string, body []byte) error {
	return m.process(ctx, propertyRef, eventType, signature, body)
}

func newIngressRouter(mock *ingressRouterMock) http.Handler {
	r := chi.NewRouter()
	r.Post("/webhook/{property}/*", NewIngress(mock).Receive)
	return r
}

func TestIngressPassesDeliveryToRouter(t *testing.T) {
	t.Parallel()

	var gotProperty, gotEventType, gotSignature, gotBody string
	routes := newIngressRouter(&ingressRouterMock{
		process: func(_ context.Context, propertyRef, eventType, signature string, body []byte) error {
			gotProperty = propertyRef
			gotEventType = eventType
			gotSignature = signature
			gotBody = string(body)
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook/198424/reservation/created",
		strings.NewReader(`{"object":"reservation","action":"created"}`))
	req.Header.Set("X-Webhook-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if gotProperty != "198424" {
		t.Fatalf("property = %q", gotProperty)
	}
	if gotEventType != "reservation/created" {
		t.Fatalf("event type = %q", gotEventType)
	}
	if gotSignature != "deadbeef" {
		t.Fatalf("signature = %q", gotSignature)
	}
	if !strings.Contains(gotBody, "reservation") {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestIngressStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantCode   int
		wantAccept bool
	}{
		{"accepted", nil, http.StatusOK, true},
		{"bad signature", webhook.ErrBadSignature, http.StatusUnauthorized, false},
		// No registration is answered 200 so the provider does not
		// redeliver, but the envelope reports the delivery unwanted.
		{"unknown registration", webhook.ErrUnknownRegistration, http.StatusOK, false},
		{"bad payload", webhook.ErrBadPayload, http.StatusBadRequest, false},
		// Handler failures are accepted so the provider does not
		// redeliver; the sync log retry owns re-processing.
		{"handler failure", errors.New("downstream exploded"), http.StatusOK, true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			routes := newIngressRouter(&ingressRouterMock{
				process: func(context.Context, string, string, string, []byte) error { return tc.err },
			})
			req := httptest.NewRequest(http.MethodPost, "/webhook/all/guest/updated", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()
			routes.ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.wantCode, rec.Body.String())
			}
			var resp APIResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response %q: %v", rec.Body.String(), err)
			}
			if resp.Success != tc.wantAccept {
				t.Fatalf("success = %v, want %v", resp.Success, tc.wantAccept)
			}
		})
	}
}

func TestIngressMountedUnderFullRouter(t *testing.T) {
	t.Parallel()

	called := false
	ingress := NewIngress(&ingressRouterMock{
		process: func(context.Context, string, string, string, []byte) error {
			called = true
			return nil
		},
	})
	routes := Routes(config.ServerConfig{
		APIRateLimitReqs:   100,
		APIRateLimitWindow: time.Minute,
	}, &Handler{}, ingress)

	req := httptest.NewRequest(http.MethodPost, "/webhook/198424/payment/created", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !called {
		t.Fatal("ingress never reached through the router")
	}
}
