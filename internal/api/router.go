// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stayware/cloudsync/internal/config"
)

// Routes assembles the full HTTP surface: webhook ingress, health,
// metrics, and the admin API.
func Routes(cfg config.ServerConfig, handler *Handler, ingress *Ingress) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(Recoverer())
	r.Use(Metrics())

	// Ingress gets a generous per-IP limit of its own; provider bursts
	// during bulk updates are legitimate traffic.
	r.Route("/webhook", func(r chi.Router) {
		r.Use(RateLimit(cfg.APIRateLimitReqs*10, time.Minute))
		r.Post("/{property}/*", ingress.Receive)
	})

	r.Get("/health", handler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(CORS(cfg.CORSOrigins))
		r.Use(RateLimit(cfg.APIRateLimitReqs, cfg.APIRateLimitWindow))

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", handler.CreateAccount)
			r.Get("/", handler.ListAccounts)
			r.Get("/{id}", handler.GetAccount)
			r.Put("/{id}", handler.UpdateAccount)
			r.Delete("/{id}", handler.DeactivateAccount)
			r.Post("/{id}/oauth/exchange", handler.ExchangeOAuthCode)
			r.Post("/{id}/test", handler.TestConnection)
		})

		r.Route("/properties", func(r chi.Router) {
			r.Post("/", handler.CreateProperty)
			r.Get("/", handler.ListProperties)
			r.Get("/{id}", handler.GetProperty)
			r.Post("/{id}/sync", handler.TriggerSync)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", handler.CreateWebhookRegistration)
			r.Get("/", handler.ListWebhookRegistrations)
			r.Delete("/{id}", handler.DeleteWebhookRegistration)
			r.Post("/{id}/resubscribe", handler.ResubscribeWebhook)
		})

		r.Route("/sync-log", func(r chi.Router) {
			r.Get("/", handler.ListSyncLog)
			r.Get("/stats", handler.SyncLogStats)
		})
	})

	return r
}
