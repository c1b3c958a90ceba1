// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

// Package main is the entry point for the CloudSync server.
//
// CloudSync keeps a local property-management dataset in step with a cloud
// PMS provider. It owns the OAuth2 token lifecycle for each connected
// account, throttles outbound API calls per account, receives and verifies
// signed webhooks, and runs dependency-ordered sync batches whose every
// unit is recorded in an append-only sync log with bounded retries.
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, YAML file, CLOUDSYNC_ env vars (Koanf v2)
//  2. Store: BadgerDB (or in-memory for ephemeral runs)
//  3. Credential sealer, token manager and background refresh scheduler
//  4. Outbound PMS client: per-account rate limiting, retries, circuit breaker
//  5. Webhook plumbing: registrar, dedup cache, event bus, dispatch router
//  6. Sync engine: orchestrator with built-in modules, retry sweeper,
//     cron scheduler, log purger
//  7. HTTP server: admin REST API plus the webhook ingress
//
// All long-running components are managed by a two-layer suture supervisor
// tree; SIGINT/SIGTERM trigger a graceful shutdown of the whole tree.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/stayware/cloudsync/internal/api"
	"github.com/stayware/cloudsync/internal/config"
	"github.com/stayware/cloudsync/internal/logging"
	"github.com/stayware/cloudsync/internal/metrics"
	"github.com/stayware/cloudsync/internal/pms"
	"github.com/stayware/cloudsync/internal/ratelimit"
	"github.com/stayware/cloudsync/internal/store"
	"github.com/stayware/cloudsync/internal/supervisor"
	syncengine "github.com/stayware/cloudsync/internal/sync"
	"github.com/stayware/cloudsync/internal/synclog"
	"github.com/stayware/cloudsync/internal/token"
	"github.com/stayware/cloudsync/internal/webhook"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Info().
		Str("version", version).
		Str("provider_url", cfg.Provider.BaseURL).
		Str("storage_backend", cfg.Storage.Backend).
		Str("sync_schedule", cfg.Sync.Schedule).
		Msg("Configuration loaded")
	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	sealer, err := config.NewSealer(cfg.Security.EncryptionSecret)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize credential sealer")
	}

	st, err := openStore(cfg.Storage)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	logging.Info().Msg("Store opened")

	recorder := synclog.NewRecorder(st, cfg.Sync.MaxRetries)

	// Token lifecycle: on-demand refresh inside the client plus a
	// background scheduler that renews tokens nearing expiry.
	tokens := token.NewManager(st, sealer, recorder, cfg.Provider)
	refresher := token.NewRefreshScheduler(tokens, st, cfg.Provider.RefreshHorizon, 0)

	limiter := ratelimit.NewRegistry(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	if accounts, err := store.ListAccounts(context.Background(), st); err != nil {
		logging.Warn().Err(err).Msg("Failed to restore account rate limits")
	} else {
		limiter.Seed(accounts)
	}

	client := pms.NewClient(st, tokens, limiter, recorder, cfg.Provider)
	if cfg.Provider.BreakerEnabled {
		pms.NewBreakerClient(client, cfg.Provider)
		logging.Info().Msg("Provider circuit breaker enabled")
	}

	// Webhook plumbing.
	deduper := webhook.NewDeduper(cfg.Security.WebhookDedupSize, cfg.Security.WebhookDedupTTL)
	bus := webhook.NewBus()
	registrar := webhook.NewRegistrar(st, client, cfg.Server.PublicURL)
	wrouter := webhook.NewRouter(st, recorder, deduper, bus)

	// Sync engine.
	orchestrator := syncengine.NewOrchestrator(st, recorder)
	syncengine.RegisterBuiltins(orchestrator, st, client)
	syncengine.RegisterWebhookHandlers(wrouter, orchestrator, st)
	sweeper := syncengine.NewSweeper(recorder, orchestrator, wrouter, cfg.Sync.RetrySweepInterval)
	scheduler := syncengine.NewScheduler(st, orchestrator, cfg.Sync.Schedule, cfg.Sync.StaleAfter)
	purger := synclog.NewPurger(recorder, cfg.Sync.LogRetention, cfg.Sync.PurgeInterval)

	// HTTP surface.
	handler := api.NewHandler(st, sealer, recorder, orchestrator, tokens, client, registrar, limiter)
	ingress := api.NewIngress(wrouter)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.Routes(cfg.Server, handler, ingress),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	// Supervisor tree: workers first, API layer last so the HTTP surface
	// never outlives the engine behind it.
	slogLogger := logging.NewSlogLogger()
	tree := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())
	tree.AddWorker(refresher)
	tree.AddWorker(sweeper)
	tree.AddWorker(scheduler)
	tree.AddWorker(purger)
	tree.AddAPI(supervisor.NewHTTPService(server, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	logging.Info().Msg("Application stopped gracefully")
}

// openStore builds the configured store backend. The in-memory backend is
// for development and tests; it loses everything on restart.
func openStore(cfg config.StorageConfig) (store.Store, error) {
	if cfg.Backend == "memory" {
		return store.NewMemoryStore(), nil
	}
	return store.OpenBadger(cfg.Path)
}
