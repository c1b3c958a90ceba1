// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Outbound provider API calls (latency, retries, rate limit waits)
// - Token lifecycle (refreshes, failures)
// - Webhook ingestion (received, duplicates, signature failures)
// - Sync orchestration (runs, unit outcomes, durations)
// - Inbound admin API traffic

var (
	// Provider API Metrics
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Total number of outbound provider API requests",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Outbound provider API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_request_retries_total",
			Help: "Total number of retried provider API requests",
		},
		[]string{"endpoint", "reason"}, // reason: "auth", "rate_limit", "server", "network"
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_request_errors_total",
			Help: "Total number of failed provider API requests by error kind",
		},
		[]string{"endpoint", "kind"},
	)

	RateLimitWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_rate_limit_wait_seconds",
			Help:    "Time requests spent waiting on the per-account token bucket",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"account_id"},
	)

	// Token Lifecycle Metrics
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Total number of OAuth token refreshes",
		},
		[]string{"account_id", "result", "trigger"}, // trigger: "expiry", "unauthorized", "scheduled", "exchange"
	)

	TokenExpirySeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "token_expiry_seconds",
			Help: "Seconds until the current access token expires",
		},
		[]string{"account_id"},
	)

	// Webhook Metrics
	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_received_total",
			Help: "Total number of webhook deliveries received",
		},
		[]string{"event_type", "result"}, // result: "processed", "duplicate", "invalid_signature", "unknown", "error"
	)

	WebhookProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_duration_seconds",
			Help:    "Webhook processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	// Sync Orchestration Metrics
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of sync orchestrator runs",
		},
		[]string{"trigger", "result"}, // trigger: "manual", "scheduled", "retry"
	)

	SyncUnitOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_unit_outcomes_total",
			Help: "Total number of sync unit completions by module and status",
		},
		[]string{"module", "status"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of full sync runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful sync per property",
		},
		[]string{"property_id"},
	)

	SyncRetryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_retry_queue_depth",
			Help: "Current number of sync log entries awaiting retry",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Inbound API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of inbound API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Inbound API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordProviderRequest records an outbound API call outcome.
func RecordProviderRequest(endpoint, method string, statusCode int, duration time.Duration) {
	ProviderRequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(statusCode)).Inc()
	ProviderRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordProviderRetry records a retried outbound request with its cause.
func RecordProviderRetry(endpoint, reason string) {
	ProviderRetries.WithLabelValues(endpoint, reason).Inc()
}

// RecordProviderError records a failed outbound request by error kind.
func RecordProviderError(endpoint, kind string) {
	ProviderErrors.WithLabelValues(endpoint, kind).Inc()
}

// ObserveRateLimitWait records time spent waiting on an account's bucket.
func ObserveRateLimitWait(accountID string, waited time.Duration) {
	RateLimitWaitDuration.WithLabelValues(accountID).Observe(waited.Seconds())
}

// RecordTokenRefresh records a token refresh attempt.
func RecordTokenRefresh(accountID, trigger string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	TokenRefreshesTotal.WithLabelValues(accountID, result, trigger).Inc()
}

// RecordWebhook records a webhook delivery outcome.
func RecordWebhook(eventType, result string, duration time.Duration) {
	WebhooksReceived.WithLabelValues(eventType, result).Inc()
	WebhookProcessingDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// RecordSyncRun records an orchestrator run outcome.
func RecordSyncRun(trigger, result string, duration time.Duration) {
	SyncRunsTotal.WithLabelValues(trigger, result).Inc()
	SyncDuration.Observe(duration.Seconds())
}

// RecordSyncUnit records one module's outcome within a sync run.
func RecordSyncUnit(module, status string) {
	SyncUnitOutcomes.WithLabelValues(module, status).Inc()
}

// RecordAPIRequest records an inbound API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
