// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

// Package config provides configuration management for the application.
// Configuration is layered: built-in defaults, then an optional YAML file,
// then CLOUDSYNC_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Provider  ProviderConfig  `koanf:"provider"`
	Sync      SyncConfig      `koanf:"sync"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Storage   StorageConfig   `koanf:"storage"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// PublicURL is the externally reachable base URL used when registering
	// webhook endpoints with the provider.
	PublicURL string `koanf:"public_url"`

	CORSOrigins []string `koanf:"cors_origins"`

	// Inbound rate limit for the admin API surface.
	APIRateLimitReqs   int           `koanf:"api_rate_limit_reqs"`
	APIRateLimitWindow time.Duration `koanf:"api_rate_limit_window"`
}

// ProviderConfig controls the outbound PMS API client.
type ProviderConfig struct {
	// BaseURL is the default API base for accounts that do not override it.
	BaseURL string `koanf:"base_url"`

	// TokenURL is the OAuth token endpoint.
	TokenURL string `koanf:"token_url"`

	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxRetries     int           `koanf:"max_retries"`

	// RefreshSkew is how long before expiry a token is considered stale.
	RefreshSkew time.Duration `koanf:"refresh_skew"`

	// RefreshHorizon is how far ahead the background scheduler refreshes
	// tokens that will expire soon.
	RefreshHorizon time.Duration `koanf:"refresh_horizon"`

	// Circuit breaker thresholds.
	BreakerEnabled     bool          `koanf:"breaker_enabled"`
	BreakerMinRequests uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRate float64       `koanf:"breaker_failure_rate"`
	BreakerCooldown    time.Duration `koanf:"breaker_cooldown"`
}

// SyncConfig controls the sync orchestrator and its background jobs.
type SyncConfig struct {
	// Schedule is a cron expression for periodic full syncs. Empty disables
	// scheduled syncs.
	Schedule string `koanf:"schedule"`

	MaxRetries int `koanf:"max_retries"`

	// RetrySweepInterval is how often the retry sweeper looks for due
	// sync log entries.
	RetrySweepInterval time.Duration `koanf:"retry_sweep_interval"`

	// LogRetention is how long sync log entries are kept before purge.
	LogRetention time.Duration `koanf:"log_retention"`

	PurgeInterval time.Duration `koanf:"purge_interval"`

	// StaleAfter is the age after which a scheduled run re-syncs a
	// property. Zero means every enabled property syncs on each fire.
	StaleAfter time.Duration `koanf:"stale_after"`
}

// RateLimitConfig holds per-account defaults for outbound API throttling.
// Individual accounts may override both values.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// StorageConfig selects and configures the record store backend.
type StorageConfig struct {
	// Backend is "badger" or "memory".
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`
}

// SecurityConfig holds secrets and webhook validation settings.
type SecurityConfig struct {
	// EncryptionSecret seals stored credentials. Required.
	EncryptionSecret string `koanf:"encryption_secret"`

	// WebhookDedupTTL bounds how long delivery fingerprints are remembered.
	WebhookDedupTTL time.Duration `koanf:"webhook_dedup_ttl"`

	// WebhookDedupSize bounds how many fingerprints are remembered.
	WebhookDedupSize int `koanf:"webhook_dedup_size"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks configuration invariants that cannot be expressed as
// defaults. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}

	if c.Security.EncryptionSecret == "" {
		return errors.New("security.encryption_secret is required")
	}
	if len(c.Security.EncryptionSecret) < 16 {
		return errors.New("security.encryption_secret must be at least 16 characters")
	}

	if c.Provider.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.Provider.BaseURL); err != nil {
			return fmt.Errorf("provider.base_url is not a valid URL: %w", err)
		}
	}
	if c.Provider.TokenURL != "" {
		if _, err := url.ParseRequestURI(c.Provider.TokenURL); err != nil {
			return fmt.Errorf("provider.token_url is not a valid URL: %w", err)
		}
	}

	if c.Provider.MaxRetries < 0 {
		return errors.New("provider.max_retries cannot be negative")
	}
	if c.Provider.RefreshSkew <= 0 {
		return errors.New("provider.refresh_skew must be positive")
	}
	if c.Provider.RefreshHorizon < c.Provider.RefreshSkew {
		return errors.New("provider.refresh_horizon must be at least provider.refresh_skew")
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		return errors.New("rate_limit.requests_per_second must be positive")
	}
	if c.RateLimit.Burst < 1 {
		return errors.New("rate_limit.burst must be at least 1")
	}

	switch c.Storage.Backend {
	case "badger":
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the badger backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be badger or memory, got %q", c.Storage.Backend)
	}

	if c.Sync.MaxRetries < 0 {
		return errors.New("sync.max_retries cannot be negative")
	}
	if c.Sync.LogRetention <= 0 {
		return errors.New("sync.log_retention must be positive")
	}

	if c.Security.WebhookDedupSize < 1 {
		return errors.New("security.webhook_dedup_size must be at least 1")
	}

	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
