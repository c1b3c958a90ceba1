// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package config

import (
	"strings"
	"testing"
)

// validConfig returns the defaults with required secrets filled in.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.EncryptionSecret = "test-encryption-secret"
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Errorf("defaults with secret should validate, got %v", err)
	}
}

func TestValidateFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "missing encryption secret",
			mutate:  func(c *Config) { c.Security.EncryptionSecret = "" },
			wantSub: "encryption_secret",
		},
		{
			name:    "short encryption secret",
			mutate:  func(c *Config) { c.Security.EncryptionSecret = "short" },
			wantSub: "at least 16",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantSub: "server.port",
		},
		{
			name:    "bad base url",
			mutate:  func(c *Config) { c.Provider.BaseURL = "not a url" },
			wantSub: "base_url",
		},
		{
			name:    "zero refresh skew",
			mutate:  func(c *Config) { c.Provider.RefreshSkew = 0 },
			wantSub: "refresh_skew",
		},
		{
			name: "horizon below skew",
			mutate: func(c *Config) {
				c.Provider.RefreshHorizon = c.Provider.RefreshSkew / 2
			},
			wantSub: "refresh_horizon",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.RateLimit.RequestsPerSecond = 0 },
			wantSub: "requests_per_second",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Storage.Backend = "postgres" },
			wantSub: "storage.backend",
		},
		{
			name: "badger without path",
			mutate: func(c *Config) {
				c.Storage.Backend = "badger"
				c.Storage.Path = ""
			},
			wantSub: "storage.path",
		},
		{
			name:    "zero retention",
			mutate:  func(c *Config) { c.Sync.LogRetention = 0 },
			wantSub: "log_retention",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"CLOUDSYNC_SERVER__PORT", "server.port"},
		{"CLOUDSYNC_PROVIDER__MAX_RETRIES", "provider.max_retries"},
		{"CLOUDSYNC_SECURITY__ENCRYPTION_SECRET", "security.encryption_secret"},
		{"CLOUDSYNC_LOGGING__LEVEL", "logging.level"},
	}

	for _, tt := range tests {
		if got := envTransform(tt.in); got != tt.want {
			t.Errorf("envTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMemoryBackendNeedsNoPath(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Storage.Backend = "memory"
	cfg.Storage.Path = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("memory backend without path should validate, got %v", err)
	}
}
