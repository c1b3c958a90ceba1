// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order. The
// first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cloudsync/config.yaml",
	"/etc/cloudsync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CLOUDSYNC_CONFIG_PATH"

// envPrefix namespaces all configuration environment variables.
const envPrefix = "CLOUDSYNC_"

// defaultConfig returns a Config with all defaults applied. File and
// environment layers override these.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8480,
			Timeout:            30 * time.Second,
			PublicURL:          "",
			CORSOrigins:        []string{"*"},
			APIRateLimitReqs:   100,
			APIRateLimitWindow: time.Minute,
		},
		Provider: ProviderConfig{
			BaseURL:            "https://api.cloudbeds.com/api/v1.3",
			TokenURL:           "https://api.cloudbeds.com/api/v1.3/access_token",
			RequestTimeout:     30 * time.Second,
			MaxRetries:         3,
			RefreshSkew:        5 * time.Minute,
			RefreshHorizon:     30 * time.Minute,
			BreakerEnabled:     true,
			BreakerMinRequests: 10,
			BreakerFailureRate: 0.6,
			BreakerCooldown:    2 * time.Minute,
		},
		Sync: SyncConfig{
			Schedule:           "", // Disabled by default - opt-in only
			MaxRetries:         3,
			RetrySweepInterval: time.Minute,
			LogRetention:       30 * 24 * time.Hour,
			PurgeInterval:      6 * time.Hour,
			StaleAfter:         6 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Storage: StorageConfig{
			Backend: "badger",
			Path:    "/data/cloudsync",
		},
		Security: SecurityConfig{
			EncryptionSecret: "",
			WebhookDedupTTL:  10 * time.Minute,
			WebhookDedupSize: 4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. CLOUDSYNC_-prefixed environment variables (highest priority)
//
// Environment variable names map to koanf paths by stripping the prefix,
// lowercasing, and replacing the first underscore run per nesting level:
// CLOUDSYNC_SERVER__PORT -> server.port. A double underscore separates
// nesting levels so single underscores survive inside key names
// (CLOUDSYNC_PROVIDER__MAX_RETRIES -> provider.max_retries).
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// envTransform maps CLOUDSYNC_SERVER__PORT to server.port.
func envTransform(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

// findConfigFile returns the first config file that exists, honoring
// CLOUDSYNC_CONFIG_PATH.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive as plain strings from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice when set via YAML.
		if _, ok := val.([]interface{}); ok {
			continue
		}

		str, ok := val.(string)
		if !ok {
			continue
		}

		parts := strings.Split(str, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}

		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}
