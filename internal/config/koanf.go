// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

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

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/watchhook/config.yaml",
	"/etc/watchhook/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8180,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       120,
			CORSOrigins:     nil,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/watchhook.duckdb",
			MaxMemory: "512MB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Settings: SettingsConfig{
			Path:     "/data/settings",
			InMemory: false,
		},
		Security: SecurityConfig{
			EncryptionSecret: "",
		},
		Plex: PlexConfig{
			Enabled:           false,
			URL:               "",
			Token:             "",
			RequestsPerSecond: 4,
		},
		Trakt: TraktConfig{
			Enabled: true,
			URL:     "https://api.trakt.tv",
		},
		TVTime: TVTimeConfig{
			Enabled:      true,
			URL:          "https://api2.tozelabs.com/v2",
			HandshakeTTL: 10 * time.Minute,
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML config file (if present)
//  3. Environment variables: override any setting
//
// Precedence: ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths. Returns the
// first file found, or empty string if none exists.
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

// sliceConfigPaths defines which config paths are parsed as comma-separated
// values when set through the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values into slices for
// the paths listed in sliceConfigPaths. Environment variables can only carry
// strings, so SERVER_CORS_ORIGINS="a,b" becomes ["a", "b"].
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		if !k.Exists(path) {
			continue
		}

		raw := k.Get(path)
		str, ok := raw.(string)
		if !ok {
			continue // already a slice from YAML or defaults
		}

		var values []string
		for _, v := range strings.Split(str, ",") {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				values = append(values, trimmed)
			}
		}

		if err := k.Set(path, values); err != nil {
			return fmt.Errorf("failed to set slice field %s: %w", path, err)
		}
	}

	return nil
}

// envTransformFunc transforms environment variable names to koanf config
// paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - DUCKDB_PATH -> database.path
//   - TRAKT_ENABLED -> trakt.enabled
//   - REFRESH_INTERVAL -> refresh.interval
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":             "server.host",
		"http_port":             "server.port",
		"http_shutdown_timeout": "server.shutdown_timeout",
		"http_rate_limit":       "server.rate_limit",
		"server_cors_origins":   "server.cors_origins",
		"http_cors_origins":     "server.cors_origins",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Database
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Settings store
		"settings_path": "settings.path",

		// Security
		"encryption_secret": "security.encryption_secret",

		// Plex (poster enrichment)
		"plex_enabled":             "plex.enabled",
		"plex_url":                 "plex.url",
		"plex_token":               "plex.token",
		"plex_requests_per_second": "plex.requests_per_second",

		// Destinations
		"trakt_enabled":        "trakt.enabled",
		"trakt_url":            "trakt.url",
		"tvtime_enabled":       "tvtime.enabled",
		"tvtime_url":           "tvtime.url",
		"tvtime_handshake_ttl": "tvtime.handshake_ttl",

		// Refresh sweep
		"refresh_enabled":  "refresh.enabled",
		"refresh_interval": "refresh.interval",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown variables are dropped rather than guessed at, so unrelated
	// process environment never leaks into the config tree.
	return ""
}
