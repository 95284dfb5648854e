// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

// Package config provides configuration management for Watchhook.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables. See koanf.go for the loading pipeline.
package config

import "time"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Database DatabaseConfig `koanf:"database"`
	Settings SettingsConfig `koanf:"settings"`
	Security SecurityConfig `koanf:"security"`
	Plex     PlexConfig     `koanf:"plex"`
	Trakt    TraktConfig    `koanf:"trakt"`
	TVTime   TVTimeConfig   `koanf:"tvtime"`
	Refresh  RefreshConfig  `koanf:"refresh"`
}

// ServerConfig holds the ingest HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// RateLimit is the per-IP request limit per minute for the ingest API.
	// 0 disables rate limiting.
	RateLimit   int      `koanf:"rate_limit"`
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig holds the embedded DuckDB configuration. Users and the sync
// history ledger live here.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// SettingsConfig holds the Badger key/value settings store configuration.
type SettingsConfig struct {
	Path string `koanf:"path"`
	// InMemory runs Badger without disk persistence. Used in tests.
	InMemory bool `koanf:"in_memory"`
}

// SecurityConfig holds secrets used for credential-at-rest encryption.
type SecurityConfig struct {
	// EncryptionSecret derives the AES key protecting stored destination
	// tokens and fallback passwords. Required; minimum 32 characters.
	EncryptionSecret string `koanf:"encryption_secret"`
}

// PlexConfig holds the Plex media server connection used for season-poster
// enrichment. Optional; when disabled, enrichment falls back to the poster
// URL carried on the event.
type PlexConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Token   string `koanf:"token"`
	// RequestsPerSecond limits calls against the Plex API.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// TraktConfig holds the Trakt destination configuration.
type TraktConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

// TVTimeConfig holds the TVTime destination configuration.
type TVTimeConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	// HandshakeTTL bounds how long the initial handshake token is cached.
	HandshakeTTL time.Duration `koanf:"handshake_ttl"`
}

// RefreshConfig holds the background credential refresh sweep configuration.
type RefreshConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}
