// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const minEncryptionSecretLength = 32

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	if err := c.validatePlex(); err != nil {
		return err
	}

	if err := c.validateDestinations(); err != nil {
		return err
	}

	if err := c.validateRefresh(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("HTTP_RATE_LIMIT must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT must be positive, got %s", c.Server.ShutdownTimeout)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.EncryptionSecret == "" {
		return fmt.Errorf("ENCRYPTION_SECRET is required")
	}
	if len(c.Security.EncryptionSecret) < minEncryptionSecretLength {
		return fmt.Errorf("ENCRYPTION_SECRET must be at least %d characters, got %d",
			minEncryptionSecretLength, len(c.Security.EncryptionSecret))
	}
	return nil
}

// validatePlex validates the Plex connection (only if enabled).
func (c *Config) validatePlex() error {
	if !c.Plex.Enabled {
		return nil
	}

	if c.Plex.URL == "" {
		return fmt.Errorf("PLEX_URL is required when PLEX_ENABLED=true")
	}
	if err := validateHTTPURL(c.Plex.URL, "PLEX_URL"); err != nil {
		return err
	}
	if c.Plex.Token == "" {
		return fmt.Errorf("PLEX_TOKEN is required when PLEX_ENABLED=true")
	}
	if c.Plex.RequestsPerSecond <= 0 {
		return fmt.Errorf("PLEX_REQUESTS_PER_SECOND must be positive, got %g", c.Plex.RequestsPerSecond)
	}
	return nil
}

func (c *Config) validateDestinations() error {
	if c.Trakt.Enabled {
		if err := validateHTTPURL(c.Trakt.URL, "TRAKT_URL"); err != nil {
			return err
		}
	}
	if c.TVTime.Enabled {
		if err := validateHTTPURL(c.TVTime.URL, "TVTIME_URL"); err != nil {
			return err
		}
		if c.TVTime.HandshakeTTL <= 0 {
			return fmt.Errorf("TVTIME_HANDSHAKE_TTL must be positive, got %s", c.TVTime.HandshakeTTL)
		}
	}
	if !c.Trakt.Enabled && !c.TVTime.Enabled {
		return fmt.Errorf("at least one destination (trakt, tvtime) must be enabled")
	}
	return nil
}

func (c *Config) validateRefresh() error {
	if !c.Refresh.Enabled {
		return nil
	}
	if c.Refresh.Interval < 5*time.Minute {
		return fmt.Errorf("REFRESH_INTERVAL must be at least 5m, got %s", c.Refresh.Interval)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, got %q", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}

	return nil
}

// validateHTTPURL checks that a URL is parseable and uses http or https.
func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", name)
	}
	return nil
}
