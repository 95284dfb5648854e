// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

// Package main is the entry point for the Watchhook server.
//
// Watchhook relays finished-watch (scrobble) events from self-hosted media
// servers to episode/movie tracking services. Components initialize in this
// order:
//
//  1. Configuration: Koanf v2 layered sources (env > config file > defaults)
//  2. Database: embedded DuckDB holding users and the sync history ledger
//  3. Settings: Badger key/value store for runtime-tunable settings
//  4. Destinations: Trakt and TVTime adapters with credential refresh and
//     circuit breakers
//  5. Orchestrator: the per-event sync state machine
//  6. Supervision: suture tree running the ingest HTTP server and the
//     background credential refresh sweep
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/watchhook/watchhook/internal/api"
	"github.com/watchhook/watchhook/internal/cache"
	"github.com/watchhook/watchhook/internal/config"
	"github.com/watchhook/watchhook/internal/database"
	"github.com/watchhook/watchhook/internal/destinations"
	"github.com/watchhook/watchhook/internal/logging"
	"github.com/watchhook/watchhook/internal/mediaserver"
	"github.com/watchhook/watchhook/internal/refresh"
	"github.com/watchhook/watchhook/internal/scrobble"
	"github.com/watchhook/watchhook/internal/settings"
	"github.com/watchhook/watchhook/internal/supervisor"
	"github.com/watchhook/watchhook/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Msg("Starting Watchhook")

	encryptor, err := config.NewCredentialEncryptor(cfg.Security.EncryptionSecret)
	if err != nil {
		return fmt.Errorf("init credential encryptor: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn().Err(err).Msg("Database close failed")
		}
	}()

	settingsStore, err := openSettings(&cfg.Settings)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	defer func() {
		if err := settingsStore.Close(); err != nil {
			logging.Warn().Err(err).Msg("Settings store close failed")
		}
	}()

	registry := buildRegistry(cfg, db, encryptor)

	var posters scrobble.MediaServerClient
	if cfg.Plex.Enabled {
		posters = mediaserver.NewPlexClient(&cfg.Plex)
	}

	orchestrator := scrobble.NewOrchestrator(
		scrobble.NewUserResolver(db),
		registry,
		scrobble.NewLedger(db, settingsStore),
		posters,
	)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	router := api.NewRouter(api.NewHandler(orchestrator, db), api.RouterConfigFromServer(&cfg.Server))
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	if cfg.Refresh.Enabled {
		sweeper := refresh.NewSweeper(db, registry, cfg.Refresh.Interval)
		tree.AddBackgroundService(services.NewSweepService(sweeper))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", server.Addr).
		Bool("refresh_sweep", cfg.Refresh.Enabled).
		Bool("poster_enrichment", cfg.Plex.Enabled).
		Msg("Watchhook ready")

	err = tree.Serve(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	logging.Info().Msg("Watchhook stopped")
	return nil
}

func openSettings(cfg *config.SettingsConfig) (*settings.Store, error) {
	if cfg.InMemory {
		return settings.OpenInMemory()
	}
	return settings.Open(cfg.Path)
}

// buildRegistry wires the destination adapters in dispatch order. Disabled
// destinations are left out entirely, so no user ever dispatches to them.
func buildRegistry(cfg *config.Config, db *database.DB, encryptor *config.CredentialEncryptor) *scrobble.Registry {
	var entries []scrobble.RegisteredDestination

	if cfg.Trakt.Enabled {
		client := destinations.NewTraktClient(&cfg.Trakt)
		entries = append(entries, scrobble.RegisteredDestination{
			Adapter:     destinations.NewTraktDestination(client),
			Credentials: destinations.NewTraktCredentials(client, db, encryptor),
		})
	}

	if cfg.TVTime.Enabled {
		handshakes := cache.New(cfg.TVTime.HandshakeTTL)
		client := destinations.NewTVTimeClient(&cfg.TVTime, handshakes)
		entries = append(entries, scrobble.RegisteredDestination{
			Adapter:     destinations.NewTVTimeDestination(client),
			Credentials: destinations.NewTVTimeCredentials(client, db, encryptor),
		})
	}

	return scrobble.NewRegistry(entries...)
}
