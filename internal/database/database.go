// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

// Package database provides DuckDB-backed persistence for Watchhook: user
// accounts with their destination credentials, and the bounded sync history
// ledger. All queries are parameterized.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/watchhook/watchhook/internal/config"
	"github.com/watchhook/watchhook/internal/logging"
)

// defaultQueryTimeout bounds queries whose caller did not set a deadline.
const defaultQueryTimeout = 30 * time.Second

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens the database at cfg.Path and initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "512MB"
	}

	// Ensure the parent directory exists for the database file.
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	// Disable auto-install/auto-load of extensions to prevent hangs in
	// restricted network environments.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	if err := db.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", numThreads).Msg("Database opened")
	return db, nil
}

// NewInMemory opens an in-memory database for tests.
func NewInMemory() (*DB, error) {
	conn, err := sql.Open("duckdb", ":memory:?autoinstall_known_extensions=false&autoload_known_extensions=false")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	db := &DB{conn: conn, cfg: &config.DatabaseConfig{Path: ":memory:"}}
	if err := db.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// ensureContext attaches the default query timeout when the caller's context
// has no deadline of its own.
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// initSchema creates tables and indexes if they don't exist.
func (db *DB) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR PRIMARY KEY,
			plex_username VARCHAR,
			jellyfin_user_id VARCHAR,
			enabled BOOLEAN NOT NULL DEFAULT true,
			rewatch_movies BOOLEAN NOT NULL DEFAULT false,
			rewatch_episodes BOOLEAN NOT NULL DEFAULT false,
			trakt_client_id VARCHAR,
			trakt_client_secret VARCHAR,
			trakt_access_token VARCHAR,
			trakt_refresh_token VARCHAR,
			trakt_token_expiry TIMESTAMP,
			tvtime_access_token VARCHAR,
			tvtime_refresh_token VARCHAR,
			tvtime_email VARCHAR,
			tvtime_password VARCHAR,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_history (
			id VARCHAR PRIMARY KEY,
			user_id VARCHAR NOT NULL,
			media_type VARCHAR NOT NULL,
			title VARCHAR NOT NULL,
			source VARCHAR NOT NULL,
			tvdb_id VARCHAR,
			tvdb_episode_id VARCHAR,
			imdb_id VARCHAR,
			tmdb_id VARCHAR,
			tmdb_episode_id VARCHAR,
			poster_url VARCHAR,
			season INTEGER,
			episode INTEGER,
			year INTEGER,
			success BOOLEAN NOT NULL,
			error_message VARCHAR,
			was_rewatched BOOLEAN NOT NULL,
			destinations VARCHAR,
			synced_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_plex_username ON users (plex_username)`,
		`CREATE INDEX IF NOT EXISTS idx_users_jellyfin_user_id ON users (jellyfin_user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_history_user ON sync_history (user_id, synced_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	return nil
}

// checkRowsAffected verifies that at least one row was affected.
func checkRowsAffected(result sql.Result, notFoundMsg string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s", notFoundMsg)
	}
	return nil
}
