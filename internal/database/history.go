// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

// history.go - sync history ledger operations.
//
// Entries are append-only: inserted once, never updated, deleted only by
// retention trimming. Cross-reference ids get their own columns so the
// rewatch precheck can match per id scheme in SQL.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/watchhook/watchhook/internal/models"
)

// InsertSyncHistory appends one ledger entry. A missing ID is assigned.
func (db *DB) InsertSyncHistory(ctx context.Context, entry *models.SyncHistoryEntry) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SyncedAt.IsZero() {
		entry.SyncedAt = time.Now().UTC()
	}

	destinationsJSON, err := json.Marshal(entry.Destinations)
	if err != nil {
		return fmt.Errorf("failed to marshal destinations: %w", err)
	}

	query := `
		INSERT INTO sync_history (
			id, user_id, media_type, title, source,
			tvdb_id, tvdb_episode_id, imdb_id, tmdb_id, tmdb_episode_id,
			poster_url, season, episode, year,
			success, error_message, was_rewatched, destinations, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = db.conn.ExecContext(ctx, query,
		entry.ID, entry.UserID, string(entry.MediaType), entry.Title, string(entry.Source),
		nullString(entry.IDs.TVDB), nullString(entry.IDs.TVDBEpisode), nullString(entry.IDs.IMDB),
		nullString(entry.IDs.TMDB), nullString(entry.IDs.TMDBEpisode),
		nullString(entry.PosterURL), entry.Season, entry.Episode, entry.Year,
		entry.Success, nullString(entry.ErrorMessage), entry.WasRewatched,
		string(destinationsJSON), entry.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync history entry: %w", err)
	}

	return nil
}

// HasPriorSuccess reports whether any successful entry exists for the user
// and media type sharing at least one non-empty cross-reference id with ids.
// An empty id set never matches, so a first play is never a rewatch.
func (db *DB) HasPriorSuccess(ctx context.Context, userID string, mediaType models.MediaType, ids models.CrossRefIDs) (bool, error) {
	if !ids.Any() {
		return false, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `
		SELECT COUNT(*) FROM sync_history
		WHERE user_id = ? AND media_type = ? AND success
		AND (
			(? != '' AND tvdb_id = ?) OR
			(? != '' AND tvdb_episode_id = ?) OR
			(? != '' AND imdb_id = ?) OR
			(? != '' AND tmdb_id = ?) OR
			(? != '' AND tmdb_episode_id = ?)
		)
	`

	var count int
	err := db.conn.QueryRowContext(ctx, query,
		userID, string(mediaType),
		ids.TVDB, ids.TVDB,
		ids.TVDBEpisode, ids.TVDBEpisode,
		ids.IMDB, ids.IMDB,
		ids.TMDB, ids.TMDB,
		ids.TMDBEpisode, ids.TMDBEpisode,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query prior success: %w", err)
	}

	return count > 0, nil
}

// TrimSyncHistory deletes the oldest entries for a user beyond cap, ordered
// by sync timestamp ascending, and returns the number deleted. The
// count-then-delete sequence may under-trim by one entry when racing a
// concurrent insert; it never over-deletes.
func (db *DB) TrimSyncHistory(ctx context.Context, userID string, cap int) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	count, err := db.CountSyncHistory(ctx, userID)
	if err != nil {
		return 0, err
	}

	excess := count - cap
	if excess <= 0 {
		return 0, nil
	}

	query := `
		DELETE FROM sync_history
		WHERE id IN (
			SELECT id FROM sync_history
			WHERE user_id = ?
			ORDER BY synced_at ASC, id ASC
			LIMIT ?
		)
	`

	result, err := db.conn.ExecContext(ctx, query, userID, excess)
	if err != nil {
		return 0, fmt.Errorf("failed to trim sync history: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get trimmed row count: %w", err)
	}

	return deleted, nil
}

// CountSyncHistory returns the number of ledger entries for a user.
func (db *DB) CountSyncHistory(ctx context.Context, userID string) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_history WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sync history: %w", err)
	}
	return count, nil
}

// GetSyncHistory returns the most recent entries for a user, newest first.
func (db *DB) GetSyncHistory(ctx context.Context, userID string, limit int) ([]models.SyncHistoryEntry, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = models.SyncHistoryLimitDefault
	}

	query := `
		SELECT
			id, user_id, media_type, title, source,
			tvdb_id, tvdb_episode_id, imdb_id, tmdb_id, tmdb_episode_id,
			poster_url, season, episode, year,
			success, error_message, was_rewatched, destinations, synced_at
		FROM sync_history
		WHERE user_id = ?
		ORDER BY synced_at DESC, id DESC
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync history: %w", err)
	}
	defer rows.Close()

	var entries []models.SyncHistoryEntry
	for rows.Next() {
		entry, err := scanSyncHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync history: %w", err)
	}

	if entries == nil {
		entries = []models.SyncHistoryEntry{}
	}
	return entries, nil
}

func scanSyncHistoryRow(rows *sql.Rows) (*models.SyncHistoryEntry, error) {
	var entry models.SyncHistoryEntry
	var mediaType, source string
	var tvdb, tvdbEpisode, imdb, tmdb, tmdbEpisode sql.NullString
	var posterURL, errorMessage, destinationsJSON sql.NullString

	err := rows.Scan(
		&entry.ID, &entry.UserID, &mediaType, &entry.Title, &source,
		&tvdb, &tvdbEpisode, &imdb, &tmdb, &tmdbEpisode,
		&posterURL, &entry.Season, &entry.Episode, &entry.Year,
		&entry.Success, &errorMessage, &entry.WasRewatched, &destinationsJSON, &entry.SyncedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync history entry: %w", err)
	}

	entry.MediaType = models.MediaType(mediaType)
	entry.Source = models.Source(source)
	entry.IDs = models.CrossRefIDs{
		TVDB:        tvdb.String,
		TVDBEpisode: tvdbEpisode.String,
		IMDB:        imdb.String,
		TMDB:        tmdb.String,
		TMDBEpisode: tmdbEpisode.String,
	}
	entry.PosterURL = posterURL.String
	entry.ErrorMessage = errorMessage.String

	if destinationsJSON.Valid && destinationsJSON.String != "" {
		if err := json.Unmarshal([]byte(destinationsJSON.String), &entry.Destinations); err != nil {
			return nil, fmt.Errorf("failed to parse destinations: %w", err)
		}
	}
	if entry.Destinations == nil {
		entry.Destinations = []string{}
	}

	return &entry, nil
}
