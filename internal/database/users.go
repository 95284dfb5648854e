// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

// users.go - user account CRUD and credential updates.
//
// Credential columns store encrypted values; encryption and decryption
// happen in the credential resolvers, never here.

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watchhook/watchhook/internal/models"
)

// ErrUserNotFound is returned when a user lookup matches no row.
var ErrUserNotFound = models.ErrUserNotFound

const userColumns = `
	id, plex_username, jellyfin_user_id, enabled,
	rewatch_movies, rewatch_episodes,
	trakt_client_id, trakt_client_secret,
	trakt_access_token, trakt_refresh_token, trakt_token_expiry,
	tvtime_access_token, tvtime_refresh_token, tvtime_email, tvtime_password,
	created_at, updated_at`

// CreateUser inserts a new user. A missing ID is assigned.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
		INSERT INTO users (
			id, plex_username, jellyfin_user_id, enabled,
			rewatch_movies, rewatch_episodes,
			trakt_client_id, trakt_client_secret,
			trakt_access_token, trakt_refresh_token, trakt_token_expiry,
			tvtime_access_token, tvtime_refresh_token, tvtime_email, tvtime_password,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		user.ID, nullString(user.PlexUsername), nullString(user.JellyfinUserID), user.Enabled,
		user.RewatchMovies, user.RewatchEpisodes,
		nullString(user.Trakt.ClientID), nullString(user.Trakt.ClientSecret),
		nullString(user.Trakt.AccessToken), nullString(user.Trakt.RefreshToken), user.Trakt.TokenExpiry,
		nullString(user.TVTime.AccessToken), nullString(user.TVTime.RefreshToken),
		nullString(user.TVTime.Email), nullString(user.TVTime.Password),
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by id.
func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(db.conn.QueryRowContext(ctx, query, id))
}

// GetUserByPlexUsername retrieves an enabled user by Plex username. Disabled
// users are excluded at the query level.
func (db *DB) GetUserByPlexUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE plex_username = ? AND enabled`
	return scanUser(db.conn.QueryRowContext(ctx, query, username))
}

// GetUserByJellyfinUserID retrieves a user by Jellyfin user id. The caller
// is responsible for normalizing the id (hyphens stripped).
func (db *DB) GetUserByJellyfinUserID(ctx context.Context, jellyfinID string) (*models.User, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE jellyfin_user_id = ?`
	return scanUser(db.conn.QueryRowContext(ctx, query, jellyfinID))
}

// ListUsers returns all users ordered by creation time.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// UpdateUser updates all mutable fields of a user.
func (db *DB) UpdateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	user.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users SET
			plex_username = ?,
			jellyfin_user_id = ?,
			enabled = ?,
			rewatch_movies = ?,
			rewatch_episodes = ?,
			trakt_client_id = ?,
			trakt_client_secret = ?,
			trakt_access_token = ?,
			trakt_refresh_token = ?,
			trakt_token_expiry = ?,
			tvtime_access_token = ?,
			tvtime_refresh_token = ?,
			tvtime_email = ?,
			tvtime_password = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := db.conn.ExecContext(ctx, query,
		nullString(user.PlexUsername), nullString(user.JellyfinUserID), user.Enabled,
		user.RewatchMovies, user.RewatchEpisodes,
		nullString(user.Trakt.ClientID), nullString(user.Trakt.ClientSecret),
		nullString(user.Trakt.AccessToken), nullString(user.Trakt.RefreshToken), user.Trakt.TokenExpiry,
		nullString(user.TVTime.AccessToken), nullString(user.TVTime.RefreshToken),
		nullString(user.TVTime.Email), nullString(user.TVTime.Password),
		user.UpdatedAt, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return checkRowsAffected(result, "user not found")
}

// UpdateUserCredentials atomically writes a refreshed token set for one
// destination. Access token, refresh token and expiry always change
// together in a single statement; concurrent refreshes are last-writer-wins.
func (db *DB) UpdateUserCredentials(ctx context.Context, userID string, update models.CredentialUpdate) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var query string
	switch update.Destination {
	case "trakt":
		query = `
			UPDATE users SET
				trakt_access_token = ?,
				trakt_refresh_token = ?,
				trakt_token_expiry = ?,
				updated_at = ?
			WHERE id = ?
		`
	case "tvtime":
		query = `
			UPDATE users SET
				tvtime_access_token = ?,
				tvtime_refresh_token = ?,
				updated_at = ?
			WHERE id = ?
		`
	default:
		return fmt.Errorf("unknown destination %q", update.Destination)
	}

	now := time.Now().UTC()
	var result sql.Result
	var err error
	if update.Destination == "trakt" {
		result, err = db.conn.ExecContext(ctx, query,
			nullString(update.AccessToken), nullString(update.RefreshToken), update.TokenExpiry, now, userID)
	} else {
		result, err = db.conn.ExecContext(ctx, query,
			nullString(update.AccessToken), nullString(update.RefreshToken), now, userID)
	}
	if err != nil {
		return fmt.Errorf("failed to update %s credentials: %w", update.Destination, err)
	}

	return checkRowsAffected(result, "user not found")
}

// DeleteUser permanently deletes a user and their sync history.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sync_history WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete user history: %w", err)
	}

	result, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return checkRowsAffected(result, "user not found")
}

// userScanData holds scanned database values before conversion to a
// models.User.
type userScanData struct {
	id                 string
	plexUsername       sql.NullString
	jellyfinUserID     sql.NullString
	enabled            bool
	rewatchMovies      bool
	rewatchEpisodes    bool
	traktClientID      sql.NullString
	traktClientSecret  sql.NullString
	traktAccessToken   sql.NullString
	traktRefreshToken  sql.NullString
	traktTokenExpiry   sql.NullTime
	tvtimeAccessToken  sql.NullString
	tvtimeRefreshToken sql.NullString
	tvtimeEmail        sql.NullString
	tvtimePassword     sql.NullString
	createdAt          time.Time
	updatedAt          time.Time
}

func (d *userScanData) fields() []interface{} {
	return []interface{}{
		&d.id, &d.plexUsername, &d.jellyfinUserID, &d.enabled,
		&d.rewatchMovies, &d.rewatchEpisodes,
		&d.traktClientID, &d.traktClientSecret,
		&d.traktAccessToken, &d.traktRefreshToken, &d.traktTokenExpiry,
		&d.tvtimeAccessToken, &d.tvtimeRefreshToken, &d.tvtimeEmail, &d.tvtimePassword,
		&d.createdAt, &d.updatedAt,
	}
}

func (d *userScanData) toUser() *models.User {
	user := &models.User{
		ID:              d.id,
		PlexUsername:    d.plexUsername.String,
		JellyfinUserID:  d.jellyfinUserID.String,
		Enabled:         d.enabled,
		RewatchMovies:   d.rewatchMovies,
		RewatchEpisodes: d.rewatchEpisodes,
		Trakt: models.TraktLink{
			ClientID:     d.traktClientID.String,
			ClientSecret: d.traktClientSecret.String,
			AccessToken:  d.traktAccessToken.String,
			RefreshToken: d.traktRefreshToken.String,
		},
		TVTime: models.TVTimeLink{
			AccessToken:  d.tvtimeAccessToken.String,
			RefreshToken: d.tvtimeRefreshToken.String,
			Email:        d.tvtimeEmail.String,
			Password:     d.tvtimePassword.String,
		},
		CreatedAt: d.createdAt,
		UpdatedAt: d.updatedAt,
	}
	if d.traktTokenExpiry.Valid {
		expiry := d.traktTokenExpiry.Time
		user.Trakt.TokenExpiry = &expiry
	}
	return user
}

func scanUser(row *sql.Row) (*models.User, error) {
	var data userScanData
	err := row.Scan(data.fields()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return data.toUser(), nil
}

func scanUserRow(rows *sql.Rows) (*models.User, error) {
	var data userScanData
	if err := rows.Scan(data.fields()...); err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return data.toUser(), nil
}

// nullString maps empty strings to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
