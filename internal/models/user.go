// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package models

import (
	"errors"
	"time"
)

// ErrUserNotFound is returned by user stores when no user matches a lookup.
var ErrUserNotFound = errors.New("user not found")

// User is a local account mapping media-server identities to destination
// credentials. Disabled users never sync.
//
// Credential fields hold encrypted values when loaded from or written to the
// database; decryption happens inside the credential resolvers.
type User struct {
	ID             string `json:"id"`
	PlexUsername   string `json:"plex_username,omitempty"`
	JellyfinUserID string `json:"jellyfin_user_id,omitempty"` // stored without hyphens
	Enabled        bool   `json:"enabled"`

	// Rewatch policy: mark media as a rewatch on the destination when a
	// prior successful sync exists.
	RewatchMovies   bool `json:"rewatch_movies"`
	RewatchEpisodes bool `json:"rewatch_episodes"`

	Trakt  TraktLink  `json:"trakt"`
	TVTime TVTimeLink `json:"tvtime"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TraktLink holds a user's Trakt linkage: user-supplied app credentials plus
// the OAuth token pair with its absolute expiry.
type TraktLink struct {
	ClientID     string     `json:"client_id,omitempty"`
	ClientSecret string     `json:"client_secret,omitempty"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenExpiry  *time.Time `json:"token_expiry,omitempty"`
}

// Linked reports whether the user has a usable Trakt token pair.
func (l TraktLink) Linked() bool {
	return l.AccessToken != "" && l.RefreshToken != ""
}

// HasAppCredentials reports whether the user supplied a Trakt client id and
// secret, required for token refresh.
func (l TraktLink) HasAppCredentials() bool {
	return l.ClientID != "" && l.ClientSecret != ""
}

// TVTimeLink holds a user's TVTime linkage. Token validity is derived from a
// claim embedded in the access token itself; there is no stored expiry.
// Email and password are optional fallback credentials for full re-login
// when a silent refresh fails.
type TVTimeLink struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Email        string `json:"email,omitempty"`
	Password     string `json:"password,omitempty"`
}

// Linked reports whether the user has a usable TVTime token pair.
func (l TVTimeLink) Linked() bool {
	return l.AccessToken != "" && l.RefreshToken != ""
}

// HasLoginCredentials reports whether re-login fallback credentials exist.
func (l TVTimeLink) HasLoginCredentials() bool {
	return l.Email != "" && l.Password != ""
}

// CredentialUpdate is an atomic partial update of a user's token fields for
// one destination. Access token, refresh token and expiry are always written
// together in a single statement so a stale refresh token is never paired
// with a new access token.
type CredentialUpdate struct {
	Destination  string     // "trakt" or "tvtime"
	AccessToken  string     // encrypted
	RefreshToken string     // encrypted
	TokenExpiry  *time.Time // nil for destinations without a stored expiry
}
