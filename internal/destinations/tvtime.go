// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package destinations

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/watchhook/watchhook/internal/logging"
	"github.com/watchhook/watchhook/internal/metrics"
	"github.com/watchhook/watchhook/internal/models"
	"github.com/watchhook/watchhook/internal/scrobble"
)

// TVTimeTokenPair is the token pair returned by a TVTime refresh or login.
type TVTimeTokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TVTimeAPI is the wire-level TVTime surface the adapter depends on.
// Methods return *HTTPError for non-success responses.
type TVTimeAPI interface {
	RefreshToken(ctx context.Context, refreshToken string) (*TVTimeTokenPair, error)
	Login(ctx context.Context, email, password string) (*TVTimeTokenPair, error)
	MarkEpisodeWatched(ctx context.Context, accessToken, tvdbEpisodeID string) error
}

// TVTimeCredentials resolves valid TVTime access tokens. There is no stored
// expiry: validity comes from the exp claim embedded in the JWT itself, with
// the same 5-minute buffer as Trakt. On invalidity the resolver refreshes
// silently; if the refresh fails and the user stored email/password, it
// falls back to a full re-login.
type TVTimeCredentials struct {
	api       TVTimeAPI
	store     CredentialStore
	encryptor Encryptor
	now       func() time.Time
}

// NewTVTimeCredentials creates the TVTime credential resolver.
func NewTVTimeCredentials(api TVTimeAPI, store CredentialStore, encryptor Encryptor) *TVTimeCredentials {
	return &TVTimeCredentials{
		api:       api,
		store:     store,
		encryptor: encryptor,
		now:       time.Now,
	}
}

// GetValidAccessToken implements scrobble.CredentialResolver.
func (c *TVTimeCredentials) GetValidAccessToken(ctx context.Context, user *models.User) (scrobble.Credential, error) {
	if !user.TVTime.Linked() {
		return scrobble.Credential{}, fmt.Errorf("tvtime: %w", scrobble.ErrNotLinked)
	}

	token, err := c.encryptor.Decrypt(user.TVTime.AccessToken)
	if err != nil {
		return scrobble.Credential{}, fmt.Errorf("decrypt access token: %w", err)
	}

	if c.tokenValid(token) {
		return scrobble.Credential{AccessToken: token}, nil
	}

	return c.refresh(ctx, user)
}

// tokenValid decodes the JWT exp claim without verifying the signature; the
// token is opaque to us apart from its expiry, and the remote service is
// the authority on validity.
func (c *TVTimeCredentials) tokenValid(token string) bool {
	expiry, err := jwtExpiry(token)
	if err != nil {
		// No readable expiry; let the refresh path sort it out.
		return false
	}
	return c.now().Before(expiry.Add(-tokenExpiryBuffer))
}

// refresh exchanges the refresh token for a new pair, falling back to a full
// re-login when the user stored primary credentials. The new pair is
// persisted in one atomic update before the token is returned.
func (c *TVTimeCredentials) refresh(ctx context.Context, user *models.User) (scrobble.Credential, error) {
	refreshToken, err := c.encryptor.Decrypt(user.TVTime.RefreshToken)
	if err != nil {
		return scrobble.Credential{}, &scrobble.RefreshFailedError{Cause: fmt.Errorf("decrypt refresh token: %w", err)}
	}

	pair, refreshErr := c.api.RefreshToken(ctx, refreshToken)
	if refreshErr == nil {
		metrics.RecordTokenRefresh("tvtime", "success")
		return c.persist(ctx, user, pair)
	}
	metrics.RecordTokenRefresh("tvtime", "failure")

	if !user.TVTime.HasLoginCredentials() {
		return scrobble.Credential{}, &scrobble.RefreshFailedError{Cause: remoteCause(refreshErr)}
	}

	password, err := c.encryptor.Decrypt(user.TVTime.Password)
	if err != nil {
		return scrobble.Credential{}, &scrobble.ReauthFailedError{Cause: fmt.Errorf("decrypt password: %w", err)}
	}

	pair, err = c.api.Login(ctx, user.TVTime.Email, password)
	if err != nil {
		metrics.RecordTokenRefresh("tvtime", "failure")
		return scrobble.Credential{}, &scrobble.ReauthFailedError{Cause: remoteCause(err)}
	}
	metrics.RecordTokenRefresh("tvtime", "relogin")
	logging.Info().Str("user_id", user.ID).Msg("TVTime refresh failed; re-login succeeded")

	return c.persist(ctx, user, pair)
}

func (c *TVTimeCredentials) persist(ctx context.Context, user *models.User, pair *TVTimeTokenPair) (scrobble.Credential, error) {
	encAccess, err := c.encryptor.Encrypt(pair.AccessToken)
	if err != nil {
		return scrobble.Credential{}, &scrobble.RefreshFailedError{Cause: fmt.Errorf("encrypt access token: %w", err)}
	}
	encRefresh, err := c.encryptor.Encrypt(pair.RefreshToken)
	if err != nil {
		return scrobble.Credential{}, &scrobble.RefreshFailedError{Cause: fmt.Errorf("encrypt refresh token: %w", err)}
	}

	update := models.CredentialUpdate{
		Destination:  "tvtime",
		AccessToken:  encAccess,
		RefreshToken: encRefresh,
	}
	if err := c.store.UpdateUserCredentials(ctx, user.ID, update); err != nil {
		return scrobble.Credential{}, &scrobble.RefreshFailedError{Cause: fmt.Errorf("persist refreshed credentials: %w", err)}
	}

	user.TVTime.AccessToken = encAccess
	user.TVTime.RefreshToken = encRefresh
	return scrobble.Credential{AccessToken: pair.AccessToken}, nil
}

// jwtExpiry extracts the exp claim from a JWT without signature
// verification.
func jwtExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return exp.Time, nil
}

// TVTimeDestination marks episodes watched on TVTime. TVTime is keyed by
// TVDB episode ids and tracks series only, so movies are unsupported and
// the rewatch option is ignored.
type TVTimeDestination struct {
	api TVTimeAPI
}

// NewTVTimeDestination creates the TVTime adapter.
func NewTVTimeDestination(api TVTimeAPI) *TVTimeDestination {
	return &TVTimeDestination{api: api}
}

// Name implements scrobble.Destination.
func (d *TVTimeDestination) Name() string { return "tvtime" }

// IsLinkedFor reports whether the user holds a TVTime token pair.
func (d *TVTimeDestination) IsLinkedFor(user *models.User) bool {
	return user.TVTime.Linked()
}

// Scrobble marks an episode watched. The minimum-identifier policy requires
// a TVDB episode id; there is no series+season+episode lookup on this API.
func (d *TVTimeDestination) Scrobble(ctx context.Context, event *models.NormalizedEvent, cred scrobble.Credential, _ scrobble.ScrobbleOptions) error {
	if event.Media.Type != models.MediaTypeEpisode {
		return scrobble.ErrUnsupportedMedia
	}
	if event.Media.IDs.TVDBEpisode == "" {
		return &scrobble.MissingIdentifiersError{Reason: "episode needs a tvdb episode id"}
	}

	if err := d.api.MarkEpisodeWatched(ctx, cred.AccessToken, event.Media.IDs.TVDBEpisode); err != nil {
		return mapRemoteError(err)
	}
	return nil
}
