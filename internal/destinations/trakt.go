// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package destinations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/watchhook/watchhook/internal/logging"
	"github.com/watchhook/watchhook/internal/metrics"
	"github.com/watchhook/watchhook/internal/models"
	"github.com/watchhook/watchhook/internal/scrobble"
)

// tokenExpiryBuffer is how long before its stored expiry a token is treated
// as invalid, so a token never expires mid-dispatch.
const tokenExpiryBuffer = 5 * time.Minute

// TraktTokenResponse is the result of a Trakt OAuth token exchange.
type TraktTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
	CreatedAt    int64  `json:"created_at"` // unix
}

// TraktHistoryItem is one movie or episode added to a user's Trakt history.
type TraktHistoryItem struct {
	WatchedAt string            `json:"watched_at,omitempty"`
	Title     string            `json:"title,omitempty"`
	Year      int               `json:"year,omitempty"`
	IDs       map[string]string `json:"ids"`
}

// TraktShowItem targets episodes by series id plus season/episode numbers,
// used when no episode-level id is available.
type TraktShowItem struct {
	IDs     map[string]string `json:"ids"`
	Seasons []TraktSeasonSpec `json:"seasons"`
}

// TraktSeasonSpec selects episodes within one season of a show.
type TraktSeasonSpec struct {
	Number   int                `json:"number"`
	Episodes []TraktEpisodeSpec `json:"episodes"`
}

// TraktEpisodeSpec selects one episode by number.
type TraktEpisodeSpec struct {
	WatchedAt string `json:"watched_at,omitempty"`
	Number    int    `json:"number"`
}

// TraktHistoryRequest is the payload for Trakt's add-to-history call.
type TraktHistoryRequest struct {
	Movies   []TraktHistoryItem `json:"movies,omitempty"`
	Shows    []TraktShowItem    `json:"shows,omitempty"`
	Episodes []TraktHistoryItem `json:"episodes,omitempty"`
}

// TraktAPI is the wire-level Trakt surface the adapter depends on. Methods
// return *HTTPError for non-success responses.
type TraktAPI interface {
	RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*TraktTokenResponse, error)
	AddToHistory(ctx context.Context, clientID, accessToken string, req *TraktHistoryRequest) error
}

// TraktCredentials resolves valid Trakt access tokens using the stored
// expiry timestamp: a token is valid while now < expiry - 5min, otherwise a
// refresh-token exchange runs and the new pair is persisted atomically.
type TraktCredentials struct {
	api       TraktAPI
	store     CredentialStore
	encryptor Encryptor
	now       func() time.Time
}

// NewTraktCredentials creates the Trakt credential resolver.
func NewTraktCredentials(api TraktAPI, store CredentialStore, encryptor Encryptor) *TraktCredentials {
	return &TraktCredentials{
		api:       api,
		store:     store,
		encryptor: encryptor,
		now:       time.Now,
	}
}

// GetValidAccessToken returns a decrypted, currently valid credential for
// the user, refreshing first when the stored expiry is inside the buffer.
func (c *TraktCredentials) GetValidAccessToken(ctx context.Context, user *models.User) (scrobble.Credential, error) {
	link := user.Trakt
	if !link.Linked() {
		return scrobble.Credential{}, fmt.Errorf("trakt: %w", scrobble.ErrNotLinked)
	}
	if !link.HasAppCredentials() {
		return scrobble.Credential{}, fmt.Errorf("trakt: missing client id/secret: %w", scrobble.ErrNotLinked)
	}

	if link.TokenExpiry != nil && c.now().Before(link.TokenExpiry.Add(-tokenExpiryBuffer)) {
		token, err := c.encryptor.Decrypt(link.AccessToken)
		if err != nil {
			return scrobble.Credential{}, fmt.Errorf("decrypt access token: %w", err)
		}
		return scrobble.Credential{AccessToken: token, ClientID: link.ClientID}, nil
	}

	return c.refresh(ctx, user)
}

// refresh exchanges the stored refresh token for a new pair and persists
// access token, refresh token and expiry in one atomic update.
func (c *TraktCredentials) refresh(ctx context.Context, user *models.User) (scrobble.Credential, error) {
	refreshToken, err := c.encryptor.Decrypt(user.Trakt.RefreshToken)
	if err != nil {
		return scrobble.Credential{}, &scrobble.RefreshFailedError{Cause: fmt.Errorf("decrypt refresh token: %w", err)}
	}

	resp, err := c.api.RefreshToken(ctx, user.Trakt.ClientID, user.Trakt.ClientSecret, refreshToken)
	if err != nil {
		metrics.RecordTokenRefresh("trakt", "failure")
		return scrobble.Credential{}, &scrobble.RefreshFailedError{Cause: remoteCause(err)}
	}

	expiry := c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	if err := c.persist(ctx, user, resp.AccessToken, resp.RefreshToken, &expiry); err != nil {
		metrics.RecordTokenRefresh("trakt", "failure")
		return scrobble.Credential{}, &scrobble.RefreshFailedError{Cause: err}
	}

	metrics.RecordTokenRefresh("trakt", "success")
	logging.Debug().Str("user_id", user.ID).Msg("Refreshed Trakt token")
	return scrobble.Credential{AccessToken: resp.AccessToken, ClientID: user.Trakt.ClientID}, nil
}

func (c *TraktCredentials) persist(ctx context.Context, user *models.User, accessToken, refreshToken string, expiry *time.Time) error {
	encAccess, err := c.encryptor.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh, err := c.encryptor.Encrypt(refreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}

	update := models.CredentialUpdate{
		Destination:  "trakt",
		AccessToken:  encAccess,
		RefreshToken: encRefresh,
		TokenExpiry:  expiry,
	}
	if err := c.store.UpdateUserCredentials(ctx, user.ID, update); err != nil {
		return fmt.Errorf("persist refreshed credentials: %w", err)
	}

	// Keep the in-memory record consistent for the rest of this dispatch
	// round.
	user.Trakt.AccessToken = encAccess
	user.Trakt.RefreshToken = encRefresh
	user.Trakt.TokenExpiry = expiry
	return nil
}

// TraktDestination scrobbles movies and episodes to Trakt by adding them to
// the user's watch history.
type TraktDestination struct {
	api TraktAPI
}

// NewTraktDestination creates the Trakt adapter.
func NewTraktDestination(api TraktAPI) *TraktDestination {
	return &TraktDestination{api: api}
}

// Name implements scrobble.Destination.
func (d *TraktDestination) Name() string { return "trakt" }

// IsLinkedFor reports whether the user holds both a token pair and the app
// credentials refresh needs.
func (d *TraktDestination) IsLinkedFor(user *models.User) bool {
	return user.Trakt.Linked() && user.Trakt.HasAppCredentials()
}

// Scrobble adds the event's media to the user's Trakt history. The
// minimum-identifier policy is checked before any network call: movies need
// at least one movie-level id, episodes need an episode-level id or a
// series-level id with season and episode numbers. Trakt history has no
// rewatch concept, so the rewatch option is ignored.
func (d *TraktDestination) Scrobble(ctx context.Context, event *models.NormalizedEvent, cred scrobble.Credential, _ scrobble.ScrobbleOptions) error {
	req, err := buildTraktRequest(event)
	if err != nil {
		return err
	}

	if err := d.api.AddToHistory(ctx, cred.ClientID, cred.AccessToken, req); err != nil {
		return mapRemoteError(err)
	}
	return nil
}

// buildTraktRequest converts an event into Trakt's history payload.
func buildTraktRequest(event *models.NormalizedEvent) (*TraktHistoryRequest, error) {
	ids := event.Media.IDs
	watchedAt := event.Timestamp.UTC().Format(time.RFC3339)

	switch event.Media.Type {
	case models.MediaTypeMovie:
		movieIDs := map[string]string{}
		if ids.IMDB != "" {
			movieIDs["imdb"] = ids.IMDB
		}
		if ids.TMDB != "" {
			movieIDs["tmdb"] = ids.TMDB
		}
		if ids.TVDB != "" {
			movieIDs["tvdb"] = ids.TVDB
		}
		if len(movieIDs) == 0 {
			return nil, &scrobble.MissingIdentifiersError{Reason: "movie needs an imdb, tmdb or tvdb id"}
		}
		return &TraktHistoryRequest{
			Movies: []TraktHistoryItem{{
				WatchedAt: watchedAt,
				Title:     event.Media.Title,
				Year:      event.Media.Year,
				IDs:       movieIDs,
			}},
		}, nil

	case models.MediaTypeEpisode:
		episodeIDs := map[string]string{}
		if ids.TVDBEpisode != "" {
			episodeIDs["tvdb"] = ids.TVDBEpisode
		}
		if ids.TMDBEpisode != "" {
			episodeIDs["tmdb"] = ids.TMDBEpisode
		}
		if len(episodeIDs) > 0 {
			return &TraktHistoryRequest{
				Episodes: []TraktHistoryItem{{
					WatchedAt: watchedAt,
					IDs:       episodeIDs,
				}},
			}, nil
		}

		// No episode-level id: target by series id + season/episode numbers.
		seriesIDs := map[string]string{}
		if ids.IMDB != "" {
			seriesIDs["imdb"] = ids.IMDB
		}
		if ids.TMDB != "" {
			seriesIDs["tmdb"] = ids.TMDB
		}
		if ids.TVDB != "" {
			seriesIDs["tvdb"] = ids.TVDB
		}
		if len(seriesIDs) == 0 || event.Media.Season <= 0 || event.Media.Episode <= 0 {
			return nil, &scrobble.MissingIdentifiersError{Reason: "episode needs an episode-level id, or a series id with season and episode numbers"}
		}
		return &TraktHistoryRequest{
			Shows: []TraktShowItem{{
				IDs: seriesIDs,
				Seasons: []TraktSeasonSpec{{
					Number: event.Media.Season,
					Episodes: []TraktEpisodeSpec{{
						WatchedAt: watchedAt,
						Number:    event.Media.Episode,
					}},
				}},
			}},
		}, nil

	default:
		return nil, scrobble.ErrUnsupportedMedia
	}
}

// mapRemoteError turns a wire-level failure into the scrobble taxonomy,
// extracting a readable message from HTTP error bodies.
func mapRemoteError(err error) error {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return &scrobble.RemoteError{
			StatusCode: httpErr.StatusCode,
			Message:    extractRemoteMessage(httpErr.Body),
		}
	}
	return &scrobble.RemoteError{Message: err.Error()}
}

// remoteCause keeps refresh failure causes readable by extracting HTTP
// error bodies the same way scrobble failures do.
func remoteCause(err error) error {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if msg := extractRemoteMessage(httpErr.Body); msg != "" {
			return fmt.Errorf("status %d: %s", httpErr.StatusCode, msg)
		}
		return fmt.Errorf("status %d", httpErr.StatusCode)
	}
	return err
}
