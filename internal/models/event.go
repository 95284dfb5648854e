// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

// Package models defines data structures used throughout the Watchhook
// application.
package models

import "time"

// PlaybackStatus is the playback state carried by a normalized event. Only
// StatusScrobble triggers a sync.
type PlaybackStatus string

// Playback statuses.
const (
	StatusPlaying  PlaybackStatus = "playing"
	StatusPaused   PlaybackStatus = "paused"
	StatusStopped  PlaybackStatus = "stopped"
	StatusScrobble PlaybackStatus = "scrobble"
)

// Source identifies the media server that produced a playback event.
type Source string

// Event sources.
const (
	SourcePlex     Source = "plex"
	SourceJellyfin Source = "jellyfin"
)

// MediaType discriminates the media item union.
type MediaType string

// Media types.
const (
	MediaTypeMovie   MediaType = "movie"
	MediaTypeEpisode MediaType = "episode"
)

// CrossRefIDs holds the optional cross-reference identifiers a media item
// carries across metadata providers. All values are stringified; empty means
// absent. Idempotency identity is derived from these, never from title text.
type CrossRefIDs struct {
	TVDB        string `json:"tvdb,omitempty"`         // series or movie
	TVDBEpisode string `json:"tvdb_episode,omitempty"` // episode
	IMDB        string `json:"imdb,omitempty"`         // series or movie
	TMDB        string `json:"tmdb,omitempty"`         // series or movie
	TMDBEpisode string `json:"tmdb_episode,omitempty"` // episode
}

// Any reports whether at least one identifier is present.
func (ids CrossRefIDs) Any() bool {
	return ids.TVDB != "" || ids.TVDBEpisode != "" || ids.IMDB != "" ||
		ids.TMDB != "" || ids.TMDBEpisode != ""
}

// SharesAny reports whether this set shares at least one non-empty
// identifier with other, compared per scheme. Two empty sets never match, so
// a first play is never mistaken for a rewatch.
func (ids CrossRefIDs) SharesAny(other CrossRefIDs) bool {
	pairs := [][2]string{
		{ids.TVDB, other.TVDB},
		{ids.TVDBEpisode, other.TVDBEpisode},
		{ids.IMDB, other.IMDB},
		{ids.TMDB, other.TMDB},
		{ids.TMDBEpisode, other.TMDBEpisode},
	}
	for _, p := range pairs {
		if p[0] != "" && p[0] == p[1] {
			return true
		}
	}
	return false
}

// MediaItem is the media payload of a normalized event: a movie or an
// episode. Episode-only fields are zero for movies.
type MediaItem struct {
	Type         MediaType   `json:"type" validate:"required,oneof=movie episode"`
	Title        string      `json:"title" validate:"required"`
	Year         int         `json:"year,omitempty"`
	DurationMS   int64       `json:"duration_ms,omitempty"`
	WatchedMS    int64       `json:"watched_ms,omitempty"`
	PosterURL    string      `json:"poster_url,omitempty"`
	IDs          CrossRefIDs `json:"ids"`
	Season       int         `json:"season,omitempty"`
	Episode      int         `json:"episode,omitempty"`
	EpisodeTitle string      `json:"episode_title,omitempty"`
}

// NormalizedEvent is a playback event normalized by the webhook parsers.
// It is immutable once constructed; the orchestrator never mutates it.
type NormalizedEvent struct {
	Status       PlaybackStatus    `json:"status" validate:"required,oneof=playing paused stopped scrobble"`
	Media        MediaItem         `json:"media"`
	UserIdentity string            `json:"user_identity" validate:"required"`
	Source       Source            `json:"source" validate:"required,oneof=plex jellyfin"`
	Timestamp    time.Time         `json:"timestamp"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// MetadataItemID is the metadata key carrying the source item id used for
// season-poster enrichment on Plex events.
const MetadataItemID = "item_id"
