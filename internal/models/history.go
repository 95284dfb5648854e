// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package models

import "time"

// Sync history retention bounds. The per-user cap is read from the settings
// store at trim time and clamped into this range.
const (
	SyncHistoryLimitDefault = 100
	SyncHistoryLimitMin     = 10
	SyncHistoryLimitMax     = 10000
)

// SyncHistoryEntry is one record of a sync attempt for a user. Every
// scrobble attempt that reaches a resolved user produces exactly one entry,
// including attempts that fail before any destination is contacted. Entries
// are immutable after creation; only retention trimming deletes them.
type SyncHistoryEntry struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	MediaType MediaType   `json:"media_type"`
	Title     string      `json:"title"`
	Source    Source      `json:"source"`
	IDs       CrossRefIDs `json:"ids"`
	PosterURL string      `json:"poster_url,omitempty"`
	Season    int         `json:"season,omitempty"`
	Episode   int         `json:"episode,omitempty"`
	Year      int         `json:"year,omitempty"`

	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
	WasRewatched bool   `json:"was_rewatched"`
	// Destinations lists, in dispatch order, the destinations that accepted
	// the scrobble.
	Destinations []string  `json:"destinations"`
	SyncedAt     time.Time `json:"synced_at"`
}

// ClampHistoryLimit clamps a configured history cap into the supported
// range. Non-positive values fall back to the default.
func ClampHistoryLimit(limit int) int {
	if limit <= 0 {
		return SyncHistoryLimitDefault
	}
	if limit < SyncHistoryLimitMin {
		return SyncHistoryLimitMin
	}
	if limit > SyncHistoryLimitMax {
		return SyncHistoryLimitMax
	}
	return limit
}
