// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package scrobble

import (
	"context"
	"errors"
	"strconv"

	"github.com/watchhook/watchhook/internal/logging"
	"github.com/watchhook/watchhook/internal/metrics"
	"github.com/watchhook/watchhook/internal/models"
	"github.com/watchhook/watchhook/internal/settings"
)

// HistoryStore is the persistence surface the ledger needs.
type HistoryStore interface {
	InsertSyncHistory(ctx context.Context, entry *models.SyncHistoryEntry) error
	HasPriorSuccess(ctx context.Context, userID string, mediaType models.MediaType, ids models.CrossRefIDs) (bool, error)
	TrimSyncHistory(ctx context.Context, userID string, limit int) (int64, error)
}

// SettingsGetter reads runtime settings. Implementations return an error
// wrapping settings.ErrNotFound for absent keys.
type SettingsGetter interface {
	Get(key string) (string, error)
}

// Ledger is the bounded per-user history of sync attempts. Writes never
// fail from the orchestrator's point of view; persistence errors are logged
// as data-loss risk and swallowed.
type Ledger struct {
	store    HistoryStore
	settings SettingsGetter
}

// NewLedger creates a ledger over the given history store. The settings
// getter supplies the retention cap; a nil getter uses the default cap.
func NewLedger(store HistoryStore, settingsGetter SettingsGetter) *Ledger {
	return &Ledger{store: store, settings: settingsGetter}
}

// Record appends one entry. A persistence failure cannot fail the sync:
// the scrobble already happened remotely and cannot be undone, so the
// failure is logged and counted instead of propagated.
func (l *Ledger) Record(ctx context.Context, entry *models.SyncHistoryEntry) {
	if err := l.store.InsertSyncHistory(ctx, entry); err != nil {
		metrics.HistoryWriteFailures.Inc()
		logging.Error().
			Err(err).
			Str("user_id", entry.UserID).
			Str("title", entry.Title).
			Msg("History write failed; sync outcome lost (data loss risk)")
		return
	}
	metrics.HistoryEntriesRecorded.Inc()
}

// HasPriorSuccess reports whether any successful entry for this user and
// media type shares a non-empty cross-reference id with ids. Best-effort: a
// failed lookup reads as false so a first play is never marked a rewatch by
// accident.
func (l *Ledger) HasPriorSuccess(ctx context.Context, userID string, mediaType models.MediaType, ids models.CrossRefIDs) bool {
	prior, err := l.store.HasPriorSuccess(ctx, userID, mediaType, ids)
	if err != nil {
		logging.Warn().
			Err(err).
			Str("user_id", userID).
			Msg("Rewatch precheck failed; treating as first watch")
		return false
	}
	return prior
}

// Trim deletes the user's oldest entries beyond the configured retention
// cap. Safe to run concurrently for the same user: the count-then-delete
// race can under-trim by one entry, never over-delete.
func (l *Ledger) Trim(ctx context.Context, userID string) {
	deleted, err := l.store.TrimSyncHistory(ctx, userID, l.retentionCap())
	if err != nil {
		logging.Warn().
			Err(err).
			Str("user_id", userID).
			Msg("History trim failed")
		return
	}
	if deleted > 0 {
		metrics.HistoryEntriesTrimmed.Add(float64(deleted))
		logging.Debug().
			Str("user_id", userID).
			Int64("deleted", deleted).
			Msg("Trimmed sync history")
	}
}

// retentionCap reads the cap from settings, clamped to the allowed range.
// Unset or unparseable values fall back to the default.
func (l *Ledger) retentionCap() int {
	if l.settings == nil {
		return models.SyncHistoryLimitDefault
	}
	raw, err := l.settings.Get(settings.KeySyncHistoryLimit)
	if err != nil {
		if !errors.Is(err, settings.ErrNotFound) {
			logging.Warn().Err(err).Msg("Failed to read history limit setting; using default")
		}
		return models.SyncHistoryLimitDefault
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		logging.Warn().
			Str("value", raw).
			Msg("History limit setting is not an integer; using default")
		return models.SyncHistoryLimitDefault
	}
	return models.ClampHistoryLimit(limit)
}
