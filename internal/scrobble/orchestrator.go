// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package scrobble

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/watchhook/watchhook/internal/logging"
	"github.com/watchhook/watchhook/internal/metrics"
	"github.com/watchhook/watchhook/internal/models"
)

// MediaServerClient resolves season-level posters for episode enrichment.
// Returns "" with a nil error when no poster is available.
type MediaServerClient interface {
	GetSeasonPosterURL(ctx context.Context, itemID string, season int) (string, error)
}

// Skip reasons recorded in the ledger when an event terminates before any
// dispatch.
const (
	reasonAccountDisabled = "account disabled"
	reasonNoDestinations  = "no destinations configured"
)

// Orchestrator drives one event from reception to a recorded ledger entry:
// resolve the user, enumerate linked destinations, dispatch to each with
// failure isolation, aggregate, record, trim.
type Orchestrator struct {
	users    *UserResolver
	registry *Registry
	ledger   *Ledger
	posters  MediaServerClient // nil disables poster enrichment
}

// NewOrchestrator wires the orchestration core. posters may be nil when no
// media-server client is configured.
func NewOrchestrator(users *UserResolver, registry *Registry, ledger *Ledger, posters MediaServerClient) *Orchestrator {
	return &Orchestrator{
		users:    users,
		registry: registry,
		ledger:   ledger,
		posters:  posters,
	}
}

// dispatchResult is one destination's outcome within a dispatch round.
type dispatchResult struct {
	name string
	err  error
}

// SyncEvent processes one normalized event to completion. Business outcomes
// (disabled account, no destinations, per-destination failures) are recorded
// in the ledger, never returned; the method always hands control back after
// recording. Non-scrobble events return immediately with no side effects.
func (o *Orchestrator) SyncEvent(ctx context.Context, event *models.NormalizedEvent) {
	// Redundant with the ingest filter, by contract.
	if event.Status != models.StatusScrobble {
		return
	}
	if event.Media.Type != models.MediaTypeMovie && event.Media.Type != models.MediaTypeEpisode {
		return
	}

	start := time.Now()
	metrics.EventsReceived.WithLabelValues(string(event.Source), string(event.Status)).Inc()

	user, err := o.users.Resolve(ctx, event.Source, event.UserIdentity)
	if err != nil {
		// A missing binding is a configuration gap the operator must fix.
		// No user id exists to attach a ledger entry to.
		if errors.Is(err, models.ErrUserNotFound) {
			logging.Error().
				Str("source", string(event.Source)).
				Str("identity", event.UserIdentity).
				Msg("No local user linked to source identity")
		} else {
			logging.Error().
				Err(err).
				Str("source", string(event.Source)).
				Str("identity", event.UserIdentity).
				Msg("User lookup failed")
		}
		metrics.RecordSyncOutcome("skipped", time.Since(start))
		return
	}

	if !user.Enabled {
		o.recordAndTrim(ctx, o.skippedEntry(user, event, reasonAccountDisabled))
		metrics.RecordSyncOutcome("skipped", time.Since(start))
		return
	}

	linked := o.registry.LinkedFor(user)
	if len(linked) == 0 {
		o.recordAndTrim(ctx, o.skippedEntry(user, event, reasonNoDestinations))
		metrics.RecordSyncOutcome("skipped", time.Since(start))
		return
	}

	// One precheck per event so every destination in this round sees the
	// same rewatch flag.
	priorSuccess := o.ledger.HasPriorSuccess(ctx, user.ID, event.Media.Type, event.Media.IDs)
	markRewatch := priorSuccess && rewatchPolicy(user, event.Media.Type)

	results := o.dispatch(ctx, event, user, linked, markRewatch)

	entry := o.aggregate(user, event, results, markRewatch)
	entry.PosterURL = o.enrichPoster(ctx, event)

	o.recordAndTrim(ctx, entry)
	metrics.RecordSyncOutcome(outcomeLabel(results), time.Since(start))
}

// dispatch runs the per-destination loop sequentially with full failure
// isolation: one destination's credential or scrobble failure never aborts
// dispatch to the rest.
func (o *Orchestrator) dispatch(ctx context.Context, event *models.NormalizedEvent, user *models.User, linked []RegisteredDestination, markRewatch bool) []dispatchResult {
	results := make([]dispatchResult, 0, len(linked))

	for _, dest := range linked {
		name := dest.Adapter.Name()

		cred, err := dest.Credentials.GetValidAccessToken(ctx, user)
		if err != nil {
			logging.Warn().
				Err(err).
				Str("destination", name).
				Str("user_id", user.ID).
				Msg("Credential resolution failed")
			results = append(results, dispatchResult{name: name, err: err})
			metrics.RecordDispatch(name, false)
			continue
		}

		opts := ScrobbleOptions{MarkRewatch: markRewatch}
		if err := dest.Adapter.Scrobble(ctx, event, cred, opts); err != nil {
			logging.Warn().
				Err(err).
				Str("destination", name).
				Str("user_id", user.ID).
				Str("title", event.Media.Title).
				Msg("Scrobble dispatch failed")
			results = append(results, dispatchResult{name: name, err: err})
			metrics.RecordDispatch(name, false)
			continue
		}

		logging.Info().
			Str("destination", name).
			Str("user_id", user.ID).
			Str("title", event.Media.Title).
			Bool("rewatch", markRewatch).
			Msg("Scrobble dispatched")
		results = append(results, dispatchResult{name: name})
		metrics.RecordDispatch(name, true)
	}

	return results
}

// aggregate folds per-destination results into one ledger entry. Overall
// success means at least one destination succeeded; failed destinations are
// joined into the error message as "name: message" separated by semicolons.
func (o *Orchestrator) aggregate(user *models.User, event *models.NormalizedEvent, results []dispatchResult, markRewatch bool) *models.SyncHistoryEntry {
	var succeeded []string
	var failures []string
	for _, res := range results {
		if res.err != nil {
			failures = append(failures, res.name+": "+res.err.Error())
			continue
		}
		succeeded = append(succeeded, res.name)
	}

	entry := newEntry(user, event)
	entry.Success = len(succeeded) > 0
	entry.Destinations = succeeded
	entry.WasRewatched = markRewatch
	if len(failures) > 0 {
		entry.ErrorMessage = strings.Join(failures, "; ")
	}
	return entry
}

// enrichPoster attempts to swap an episode's poster for its season-level
// poster on Plex events. Best effort: any failure silently falls back to the
// event's own poster URL.
func (o *Orchestrator) enrichPoster(ctx context.Context, event *models.NormalizedEvent) string {
	original := event.Media.PosterURL
	if o.posters == nil || event.Source != models.SourcePlex || event.Media.Type != models.MediaTypeEpisode {
		return original
	}
	itemID := event.Metadata[models.MetadataItemID]
	if itemID == "" {
		return original
	}

	url, err := o.posters.GetSeasonPosterURL(ctx, itemID, event.Media.Season)
	if err != nil || url == "" {
		logging.Debug().
			Str("item_id", itemID).
			Msg("Season poster lookup failed; keeping original poster")
		return original
	}
	return url
}

// skippedEntry builds the single ledger entry for an event that terminates
// before any dispatch.
func (o *Orchestrator) skippedEntry(user *models.User, event *models.NormalizedEvent, reason string) *models.SyncHistoryEntry {
	entry := newEntry(user, event)
	entry.Success = false
	entry.ErrorMessage = reason
	entry.Destinations = []string{}
	return entry
}

func (o *Orchestrator) recordAndTrim(ctx context.Context, entry *models.SyncHistoryEntry) {
	o.ledger.Record(ctx, entry)
	o.ledger.Trim(ctx, entry.UserID)
}

// newEntry copies the event's media fields into a fresh ledger entry.
func newEntry(user *models.User, event *models.NormalizedEvent) *models.SyncHistoryEntry {
	return &models.SyncHistoryEntry{
		UserID:    user.ID,
		MediaType: event.Media.Type,
		Title:     event.Media.Title,
		Source:    event.Source,
		IDs:       event.Media.IDs,
		PosterURL: event.Media.PosterURL,
		Season:    event.Media.Season,
		Episode:   event.Media.Episode,
		Year:      event.Media.Year,
	}
}

// rewatchPolicy returns the user's rewatch flag for the event's media type.
func rewatchPolicy(user *models.User, mediaType models.MediaType) bool {
	if mediaType == models.MediaTypeMovie {
		return user.RewatchMovies
	}
	return user.RewatchEpisodes
}

// outcomeLabel maps a dispatch round to a sync outcome metric label.
func outcomeLabel(results []dispatchResult) string {
	var succeeded, failed int
	for _, res := range results {
		if res.err != nil {
			failed++
		} else {
			succeeded++
		}
	}
	switch {
	case failed == 0:
		return "success"
	case succeeded > 0:
		return "partial"
	default:
		return "failed"
	}
}
