// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package scrobble

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/watchhook/watchhook/internal/models"
)

// fakeUserStore resolves users from in-memory maps and counts lookups.
type fakeUserStore struct {
	byPlexUsername map[string]*models.User
	byJellyfinID   map[string]*models.User
	lookups        int
}

func (s *fakeUserStore) GetUserByPlexUsername(_ context.Context, username string) (*models.User, error) {
	s.lookups++
	user, ok := s.byPlexUsername[username]
	if !ok || !user.Enabled {
		return nil, models.ErrUserNotFound
	}
	return user, nil
}

func (s *fakeUserStore) GetUserByJellyfinUserID(_ context.Context, id string) (*models.User, error) {
	s.lookups++
	user, ok := s.byJellyfinID[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return user, nil
}

// fakeHistoryStore records ledger writes in memory.
type fakeHistoryStore struct {
	entries   []*models.SyncHistoryEntry
	prior     bool
	priorErr  error
	insertErr error
	trimCalls []int
}

func (s *fakeHistoryStore) InsertSyncHistory(_ context.Context, entry *models.SyncHistoryEntry) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeHistoryStore) HasPriorSuccess(_ context.Context, _ string, _ models.MediaType, ids models.CrossRefIDs) (bool, error) {
	if s.priorErr != nil {
		return false, s.priorErr
	}
	if !ids.Any() {
		return false, nil
	}
	return s.prior, nil
}

func (s *fakeHistoryStore) TrimSyncHistory(_ context.Context, _ string, limit int) (int64, error) {
	s.trimCalls = append(s.trimCalls, limit)
	return 0, nil
}

// fakeDestination is a scriptable destination adapter.
type fakeDestination struct {
	name        string
	linked      bool
	scrobbleErr error
	calls       []ScrobbleOptions
}

func (d *fakeDestination) Name() string { return d.name }

func (d *fakeDestination) IsLinkedFor(_ *models.User) bool { return d.linked }

func (d *fakeDestination) Scrobble(_ context.Context, _ *models.NormalizedEvent, _ Credential, opts ScrobbleOptions) error {
	d.calls = append(d.calls, opts)
	return d.scrobbleErr
}

// fakeCredentials yields a fixed token or error.
type fakeCredentials struct {
	token string
	err   error
	calls int
}

func (c *fakeCredentials) GetValidAccessToken(_ context.Context, _ *models.User) (Credential, error) {
	c.calls++
	if c.err != nil {
		return Credential{}, c.err
	}
	return Credential{AccessToken: c.token}, nil
}

type fakePosterClient struct {
	url string
	err error
}

func (p *fakePosterClient) GetSeasonPosterURL(_ context.Context, _ string, _ int) (string, error) {
	return p.url, p.err
}

func episodeEvent(identity string, source models.Source) *models.NormalizedEvent {
	return &models.NormalizedEvent{
		Status: models.StatusScrobble,
		Media: models.MediaItem{
			Type:    models.MediaTypeEpisode,
			Title:   "Show",
			IDs:     models.CrossRefIDs{TVDBEpisode: "555"},
			Season:  2,
			Episode: 4,
		},
		UserIdentity: identity,
		Source:       source,
		Timestamp:    time.Now(),
	}
}

type orchestratorFixture struct {
	users   *fakeUserStore
	history *fakeHistoryStore
	orch    *Orchestrator
}

func newFixture(user *models.User, dests ...RegisteredDestination) *orchestratorFixture {
	users := &fakeUserStore{
		byPlexUsername: map[string]*models.User{},
		byJellyfinID:   map[string]*models.User{},
	}
	if user != nil {
		if user.PlexUsername != "" {
			users.byPlexUsername[user.PlexUsername] = user
		}
		if user.JellyfinUserID != "" {
			users.byJellyfinID[user.JellyfinUserID] = user
		}
	}
	history := &fakeHistoryStore{}
	ledger := NewLedger(history, nil)
	orch := NewOrchestrator(NewUserResolver(users), NewRegistry(dests...), ledger, nil)
	return &orchestratorFixture{users: users, history: history, orch: orch}
}

func TestSyncEventIgnoresNonScrobble(t *testing.T) {
	user := &models.User{ID: "u1", PlexUsername: "alice", Enabled: true}
	dest := &fakeDestination{name: "trakt", linked: true}
	fx := newFixture(user, RegisteredDestination{Adapter: dest, Credentials: &fakeCredentials{token: "tok"}})

	for _, status := range []models.PlaybackStatus{models.StatusPlaying, models.StatusPaused, models.StatusStopped} {
		event := episodeEvent("alice", models.SourcePlex)
		event.Status = status
		fx.orch.SyncEvent(context.Background(), event)
	}

	if fx.users.lookups != 0 {
		t.Errorf("non-scrobble events must not resolve users, got %d lookups", fx.users.lookups)
	}
	if len(dest.calls) != 0 {
		t.Errorf("non-scrobble events must not dispatch, got %d calls", len(dest.calls))
	}
	if len(fx.history.entries) != 0 {
		t.Errorf("non-scrobble events must not write history, got %d entries", len(fx.history.entries))
	}
}

func TestSyncEventUnknownUser(t *testing.T) {
	fx := newFixture(nil)

	fx.orch.SyncEvent(context.Background(), episodeEvent("ghost", models.SourcePlex))

	if len(fx.history.entries) != 0 {
		t.Errorf("unmapped identity must not produce a ledger entry, got %d", len(fx.history.entries))
	}
}

func TestSyncEventDisabledUser(t *testing.T) {
	// Disabled users resolve via jellyfin id; the plex lookup excludes them
	// at the query level.
	user := &models.User{ID: "u1", JellyfinUserID: "abc123", Enabled: false}
	dest := &fakeDestination{name: "trakt", linked: true}
	fx := newFixture(user, RegisteredDestination{Adapter: dest, Credentials: &fakeCredentials{token: "tok"}})

	fx.orch.SyncEvent(context.Background(), episodeEvent("abc-123", models.SourceJellyfin))

	if len(fx.history.entries) != 1 {
		t.Fatalf("got %d entries, want exactly 1", len(fx.history.entries))
	}
	entry := fx.history.entries[0]
	if entry.Success {
		t.Error("disabled user entry must not be successful")
	}
	if entry.ErrorMessage != "account disabled" {
		t.Errorf("error message = %q, want %q", entry.ErrorMessage, "account disabled")
	}
	if len(entry.Destinations) != 0 {
		t.Errorf("destinations = %v, want empty", entry.Destinations)
	}
	if len(dest.calls) != 0 {
		t.Error("disabled user must not dispatch")
	}
}

func TestSyncEventNoDestinations(t *testing.T) {
	user := &models.User{ID: "u1", PlexUsername: "alice", Enabled: true}
	dest := &fakeDestination{name: "trakt", linked: false}
	fx := newFixture(user, RegisteredDestination{Adapter: dest, Credentials: &fakeCredentials{token: "tok"}})

	fx.orch.SyncEvent(context.Background(), episodeEvent("alice", models.SourcePlex))

	if len(fx.history.entries) != 1 {
		t.Fatalf("got %d entries, want exactly 1", len(fx.history.entries))
	}
	entry := fx.history.entries[0]
	if entry.Success || entry.ErrorMessage != "no destinations configured" {
		t.Errorf("entry = %+v, want failed with no-destinations reason", entry)
	}
}

func TestSyncEventEndToEndSuccess(t *testing.T) {
	user := &models.User{ID: "u1", PlexUsername: "alice", Enabled: true}
	dest := &fakeDestination{name: "trakt", linked: true}
	creds := &fakeCredentials{token: "tok"}
	fx := newFixture(user, RegisteredDestination{Adapter: dest, Credentials: creds})

	fx.orch.SyncEvent(context.Background(), episodeEvent("alice", models.SourcePlex))

	if len(dest.calls) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(dest.calls))
	}
	if len(fx.history.entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(fx.history.entries))
	}
	entry := fx.history.entries[0]
	if !entry.Success {
		t.Error("expected successful entry")
	}
	if len(entry.Destinations) != 1 || entry.Destinations[0] != "trakt" {
		t.Errorf("destinations = %v, want [trakt]", entry.Destinations)
	}
	if entry.ErrorMessage != "" {
		t.Errorf("error message = %q, want empty", entry.ErrorMessage)
	}
	if entry.Title != "Show" || entry.Season != 2 || entry.Episode != 4 {
		t.Errorf("media fields not carried into entry: %+v", entry)
	}
	if len(fx.history.trimCalls) != 1 {
		t.Errorf("trim called %d times, want 1", len(fx.history.trimCalls))
	}
}

func TestSyncEventCredentialFailure(t *testing.T) {
	user := &models.User{ID: "u1", PlexUsername: "alice", Enabled: true}
	dest := &fakeDestination{name: "trakt", linked: true}
	creds := &fakeCredentials{err: &RefreshFailedError{Cause: errors.New("refresh token rejected")}}
	fx := newFixture(user, RegisteredDestination{Adapter: dest, Credentials: creds})

	fx.orch.SyncEvent(context.Background(), episodeEvent("alice", models.SourcePlex))

	if len(dest.calls) != 0 {
		t.Error("credential failure must skip the scrobble call")
	}
	if len(fx.history.entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(fx.history.entries))
	}
	entry := fx.history.entries[0]
	if entry.Success {
		t.Error("expected failed entry")
	}
	if len(entry.Destinations) != 0 {
		t.Errorf("destinations = %v, want empty", entry.Destinations)
	}
	if !strings.Contains(entry.ErrorMessage, "trakt: token refresh failed") {
		t.Errorf("error message = %q, want trakt refresh failure", entry.ErrorMessage)
	}
}

func TestSyncEventPartialFailure(t *testing.T) {
	user := &models.User{ID: "u1", PlexUsername: "alice", Enabled: true}
	good := &fakeDestination{name: "trakt", linked: true}
	bad := &fakeDestination{name: "tvtime", linked: true, scrobbleErr: &RemoteError{StatusCode: 502, Message: "bad gateway"}}
	fx := newFixture(user,
		RegisteredDestination{Adapter: good, Credentials: &fakeCredentials{token: "t1"}},
		RegisteredDestination{Adapter: bad, Credentials: &fakeCredentials{token: "t2"}},
	)

	fx.orch.SyncEvent(context.Background(), episodeEvent("alice", models.SourcePlex))

	if len(fx.history.entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(fx.history.entries))
	}
	entry := fx.history.entries[0]
	if !entry.Success {
		t.Error("one success must make the entry successful")
	}
	if len(entry.Destinations) != 1 || entry.Destinations[0] != "trakt" {
		t.Errorf("destinations = %v, want [trakt]", entry.Destinations)
	}
	if !strings.Contains(entry.ErrorMessage, "tvtime: ") || !strings.Contains(entry.ErrorMessage, "bad gateway") {
		t.Errorf("error message = %q, want tvtime failure", entry.ErrorMessage)
	}
}

func TestSyncEventFailureIsolation(t *testing.T) {
	user := &models.User{ID: "u1", PlexUsername: "alice", Enabled: true}
	first := &fakeDestination{name: "trakt", linked: true, scrobbleErr: &RemoteError{StatusCode: 500}}
	second := &fakeDestination{name: "tvtime", linked: true}
	fx := newFixture(user,
		RegisteredDestination{Adapter: first, Credentials: &fakeCredentials{token: "t1"}},
		RegisteredDestination{Adapter: second, Credentials: &fakeCredentials{token: "t2"}},
	)

	fx.orch.SyncEvent(context.Background(), episodeEvent("alice", models.SourcePlex))

	if len(second.calls) != 1 {
		t.Error("first destination's failure must not abort dispatch to the second")
	}
}

func TestSyncEventRewatchGating(t *testing.T) {
	tests := []struct {
		name        string
		prior       bool
		episodeFlag bool
		wantRewatch bool
	}{
		{"prior success with flag", true, true, true},
		{"prior success without flag", true, false, false},
		{"first watch with flag", false, true, false},
		{"first watch without flag", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &models.User{ID: "u1", PlexUsername: "alice", Enabled: true, RewatchEpisodes: tt.episodeFlag}
			dest := &fakeDestination{name: "trakt", linked: true}
			fx := newFixture(user, RegisteredDestination{Adapter: dest, Credentials: &fakeCredentials{token: "t"}})
			fx.history.prior = tt.prior

			fx.orch.SyncEvent(context.Background(), episodeEvent("alice", models.SourcePlex))

			if len(fx.history.entries) != 1 {
				t.Fatalf("got %d entries, want 1", len(fx.history.entries))
			}
			if got := fx.history.entries[0].WasRewatched; got != tt.wantRewatch {
				t.Errorf("WasRewatched = %v, want %v", got, tt.wantRewatch)
			}
			if len(dest.calls) != 1 {
				t.Fatalf("got %d dispatches, want 1", len(dest.calls))
			}
			if got := dest.calls[0].MarkRewatch; got != tt.wantRewatch {
				t.Errorf("options MarkRewatch = %v, want %v", got, tt.wantRewatch)
			}
		})
	}
}

func TestSyncEventRewatchMoviePolicy(t *testing.T) {
	// Episode flag must not leak into movie scrobbles.
	user := &models.User{ID: "u1", PlexUsername: "alice", Enabled: true, RewatchEpisodes: true}
	dest := &fakeDestination{name: "trakt", linked: true}
	fx := newFixture(user, RegisteredDestination{Adapter: dest, Credentials: &fakeCredentials{token: "t"}})
	fx.history.prior = true

	event := &models.NormalizedEvent{
		Status: models.StatusScrobble,
		Media: models.MediaItem{
			Type:  models.MediaTypeMovie,
			Title: "Heat",
			IDs:   models.CrossRefIDs{IMDB: "tt0113277"},
		},
		UserIdentity: "alice",
		Source:       models.SourcePlex,
		Timestamp:    time.Now(),
	}
	fx.orch.SyncEvent(context.Background(), event)

	if fx.history.entries[0].WasRewatched {
		t.Error("movie rewatch must be gated by the movie flag, not the episode flag")
	}
}

func TestSyncEventPrecheckSharedAcrossDestinations(t *testing.T) {
	user := &models.User{ID: "u1", PlexUsername: "alice", Enabled: true, RewatchEpisodes: true}
	first := &fakeDestination{name: "trakt", linked: true}
	second := &fakeDestination{name: "tvtime", linked: true}
	fx := newFixture(user,
		RegisteredDestination{Adapter: first, Credentials: &fakeCredentials{token: "t1"}},
		RegisteredDestination{Adapter: second, Credentials: &fakeCredentials{token: "t2"}},
	)
	fx.history.prior = true

	fx.orch.SyncEvent(context.Background(), episodeEvent("alice", models.SourcePlex))

	if first.calls[0].MarkRewatch != second.calls[0].MarkRewatch {
		t.Error("all destinations in one dispatch round must see the same rewatch flag")
	}
}

func TestSyncEventPosterEnrichment(t *testing.T) {
	user := &models.User{ID: "u1", PlexUsername: "alice", Enabled: true}
	dest := &fakeDestination{name: "trakt", linked: true}

	tests := []struct {
		name    string
		posters MediaServerClient
		itemID  string
		want    string
	}{
		{"season poster found", &fakePosterClient{url: "https://plex/season.jpg"}, "12345", "https://plex/season.jpg"},
		{"lookup error falls back", &fakePosterClient{err: errors.New("timeout")}, "12345", "https://plex/episode.jpg"},
		{"empty result falls back", &fakePosterClient{}, "12345", "https://plex/episode.jpg"},
		{"no item id falls back", &fakePosterClient{url: "https://plex/season.jpg"}, "", "https://plex/episode.jpg"},
		{"no client falls back", nil, "12345", "https://plex/episode.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(user, RegisteredDestination{Adapter: dest, Credentials: &fakeCredentials{token: "t"}})
			fx.orch.posters = tt.posters

			event := episodeEvent("alice", models.SourcePlex)
			event.Media.PosterURL = "https://plex/episode.jpg"
			if tt.itemID != "" {
				event.Metadata = map[string]string{models.MetadataItemID: tt.itemID}
			}
			fx.orch.SyncEvent(context.Background(), event)

			if got := fx.history.entries[len(fx.history.entries)-1].PosterURL; got != tt.want {
				t.Errorf("poster url = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSyncEventLedgerWriteFailureIsSilent(t *testing.T) {
	user := &models.User{ID: "u1", PlexUsername: "alice", Enabled: true}
	dest := &fakeDestination{name: "trakt", linked: true}
	fx := newFixture(user, RegisteredDestination{Adapter: dest, Credentials: &fakeCredentials{token: "t"}})
	fx.history.insertErr = errors.New("disk full")

	// Must not panic or propagate.
	fx.orch.SyncEvent(context.Background(), episodeEvent("alice", models.SourcePlex))

	if len(dest.calls) != 1 {
		t.Error("ledger failure must not prevent dispatch")
	}
}
