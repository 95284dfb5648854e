// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package scrobble

import (
	"context"
	"errors"
	"testing"

	"github.com/watchhook/watchhook/internal/models"
)

func TestResolvePlexByUsername(t *testing.T) {
	store := &fakeUserStore{
		byPlexUsername: map[string]*models.User{
			"alice": {ID: "u1", PlexUsername: "alice", Enabled: true},
		},
	}
	resolver := NewUserResolver(store)

	user, err := resolver.Resolve(context.Background(), models.SourcePlex, "alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("resolved user %q, want u1", user.ID)
	}
}

func TestResolveJellyfinStripsHyphens(t *testing.T) {
	store := &fakeUserStore{
		byJellyfinID: map[string]*models.User{
			"4f1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d": {ID: "u2", Enabled: true},
		},
	}
	resolver := NewUserResolver(store)

	// Callers present the id hyphenated; records store it unhyphenated.
	user, err := resolver.Resolve(context.Background(), models.SourceJellyfin, "4f1b2c3d-4e5f-6a7b-8c9d-0e1f2a3b4c5d")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if user.ID != "u2" {
		t.Errorf("resolved user %q, want u2", user.ID)
	}
}

func TestResolveNotFound(t *testing.T) {
	resolver := NewUserResolver(&fakeUserStore{})

	_, err := resolver.Resolve(context.Background(), models.SourcePlex, "ghost")
	if !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestResolveUnknownSource(t *testing.T) {
	resolver := NewUserResolver(&fakeUserStore{})

	_, err := resolver.Resolve(context.Background(), models.Source("emby"), "alice")
	if err == nil || errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("expected unknown-source error, got %v", err)
	}
}
