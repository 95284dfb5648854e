// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package scrobble

import (
	"context"
	"fmt"
	"strings"

	"github.com/watchhook/watchhook/internal/models"
)

// UserStore is the user lookup surface the resolver needs. Implementations
// return an error wrapping models.ErrUserNotFound when no user matches.
type UserStore interface {
	// GetUserByPlexUsername excludes disabled users at the query level.
	GetUserByPlexUsername(ctx context.Context, username string) (*models.User, error)

	// GetUserByJellyfinUserID expects an unhyphenated id.
	GetUserByJellyfinUserID(ctx context.Context, jellyfinUserID string) (*models.User, error)
}

// UserResolver maps a source-specific identity from an event to a local
// user record.
type UserResolver struct {
	store UserStore
}

// NewUserResolver creates a resolver over the given store.
func NewUserResolver(store UserStore) *UserResolver {
	return &UserResolver{store: store}
}

// Resolve returns the local user bound to the given source identity.
// Jellyfin ids are normalized by stripping hyphens before lookup, since
// callers present them hyphenated while records store them unhyphenated.
// Returns an error wrapping models.ErrUserNotFound when no binding exists.
func (r *UserResolver) Resolve(ctx context.Context, source models.Source, identity string) (*models.User, error) {
	switch source {
	case models.SourcePlex:
		return r.store.GetUserByPlexUsername(ctx, identity)
	case models.SourceJellyfin:
		normalized := strings.ReplaceAll(identity, "-", "")
		return r.store.GetUserByJellyfinUserID(ctx, normalized)
	default:
		return nil, fmt.Errorf("unknown event source %q", source)
	}
}
