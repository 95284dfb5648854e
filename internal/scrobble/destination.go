// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

// Package scrobble contains the sync orchestration core: user resolution,
// destination dispatch with per-destination credential refresh, rewatch
// policy, and the bounded sync history ledger.
package scrobble

import (
	"context"

	"github.com/watchhook/watchhook/internal/models"
)

// ScrobbleOptions carries per-dispatch options. Destinations that have no
// rewatch concept ignore it.
type ScrobbleOptions struct {
	// MarkRewatch is set when the user has a prior successful sync for
	// this media and the matching rewatch-policy flag is enabled.
	MarkRewatch bool
}

// Credential is a resolved, currently valid destination credential.
type Credential struct {
	AccessToken string

	// ClientID carries the user-supplied app identifier where the
	// destination requires one alongside the token (Trakt). Empty for
	// destinations that authenticate with the token alone.
	ClientID string
}

// Destination is the capability contract one tracking service implements.
//
// Scrobble returns nil on success, or one of the typed failures in
// errors.go: ErrUnsupportedMedia, *MissingIdentifiersError (checked before
// any network call), or *RemoteError.
type Destination interface {
	// Name is the stable destination identifier used in ledger entries,
	// error messages and metrics labels.
	Name() string

	// IsLinkedFor reports whether the user has this destination
	// configured. It inspects stored credentials only; it never performs
	// I/O.
	IsLinkedFor(user *models.User) bool

	Scrobble(ctx context.Context, event *models.NormalizedEvent, cred Credential, opts ScrobbleOptions) error
}

// CredentialResolver yields a currently valid access credential for a user,
// transparently refreshing or re-authenticating expired tokens.
//
// Failures are ErrNotLinked, *RefreshFailedError or *ReauthFailedError.
// Refreshed credentials are persisted atomically before the new credential
// is returned.
type CredentialResolver interface {
	GetValidAccessToken(ctx context.Context, user *models.User) (Credential, error)
}

// RegisteredDestination pairs a destination adapter with its credential
// resolver.
type RegisteredDestination struct {
	Adapter     Destination
	Credentials CredentialResolver
}

// Registry is the fixed, ordered set of destinations known at startup.
// Dispatch order follows registration order.
type Registry struct {
	entries []RegisteredDestination
}

// NewRegistry builds a registry from destinations in dispatch order.
func NewRegistry(entries ...RegisteredDestination) *Registry {
	return &Registry{entries: entries}
}

// LinkedFor returns the destinations the user has configured, in
// registration order.
func (r *Registry) LinkedFor(user *models.User) []RegisteredDestination {
	var linked []RegisteredDestination
	for _, entry := range r.entries {
		if entry.Adapter.IsLinkedFor(user) {
			linked = append(linked, entry)
		}
	}
	return linked
}

// All returns every registered destination in order.
func (r *Registry) All() []RegisteredDestination {
	return r.entries
}
