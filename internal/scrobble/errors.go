// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package scrobble

import (
	"errors"
	"fmt"
)

// Credential resolution failures. NotLinked is terminal for the user until
// they re-link; RefreshFailed and ReauthFailed carry the underlying cause.
var (
	// ErrNotLinked indicates the user has no usable credentials for a
	// destination, including missing user-supplied app credentials.
	ErrNotLinked = errors.New("destination not linked")

	// ErrUnsupportedMedia indicates a destination cannot scrobble the
	// event's media type.
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// RefreshFailedError indicates a token refresh exchange failed and no
// fallback path succeeded.
type RefreshFailedError struct {
	Cause error
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Cause)
}

func (e *RefreshFailedError) Unwrap() error {
	return e.Cause
}

// ReauthFailedError indicates a full re-login with stored primary
// credentials failed.
type ReauthFailedError struct {
	Cause error
}

func (e *ReauthFailedError) Error() string {
	return fmt.Sprintf("re-authentication failed: %v", e.Cause)
}

func (e *ReauthFailedError) Unwrap() error {
	return e.Cause
}

// MissingIdentifiersError indicates an event does not satisfy a
// destination's minimum-identifier policy. Raised before any network call.
type MissingIdentifiersError struct {
	Reason string
}

func (e *MissingIdentifiersError) Error() string {
	return "missing identifiers: " + e.Reason
}

// RemoteError indicates a non-success response from a destination API.
// Message holds the best-effort extracted error text.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("remote error (status %d): %s", e.StatusCode, e.Message)
}
