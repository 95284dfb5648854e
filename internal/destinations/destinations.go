// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

// Package destinations implements the tracking-service adapters (Trakt,
// TVTime): credential resolvers with transparent refresh, identifier
// policies, remote error extraction, and circuit-breaker-protected API
// clients.
package destinations

import (
	"context"
	"fmt"

	"github.com/watchhook/watchhook/internal/models"
)

// CredentialStore persists refreshed destination credentials. The update is
// a single atomic write of access token, refresh token and expiry together.
type CredentialStore interface {
	UpdateUserCredentials(ctx context.Context, userID string, update models.CredentialUpdate) error
}

// Encryptor is the at-rest encryption surface for stored tokens and
// passwords.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// HTTPError is a non-success response from a destination API, carried with
// enough of the response to extract a human-readable message. The thin API
// clients return it; the adapters translate it into the scrobble error
// taxonomy.
type HTTPError struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}
