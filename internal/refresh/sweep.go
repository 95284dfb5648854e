// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

// Package refresh runs the background credential refresh sweep. The sweep
// keeps destination tokens warm so scrobble dispatch rarely pays the refresh
// round-trip, and surfaces broken credentials before the next watch event
// does.
package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/watchhook/watchhook/internal/logging"
	"github.com/watchhook/watchhook/internal/metrics"
	"github.com/watchhook/watchhook/internal/models"
	"github.com/watchhook/watchhook/internal/scrobble"
)

// DefaultInterval is the sweep cadence when none is configured.
const DefaultInterval = time.Hour

// Outcome classifies the result of one user/destination refresh attempt.
type Outcome struct {
	UserID      string
	Destination string
	Status      Status
	Reason      string
}

// Status is the coarse refresh result.
type Status string

const (
	// StatusSuccess means a valid credential was obtained, refreshing if
	// needed.
	StatusSuccess Status = "success"

	// StatusSkipped means the user has no credentials for the destination
	// or the account is disabled.
	StatusSkipped Status = "skipped"

	// StatusFailed means refresh and any fallback re-authentication failed.
	StatusFailed Status = "failed"
)

// UserLister yields every known user.
type UserLister interface {
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Sweeper walks all users and destinations, forcing credential validation
// for each linked pair. Failures are isolated per user and per destination.
type Sweeper struct {
	users    UserLister
	registry *scrobble.Registry
	interval time.Duration
}

// NewSweeper creates a sweeper over the given users and destinations.
// A non-positive interval falls back to DefaultInterval.
func NewSweeper(users UserLister, registry *scrobble.Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{users: users, registry: registry, interval: interval}
}

// Run executes sweeps on the configured interval until ctx is canceled. The
// first sweep runs immediately so a restart does not delay token recovery by
// a full interval.
func (s *Sweeper) Run(ctx context.Context) error {
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce refreshes credentials for every user and destination and returns
// the per-pair outcomes. A failure for one pair never prevents the rest of
// the sweep from running.
func (s *Sweeper) SweepOnce(ctx context.Context) []Outcome {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Refresh sweep could not list users")
		return nil
	}

	var outcomes []Outcome
	for i := range users {
		user := &users[i]
		for _, dest := range s.registry.All() {
			outcome := s.refreshOne(ctx, user, dest)
			metrics.RefreshSweepOutcomes.WithLabelValues(outcome.Destination, string(outcome.Status)).Inc()
			outcomes = append(outcomes, outcome)
		}
	}

	logging.Debug().
		Int("users", len(users)).
		Int("attempts", len(outcomes)).
		Msg("Refresh sweep completed")
	return outcomes
}

func (s *Sweeper) refreshOne(ctx context.Context, user *models.User, dest scrobble.RegisteredDestination) Outcome {
	outcome := Outcome{UserID: user.ID, Destination: dest.Adapter.Name()}

	if !user.Enabled {
		outcome.Status = StatusSkipped
		outcome.Reason = "account disabled"
		return outcome
	}
	if !dest.Adapter.IsLinkedFor(user) {
		outcome.Status = StatusSkipped
		outcome.Reason = "not linked"
		return outcome
	}

	_, err := dest.Credentials.GetValidAccessToken(ctx, user)
	switch {
	case err == nil:
		outcome.Status = StatusSuccess
	case errors.Is(err, scrobble.ErrNotLinked):
		outcome.Status = StatusSkipped
		outcome.Reason = "not linked"
	default:
		outcome.Status = StatusFailed
		outcome.Reason = err.Error()
		logging.Warn().
			Str("user_id", user.ID).
			Str("destination", outcome.Destination).
			Err(err).
			Msg("Credential refresh failed during sweep")
	}
	return outcome
}
