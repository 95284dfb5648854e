// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package services

import (
	"context"
)

// SweepRunner matches the refresh sweeper's blocking run loop.
// Satisfied by *refresh.Sweeper.
type SweepRunner interface {
	Run(ctx context.Context) error
}

// SweepService wraps the credential refresh sweep as a supervised service.
// The sweeper's Run already blocks until its context is canceled, so the
// wrapper only needs to hand the suture context through.
type SweepService struct {
	runner SweepRunner
	name   string
}

// NewSweepService creates the wrapper.
func NewSweepService(runner SweepRunner) *SweepService {
	return &SweepService{runner: runner, name: "refresh-sweep"}
}

// Serve implements suture.Service.
func (s *SweepService) Serve(ctx context.Context) error {
	return s.runner.Run(ctx)
}

// String implements fmt.Stringer for suture's log messages.
func (s *SweepService) String() string {
	return s.name
}
