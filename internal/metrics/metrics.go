// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

// Package metrics provides Prometheus instrumentation for Watchhook:
// scrobble dispatch outcomes, token refreshes, ledger retention, circuit
// breaker states and the ingest HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync orchestration metrics

	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchhook_events_received_total",
			Help: "Total number of normalized events received, by source and status",
		},
		[]string{"source", "status"},
	)

	SyncOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchhook_sync_outcomes_total",
			Help: "Total number of completed sync orchestrations, by outcome",
		},
		[]string{"outcome"}, // "success", "partial", "failed", "skipped"
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "watchhook_sync_duration_seconds",
			Help:    "Duration of one event's sync orchestration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ScrobbleDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchhook_scrobble_dispatches_total",
			Help: "Total number of per-destination scrobble dispatches, by destination and result",
		},
		[]string{"destination", "result"}, // result: "success", "failure"
	)

	// Credential lifecycle metrics

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchhook_token_refreshes_total",
			Help: "Total number of credential refresh attempts, by destination and result",
		},
		[]string{"destination", "result"}, // result: "success", "failure", "relogin"
	)

	RefreshSweepOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchhook_refresh_sweep_outcomes_total",
			Help: "Per-user outcomes of the background credential refresh sweep",
		},
		[]string{"destination", "outcome"}, // outcome: "success", "skipped", "failed"
	)

	// History ledger metrics

	HistoryEntriesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchhook_history_entries_recorded_total",
			Help: "Total number of sync history entries recorded",
		},
	)

	HistoryEntriesTrimmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchhook_history_entries_trimmed_total",
			Help: "Total number of sync history entries deleted by retention trimming",
		},
	)

	HistoryWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchhook_history_write_failures_total",
			Help: "Total number of failed ledger writes (data loss risk)",
		},
	)

	// Circuit breaker metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchhook_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchhook_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchhook_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breakers, by result",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	// Ingest HTTP metrics

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchhook_http_requests_total",
			Help: "Total number of HTTP requests to the ingest API",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchhook_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

// RecordSyncOutcome records one finished orchestration with its duration.
func RecordSyncOutcome(outcome string, duration time.Duration) {
	SyncOutcomes.WithLabelValues(outcome).Inc()
	SyncDuration.Observe(duration.Seconds())
}

// RecordDispatch records one per-destination dispatch result.
func RecordDispatch(destination string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	ScrobbleDispatches.WithLabelValues(destination, result).Inc()
}

// RecordTokenRefresh records one credential refresh attempt.
func RecordTokenRefresh(destination, result string) {
	TokenRefreshes.WithLabelValues(destination, result).Inc()
}
