// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/watchhook/watchhook/internal/logging"
	"github.com/watchhook/watchhook/internal/models"
	"github.com/watchhook/watchhook/internal/validation"
)

// maxEventBodySize bounds ingest request bodies. Normalized events are small;
// anything larger is not a webhook.
const maxEventBodySize = 1 << 20

// EventSyncer is the orchestration entry point the ingest API drives.
// Satisfied by *scrobble.Orchestrator.
type EventSyncer interface {
	SyncEvent(ctx context.Context, event *models.NormalizedEvent)
}

// Pinger reports backing-store liveness for the readiness probe.
// Satisfied by *database.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the ingest endpoint handlers.
type Handler struct {
	syncer EventSyncer
	db     Pinger
}

// NewHandler creates the handler set.
func NewHandler(syncer EventSyncer, db Pinger) *Handler {
	return &Handler{syncer: syncer, db: db}
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Event accepts a normalized playback event and runs it through the sync
// orchestrator. The orchestrator owns all outcome handling, so any event that
// parses and validates is accepted; dispatch failures land in the sync
// history, not in the HTTP response.
func (h *Handler) Event(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, apiError{
			Code:    "MALFORMED_BODY",
			Message: "request body could not be read",
		})
		return
	}

	// Unmarshal rejects trailing garbage after the document, which Decode
	// would silently accept.
	var event models.NormalizedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, apiError{
			Code:    "MALFORMED_BODY",
			Message: "request body is not a valid event document",
		})
		return
	}

	if err := validation.ValidateStruct(&event); err != nil {
		var ve *validation.RequestValidationError
		if errors.As(err, &ve) {
			e := ve.ToAPIError()
			writeError(w, http.StatusBadRequest, apiError{
				Code:    e.Code,
				Message: e.Message,
				Details: e.Details,
			})
			return
		}
		writeError(w, http.StatusBadRequest, apiError{
			Code:    "VALIDATION_ERROR",
			Message: err.Error(),
		})
		return
	}

	h.syncer.SyncEvent(r.Context(), &event)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready is the readiness probe; it fails while the database is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			logging.Warn().Err(err).Msg("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": "database unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, e apiError) {
	writeJSON(w, status, errorResponse{Error: e})
}
