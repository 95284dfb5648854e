// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/watchhook/watchhook/internal/models"
)

type fakeSyncer struct {
	events []*models.NormalizedEvent
}

func (f *fakeSyncer) SyncEvent(ctx context.Context, event *models.NormalizedEvent) {
	f.events = append(f.events, event)
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestRouter(syncer *fakeSyncer, db Pinger, cfg RouterConfig) http.Handler {
	return NewRouter(NewHandler(syncer, db), cfg).Setup()
}

func validEventBody(t *testing.T) []byte {
	t.Helper()
	event := models.NormalizedEvent{
		Status: models.StatusScrobble,
		Media: models.MediaItem{
			Type:  models.MediaTypeMovie,
			Title: "Heat",
			Year:  1995,
			IDs:   models.CrossRefIDs{IMDB: "tt0113277"},
		},
		UserIdentity: "alice",
		Source:       models.SourcePlex,
		Timestamp:    time.Date(2026, 8, 30, 21, 0, 0, 0, time.UTC),
	}
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func TestEventAccepted(t *testing.T) {
	syncer := &fakeSyncer{}
	router := newTestRouter(syncer, &fakePinger{}, RouterConfig{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(validEventBody(t)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body: %s", rec.Code, rec.Body.String())
	}
	if len(syncer.events) != 1 {
		t.Fatalf("syncer invocations = %d, want 1", len(syncer.events))
	}
	if got := syncer.events[0].UserIdentity; got != "alice" {
		t.Errorf("event user identity = %q, want alice", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestEventMalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"status": "scrobble"`},
		{"trailing garbage", `{"status": "scrobble"} extra`},
		{"empty body", ``},
		{"array instead of object", `[1, 2, 3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &fakeSyncer{}
			router := newTestRouter(syncer, &fakePinger{}, RouterConfig{})

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(tt.body))
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if len(syncer.events) != 0 {
				t.Errorf("syncer invoked on malformed body")
			}

			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("error response is not JSON: %v", err)
			}
			if resp.Error.Code != "MALFORMED_BODY" {
				t.Errorf("error code = %q, want MALFORMED_BODY", resp.Error.Code)
			}
		})
	}
}

func TestEventValidationFailure(t *testing.T) {
	syncer := &fakeSyncer{}
	router := newTestRouter(syncer, &fakePinger{}, RouterConfig{})

	// Parses fine but has no user identity and a bad source.
	body := `{"status":"scrobble","source":"emby","media":{"type":"movie","title":"Heat","ids":{}}}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body: %s", rec.Code, rec.Body.String())
	}
	if len(syncer.events) != 0 {
		t.Error("syncer invoked on invalid event")
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error response is not JSON: %v", err)
	}
	if resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error code = %q, want VALIDATION_ERROR", resp.Error.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(&fakeSyncer{}, &fakePinger{}, RouterConfig{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
	}{
		{"database reachable", nil, http.StatusOK},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakeSyncer{}, &fakePinger{err: tt.pingErr}, RouterConfig{})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(&fakeSyncer{}, &fakePinger{}, RouterConfig{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "watchhook_") {
		t.Error("metrics output missing watchhook collectors")
	}
}

func TestEventRateLimit(t *testing.T) {
	router := newTestRouter(&fakeSyncer{}, &fakePinger{}, RouterConfig{
		RateLimitRequests: 2,
		RateLimitWindow:   time.Minute,
	})

	var last int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(validEventBody(t)))
		req.RemoteAddr = "203.0.113.5:4130"
		router.ServeHTTP(rec, req)
		last = rec.Code
	}

	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}
}

func TestEventMethodNotAllowed(t *testing.T) {
	router := newTestRouter(&fakeSyncer{}, &fakePinger{}, RouterConfig{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
