// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

// Package mediaserver provides the Plex client used for best-effort season
// poster enrichment. Lookups are rate limited so bursts of scrobbles do not
// hammer the media server.
package mediaserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/watchhook/watchhook/internal/config"
)

// maxResponseSize bounds metadata responses.
const maxResponseSize = 1 << 20

// PlexClient fetches item metadata from a Plex server.
type PlexClient struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewPlexClient creates a client against cfg.URL using cfg.Token.
func NewPlexClient(cfg *config.PlexConfig) *PlexClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	return &PlexClient{
		baseURL: cfg.URL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// plexMetadataResponse is the subset of Plex's metadata payload we read.
type plexMetadataResponse struct {
	MediaContainer struct {
		Metadata []struct {
			ParentThumb      string `json:"parentThumb"`
			GrandparentThumb string `json:"grandparentThumb"`
		} `json:"Metadata"`
	} `json:"MediaContainer"`
}

// GetSeasonPosterURL resolves the season-level poster for an episode item.
// The episode's own metadata carries the season thumb path; the returned
// URL embeds the server token so it is directly fetchable. Returns "" with
// a nil error when the item has no season poster.
func (c *PlexClient) GetSeasonPosterURL(ctx context.Context, itemID string, _ int) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := fmt.Sprintf("%s/library/metadata/%s", c.baseURL, url.PathEscape(itemID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("plex request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("plex metadata returned status %d", resp.StatusCode)
	}

	var payload plexMetadataResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode metadata: %w", err)
	}
	if len(payload.MediaContainer.Metadata) == 0 {
		return "", nil
	}

	item := payload.MediaContainer.Metadata[0]
	thumb := item.ParentThumb
	if thumb == "" {
		thumb = item.GrandparentThumb
	}
	if thumb == "" {
		return "", nil
	}

	return fmt.Sprintf("%s%s?X-Plex-Token=%s", c.baseURL, thumb, url.QueryEscape(c.token)), nil
}
