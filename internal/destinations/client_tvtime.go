// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package destinations

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/watchhook/watchhook/internal/cache"
	"github.com/watchhook/watchhook/internal/config"
)

// TVTimeClient is the thin HTTP implementation of TVTimeAPI. Auth calls
// require a short-lived handshake token the API hands out per client; it is
// cached with a TTL so every login does not pay the extra round trip.
type TVTimeClient struct {
	baseURL      string
	http         *http.Client
	breaker      *breaker
	handshakes   *cache.Cache
	handshakeKey string
	handshakeTTL time.Duration
}

// NewTVTimeClient creates a TVTime API client against cfg.URL. The
// handshake cache is injected so tests can drive expiry with a fake clock;
// the key is derived from the endpoint so clients against different base
// URLs never share a token.
func NewTVTimeClient(cfg *config.TVTimeConfig, handshakes *cache.Cache) *TVTimeClient {
	return &TVTimeClient{
		baseURL:      cfg.URL,
		http:         &http.Client{Timeout: 30 * time.Second},
		breaker:      newBreaker("tvtime-api"),
		handshakes:   handshakes,
		handshakeKey: cache.GenerateKey("tvtime:handshake", cfg.URL),
		handshakeTTL: cfg.HandshakeTTL,
	}
}

type tvtimeHandshakeResponse struct {
	Token string `json:"token"`
}

// handshakeToken returns the cached handshake token, fetching a fresh one
// on miss or expiry. Fetch errors are not cached.
func (c *TVTimeClient) handshakeToken(ctx context.Context) (string, error) {
	value, err := c.handshakes.GetOrFetch(c.handshakeKey, c.handshakeTTL, func() (interface{}, error) {
		var resp tvtimeHandshakeResponse
		if err := c.doJSON(ctx, http.MethodPost, "/handshake", "", nil, &resp); err != nil {
			return nil, fmt.Errorf("tvtime handshake: %w", err)
		}
		if resp.Token == "" {
			return nil, fmt.Errorf("tvtime handshake returned empty token")
		}
		return resp.Token, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// RefreshToken exchanges a refresh token for a new pair.
func (c *TVTimeClient) RefreshToken(ctx context.Context, refreshToken string) (*TVTimeTokenPair, error) {
	result, err := c.breaker.execute(func() (interface{}, error) {
		handshake, err := c.handshakeToken(ctx)
		if err != nil {
			return nil, err
		}

		body := map[string]string{"refresh_token": refreshToken}
		var pair TVTimeTokenPair
		if err := c.doJSON(ctx, http.MethodPost, "/oauth/refresh", handshake, body, &pair); err != nil {
			return nil, err
		}
		return &pair, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*TVTimeTokenPair), nil
}

// Login performs a full re-login with the user's primary credentials.
func (c *TVTimeClient) Login(ctx context.Context, email, password string) (*TVTimeTokenPair, error) {
	result, err := c.breaker.execute(func() (interface{}, error) {
		handshake, err := c.handshakeToken(ctx)
		if err != nil {
			return nil, err
		}

		body := map[string]string{"username": email, "password": password}
		var pair TVTimeTokenPair
		if err := c.doJSON(ctx, http.MethodPost, "/signin", handshake, body, &pair); err != nil {
			return nil, err
		}
		return &pair, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*TVTimeTokenPair), nil
}

// MarkEpisodeWatched marks one episode watched by its TVDB episode id.
func (c *TVTimeClient) MarkEpisodeWatched(ctx context.Context, accessToken, tvdbEpisodeID string) error {
	_, err := c.breaker.execute(func() (interface{}, error) {
		path := "/watched_episodes/episode/" + url.PathEscape(tvdbEpisodeID)
		return nil, c.doJSON(ctx, http.MethodPut, path, accessToken, nil, nil)
	})
	return err
}

// doJSON performs one JSON request with bearer auth. Non-2xx responses
// become *HTTPError with the (bounded) body retained for message
// extraction.
func (c *TVTimeClient) doJSON(ctx context.Context, method, path, bearer string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tvtime request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &HTTPError{
			StatusCode:  resp.StatusCode,
			Body:        raw,
			ContentType: resp.Header.Get("Content-Type"),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
