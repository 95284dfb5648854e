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
	"time"

	"github.com/goccy/go-json"

	"github.com/watchhook/watchhook/internal/config"
)

// maxErrorBodySize bounds how much of an error response is read for message
// extraction.
const maxErrorBodySize = 64 * 1024

// TraktClient is the thin HTTP implementation of TraktAPI, protected by a
// circuit breaker.
type TraktClient struct {
	baseURL string
	http    *http.Client
	breaker *breaker
}

// NewTraktClient creates a Trakt API client against cfg.URL.
func NewTraktClient(cfg *config.TraktConfig) *TraktClient {
	return &TraktClient{
		baseURL: cfg.URL,
		http:    &http.Client{Timeout: 30 * time.Second},
		breaker: newBreaker("trakt-api"),
	}
}

// RefreshToken exchanges a refresh token for a new token pair.
func (c *TraktClient) RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*TraktTokenResponse, error) {
	body := map[string]string{
		"refresh_token": refreshToken,
		"client_id":     clientID,
		"client_secret": clientSecret,
		"redirect_uri":  "urn:ietf:wg:oauth:2.0:oob",
		"grant_type":    "refresh_token",
	}

	result, err := c.breaker.execute(func() (interface{}, error) {
		var resp TraktTokenResponse
		err := c.doJSON(ctx, http.MethodPost, "/oauth/token", clientID, "", body, &resp)
		if err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*TraktTokenResponse), nil
}

// AddToHistory adds watched items to the user's Trakt history.
func (c *TraktClient) AddToHistory(ctx context.Context, clientID, accessToken string, req *TraktHistoryRequest) error {
	_, err := c.breaker.execute(func() (interface{}, error) {
		return nil, c.doJSON(ctx, http.MethodPost, "/sync/history", clientID, accessToken, req, nil)
	})
	return err
}

// doJSON performs one JSON request. Non-2xx responses become *HTTPError
// with the (bounded) body retained for message extraction.
func (c *TraktClient) doJSON(ctx context.Context, method, path, clientID, accessToken string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", "2")
	req.Header.Set("trakt-api-key", clientID)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("trakt request: %w", err)
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
