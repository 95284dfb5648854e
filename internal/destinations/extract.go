// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package destinations

import (
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// maxRawMessageLen bounds the fallback raw-body excerpt in error messages.
const maxRawMessageLen = 200

var (
	htmlTitleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	htmlH1Re    = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	htmlTagRe   = regexp.MustCompile(`<[^>]+>`)
)

// extractRemoteMessage pulls a human-readable error out of a non-success
// response body, best effort: a structured error field first, then an HTML
// title or heading, then the truncated raw body.
func extractRemoteMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	if msg := extractJSONMessage(body); msg != "" {
		return msg
	}
	if msg := extractHTMLMessage(trimmed); msg != "" {
		return msg
	}

	if len(trimmed) > maxRawMessageLen {
		return trimmed[:maxRawMessageLen] + "..."
	}
	return trimmed
}

// extractJSONMessage tries the error field names the tracking APIs use.
func extractJSONMessage(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	for _, key := range []string{"error_description", "error", "message", "status_message"} {
		if value, ok := payload[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// extractHTMLMessage pulls the title or first heading out of an HTML error
// page, stripped of nested tags. Proxies emit bare fragments without an
// <html> wrapper, so the patterns run against any body.
func extractHTMLMessage(body string) string {
	for _, re := range []*regexp.Regexp{htmlTitleRe, htmlH1Re} {
		if match := re.FindStringSubmatch(body); match != nil {
			text := strings.TrimSpace(htmlTagRe.ReplaceAllString(match[1], ""))
			if text != "" {
				return text
			}
		}
	}
	return ""
}
