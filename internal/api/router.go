// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

// Package api provides the ingest HTTP surface: the event endpoint media
// server webhooks post to, plus health and metrics. Routing uses Chi with
// the go-chi middleware ecosystem.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/watchhook/watchhook/internal/config"
)

// RouterConfig holds the middleware knobs for the ingest router.
type RouterConfig struct {
	// CORSAllowedOrigins is empty by default; webhook senders are
	// same-network services, so cross-origin access requires explicit
	// configuration.
	CORSAllowedOrigins []string

	// RateLimitRequests is the per-IP request budget per RateLimitWindow.
	// 0 disables rate limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// RouterConfigFromServer derives middleware settings from the server
// configuration.
func RouterConfigFromServer(cfg *config.ServerConfig) RouterConfig {
	return RouterConfig{
		CORSAllowedOrigins: cfg.CORSOrigins,
		RateLimitRequests:  cfg.RateLimit,
		RateLimitWindow:    time.Minute,
	}
}

// Router wires handlers into the Chi route tree.
type Router struct {
	handler *Handler
	config  RouterConfig
}

// NewRouter creates a router around the given handler.
func NewRouter(handler *Handler, cfg RouterConfig) *Router {
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	return &Router{handler: handler, config: cfg}
}

// Setup builds the complete route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.config.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}))

	r.Get("/healthz", router.handler.Health)
	r.Get("/readyz", router.handler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if router.config.RateLimitRequests > 0 {
			r.Use(httprate.Limit(
				router.config.RateLimitRequests,
				router.config.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
		}
		r.Use(requestMetrics)

		r.Post("/events", router.handler.Event)
	})

	return r
}
