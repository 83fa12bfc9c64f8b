// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the local HTTP surface.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a Router from a handler and middleware factory.
// A nil middleware falls back to defaults.
func NewRouter(handler *Handler, mw *Middleware) *Router {
	if mw == nil {
		mw = NewMiddleware(nil)
	}
	return &Router{
		handler:    handler,
		middleware: mw,
	}
}

// Setup configures all routes on a Chi router.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	// Health endpoints get permissive rate limiting so monitoring tools can
	// poll frequently.
	r.Group(func(r chi.Router) {
		r.Use(router.middleware.RateLimitHealth())
		r.Get("/healthz", router.handler.HealthLive)
		r.Get("/readyz", router.handler.HealthReady)
	})

	// Prometheus metrics for scraping; no JSON envelope.
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Read-only data endpoints.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(SecurityHeaders())

		r.Get("/resume/{postID}", router.handler.Resume)
		r.Get("/watched", router.handler.Watched)
		r.Get("/status", router.handler.Status)
	})

	return r
}
