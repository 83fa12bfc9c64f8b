// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/watchmark/internal/logging"
	"github.com/tomtom215/watchmark/internal/store"
)

// ResumeLookup resolves the best resume position for a content item.
// Implemented by session.Sync.
type ResumeLookup interface {
	ResumePosition(ctx context.Context, postID string) (*store.LastView, error)
	CurrentUser() string
}

// Handler serves the read-only local endpoints.
type Handler struct {
	store  store.Store
	resume ResumeLookup
}

// NewHandler creates a Handler backed by the local store and session state.
func NewHandler(s store.Store, resume ResumeLookup) *Handler {
	return &Handler{
		store:  s,
		resume: resume,
	}
}

// HealthLive handles GET /healthz. It reports process liveness only.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{
		"status": "alive",
	})
}

// HealthReady handles GET /readyz. Ready means the local store is open and
// initialized; the upstream API being unreachable does not affect readiness
// because the tracker is designed to run offline.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if _, err := h.store.DeviceID(r.Context()); err != nil {
		logging.Warn().Err(err).Msg("Readiness check failed: store unavailable")
		rw.ServiceUnavailable("local store not ready")
		return
	}

	rw.Success(map[string]string{
		"status": "ready",
	})
}

// resumeResponse is the payload for resume lookups.
type resumeResponse struct {
	PostID    string    `json:"post_id"`
	Sequence  int       `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Resume handles GET /api/v1/resume/{postID}. It returns the locally stored
// checkpoint when one exists, falling back to the server-provided hint from
// the last reconcile. 404 means nothing is known for the post.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	postID := chi.URLParam(r, "postID")
	if postID == "" {
		rw.BadRequest("postID is required")
		return
	}

	view, err := h.resume.ResumePosition(r.Context(), postID)
	if err != nil {
		logging.Error().Err(err).Str("post_id", postID).Msg("Resume lookup failed")
		rw.InternalError("resume lookup failed")
		return
	}
	if view == nil {
		rw.NotFound("no resume position for post")
		return
	}

	rw.Success(resumeResponse{
		PostID:    view.PostID,
		Sequence:  view.Sequence,
		Timestamp: view.Timestamp,
		UpdatedAt: view.UpdatedAt,
	})
}

// watchedResponse is the payload for the watched-video listing.
type watchedResponse struct {
	VideoIDs []string `json:"video_ids"`
	Count    int      `json:"count"`
}

// Watched handles GET /api/v1/watched. It lists all video IDs marked watched
// on this device, local rows and merged server rows alike.
func (h *Handler) Watched(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ids, err := h.store.WatchedVideos(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Watched listing failed")
		rw.InternalError("watched listing failed")
		return
	}

	rw.Success(watchedResponse{
		VideoIDs: ids,
		Count:    len(ids),
	})
}

// statusResponse is the payload for the daemon status endpoint.
type statusResponse struct {
	DeviceID    string `json:"device_id"`
	CurrentUser string `json:"current_user,omitempty"`
}

// Status handles GET /api/v1/status. It reports the persistent device ID and
// the currently signed-in user, if any.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	deviceID, err := h.store.DeviceID(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Status lookup failed")
		rw.InternalError("status lookup failed")
		return
	}

	rw.Success(statusResponse{
		DeviceID:    deviceID,
		CurrentUser: h.resume.CurrentUser(),
	})
}
