// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

// Package session reconciles local watch state against the server whenever
// the authenticated user changes.
//
// The core invariant lives here: when the device transitions from one user to
// a different one, the local store is wiped before any reconciliation, so one
// account's watch history can never leak into another's session on a shared
// device. Re-authentication of the same user (token refresh) never wipes.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/watchmark/internal/logging"
	"github.com/tomtom215/watchmark/internal/metrics"
	"github.com/tomtom215/watchmark/internal/store"
	"github.com/tomtom215/watchmark/internal/upstream"
)

// GateResetter clears per-session checkpoint state. The tracker implements
// it; identity changes must not let one account's armed gates decide another
// account's checkpoints.
type GateResetter interface {
	ResetAll()
}

// Sync tracks the current user identity and reconciles the local store with
// the server's authoritative record on each sign-in transition.
type Sync struct {
	store  store.Store
	api    upstream.API
	gates  GateResetter
	log    zerolog.Logger

	mu          sync.Mutex
	currentUser string
	// lastUser is the most recent non-empty identity. The wipe decision
	// compares against it rather than currentUser so a sign-out gap between
	// two different accounts still triggers the wipe.
	lastUser string
	// hints holds the server's last-view snapshot for the current user. It is
	// informational only, never force-merged into the store, because a local
	// row written this session is always fresher than a just-fetched server
	// snapshot.
	hints map[string]upstream.LastView
}

// New creates a session syncer. gates may be nil when no tracker is attached.
func New(s store.Store, api upstream.API, gates GateResetter) *Sync {
	return &Sync{
		store: s,
		api:   api,
		gates: gates,
		log:   logging.With().Str("component", "session").Logger(),
		hints: make(map[string]upstream.LastView),
	}
}

// HandleIdentity processes one identity transition from the auth source.
// userID is empty on sign-out.
//
// Wipe rule: a transition between two different non-empty users wipes the
// local store before reconciliation. If the wipe fails, the transition is
// aborted; the previous identity remains current so a retried notification
// re-attempts the wipe rather than silently skipping it.
//
// Reconciliation failure never blocks sign-in: the identity still switches
// and the store is left as-is for local-only operation.
func (s *Sync) HandleIdentity(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID == "" {
		// Sign-out. Local data stays (it belongs to the signed-out user and
		// is wiped only if a different user signs in), but server hints are
		// session-scoped.
		s.currentUser = ""
		s.hints = make(map[string]upstream.LastView)
		return nil
	}

	if s.lastUser != "" && s.lastUser != userID {
		if s.gates != nil {
			s.gates.ResetAll()
		}
		if err := s.store.ClearAll(ctx); err != nil {
			return fmt.Errorf("identity-change wipe: %w", err)
		}
		s.hints = make(map[string]upstream.LastView)
		s.log.Info().Msg("local watch state wiped on account change")
	}

	s.currentUser = userID
	s.lastUser = userID
	s.reconcileLocked(ctx)
	return nil
}

// Reconcile re-runs reconciliation for the current user. It is idempotent:
// with no intervening writes, running it twice leaves the store unchanged.
func (s *Sync) Reconcile(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentUser == "" {
		return
	}
	s.reconcileLocked(ctx)
}

// reconcileLocked fetches the server snapshot and merges it. Must be called
// with s.mu held and a non-empty current user.
func (s *Sync) reconcileLocked(ctx context.Context) {
	snapshot, err := s.api.FetchSync(ctx)
	if err != nil {
		// Leave the store untouched, keep the session: the tracker simply
		// runs local-only until the next reconciliation opportunity.
		metrics.ReconcileRuns.WithLabelValues("fetch_failed").Inc()
		s.log.Warn().Err(err).Msg("watch-history fetch failed; continuing local-only")
		return
	}

	watched := make([]string, 0, len(snapshot.WatchedVideos))
	for _, v := range snapshot.WatchedVideos {
		watched = append(watched, v.VideoID)
	}

	inserted, err := s.store.MergeFromServer(ctx, watched)
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("merge_failed").Inc()
		s.log.Warn().Err(err).Msg("watched-video merge failed")
		return
	}

	hints := make(map[string]upstream.LastView, len(snapshot.LastViews))
	for _, lv := range snapshot.LastViews {
		hints[lv.PostID] = lv
	}
	s.hints = hints

	metrics.ReconcileRuns.WithLabelValues("merged").Inc()
	metrics.ReconcileMergedVideos.Add(float64(inserted))
	s.log.Info().
		Int("merged_videos", inserted).
		Int("resume_hints", len(hints)).
		Msg("session reconciled")
}

// ResumePosition returns the best known resume point for a post: the local
// store row when present (local data is same-session fresh), otherwise the
// server's last-view hint from the most recent reconciliation.
func (s *Sync) ResumePosition(ctx context.Context, postID string) (*store.LastView, error) {
	view, err := s.store.GetLastView(ctx, postID)
	if err != nil {
		return nil, err
	}
	if view != nil {
		return view, nil
	}

	s.mu.Lock()
	hint, ok := s.hints[postID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	return &store.LastView{
		PostID:    hint.PostID,
		Sequence:  hint.Sequence,
		Timestamp: hint.Timestamp,
	}, nil
}

// CurrentUser returns the active user ID, or empty when signed out.
func (s *Sync) CurrentUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentUser
}
