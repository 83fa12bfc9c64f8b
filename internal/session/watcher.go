// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

package session

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tomtom215/watchmark/internal/logging"
)

// Identity is one notification from the auth/session source. UserID is empty
// on sign-out. Token, when set, refreshes the upstream client's credentials.
type Identity struct {
	UserID string
	Token  string
}

// TokenSetter updates upstream credentials on identity change. The upstream
// client implements it.
type TokenSetter interface {
	SetToken(token string)
}

// Watcher bridges the external auth source to the session syncer. It is a
// suture.Service: Serve consumes identity notifications until the context is
// canceled, and a panic in handling restarts the watcher without touching
// the rest of the tree.
type Watcher struct {
	sync   *Sync
	tokens TokenSetter
	events <-chan Identity
	log    zerolog.Logger
}

// NewWatcher creates a watcher for the given notification channel. tokens may
// be nil when the upstream client has no credentials to refresh.
func NewWatcher(s *Sync, tokens TokenSetter, events <-chan Identity) *Watcher {
	return &Watcher{
		sync:   s,
		tokens: tokens,
		events: events,
		log:    logging.With().Str("component", "identity-watcher").Logger(),
	}
}

// Serve consumes identity notifications until ctx is canceled.
func (w *Watcher) Serve(ctx context.Context) error {
	w.log.Info().Msg("identity watcher started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("identity watcher stopped")
			return ctx.Err()
		case id, ok := <-w.events:
			if !ok {
				w.log.Info().Msg("identity source closed")
				return nil
			}
			w.handle(ctx, id)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, id Identity) {
	if w.tokens != nil {
		w.tokens.SetToken(id.Token)
	}

	if err := w.sync.HandleIdentity(ctx, id.UserID); err != nil {
		// A failed wipe keeps the previous identity current. The next
		// notification retries the transition.
		w.log.Error().Err(err).Msg("identity transition failed")
	}
}

func (w *Watcher) String() string {
	return "session-identity-watcher"
}
