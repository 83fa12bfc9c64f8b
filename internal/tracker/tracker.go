// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

// Package tracker orchestrates playback ticks into persisted checkpoints.
//
// The player calls OnTick at its native frequency. Each tick runs through the
// checkpoint policy gate for its content item; an accepted checkpoint fans out
// into two independent tasks (the local store write and the upstream POST),
// neither of which blocks the other, subsequent ticks, or the caller.
//
// Failures on either path are logged and swallowed. Losing one checkpoint is
// acceptable: the next accepted checkpoint (at most one interval later)
// supersedes it. There is no retry queue and no error ever crosses the tick
// boundary back into player code.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/watchmark/internal/logging"
	"github.com/tomtom215/watchmark/internal/metrics"
	"github.com/tomtom215/watchmark/internal/policy"
	"github.com/tomtom215/watchmark/internal/store"
	"github.com/tomtom215/watchmark/internal/upstream"
)

// writeTimeout bounds each spawned persistence task so a hung store or
// network call cannot leak goroutines forever.
const writeTimeout = 30 * time.Second

// session is the active playback state for one content item.
type session struct {
	videoID  string
	sequence int
	gate     *policy.Gate
}

// Tracker receives playback ticks and persists accepted checkpoints.
//
// Thread safety: OnTick may be called concurrently for different posts; calls
// for the same post are expected in playback order (the gate rejects
// regressions regardless).
type Tracker struct {
	store     store.Store
	api       upstream.API
	policyCfg policy.Config
	log       zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session

	// wg tracks in-flight persistence tasks so shutdown and tests can drain.
	wg sync.WaitGroup
}

// New creates a tracker writing to the given store and upstream API.
func New(s store.Store, api upstream.API, policyCfg policy.Config) *Tracker {
	return &Tracker{
		store:     s,
		api:       api,
		policyCfg: policyCfg,
		log:       logging.With().Str("component", "tracker").Logger(),
		sessions:  make(map[string]*session),
	}
}

// OnTick feeds one raw playback position through the checkpoint policy.
// It returns quickly regardless of storage or network health and never
// returns an error: this subsystem degrades, it does not break playback.
func (t *Tracker) OnTick(videoID, postID string, sequence int, raw float64) {
	checkpoint, accepted := t.observe(videoID, postID, sequence, raw)
	if !accepted {
		metrics.CheckpointsRejected.Inc()
		return
	}
	metrics.CheckpointsAccepted.Inc()

	t.log.Debug().
		Str("post_id", postID).
		Str("video_id", videoID).
		Int("sequence", sequence).
		Int64("timestamp", checkpoint).
		Msg("checkpoint accepted")

	// Two independent tasks. Neither waits for the other; a slow network
	// call must never delay local persistence and vice versa.
	t.wg.Add(2)
	go t.persistLocal(videoID, postID, sequence, checkpoint)
	go t.postUpstream(videoID, postID, sequence, checkpoint)
}

// observe runs the gate for this post under the lock. Gates are pure and
// cheap; the lock is held only for the policy decision.
func (t *Tracker) observe(videoID, postID string, sequence int, raw float64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.sessions[postID]
	if !ok {
		sess = &session{
			videoID:  videoID,
			sequence: sequence,
			gate:     policy.NewGate(t.policyCfg),
		}
		t.sessions[postID] = sess
	} else if sess.videoID != videoID || sess.sequence != sequence {
		// A different video or sequence started within the same post: the
		// checkpoint state must not carry over.
		sess.gate.Reset()
		sess.videoID = videoID
		sess.sequence = sequence
	}

	return sess.gate.Observe(raw)
}

func (t *Tracker) persistLocal(videoID, postID string, sequence int, checkpoint int64) {
	defer t.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := t.store.SaveWatchedVideo(ctx, videoID); err != nil {
		t.log.Warn().Err(err).Str("video_id", videoID).Msg("watched-video write failed")
	}
	if err := t.store.SaveLastView(ctx, postID, sequence, checkpoint); err != nil {
		t.log.Warn().Err(err).Str("post_id", postID).Msg("last-view write failed")
	}
}

func (t *Tracker) postUpstream(videoID, postID string, sequence int, checkpoint int64) {
	defer t.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := t.api.PostView(ctx, upstream.ViewCheckpoint{
		VideoID:   videoID,
		PostID:    postID,
		Sequence:  sequence,
		Timestamp: checkpoint,
	})
	if err != nil {
		// Rate-limited drops are expected under burst; anything else is a
		// degraded-but-tolerable condition worth a warning.
		event := t.log.Warn()
		if errors.Is(err, upstream.ErrRateLimited) {
			event = t.log.Debug()
		}
		event.Err(err).Str("post_id", postID).Int64("timestamp", checkpoint).
			Msg("checkpoint post failed")
	}
}

// Progress returns the last accepted checkpoint for a post this session, or
// (0, false) when the post's gate is unarmed. The zero return on a fresh or
// reset gate is what lets the player UI show zero rather than a stale offset.
func (t *Tracker) Progress(postID string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.sessions[postID]
	if !ok || !sess.gate.Armed() {
		return 0, false
	}
	return sess.gate.LastAccepted(), true
}

// ResetPost clears the checkpoint state for one post. Call it when the player
// remounts a video for that post.
func (t *Tracker) ResetPost(postID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, postID)
}

// ResetAll clears all per-session checkpoint state. Called on identity change
// so one account's armed gates never influence another's checkpoints.
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions = make(map[string]*session)
}

// Wait blocks until all in-flight persistence tasks finish. Used during
// shutdown and by tests; the tick path never calls it.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
