// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

// Package store provides the durable local watch-state cache.
//
// Two logical tables live in one embedded BadgerDB database, distinguished by
// key prefix:
//
//   - watched:<videoID>  - set of videos ever played past the checkpoint
//     policy's minimum threshold (presence is the signal)
//   - lastview:<postID>  - one row per content item with the last saved
//     playback position
//
// The store is pure storage: no retry, no policy. Every failure surfaces to
// the caller, which decides whether to log-and-drop (tracker) or abort
// (session wipe).
package store

import (
	"context"
	"errors"
	"time"
)

// Schema versioning. There is no migration path yet; version 1 is the only
// schema ever written and migrate() is a stub that future versions fill in.
const SchemaVersion = 1

var (
	// ErrNotInitialized is returned when an operation runs before Init.
	ErrNotInitialized = errors.New("store: not initialized")

	// ErrClosed is returned when an operation runs after Close.
	ErrClosed = errors.New("store: closed")

	// ErrSchemaTooNew is returned when the on-disk schema version is newer
	// than this binary understands.
	ErrSchemaTooNew = errors.New("store: on-disk schema version is newer than this build")
)

// WatchedVideo marks a video as watched past the minimum threshold.
// Presence in the watched table is itself the signal; FirstSeen exists only
// for diagnostics.
type WatchedVideo struct {
	VideoID   string    `json:"video_id"`
	FirstSeen time.Time `json:"first_seen"`
}

// LastView is the last-known playback checkpoint for one content item.
// Rows are replaced whole; fields from different writes are never mixed.
type LastView struct {
	PostID    string    `json:"post_id"`
	Sequence  int       `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the local watch-state cache contract shared by the BadgerDB and
// in-memory implementations.
type Store interface {
	// Init opens the database and prepares both tables. It is idempotent and
	// safe to call concurrently; all callers observe the result of the single
	// underlying initialization.
	Init(ctx context.Context) error

	// GetLastView returns the checkpoint row for postID, or nil when absent.
	GetLastView(ctx context.Context, postID string) (*LastView, error)

	// SaveWatchedVideo upserts videoID into the watched set. Duplicate calls
	// are no-ops in effect.
	SaveWatchedVideo(ctx context.Context, videoID string) error

	// SaveLastView replaces the entire checkpoint row for postID.
	SaveLastView(ctx context.Context, postID string, sequence int, timestamp int64) error

	// ClearAll empties both tables atomically with respect to each other.
	ClearAll(ctx context.Context) error

	// MergeFromServer inserts every server-reported watched video that is not
	// already present locally. Existing local rows are never deleted or
	// overwritten. Returns the number of newly inserted entries.
	MergeFromServer(ctx context.Context, watched []string) (int, error)

	// WatchedVideos returns all video IDs in the watched set.
	WatchedVideos(ctx context.Context) ([]string, error)

	// DeviceID returns this installation's stable device identifier,
	// generating and persisting one on first call. The ID survives
	// identity-change wipes: it names the device, not the user.
	DeviceID(ctx context.Context) (string, error)

	// Close releases the underlying database.
	Close() error
}
