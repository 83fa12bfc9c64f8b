// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore implements Store with plain maps. It backs tests and the
// "no data directory" mode; semantics mirror BadgerStore exactly.
type MemStore struct {
	mu sync.RWMutex

	watched   map[string]WatchedVideo
	lastViews map[string]LastView
	deviceID  string
	closed    bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		watched:   make(map[string]WatchedVideo),
		lastViews: make(map[string]LastView),
	}
}

// Init is a no-op for the in-memory store; it exists to satisfy Store.
func (s *MemStore) Init(_ context.Context) error {
	return nil
}

// GetLastView returns the checkpoint row for postID, or nil when absent.
func (s *MemStore) GetLastView(_ context.Context, postID string) (*LastView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	view, ok := s.lastViews[postID]
	if !ok {
		return nil, nil
	}
	return &view, nil
}

// SaveWatchedVideo upserts videoID into the watched set.
func (s *MemStore) SaveWatchedVideo(_ context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if _, ok := s.watched[videoID]; !ok {
		s.watched[videoID] = WatchedVideo{VideoID: videoID, FirstSeen: time.Now().UTC()}
	}
	return nil
}

// SaveLastView replaces the entire checkpoint row for postID.
func (s *MemStore) SaveLastView(_ context.Context, postID string, sequence int, timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.lastViews[postID] = LastView{
		PostID:    postID,
		Sequence:  sequence,
		Timestamp: timestamp,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// ClearAll empties both tables.
func (s *MemStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.watched = make(map[string]WatchedVideo)
	s.lastViews = make(map[string]LastView)
	return nil
}

// MergeFromServer inserts server-reported watched videos absent locally.
func (s *MemStore) MergeFromServer(_ context.Context, watched []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	inserted := 0
	now := time.Now().UTC()
	for _, videoID := range watched {
		if videoID == "" {
			continue
		}
		if _, ok := s.watched[videoID]; ok {
			continue
		}
		s.watched[videoID] = WatchedVideo{VideoID: videoID, FirstSeen: now}
		inserted++
	}
	return inserted, nil
}

// WatchedVideos returns all video IDs in the watched set.
func (s *MemStore) WatchedVideos(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	ids := make([]string, 0, len(s.watched))
	for id := range s.watched {
		ids = append(ids, id)
	}
	return ids, nil
}

// DeviceID returns the stable device identifier, generating one on first use.
func (s *MemStore) DeviceID(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	if s.deviceID == "" {
		s.deviceID = uuid.NewString()
	}
	return s.deviceID, nil
}

// Close marks the store closed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
