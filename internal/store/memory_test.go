// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

package store

import (
	"context"
	"testing"
)

// MemStore must mirror BadgerStore semantics; these cover the contract points
// the tracker and session sync rely on.

func TestMemStoreContract(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if view, err := s.GetLastView(ctx, "p1"); err != nil || view != nil {
		t.Fatalf("GetLastView(absent) = (%+v, %v), want (nil, nil)", view, err)
	}

	if err := s.SaveLastView(ctx, "p1", 1, 4); err != nil {
		t.Fatalf("SaveLastView() error = %v", err)
	}
	view, err := s.GetLastView(ctx, "p1")
	if err != nil || view == nil || view.Timestamp != 4 {
		t.Fatalf("GetLastView() = (%+v, %v), want timestamp 4", view, err)
	}

	if err := s.SaveWatchedVideo(ctx, "v1"); err != nil {
		t.Fatalf("SaveWatchedVideo() error = %v", err)
	}
	inserted, err := s.MergeFromServer(ctx, []string{"v1", "v2"})
	if err != nil || inserted != 1 {
		t.Fatalf("MergeFromServer() = (%d, %v), want (1, nil)", inserted, err)
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	ids, err := s.WatchedVideos(ctx)
	if err != nil || len(ids) != 0 {
		t.Fatalf("WatchedVideos() after wipe = (%v, %v), want empty", ids, err)
	}
}

func TestMemStoreDeviceIDSurvivesWipe(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	id, err := s.DeviceID(ctx)
	if err != nil || id == "" {
		t.Fatalf("DeviceID() = (%q, %v)", id, err)
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}

	got, err := s.DeviceID(ctx)
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
	if got != id {
		t.Errorf("DeviceID changed across wipe: %s -> %s", id, got)
	}
}

func TestMemStoreClosed(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.SaveLastView(ctx, "p1", 1, 4); err == nil {
		t.Error("SaveLastView() after Close should fail")
	}
}
