// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/watchmark/internal/store"
)

type fakeTokenSetter struct {
	mu     sync.Mutex
	tokens []string
}

func (f *fakeTokenSetter) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
}

func TestWatcherDrivesIdentityTransitions(t *testing.T) {
	s := store.NewMemStore()
	api := &fakeAPI{}
	sy := New(s, api, nil)
	tokens := &fakeTokenSetter{}

	events := make(chan Identity)
	w := NewWatcher(sy, tokens, events)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	events <- Identity{UserID: "alice", Token: "tok-a"}

	waitFor(t, func() bool { return sy.CurrentUser() == "alice" })

	tokens.mu.Lock()
	gotTokens := len(tokens.tokens)
	tokens.mu.Unlock()
	if gotTokens != 1 {
		t.Errorf("SetToken called %d times, want 1", gotTokens)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}

func TestWatcherStopsWhenSourceCloses(t *testing.T) {
	s := store.NewMemStore()
	sy := New(s, &fakeAPI{}, nil)

	events := make(chan Identity)
	w := NewWatcher(sy, nil, events)

	done := make(chan error, 1)
	go func() { done <- w.Serve(context.Background()) }()

	close(events)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v after source close, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop when the identity source closed")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
