// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestFetchSync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos/sync" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("X-Device-ID"); got != "dev-1" {
			t.Errorf("X-Device-ID = %q, want dev-1", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}

		_ = json.NewEncoder(w).Encode(SyncSnapshot{
			WatchedVideos: []WatchedVideo{{VideoID: "v1"}, {VideoID: "v2"}},
			LastViews:     []LastView{{PostID: "p1", Sequence: 1, Timestamp: 40}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "tok"}, "dev-1")

	snapshot, err := c.FetchSync(context.Background())
	if err != nil {
		t.Fatalf("FetchSync() error = %v", err)
	}
	if len(snapshot.WatchedVideos) != 2 {
		t.Errorf("WatchedVideos = %v, want 2 entries", snapshot.WatchedVideos)
	}
	if len(snapshot.LastViews) != 1 || snapshot.LastViews[0].Timestamp != 40 {
		t.Errorf("LastViews = %v, want [{p1 1 40}]", snapshot.LastViews)
	}
}

func TestFetchSyncNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, "dev-1")

	_, err := c.FetchSync(context.Background())
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("FetchSync() error = %v, want ErrUnexpectedStatus", err)
	}
}

func TestPostView(t *testing.T) {
	var got ViewCheckpoint
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos/view" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, "dev-1")

	checkpoint := ViewCheckpoint{VideoID: "v1", PostID: "p1", Sequence: 1, Timestamp: 40}
	if err := c.PostView(context.Background(), checkpoint); err != nil {
		t.Fatalf("PostView() error = %v", err)
	}
	if got != checkpoint {
		t.Errorf("server received %+v, want %+v", got, checkpoint)
	}
}

func TestPostViewOffline(t *testing.T) {
	// Closed server simulates being offline.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second}, "dev-1")

	err := c.PostView(context.Background(), ViewCheckpoint{VideoID: "v1", PostID: "p1", Timestamp: 10})
	if err == nil {
		t.Fatal("PostView() against closed server should fail")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:                 srv.URL,
		BreakerFailureThreshold: 2,
		BreakerOpenTimeout:      time.Minute,
	}, "dev-1")

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := c.FetchSync(ctx); err == nil {
			t.Fatalf("FetchSync() call %d should fail", i+1)
		}
	}

	// Breaker is now open; the request must be rejected without reaching the
	// server.
	_, err := c.FetchSync(ctx)
	if err == nil {
		t.Fatal("FetchSync() with open breaker should fail")
	}
	if errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("request reached server despite open breaker: %v", err)
	}
}

func TestPostViewRateLimited(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, PostsPerSecond: 0.001, PostBurst: 1}, "dev-1")

	ctx := context.Background()
	if err := c.PostView(ctx, ViewCheckpoint{VideoID: "v1", PostID: "p1", Timestamp: 10}); err != nil {
		t.Fatalf("first PostView() error = %v", err)
	}
	err := c.PostView(ctx, ViewCheckpoint{VideoID: "v1", PostID: "p1", Timestamp: 20})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second PostView() error = %v, want ErrRateLimited", err)
	}
	if calls != 1 {
		t.Errorf("server saw %d calls, want 1", calls)
	}
}

func TestSetToken(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(SyncSnapshot{})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, "dev-1")
	c.SetToken("refreshed")

	if _, err := c.FetchSync(context.Background()); err != nil {
		t.Fatalf("FetchSync() error = %v", err)
	}
	if auth != "Bearer refreshed" {
		t.Errorf("Authorization = %q, want Bearer refreshed", auth)
	}
}
