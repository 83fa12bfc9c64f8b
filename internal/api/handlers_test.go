// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/watchmark/internal/store"
)

// fakeResume is a canned ResumeLookup.
type fakeResume struct {
	view *store.LastView
	err  error
	user string
}

func (f *fakeResume) ResumePosition(_ context.Context, _ string) (*store.LastView, error) {
	return f.view, f.err
}

func (f *fakeResume) CurrentUser() string { return f.user }

func newTestServer(t *testing.T, s store.Store, resume ResumeLookup) *httptest.Server {
	t.Helper()
	router := NewRouter(NewHandler(s, resume), NewMiddleware(nil))
	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)
	return srv
}

func decodeResponse(t *testing.T, resp *http.Response) APIResponse {
	t.Helper()
	defer resp.Body.Close()

	var body APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestHealthLive(t *testing.T) {
	srv := newTestServer(t, store.NewMemStore(), &fakeResume{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	if !body.Success {
		t.Error("success = false, want true")
	}
}

func TestHealthReady(t *testing.T) {
	s := store.NewMemStore()
	srv := newTestServer(t, s, &fakeResume{})

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	// A closed store means not ready.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status after close = %d, want 503", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	if body.Error == nil || body.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("error = %+v, want code %s", body.Error, ErrCodeServiceUnavailable)
	}
}

func TestResumeFound(t *testing.T) {
	resume := &fakeResume{
		view: &store.LastView{PostID: "p1", Sequence: 2, Timestamp: 130},
	}
	srv := newTestServer(t, store.NewMemStore(), resume)

	resp, err := http.Get(srv.URL + "/api/v1/resume/p1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeResponse(t, resp)

	data, ok := body.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %T, want object", body.Data)
	}
	if data["post_id"] != "p1" {
		t.Errorf("post_id = %v, want p1", data["post_id"])
	}
	if data["timestamp"] != float64(130) {
		t.Errorf("timestamp = %v, want 130", data["timestamp"])
	}
}

func TestResumeNotFound(t *testing.T) {
	srv := newTestServer(t, store.NewMemStore(), &fakeResume{})

	resp, err := http.Get(srv.URL + "/api/v1/resume/unknown")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	if body.Error == nil || body.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v, want code %s", body.Error, ErrCodeNotFound)
	}
}

func TestResumeLookupError(t *testing.T) {
	resume := &fakeResume{err: errors.New("store exploded")}
	srv := newTestServer(t, store.NewMemStore(), resume)

	resp, err := http.Get(srv.URL + "/api/v1/resume/p1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestWatchedListing(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	for _, id := range []string{"v1", "v2", "v3"} {
		if err := s.SaveWatchedVideo(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	srv := newTestServer(t, s, &fakeResume{})

	resp, err := http.Get(srv.URL + "/api/v1/watched")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeResponse(t, resp)

	data, ok := body.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %T, want object", body.Data)
	}
	raw, _ := data["video_ids"].([]interface{})
	got := make([]string, 0, len(raw))
	for _, v := range raw {
		got = append(got, v.(string))
	}
	sort.Strings(got)
	want := []string{"v1", "v2", "v3"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("video_ids = %v, want %v", got, want)
		}
	}
	if data["count"] != float64(3) {
		t.Errorf("count = %v, want 3", data["count"])
	}
}

func TestStatus(t *testing.T) {
	s := store.NewMemStore()
	deviceID, err := s.DeviceID(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, s, &fakeResume{user: "alice"})

	resp, err := http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeResponse(t, resp)

	data, ok := body.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %T, want object", body.Data)
	}
	if data["device_id"] != deviceID {
		t.Errorf("device_id = %v, want %s", data["device_id"], deviceID)
	}
	if data["current_user"] != "alice" {
		t.Errorf("current_user = %v, want alice", data["current_user"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, store.NewMemStore(), &fakeResume{})

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, store.NewMemStore(), &fakeResume{})

	resp, err := http.Get(srv.URL + "/api/v1/watched")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestResponseCarriesRequestID(t *testing.T) {
	srv := newTestServer(t, store.NewMemStore(), &fakeResume{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeResponse(t, resp)
	if body.Meta == nil || body.Meta.RequestID == "" {
		t.Error("meta.request_id missing")
	}
}
