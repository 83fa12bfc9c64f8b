// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

// Package upstream is the client for the server-side watch-history API.
//
// The server is the long-lived source of truth for watch state; this client
// consumes exactly two endpoints:
//
//	GET  /videos/sync  - authoritative watched-video and last-view lists
//	POST /videos/view  - fire-and-forget checkpoint write
//
// Resilience follows the same shape as the other upstream integrations in
// this codebase: a circuit breaker opens after consecutive failures so an
// offline server is not hammered on every checkpoint, and checkpoint posts
// pass through a client-side rate limiter. Neither failure mode is ever
// retried here; the next accepted checkpoint carries newer data anyway.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/watchmark/internal/metrics"
)

// maxErrorBodySize limits how much of a failed response body is read for
// error reporting, preventing unbounded allocation on large error pages.
const maxErrorBodySize = 64 * 1024

var (
	// ErrRateLimited is returned when a checkpoint post is dropped by the
	// client-side limiter. Callers treat it like any other transient failure.
	ErrRateLimited = errors.New("upstream: checkpoint post rate limited")

	// ErrUnexpectedStatus wraps non-2xx responses.
	ErrUnexpectedStatus = errors.New("upstream: unexpected status")
)

// Config holds upstream API client configuration.
type Config struct {
	// BaseURL is the watch-history API root, e.g. https://api.example.com.
	BaseURL string

	// Token is an optional bearer token for the current session.
	Token string

	// Timeout bounds each HTTP request. Default: 30s.
	Timeout time.Duration

	// PostsPerSecond caps checkpoint posts client-side. Zero disables the
	// limiter. The checkpoint policy already spaces posts ~10s apart per
	// video; this guards against many videos ticking at once.
	PostsPerSecond float64

	// PostBurst is the limiter burst size. Default: 5.
	PostBurst int

	// BreakerFailureThreshold is the number of consecutive failures before
	// the breaker opens. Default: 3.
	BreakerFailureThreshold uint32

	// BreakerOpenTimeout is how long the breaker stays open. Default: 60s.
	BreakerOpenTimeout time.Duration
}

// WatchedVideo is one entry of the server's watched-video list.
type WatchedVideo struct {
	VideoID string `json:"videoId"`
}

// LastView is one entry of the server's last-view list.
type LastView struct {
	PostID    string `json:"postId"`
	Sequence  int    `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

// SyncSnapshot is the response of GET /videos/sync for the session's user.
type SyncSnapshot struct {
	WatchedVideos []WatchedVideo `json:"watchedVideos"`
	LastViews     []LastView     `json:"lastViews"`
}

// ViewCheckpoint is the body of POST /videos/view.
type ViewCheckpoint struct {
	VideoID   string `json:"videoId"`
	PostID    string `json:"postId"`
	Sequence  int    `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

// API is the upstream surface the tracker and session sync depend on.
// *Client implements it; tests substitute fakes.
type API interface {
	FetchSync(ctx context.Context) (*SyncSnapshot, error)
	PostView(ctx context.Context, checkpoint ViewCheckpoint) error
}

// Client talks to the watch-history API over HTTP.
//
// Thread safety: safe for concurrent use; each request builds its own
// http.Request and the breaker and limiter are concurrency-safe.
type Client struct {
	baseURL  string
	deviceID string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[any]
	limiter  *rate.Limiter

	mu    sync.RWMutex
	token string
}

// NewClient creates a watch-history API client. deviceID is sent on every
// request as X-Device-ID so the server can attribute multi-device resume.
func NewClient(cfg Config, deviceID string) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 3
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 60 * time.Second
	}
	if cfg.PostBurst <= 0 {
		cfg.PostBurst = 5
	}

	settings := gobreaker.Settings{
		Name:    "watch-history-api",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				metrics.UpstreamBreakerState.Set(1)
			} else {
				metrics.UpstreamBreakerState.Set(0)
			}
		},
	}

	var limiter *rate.Limiter
	if cfg.PostsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PostsPerSecond), cfg.PostBurst)
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		deviceID: deviceID,
		client:   &http.Client{Timeout: cfg.Timeout},
		breaker:  gobreaker.NewCircuitBreaker[any](settings),
		limiter:  limiter,
	}
}

// FetchSync retrieves the authoritative watch history for the current user.
func (c *Client) FetchSync(ctx context.Context) (*SyncSnapshot, error) {
	start := time.Now()

	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetchSync(ctx)
	})
	metrics.ObserveUpstreamRequest("fetch_sync", start, err)

	if err != nil {
		return nil, err
	}
	return result.(*SyncSnapshot), nil
}

func (c *Client) fetchSync(ctx context.Context) (*SyncSnapshot, error) {
	endpoint, err := url.JoinPath(c.baseURL, "videos", "sync")
	if err != nil {
		return nil, fmt.Errorf("build sync url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build sync request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sync: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d fetching sync: %s",
			ErrUnexpectedStatus, resp.StatusCode, readBodyForError(resp.Body))
	}

	var snapshot SyncSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode sync response: %w", err)
	}
	return &snapshot, nil
}

// PostView writes one checkpoint to the server. Fire-and-forget semantics:
// callers log failures and move on; nothing is queued for retry.
func (c *Client) PostView(ctx context.Context, checkpoint ViewCheckpoint) error {
	if c.limiter != nil && !c.limiter.Allow() {
		return ErrRateLimited
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.postView(ctx, checkpoint)
	})
	metrics.ObserveUpstreamRequest("post_view", start, err)
	return err
}

func (c *Client) postView(ctx context.Context, checkpoint ViewCheckpoint) error {
	body, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	endpoint, err := url.JoinPath(c.baseURL, "videos", "view")
	if err != nil {
		return fmt.Errorf("build view url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build view request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post view: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d posting view: %s",
			ErrUnexpectedStatus, resp.StatusCode, readBodyForError(resp.Body))
	}
	return nil
}

// SetToken updates the bearer token after a session change.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.deviceID != "" {
		req.Header.Set("X-Device-ID", c.deviceID)
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// readBodyForError reads at most maxErrorBodySize of a response body for
// error messages.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("... (truncated)")...)
	}
	return body
}
