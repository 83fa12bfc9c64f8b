// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// fakeGCRunner returns queued errors, then badger.ErrNoRewrite forever.
type fakeGCRunner struct {
	calls atomic.Int64
	errs  chan error
}

func (f *fakeGCRunner) RunGC(_ context.Context, _ float64) error {
	f.calls.Add(1)
	select {
	case err := <-f.errs:
		return err
	default:
		return badger.ErrNoRewrite
	}
}

func TestStoreGCServiceRunsOnTicker(t *testing.T) {
	runner := &fakeGCRunner{errs: make(chan error, 8)}
	svc := NewStoreGCService(runner, 10*time.Millisecond, 0.5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for runner.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("GC never ran twice")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestStoreGCServiceLoopsUntilNoRewrite(t *testing.T) {
	runner := &fakeGCRunner{errs: make(chan error, 8)}
	// Two reclaimed files before the no-op round.
	runner.errs <- nil
	runner.errs <- nil

	svc := NewStoreGCService(runner, time.Minute, 0.5)
	svc.runOnce(context.Background())

	if got := runner.calls.Load(); got != 3 {
		t.Errorf("RunGC calls = %d, want 3 (two rewrites plus terminating no-op)", got)
	}
}

func TestStoreGCServiceSwallowsErrors(t *testing.T) {
	runner := &fakeGCRunner{errs: make(chan error, 8)}
	runner.errs <- errors.New("disk on fire")

	svc := NewStoreGCService(runner, time.Minute, 0.5)
	svc.runOnce(context.Background())

	if got := runner.calls.Load(); got != 1 {
		t.Errorf("RunGC calls = %d, want 1 (stop after unexpected error)", got)
	}
}

func TestStoreGCServiceDefaults(t *testing.T) {
	svc := NewStoreGCService(&fakeGCRunner{}, 0, 0)
	if svc.interval != 10*time.Minute {
		t.Errorf("interval = %v, want 10m", svc.interval)
	}
	if svc.discardRatio != 0.5 {
		t.Errorf("discardRatio = %v, want 0.5", svc.discardRatio)
	}
	if svc.String() != "store-gc" {
		t.Errorf("String() = %q", svc.String())
	}
}
