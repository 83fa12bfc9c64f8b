// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveStoreOp(t *testing.T) {
	before := testutil.ToFloat64(StoreOpErrors.WithLabelValues("save_last_view"))

	ObserveStoreOp("save_last_view", time.Now().Add(-2*time.Millisecond), nil)
	if got := testutil.ToFloat64(StoreOpErrors.WithLabelValues("save_last_view")); got != before {
		t.Errorf("successful op incremented error counter: %v", got)
	}

	ObserveStoreOp("save_last_view", time.Now(), errors.New("quota exceeded"))
	if got := testutil.ToFloat64(StoreOpErrors.WithLabelValues("save_last_view")); got != before+1 {
		t.Errorf("error counter = %v, want %v", got, before+1)
	}
}

func TestObserveUpstreamRequest(t *testing.T) {
	before := testutil.ToFloat64(UpstreamRequestErrors.WithLabelValues("post_view", "request"))

	ObserveUpstreamRequest("post_view", time.Now(), errors.New("connection refused"))
	after := testutil.ToFloat64(UpstreamRequestErrors.WithLabelValues("post_view", "request"))
	if after != before+1 {
		t.Errorf("upstream error counter = %v, want %v", after, before+1)
	}
}

func TestCheckpointCounters(t *testing.T) {
	accepted := testutil.ToFloat64(CheckpointsAccepted)
	rejected := testutil.ToFloat64(CheckpointsRejected)

	CheckpointsAccepted.Inc()
	CheckpointsRejected.Inc()

	if got := testutil.ToFloat64(CheckpointsAccepted); got != accepted+1 {
		t.Errorf("accepted counter = %v, want %v", got, accepted+1)
	}
	if got := testutil.ToFloat64(CheckpointsRejected); got != rejected+1 {
		t.Errorf("rejected counter = %v, want %v", got, rejected+1)
	}
}
