// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

// Package metrics provides Prometheus instrumentation for Watchmark.
//
// Instrumented areas:
//   - Checkpoint policy decisions (accepted vs rejected ticks)
//   - Local store operations (BadgerDB reads/writes)
//   - Upstream watch-history API calls
//   - Session reconciliation runs
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Checkpoint policy metrics
	CheckpointsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchmark_checkpoints_accepted_total",
			Help: "Total number of playback ticks accepted as checkpoints",
		},
	)

	CheckpointsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchmark_checkpoints_rejected_total",
			Help: "Total number of playback ticks rejected by the checkpoint policy",
		},
	)

	// Local store metrics
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchmark_store_op_duration_seconds",
			Help:    "Duration of local store operations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	StoreOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchmark_store_op_errors_total",
			Help: "Total number of local store operation failures",
		},
		[]string{"operation"},
	)

	StoreWipes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchmark_store_wipes_total",
			Help: "Total number of identity-change wipes of the local store",
		},
	)

	// Upstream watch-history API metrics
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchmark_upstream_request_duration_seconds",
			Help:    "Duration of upstream watch-history API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	UpstreamRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchmark_upstream_request_errors_total",
			Help: "Total number of failed upstream watch-history API requests",
		},
		[]string{"endpoint", "reason"},
	)

	UpstreamBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchmark_upstream_breaker_open",
			Help: "1 when the upstream circuit breaker is open, 0 otherwise",
		},
	)

	// Session reconciliation metrics
	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchmark_reconcile_runs_total",
			Help: "Total number of session reconciliation attempts",
		},
		[]string{"outcome"}, // "merged", "fetch_failed", "merge_failed"
	)

	ReconcileMergedVideos = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchmark_reconcile_merged_videos_total",
			Help: "Total number of server-side watched videos merged into the local store",
		},
	)
)

// ObserveStoreOp records a local store operation's duration and outcome.
func ObserveStoreOp(operation string, start time.Time, err error) {
	StoreOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreOpErrors.WithLabelValues(operation).Inc()
	}
}

// ObserveUpstreamRequest records an upstream API request's duration and outcome.
func ObserveUpstreamRequest(endpoint string, start time.Time, err error) {
	UpstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		UpstreamRequestErrors.WithLabelValues(endpoint, "request").Inc()
	}
}
