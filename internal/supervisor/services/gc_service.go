// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

// Package services wraps daemon components as suture services.
package services

import (
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/watchmark/internal/logging"
)

// GCRunner runs one round of value-log garbage collection.
// Satisfied by *store.BadgerStore.
type GCRunner interface {
	RunGC(ctx context.Context, discardRatio float64) error
}

// StoreGCService periodically triggers BadgerDB value-log garbage collection.
// Badger never reclaims value-log space on its own; an idle tracker writing a
// checkpoint every ten seconds accumulates garbage without this.
type StoreGCService struct {
	store        GCRunner
	interval     time.Duration
	discardRatio float64
}

// NewStoreGCService creates a GC service. interval defaults to 10 minutes
// and discardRatio to 0.5 when zero.
func NewStoreGCService(store GCRunner, interval time.Duration, discardRatio float64) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if discardRatio <= 0 {
		discardRatio = 0.5
	}
	return &StoreGCService{
		store:        store,
		interval:     interval,
		discardRatio: discardRatio,
	}
}

// Serve implements suture.Service. It runs GC on a ticker until the context
// is canceled. badger.ErrNoRewrite means no file met the discard ratio and
// is a clean no-op, not a failure.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *StoreGCService) runOnce(ctx context.Context) {
	// Loop until a round reclaims nothing; each successful RunValueLogGC
	// call rewrites at most one value-log file.
	for {
		err := s.store.RunGC(ctx, s.discardRatio)
		if err == nil {
			logging.Debug().Msg("Value-log GC reclaimed a file")
			continue
		}
		if errors.Is(err, badger.ErrNoRewrite) {
			return
		}
		logging.Warn().Err(err).Msg("Value-log GC failed")
		return
	}
}

// String names the service in supervisor logs.
func (s *StoreGCService) String() string {
	return "store-gc"
}
