// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

package upstream

import "context"

// Offline is the API implementation for local-only deployments with no
// upstream URL configured. Fetches return an empty snapshot and posts
// succeed without doing anything, so the tracker keeps its normal write
// path without special-casing the missing server.
type Offline struct{}

// NewOffline creates a local-only API client.
func NewOffline() *Offline {
	return &Offline{}
}

// FetchSync returns an empty snapshot.
func (o *Offline) FetchSync(_ context.Context) (*SyncSnapshot, error) {
	return &SyncSnapshot{}, nil
}

// PostView discards the checkpoint.
func (o *Offline) PostView(_ context.Context, _ ViewCheckpoint) error {
	return nil
}

// SetToken is a no-op.
func (o *Offline) SetToken(_ string) {}
