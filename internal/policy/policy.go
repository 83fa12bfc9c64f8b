// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

// Package policy decides which raw playback ticks are worth persisting.
//
// Ticks arrive many times per second from the player. Writing every tick would
// hammer both local storage and the upstream API, so a gate admits only:
//
//   - the first tick at or past a minimum offset (default 3s), accepted at its
//     exact whole-second value so resume points appear quickly, and
//   - subsequent ticks whose interval-floored value (default 10s buckets)
//     strictly exceeds the last accepted checkpoint.
//
// This bounds writes to O(duration/interval) while guaranteeing accepted
// values are strictly increasing, so duplicate or out-of-order ticks can
// never regress a saved position.
package policy

// Config holds checkpoint policy thresholds.
type Config struct {
	// MinSeconds is the minimum playback offset before the first checkpoint.
	MinSeconds int64

	// IntervalSeconds is the bucket size for subsequent checkpoints.
	IntervalSeconds int64
}

// DefaultConfig returns the standard thresholds: first checkpoint at 3s,
// then every 10s bucket.
func DefaultConfig() Config {
	return Config{
		MinSeconds:      3,
		IntervalSeconds: 10,
	}
}

// normalized returns cfg with zero values replaced by defaults.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MinSeconds <= 0 {
		c.MinSeconds = d.MinSeconds
	}
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = d.IntervalSeconds
	}
	return c
}

// Gate is the per-video-per-session checkpoint state machine.
//
// A Gate starts unarmed. The first tick at or past MinSeconds arms it and is
// accepted at its exact whole-second value. Once armed, a tick is accepted
// only when its interval-floored value strictly exceeds the last accepted
// checkpoint. Reset returns the gate to the unarmed state (new sequence or
// fresh mount).
//
// Gate is not safe for concurrent use; the tracker serializes access per key.
type Gate struct {
	cfg          Config
	armed        bool
	lastAccepted int64
}

// NewGate creates a gate with the given thresholds. Zero values fall back to
// DefaultConfig.
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg.normalized()}
}

// Observe feeds one raw tick (seconds, player precision) through the gate.
// It returns the checkpoint value to persist and whether the tick was
// accepted.
func (g *Gate) Observe(raw float64) (int64, bool) {
	if raw < 0 {
		return 0, false
	}
	secs := int64(raw)

	if !g.armed {
		if secs < g.cfg.MinSeconds {
			return 0, false
		}
		// First checkpoint keeps the exact offset rather than the bucket
		// floor, so a resume point exists within seconds of playback start.
		g.armed = true
		g.lastAccepted = secs
		return secs, true
	}

	candidate := (secs / g.cfg.IntervalSeconds) * g.cfg.IntervalSeconds
	if candidate <= g.lastAccepted {
		return 0, false
	}
	g.lastAccepted = candidate
	return candidate, true
}

// Reset returns the gate to the unarmed state. Call it when playback switches
// to a different sequence within the same post, or when a video is freshly
// mounted.
func (g *Gate) Reset() {
	g.armed = false
	g.lastAccepted = 0
}

// Armed reports whether a checkpoint has been accepted this session.
func (g *Gate) Armed() bool {
	return g.armed
}

// LastAccepted returns the most recent accepted checkpoint value, or 0 when
// the gate is unarmed.
func (g *Gate) LastAccepted() int64 {
	if !g.armed {
		return 0
	}
	return g.lastAccepted
}
