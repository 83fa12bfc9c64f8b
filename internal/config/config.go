// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

// Package config loads Watchmark configuration via Koanf v2 with layered
// sources (highest priority wins): environment variables, an optional YAML
// config file, then built-in defaults.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Store    StoreConfig    `koanf:"store"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Policy   PolicyConfig   `koanf:"policy"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// StoreConfig configures the embedded BadgerDB store.
type StoreConfig struct {
	// Path is the data directory. Empty runs the store in memory.
	Path string `koanf:"path"`

	// GCInterval is how often BadgerDB value-log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval"`

	// GCDiscardRatio is the minimum reclaimable fraction for a value-log
	// file to be rewritten. BadgerDB recommends 0.5.
	GCDiscardRatio float64 `koanf:"gc_discard_ratio" validate:"gte=0,lte=1"`
}

// UpstreamConfig configures the watch-history API client.
type UpstreamConfig struct {
	// URL is the watch-history API root. Empty disables upstream calls and
	// runs the tracker local-only.
	URL string `koanf:"url" validate:"omitempty,url"`

	// Token is an optional initial bearer token. The identity watcher
	// refreshes it on sign-in events.
	Token string `koanf:"token"`

	// UserID is an optional initial identity. When set together with Token,
	// the daemon signs in at startup instead of waiting for an identity event.
	UserID string `koanf:"user_id"`

	Timeout time.Duration `koanf:"timeout"`

	// PostsPerSecond caps checkpoint posts client-side; 0 disables the cap.
	PostsPerSecond float64 `koanf:"posts_per_second" validate:"gte=0"`

	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerOpenTimeout      time.Duration `koanf:"breaker_open_timeout"`
}

// PolicyConfig configures the checkpoint policy thresholds.
type PolicyConfig struct {
	// MinSeconds is the minimum playback offset before the first checkpoint.
	MinSeconds int64 `koanf:"min_seconds" validate:"gt=0"`

	// IntervalSeconds is the bucket size for subsequent checkpoints.
	IntervalSeconds int64 `koanf:"interval_seconds" validate:"gt=0"`
}

// ServerConfig configures the local HTTP surface (health, metrics, resume).
type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port" validate:"gt=0,lte=65535"`

	Timeout time.Duration `koanf:"timeout"`

	// RateLimitReqs caps requests per client IP per window; 0 disables.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// CORSOrigins lists allowed origins for browser-based local tooling.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:           "/data/watchmark",
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Upstream: UpstreamConfig{
			URL:                     "",
			Token:                   "",
			Timeout:                 30 * time.Second,
			PostsPerSecond:          10,
			BreakerFailureThreshold: 3,
			BreakerOpenTimeout:      60 * time.Second,
		},
		Policy: PolicyConfig{
			MinSeconds:      3,
			IntervalSeconds: 10,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            7482,
			Timeout:         15 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
