// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

package config

import (
	"fmt"

	"github.com/tomtom215/watchmark/internal/validation"
)

// Validate checks struct tags plus the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	checks := []func() error{
		c.validateStore,
		c.validateUpstream,
		c.validateServer,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.Path != "" && c.Store.GCInterval <= 0 {
		return fmt.Errorf("store.gc_interval must be positive when store.path is set")
	}
	return nil
}

func (c *Config) validateUpstream() error {
	if c.Upstream.URL != "" && c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive when upstream.url is set")
	}
	return nil
}

func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}
	if c.Server.RateLimitReqs > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server.rate_limit_window must be positive when rate limiting is enabled")
	}
	return nil
}
