// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

// Package main is the entry point for the watchmark tracking daemon.
//
// Watchmark records how far a viewer got in each video and marks videos
// watched, keeping a local BadgerDB cache as the source of truth so playback
// can resume across restarts and offline periods. An upstream watch-history
// API, when configured, receives checkpoints and contributes watched history
// on sign-in; the daemon runs fully local without it.
//
// # Application Architecture
//
// The daemon initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML file, env)
//  2. Store: BadgerDB at STORE_PATH, or in-memory when unset
//  3. Upstream client: circuit-broken HTTP client, or local-only stub
//  4. Tracker: checkpoint policy gates plus async persistence
//  5. Session syncer: identity transitions, wipe-on-user-change, reconcile
//  6. Supervisor tree: store GC, identity watcher, local HTTP server
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - WATCHMARK_* environment variables
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// Common settings:
//
//	export WATCHMARK_STORE_PATH=/data/watchmark
//	export WATCHMARK_UPSTREAM_URL=https://api.example.com
//	export WATCHMARK_UPSTREAM_TOKEN=bearer-token
//	export WATCHMARK_UPSTREAM_USER_ID=user-42
//	export WATCHMARK_SERVER_PORT=7482
//	./trackerd
//
// # Signal Handling
//
// The daemon handles graceful shutdown on SIGINT and SIGTERM: the supervisor
// tree stops its services, in-flight checkpoint writes drain, and the store
// closes last.
package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tomtom215/watchmark/internal/api"
	"github.com/tomtom215/watchmark/internal/config"
	"github.com/tomtom215/watchmark/internal/logging"
	"github.com/tomtom215/watchmark/internal/policy"
	"github.com/tomtom215/watchmark/internal/session"
	"github.com/tomtom215/watchmark/internal/store"
	"github.com/tomtom215/watchmark/internal/supervisor"
	"github.com/tomtom215/watchmark/internal/supervisor/services"
	"github.com/tomtom215/watchmark/internal/tracker"
	"github.com/tomtom215/watchmark/internal/upstream"
)

// upstreamAPI is the full upstream surface the daemon wires: the data calls
// plus credential refresh for the identity watcher.
type upstreamAPI interface {
	upstream.API
	SetToken(token string)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("store_path", cfg.Store.Path).
		Bool("upstream_enabled", cfg.Upstream.URL != "").
		Msg("Starting watchmark")

	// Local store. Empty path runs fully in memory, for tests and
	// throwaway deployments.
	var st store.Store
	if cfg.Store.Path != "" {
		st = store.NewBadgerStore(store.Options{Dir: cfg.Store.Path})
	} else {
		logging.Warn().Msg("No store path configured; watch state will not survive restarts")
		st = store.NewMemStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := st.Init(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	deviceID, err := st.DeviceID(ctx)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to resolve device ID")
	}
	logging.Info().Str("device_id", deviceID).Msg("Local store ready")

	// Upstream client, or a local-only stub when no URL is configured.
	var apiClient upstreamAPI
	if cfg.Upstream.URL != "" {
		apiClient = upstream.NewClient(upstream.Config{
			BaseURL:                 cfg.Upstream.URL,
			Token:                   cfg.Upstream.Token,
			Timeout:                 cfg.Upstream.Timeout,
			PostsPerSecond:          cfg.Upstream.PostsPerSecond,
			BreakerFailureThreshold: cfg.Upstream.BreakerFailureThreshold,
			BreakerOpenTimeout:      cfg.Upstream.BreakerOpenTimeout,
		}, deviceID)
	} else {
		apiClient = upstream.NewOffline()
	}

	trk := tracker.New(st, apiClient, policy.Config{
		MinSeconds:      cfg.Policy.MinSeconds,
		IntervalSeconds: cfg.Policy.IntervalSeconds,
	})
	// Drain in-flight checkpoint writes before the deferred store close.
	defer trk.Wait()

	sess := session.New(st, apiClient, trk)

	// Identity notifications. The embedding application feeds sign-in and
	// sign-out events; a configured static identity signs in at startup.
	events := make(chan session.Identity, 16)
	if cfg.Upstream.UserID != "" {
		events <- session.Identity{UserID: cfg.Upstream.UserID, Token: cfg.Upstream.Token}
	}

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddSessionService(session.NewWatcher(sess, apiClient, events))

	if bs, ok := st.(*store.BadgerStore); ok {
		tree.AddDataService(services.NewStoreGCService(bs, cfg.Store.GCInterval, cfg.Store.GCDiscardRatio))
	}

	if cfg.Server.Enabled {
		router := api.NewRouter(
			api.NewHandler(st, sess),
			api.NewMiddleware(&api.MiddlewareConfig{
				CORSAllowedOrigins: cfg.Server.CORSOrigins,
				CORSAllowedMethods: []string{"GET", "OPTIONS"},
				CORSAllowedHeaders: []string{"Content-Type", "Authorization"},
				CORSMaxAge:         86400,
				RateLimitRequests:  cfg.Server.RateLimitReqs,
				RateLimitWindow:    cfg.Server.RateLimitWindow,
			}),
		)
		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
		tree.AddAPIService(api.NewServer(addr, router.Setup(), cfg.Server.Timeout))
		logging.Info().Str("addr", addr).Msg("Local HTTP server service added")
	}

	// Signal handling drives the shared shutdown context.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished).
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Watchmark stopped gracefully")
}
