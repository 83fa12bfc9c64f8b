// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/watchmark/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Server runs the local HTTP surface as a supervised service. It satisfies
// suture.Service: Serve blocks until the context is canceled or the listener
// fails, and shuts the server down gracefully on cancellation.
type Server struct {
	addr    string
	handler http.Handler
	timeout time.Duration
}

// NewServer creates a Server listening on addr. timeout bounds per-request
// read and write; zero disables the bounds.
func NewServer(addr string, handler http.Handler, timeout time.Duration) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		timeout: timeout,
	}
}

// Serve runs the HTTP server until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadTimeout:       s.timeout,
		WriteTimeout:      s.timeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.addr).Msg("Local HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("HTTP server shutdown incomplete")
			return err
		}
		logging.Info().Msg("Local HTTP server stopped")
		return ctx.Err()
	}
}

// String names the service in supervisor logs.
func (s *Server) String() string {
	return "local-http-server"
}
