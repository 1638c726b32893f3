// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/streamrelay/internal/logging"
)

// HTTPServer matches *http.Server's lifecycle methods.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs the API server (health, metrics, adapter
// introspection, overlay socket) as a supervised service.
//
// ListenAndServe runs on its own goroutine. Context cancellation triggers
// Shutdown bounded by shutdownTimeout; overlay sockets are hijacked and are
// closed by the hub, not by Shutdown.
//
//	server := &http.Server{Addr: ":8420", Handler: router.SetupChi()}
//	tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, 10*time.Second))
type HTTPServerService struct {
	server          HTTPServer
	addr            string
	shutdownTimeout time.Duration
	name            string
	log             zerolog.Logger
}

// NewHTTPServerService creates the API service. addr is only used for the
// service name and log fields.
func NewHTTPServerService(server HTTPServer, addr string, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	name := "http-server"
	if addr != "" {
		name += "@" + addr
	}
	return &HTTPServerService{
		server:          server,
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		name:            name,
		log:             logging.WithComponent("http-server").With().Str("addr", addr).Logger(),
	}
}

// Serve implements suture.Service. http.ErrServerClosed is not an error.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	h.log.Info().Msg("API server listening")

	select {
	case err := <-errCh:
		if err != nil {
			h.log.Error().Err(err).Msg("API server failed")
			return fmt.Errorf("http server %s failed: %w", h.addr, err)
		}
		return nil

	case <-ctx.Done():
		h.log.Info().Dur("timeout", h.shutdownTimeout).Msg("Draining API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.log.Warn().Err(err).Msg("API server shutdown incomplete")
			return fmt.Errorf("http server %s shutdown failed: %w", h.addr, err)
		}

		<-errCh
		h.log.Info().Msg("API server stopped")
		return ctx.Err()
	}
}

// String implements fmt.Stringer for logging.
func (h *HTTPServerService) String() string {
	return h.name
}
