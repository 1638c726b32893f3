// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

// Package main is the entry point for the streamrelay server.
//
// streamrelay connects to live-stream platforms (Twitch EventSub over
// WebSocket, YouTube live chat over REST polling), normalizes chat,
// donation, subscription, follow and raid activity into one event model,
// and delivers it to browser overlays over WebSocket and optionally to NATS.
//
// # Startup
//
//  1. Configuration: koanf defaults, config.yaml, environment
//  2. Logging: zerolog with the configured level and format
//  3. Currency converter: built-in KRW rates plus configured overrides
//  4. Sinks: overlay hub, NATS publisher when NATS_ENABLED=true
//  5. Manager: one adapter per configured channel
//  6. Supervisor tree: adapters, delivery (hub, relay) and HTTP layers
//
// # Example
//
//	export TWITCH_CLIENT_ID=...
//	export TWITCH_CLIENT_SECRET=...
//	export CONFIG_PATH=./config.yaml   # channels list
//	./streamrelay
//
// SIGINT and SIGTERM cancel the tree; every adapter disconnects and the
// HTTP server drains within server.shutdown_timeout.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/streamrelay/internal/api"
	"github.com/tomtom215/streamrelay/internal/config"
	"github.com/tomtom215/streamrelay/internal/logging"
	"github.com/tomtom215/streamrelay/internal/manager"
	"github.com/tomtom215/streamrelay/internal/sink"
	"github.com/tomtom215/streamrelay/internal/supervisor"
	"github.com/tomtom215/streamrelay/internal/supervisor/services"
)

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
		Int("channels", len(cfg.Channels)).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Starting streamrelay")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("streamrelay stopped with error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run(cfg *config.Config) error {
	converter := manager.NewConverter(cfg.Currency)

	hub := sink.NewHub(sink.HubConfig{
		SendBuffer:   cfg.Overlay.SendBuffer,
		WriteTimeout: cfg.Overlay.WriteTimeout,
		PingInterval: cfg.Overlay.PingInterval,
	})
	sinks := []sink.Sink{hub}

	if cfg.NATS.Enabled {
		natsSink, err := sink.NewNATSSink(sink.NATSConfig{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		})
		if err != nil {
			return fmt.Errorf("create nats sink: %w", err)
		}
		sinks = append(sinks, natsSink)
		logging.Info().Str("url", cfg.NATS.URL).Str("prefix", cfg.NATS.SubjectPrefix).Msg("NATS sink enabled")
	}
	fanout := sink.NewFanout(sinks...)
	defer func() {
		if err := fanout.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing sinks")
		}
	}()

	mgr := manager.New(fanout)
	manager.RegisterDefaults(mgr, cfg, converter)
	if err := mgr.AddAll(cfg.Channels); err != nil {
		return fmt.Errorf("register channels: %w", err)
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	for _, entry := range mgr.Entries() {
		svc := services.NewAdapterService(entry.Adapter)
		tree.AddAdapterService(svc)
		logging.Info().Str("service", svc.String()).Msg("Adapter added to supervisor tree")
	}

	tree.AddDeliveryService(services.NewHubService(hub))
	tree.AddDeliveryService(services.NewRelayService(mgr))

	router := api.NewRouter(cfg.Server, mgr, hub)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Received shutdown signal, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("supervisor tree: %w", err)
		}
		return nil
	}

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor shutdown error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	return nil
}
