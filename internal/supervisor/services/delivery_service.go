// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package services

import (
	"context"
)

// ContextHub matches *sink.Hub's RunWithContext method.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService runs the overlay hub until its context is canceled. The hub
// closes every overlay client on the way out.
type HubService struct {
	hub  ContextHub
	name string
}

// NewHubService creates a new overlay hub service wrapper.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{hub: hub, name: "overlay-hub"}
}

// Serve implements suture.Service.
func (h *HubService) Serve(ctx context.Context) error {
	return h.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for logging.
func (h *HubService) String() string {
	return h.name
}

// Relay matches *manager.Manager's Serve method.
type Relay interface {
	Serve(ctx context.Context) error
}

// RelayService drains adapter notifications into the sinks.
type RelayService struct {
	relay Relay
	name  string
}

// NewRelayService creates a new relay service wrapper.
func NewRelayService(relay Relay) *RelayService {
	return &RelayService{relay: relay, name: "adapter-relay"}
}

// Serve implements suture.Service.
func (r *RelayService) Serve(ctx context.Context) error {
	return r.relay.Serve(ctx)
}

// String implements fmt.Stringer for logging.
func (r *RelayService) String() string {
	return r.name
}
