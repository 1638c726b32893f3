// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

// Package services adapts streamrelay components to suture.Service.
//
// Each wrapper implements Serve(ctx) error and String() so the supervisor
// tree can restart it and name it in log output:
//
//   - AdapterService: one platform adapter, connect and watch state
//   - HubService: overlay WebSocket hub
//   - RelayService: adapter notification relay into the sinks
//   - HTTPServerService: http.Server with graceful shutdown
package services
