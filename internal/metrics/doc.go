// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

/*
Package metrics provides Prometheus metrics for the ingestion pipeline.

All collectors are registered with the default registry through promauto and
exposed at /metrics by the api package.

# Available Metrics

Adapter Metrics:
  - streamrelay_adapter_connected: 1 while an adapter is connected (gauge)
    Labels: platform, channel_id
  - streamrelay_events_emitted_total: Normalized events emitted (counter)
    Labels: platform, type
  - streamrelay_notifications_dropped_total: Queue overflow drops (counter)
    Labels: platform, kind
  - streamrelay_reconnect_attempts_total / streamrelay_reconnect_exhausted_total
    Labels: platform
  - streamrelay_malformed_messages_total: Undecodable frames or items (counter)

Push Metrics:
  - streamrelay_subscription_failures_total: Labels: subscription_type
  - streamrelay_keepalive_timeouts_total
  - streamrelay_duplicate_messages_total

Polling Metrics:
  - streamrelay_poll_ticks_total: Labels: result (ok, error, forbidden)
  - streamrelay_poll_interval_seconds: Labels: channel_id

Delivery Metrics:
  - streamrelay_sink_publish_errors_total: Labels: sink
  - streamrelay_overlay_clients

Circuit Breaker Metrics:
  - circuit_breaker_state: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total: Labels: name, result
  - circuit_breaker_consecutive_failures
  - circuit_breaker_state_transitions_total: Labels: name, from_state, to_state

# Usage Example

	metrics.RecordEvent("twitch", "chat")
	metrics.SetAdapterConnected("youtube", "UC123", true)
*/
package metrics
