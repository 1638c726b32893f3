// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

/*
Package adapter defines the contract every live-stream platform integration
implements and the lifecycle machinery they share.

# Contract

An Adapter serves one channel on one platform. It reports everything through
a buffered Notification channel of four kinds: connected, disconnected, error
and event. Emission never blocks the protocol loop; when the consumer falls
behind, notifications are dropped and counted.

# State Machine

	Disconnected -> Connecting -> Connected -> (transport failure)
	    -> Disconnected -> Reconnecting -> Connecting -> ...

After MaxAttempts failed reconnects (default 5) the adapter emits an
ErrReconnectExhausted error and rests in Disconnected until Connect is
called again.

# Backoff

Reconnect sleeps double from InitialDelay (1s) up to MaxDelay (30s) and run on
an injectable clockwork.Clock so tests can drive them.

# Concrete Adapters

  - adapter/twitch: EventSub over WebSocket (push)
  - adapter/youtube: Live Chat REST API (polling)
*/
package adapter
