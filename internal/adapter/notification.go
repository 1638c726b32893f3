// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package adapter

import (
	"context"

	"github.com/tomtom215/streamrelay/internal/models"
)

// NotificationKind is one of the four things an adapter ever reports.
type NotificationKind string

const (
	KindConnected    NotificationKind = "connected"
	KindDisconnected NotificationKind = "disconnected"
	KindError        NotificationKind = "error"
	KindEvent        NotificationKind = "event"
)

// Notification is what the manager receives from an adapter. Event is set
// only for KindEvent and Err only for KindError.
type Notification struct {
	Kind      NotificationKind
	Platform  models.Platform
	ChannelID string
	Event     *models.NormalizedEvent
	Err       error
}

// Info is a point-in-time view of an adapter for observability.
type Info struct {
	Platform          models.Platform `json:"platform"`
	ChannelID         string          `json:"channelId"`
	IsConnected       bool            `json:"isConnected"`
	ReconnectAttempts int             `json:"reconnectAttempts"`
	State             string          `json:"state"`
}

// Adapter is the contract every platform integration honors.
//
// Connect establishes the transport and returns once the session is live or
// has failed. Disconnect tears everything down, is idempotent, and may be
// called from inside the adapter's own handlers. Notifications never closes.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Info() Info
	Notifications() <-chan Notification
}
