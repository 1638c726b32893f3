// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// ContextWithRequestID returns a new context carrying an HTTP request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID, or "" if none is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger with request_id added when ctx carries one.
//
//	logging.Ctx(r.Context()).Info().Msg("Overlay client connected")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := Logger()
	if id := RequestIDFromContext(ctx); id != "" {
		l = l.With().Str("request_id", id).Logger()
	}
	return &l
}

// WithComponent creates a child logger with a component field.
//
//	log := logging.WithComponent("manager")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}

// ForAdapter creates a child logger identifying one platform adapter.
func ForAdapter(platform, channelID string) zerolog.Logger {
	return With().
		Str("component", "adapter").
		Str("platform", platform).
		Str("channel_id", channelID).
		Logger()
}
