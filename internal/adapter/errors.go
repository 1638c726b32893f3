// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package adapter

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/streamrelay/internal/models"
)

// Fatal-to-connect and lifecycle errors. Callers match with errors.Is.
var (
	ErrMissingCredentials = errors.New("missing platform credentials")
	ErrNotLive            = errors.New("channel is not live")
	ErrHandshakeTimeout   = errors.New("session handshake timed out")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrNotConnected       = errors.New("adapter is not connected")
)

// APIError is a non-2xx response from a platform REST endpoint.
type APIError struct {
	Platform   models.Platform
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Platform, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Platform, e.Endpoint, e.StatusCode, e.Body)
}

// IsForbidden reports whether err is an HTTP 403 from a platform API.
func IsForbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden
}

// isClientError reports a 4xx APIError. These describe the request, not the
// health of the upstream, so they do not count against a circuit breaker.
func isClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
