// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Adapter Metrics
	AdapterConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamrelay_adapter_connected",
			Help: "Whether the adapter is currently connected (1) or not (0)",
		},
		[]string{"platform", "channel_id"},
	)

	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_events_emitted_total",
			Help: "Total number of normalized events emitted",
		},
		[]string{"platform", "type"},
	)

	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_notifications_dropped_total",
			Help: "Notifications dropped because the adapter queue was full",
		},
		[]string{"platform", "kind"},
	)

	ReconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_reconnect_attempts_total",
			Help: "Total number of reconnect attempts",
		},
		[]string{"platform"},
	)

	ReconnectExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_reconnect_exhausted_total",
			Help: "Number of times an adapter gave up reconnecting",
		},
		[]string{"platform"},
	)

	MalformedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_malformed_messages_total",
			Help: "Inbound platform messages that could not be decoded",
		},
		[]string{"platform"},
	)

	// Push (EventSub) Metrics
	SubscriptionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_subscription_failures_total",
			Help: "EventSub subscription create requests that failed",
		},
		[]string{"subscription_type"},
	)

	KeepaliveTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamrelay_keepalive_timeouts_total",
			Help: "Sessions declared dead because no message arrived in time",
		},
	)

	DuplicateMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamrelay_duplicate_messages_total",
			Help: "EventSub notifications skipped because their message id was already seen",
		},
	)

	// Polling Metrics
	PollTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_poll_ticks_total",
			Help: "Polling ticks by result",
		},
		[]string{"result"}, // "ok", "error", "forbidden"
	)

	PollInterval = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamrelay_poll_interval_seconds",
			Help: "Current polling interval advised by the platform",
		},
		[]string{"channel_id"},
	)

	// Delivery Metrics
	SinkPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_sink_publish_errors_total",
			Help: "Errors returned by delivery sinks",
		},
		[]string{"sink"},
	)

	OverlayClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamrelay_overlay_clients",
			Help: "Connected overlay WebSocket clients",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamrelay_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// SetAdapterConnected flips the connection gauge for one adapter.
func SetAdapterConnected(platform, channelID string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	AdapterConnected.WithLabelValues(platform, channelID).Set(v)
}

// RecordEvent counts one emitted normalized event.
func RecordEvent(platform, eventType string) {
	EventsEmitted.WithLabelValues(platform, eventType).Inc()
}

// RecordPollTick counts one polling tick. result is "ok", "error" or "forbidden".
func RecordPollTick(result string) {
	PollTicks.WithLabelValues(result).Inc()
}

// SetPollInterval records the interval the platform asked for.
func SetPollInterval(channelID string, d time.Duration) {
	PollInterval.WithLabelValues(channelID).Set(d.Seconds())
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
