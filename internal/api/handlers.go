// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/logging"
	"github.com/tomtom215/streamrelay/internal/models"
	"github.com/tomtom215/streamrelay/internal/sink"
	"github.com/tomtom215/streamrelay/internal/validation"
)

// AdapterSource exposes adapter state to the API. *manager.Manager satisfies it.
type AdapterSource interface {
	Infos() []adapter.Info
	ConnectedCount() int
}

// OverlayHub accepts overlay WebSocket clients. *sink.Hub satisfies it.
type OverlayHub interface {
	ServeClient(ctx context.Context, conn *websocket.Conn, filter sink.Filter) bool
	ClientCount() int
}

// Handler serves every HTTP endpoint.
type Handler struct {
	adapters  AdapterSource
	hub       OverlayHub
	mw        *ChiMiddleware
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewHandler builds the endpoint handlers. hub may be nil, in which case
// overlay upgrades are refused with 503.
func NewHandler(adapters AdapterSource, hub OverlayHub, mw *ChiMiddleware) *Handler {
	h := &Handler{
		adapters:  adapters,
		hub:       hub,
		mw:        mw,
		startTime: time.Now(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      mw.originAllowed,
	}
	return h
}

// HealthStatus is the /healthz body.
type HealthStatus struct {
	Status            string  `json:"status"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	Adapters          int     `json:"adapters"`
	ConnectedAdapters int     `json:"connected_adapters"`
	OverlayClients    int     `json:"overlay_clients"`
}

// Health reports process liveness. It answers 200 while the process runs;
// adapter counts are informational.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:        "ok",
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}
	if h.adapters != nil {
		status.Adapters = len(h.adapters.Infos())
		status.ConnectedAdapters = h.adapters.ConnectedCount()
	}
	if h.hub != nil {
		status.OverlayClients = h.hub.ClientCount()
	}
	respondSuccess(w, r, status)
}

// Adapters lists the Info snapshot of every configured adapter.
func (h *Handler) Adapters(w http.ResponseWriter, r *http.Request) {
	if h.adapters == nil {
		respondList[adapter.Info](w, r, nil)
		return
	}
	respondList(w, r, h.adapters.Infos())
}

// overlayQuery holds the optional overlay subscription filter.
type overlayQuery struct {
	Platform  string `query:"platform" validate:"omitempty,oneof=twitch youtube"`
	ChannelID string `query:"channel_id" validate:"omitempty,max=128"`
}

// Overlay upgrades the request to a WebSocket and hands it to the hub.
func (h *Handler) Overlay(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Overlay hub unavailable")
		return
	}

	q := overlayQuery{
		Platform:  r.URL.Query().Get("platform"),
		ChannelID: r.URL.Query().Get("channel_id"),
	}
	if err := validation.ValidateStruct(&q); err != nil {
		respondErrorWithDetails(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid overlay filter", err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Overlay upgrade failed")
		return
	}

	filter := sink.Filter{Platform: models.Platform(q.Platform), ChannelID: q.ChannelID}
	if !h.hub.ServeClient(r.Context(), conn, filter) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "overlay hub stopped"))
		_ = conn.Close()
		return
	}
	logging.Ctx(r.Context()).Debug().
		Str("platform", q.Platform).
		Str("channel_id", q.ChannelID).
		Msg("Overlay client connected")
}
