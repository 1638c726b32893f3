// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package sink

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/logging"
	"github.com/tomtom215/streamrelay/internal/metrics"
	"github.com/tomtom215/streamrelay/internal/models"
)

// ErrBroadcastFull is returned by Hub.Publish when the hub is not keeping up.
var ErrBroadcastFull = errors.New("overlay hub broadcast queue full")

// Hub defaults.
const (
	DefaultSendBuffer   = 256
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
	broadcastQueueSize  = 1024
)

// HubConfig tunes per-client buffering and keepalive.
type HubConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func (c HubConfig) withDefaults() HubConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	return c
}

// Filter narrows what an overlay client receives. Empty fields match all.
type Filter struct {
	Platform  models.Platform
	ChannelID string
}

func (f Filter) matches(platform models.Platform, channelID string) bool {
	if f.Platform != "" && f.Platform != platform {
		return false
	}
	return f.ChannelID == "" || f.ChannelID == channelID
}

type delivery struct {
	msg       Message
	platform  models.Platform
	channelID string
}

// Hub fans notifications out to browser overlays over WebSocket.
//
// Client lifecycle and broadcasts are serialized through RunWithContext.
// A client whose send buffer is full is dropped rather than slowing the hub.
type Hub struct {
	cfg        HubConfig
	clients    map[*Client]bool
	broadcast  chan delivery
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	done       chan struct{}
}

var _ Sink = (*Hub)(nil)

// NewHub creates a hub. RunWithContext must be running for clients to
// attach and receive messages.
func NewHub(cfg HubConfig) *Hub {
	return &Hub{
		cfg:        cfg.withDefaults(),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan delivery, broadcastQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Name implements Sink.
func (h *Hub) Name() string { return "overlay" }

// Publish queues n for every matching client. It never blocks.
func (h *Hub) Publish(_ context.Context, n adapter.Notification) error {
	d := delivery{msg: NewMessage(n), platform: n.Platform, channelID: n.ChannelID}
	select {
	case h.broadcast <- d:
		return nil
	default:
		logging.Warn().Str("message_type", d.msg.Type).Msg("Overlay broadcast queue full, dropping message")
		return ErrBroadcastFull
	}
}

// Close implements Sink. Clients are closed when RunWithContext returns.
func (h *Hub) Close() error { return nil }

// ServeClient attaches an upgraded connection and starts its pumps.
// It returns false if the hub has stopped.
func (h *Hub) ServeClient(ctx context.Context, conn *websocket.Conn, filter Filter) bool {
	client := newClient(h, conn, filter)
	select {
	case h.register <- client:
	case <-h.stopped():
		_ = conn.Close()
		return false
	case <-ctx.Done():
		_ = conn.Close()
		return false
	}
	client.start()
	return true
}

// RunWithContext serves registrations and broadcasts until ctx is canceled,
// then closes every client. Lifecycle events are handled before broadcasts
// so a client registered ahead of a message always receives it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	log := logging.WithComponent("overlay-hub")
	done := make(chan struct{})
	h.mu.Lock()
	h.done = done
	h.mu.Unlock()
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			closed := h.closeAllClients()
			log.Info().Int("clients_closed", closed).Msg("Overlay hub stopped")
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.register:
			h.addClient(client)
			continue
		case client := <-h.unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			continue
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case d := <-h.broadcast:
			h.broadcastToClients(d)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.OverlayClients.Set(float64(n))
	logging.Info().Uint64("client_id", c.id).Int("total_clients", n).Msg("Overlay client connected")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.OverlayClients.Set(float64(n))
	logging.Info().Uint64("client_id", c.id).Int("total_clients", n).Msg("Overlay client disconnected")
}

// broadcastToClients delivers in client id order.
func (h *Hub) broadcastToClients(d delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var dropped int
	for _, client := range h.sortedClientsLocked() {
		if !client.filter.matches(d.platform, d.channelID) {
			continue
		}
		select {
		case client.send <- d.msg:
		default:
			close(client.send)
			delete(h.clients, client)
			dropped++
			logging.Warn().Uint64("client_id", client.id).Msg("Overlay client too slow, dropping")
		}
	}
	if dropped > 0 {
		metrics.OverlayClients.Set(float64(len(h.clients)))
	}
}

func (h *Hub) closeAllClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.sortedClientsLocked()
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.OverlayClients.Set(0)
	return len(clients)
}

func (h *Hub) sortedClientsLocked() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// stopped is closed when the current run of RunWithContext returns.
func (h *Hub) stopped() <-chan struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.done
}

// ClientCount returns the number of attached overlays.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
