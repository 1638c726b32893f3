// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

/*
Package twitch implements the push adapter for Twitch EventSub over
WebSocket.

Session lifecycle:

 1. Fetch an app access token (client credentials).
 2. Dial the EventSub socket and wait for session_welcome.
 3. Create one subscription per configured type against the session id.
    Each create is independent; failures are logged and counted.
 4. Read frames until the socket closes or the keepalive watchdog fires.

A session_reconnect frame dials the supplied URL while the current socket
keeps delivering; the old socket is closed only once the new one has sent
its welcome. Subscriptions carry over to the new session.
*/
package twitch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/cache"
	"github.com/tomtom215/streamrelay/internal/metrics"
	"github.com/tomtom215/streamrelay/internal/models"
	"github.com/tomtom215/streamrelay/internal/normalize"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultWebSocketURL     = "wss://eventsub.wss.twitch.tv/ws"
	DefaultAPIURL           = "https://api.twitch.tv/helix"
	DefaultTokenURL         = "https://id.twitch.tv/oauth2/token"
	DefaultWelcomeTimeout   = 15 * time.Second
	DefaultKeepaliveTimeout = 10 * time.Second

	// keepaliveMultiplier is how many keepalive intervals of silence the
	// watchdog tolerates before forcing a reconnect.
	keepaliveMultiplier = 3
)

// Config configures one Twitch channel adapter.
type Config struct {
	// ChannelID is the broadcaster user id.
	ChannelID    string
	ClientID     string
	ClientSecret string

	WebSocketURL     string
	APIURL           string
	TokenURL         string
	WelcomeTimeout   time.Duration
	KeepaliveTimeout time.Duration
	Subscriptions    []string

	HelixRPS   float64
	HelixBurst int

	Reconnect adapter.ReconnectPolicy
	QueueSize int

	Converter  *normalize.Converter
	Clock      clockwork.Clock
	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.WebSocketURL == "" {
		c.WebSocketURL = DefaultWebSocketURL
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.WelcomeTimeout <= 0 {
		c.WelcomeTimeout = DefaultWelcomeTimeout
	}
	if c.KeepaliveTimeout <= 0 {
		c.KeepaliveTimeout = DefaultKeepaliveTimeout
	}
	if len(c.Subscriptions) == 0 {
		c.Subscriptions = []string{
			SubChatMessage, SubCheer, SubSubscribe, SubSubscriptionGift,
			SubSubscriptionMessage, SubFollow, SubRaid,
		}
	}
	if c.Converter == nil {
		c.Converter = normalize.NewConverter(nil)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// Adapter is the EventSub push adapter for one broadcaster.
type Adapter struct {
	*adapter.Base

	cfg    Config
	helix  *helixClient
	mapper *mapper
	dedup  *cache.Dedup

	// mu serializes frame handling across sockets with the watchdog and
	// lifecycle transitions.
	mu          sync.Mutex
	life        context.Context
	conn        *websocket.Conn
	sessionID   string
	keepalive   time.Duration
	subs        map[string]string // subscription id -> type
	dialing     bool
	migrating   bool
	watchdog    clockwork.Timer
	watchdogGen uint64
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates a disconnected adapter.
func New(cfg Config) *Adapter {
	cfg = cfg.withDefaults()
	return &Adapter{
		Base: adapter.NewBase(adapter.Options{
			Platform:  models.PlatformTwitch,
			ChannelID: cfg.ChannelID,
			Reconnect: cfg.Reconnect,
			QueueSize: cfg.QueueSize,
			Clock:     cfg.Clock,
		}),
		cfg:    cfg,
		helix:  newHelixClient(cfg),
		mapper: &mapper{channelID: cfg.ChannelID, converter: cfg.Converter},
		dedup:  cache.NewDedup(cache.DefaultCapacity, cache.DefaultTTL, cfg.Clock),
	}
}

// Connect establishes an EventSub session. Token fetch failure, a missing
// welcome and missing credentials are returned to the caller and not
// retried.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.IsConnected() {
		return nil
	}
	return a.connect(a.Lifetime(ctx), ctx)
}

// reconnect is the connect function handed to RunReconnect.
func (a *Adapter) reconnect(life context.Context) error {
	return a.connect(life, life)
}

// connect runs the handshake under ctx; background loops run under life.
// The adapter holds at most one session: a call made while a socket is
// active or another handshake is in flight returns nil without dialing.
func (a *Adapter) connect(life, ctx context.Context) error {
	if a.cfg.ClientID == "" || a.cfg.ClientSecret == "" {
		return fmt.Errorf("twitch: %w: client id and secret are required", adapter.ErrMissingCredentials)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	if a.conn != nil || a.dialing {
		a.mu.Unlock()
		a.Log().Debug().Msg("EventSub session already active or dialing, skipping connect")
		return nil
	}
	a.dialing = true
	a.mu.Unlock()
	defer a.finishDial()

	a.MarkConnecting()

	token, err := a.helix.fetchAppToken(ctx)
	if err != nil {
		a.MarkConnectFailed()
		return fmt.Errorf("twitch: fetch app token: %w", err)
	}

	conn, sess, err := a.dialSession(ctx, a.cfg.WebSocketURL)
	if err != nil {
		a.MarkConnectFailed()
		return err
	}

	subs := a.subscribeAll(ctx, token, sess.ID)

	a.mu.Lock()
	defer a.mu.Unlock()
	if life.Err() != nil {
		closeConn(conn)
		a.MarkConnectFailed()
		return life.Err()
	}

	a.life = life
	a.conn = conn
	a.sessionID = sess.ID
	a.keepalive = a.keepaliveFor(sess)
	a.subs = subs
	a.MarkConnected()
	a.armWatchdogLocked()

	go a.readLoop(conn)
	return nil
}

func (a *Adapter) finishDial() {
	a.mu.Lock()
	a.dialing = false
	a.mu.Unlock()
}

// dialSession opens a socket and waits for its session_welcome.
func (a *Adapter) dialSession(ctx context.Context, wsURL string) (*websocket.Conn, session, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: a.cfg.WelcomeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, session{}, fmt.Errorf("twitch: websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, session{}, fmt.Errorf("twitch: websocket dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err := conn.SetReadDeadline(time.Now().Add(a.cfg.WelcomeTimeout)); err != nil {
		_ = conn.Close()
		return nil, session{}, fmt.Errorf("twitch: set welcome deadline: %w", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, session{}, fmt.Errorf("twitch: no session_welcome within %v: %w", a.cfg.WelcomeTimeout, adapter.ErrHandshakeTimeout)
		}
		return nil, session{}, fmt.Errorf("twitch: read session_welcome: %w", err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		_ = conn.Close()
		return nil, session{}, fmt.Errorf("twitch: clear read deadline: %w", err)
	}

	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = conn.Close()
		return nil, session{}, fmt.Errorf("twitch: decode session_welcome: %w", err)
	}
	if msg.Metadata.MessageType != messageSessionWelcome {
		_ = conn.Close()
		return nil, session{}, fmt.Errorf("twitch: expected %s, got %q", messageSessionWelcome, msg.Metadata.MessageType)
	}
	var payload sessionPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Session.ID == "" {
		_ = conn.Close()
		return nil, session{}, fmt.Errorf("twitch: session_welcome without session id")
	}

	a.Log().Info().Str("session_id", payload.Session.ID).Str("url", wsURL).Msg("EventSub session established")
	return conn, payload.Session, nil
}

func (a *Adapter) keepaliveFor(sess session) time.Duration {
	if sess.KeepaliveTimeoutSeconds != nil && *sess.KeepaliveTimeoutSeconds > 0 {
		return time.Duration(*sess.KeepaliveTimeoutSeconds) * time.Second
	}
	return a.cfg.KeepaliveTimeout
}

// subscribeAll creates every configured subscription. One failure does not
// stop the rest.
func (a *Adapter) subscribeAll(ctx context.Context, token, sessionID string) map[string]string {
	subs := make(map[string]string, len(a.cfg.Subscriptions))
	for _, typ := range a.cfg.Subscriptions {
		req, ok := newSubscriptionRequest(typ, a.ChannelID(), sessionID)
		if !ok {
			a.Log().Warn().Str("subscription_type", typ).Msg("Unsupported subscription type, skipping")
			continue
		}

		sub, err := a.helix.createSubscription(ctx, token, req)
		if err != nil {
			metrics.SubscriptionFailures.WithLabelValues(typ).Inc()
			a.Log().Warn().Err(err).Str("subscription_type", typ).Msg("Failed to create subscription")
			continue
		}
		subs[sub.ID] = typ
		a.Log().Debug().Str("subscription_type", typ).Str("subscription_id", sub.ID).Msg("Subscription created")
	}

	a.Log().Info().Int("created", len(subs)).Int("requested", len(a.cfg.Subscriptions)).Msg("EventSub subscriptions registered")
	return subs
}

// readLoop owns conn until it errors.
func (a *Adapter) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			a.handleClose(conn, err)
			return
		}
		a.handleMessage(conn, data)
	}
}

// handleClose treats the loss of the active socket as a transport failure.
// Sockets replaced by migration or closed by Disconnect or the watchdog are
// no longer active and are ignored.
func (a *Adapter) handleClose(conn *websocket.Conn, err error) {
	a.mu.Lock()
	if conn != a.conn {
		a.mu.Unlock()
		return
	}
	a.conn = nil
	a.stopWatchdogLocked()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		a.Log().Info().Msg("EventSub socket closed by server")
	} else {
		a.Log().Warn().Err(err).Msg("EventSub socket read error")
	}
	start := a.BeginReconnect()
	a.mu.Unlock()

	_ = conn.Close()
	if start {
		go a.runReconnect()
	}
}

func (a *Adapter) runReconnect() {
	if err := a.RunReconnect(a.reconnect); err != nil && !errors.Is(err, context.Canceled) {
		a.Log().Debug().Err(err).Msg("Reconnect loop ended")
	}
}

// handleMessage processes one frame from conn.
func (a *Adapter) handleMessage(conn *websocket.Conn, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if conn != a.conn {
		return
	}
	a.armWatchdogLocked()

	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.MalformedMessages.WithLabelValues(string(models.PlatformTwitch)).Inc()
		a.Log().Warn().Err(err).Int("bytes", len(data)).Msg("Failed to parse EventSub frame")
		return
	}

	switch msg.Metadata.MessageType {
	case messageSessionKeepalive:
		// Watchdog already re-armed.

	case messageNotification:
		a.handleNotificationLocked(msg)

	case messageSessionReconnect:
		a.handleReconnectLocked(msg)

	case messageRevocation:
		a.handleRevocationLocked(msg)

	case messageSessionWelcome:
		a.Log().Debug().Msg("Ignoring welcome on established session")

	default:
		a.Log().Debug().Str("message_type", msg.Metadata.MessageType).Msg("Unknown EventSub message type")
	}
}

func (a *Adapter) handleNotificationLocked(msg wsMessage) {
	if id := msg.Metadata.MessageID; id != "" && a.dedup.Seen(id) {
		metrics.DuplicateMessages.Inc()
		a.Log().Debug().Str("message_id", id).Msg("Duplicate notification skipped")
		return
	}

	var payload notificationPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		metrics.MalformedMessages.WithLabelValues(string(models.PlatformTwitch)).Inc()
		a.Log().Warn().Err(err).Msg("Failed to parse notification payload")
		return
	}

	subType := payload.Subscription.Type
	if subType == "" {
		subType = msg.Metadata.SubscriptionType
	}
	ts, err := time.Parse(time.RFC3339Nano, msg.Metadata.MessageTimestamp)
	if err != nil {
		ts = a.Clock().Now().UTC()
	}

	ev, ok, err := a.mapper.Map(notificationMeta{MessageID: msg.Metadata.MessageID, SubType: subType, Timestamp: ts}, payload.Event)
	if err != nil {
		metrics.MalformedMessages.WithLabelValues(string(models.PlatformTwitch)).Inc()
		a.Log().Warn().Err(err).Msg("Failed to map notification")
		return
	}
	if !ok {
		a.Log().Debug().Str("subscription_type", subType).Msg("No mapping for subscription type, skipping")
		return
	}
	a.EmitEvent(ev)
}

func (a *Adapter) handleRevocationLocked(msg wsMessage) {
	var payload revocationPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		metrics.MalformedMessages.WithLabelValues(string(models.PlatformTwitch)).Inc()
		a.Log().Warn().Err(err).Msg("Failed to parse revocation payload")
		return
	}
	delete(a.subs, payload.Subscription.ID)
	a.Log().Warn().
		Str("subscription_id", payload.Subscription.ID).
		Str("subscription_type", payload.Subscription.Type).
		Str("status", payload.Subscription.Status).
		Int("remaining", len(a.subs)).
		Msg("Subscription revoked")
}

func (a *Adapter) handleReconnectLocked(msg wsMessage) {
	var payload sessionPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Session.ReconnectURL == nil || *payload.Session.ReconnectURL == "" {
		metrics.MalformedMessages.WithLabelValues(string(models.PlatformTwitch)).Inc()
		a.Log().Warn().Msg("session_reconnect without reconnect_url")
		return
	}
	if a.migrating {
		return
	}
	a.migrating = true
	a.Log().Info().Msg("EventSub session migration requested")
	go a.migrate(a.life, a.conn, *payload.Session.ReconnectURL)
}

// migrate dials the reconnect URL while old keeps delivering, then swaps.
func (a *Adapter) migrate(life context.Context, old *websocket.Conn, reconnectURL string) {
	conn, sess, err := a.dialSession(life, reconnectURL)

	a.mu.Lock()
	a.migrating = false
	if err != nil {
		a.mu.Unlock()
		a.Log().Warn().Err(err).Msg("Session migration failed, keeping current socket")
		return
	}
	if a.conn != old || life.Err() != nil {
		a.mu.Unlock()
		closeConn(conn)
		return
	}
	a.conn = conn
	a.sessionID = sess.ID
	a.keepalive = a.keepaliveFor(sess)
	a.armWatchdogLocked()
	go a.readLoop(conn)
	a.mu.Unlock()

	closeConn(old)
	a.Log().Info().Str("session_id", sess.ID).Msg("EventSub session migrated")
}

// armWatchdogLocked (re)starts the keepalive watchdog for the active socket.
func (a *Adapter) armWatchdogLocked() {
	a.stopWatchdogLocked()
	a.watchdogGen++
	gen := a.watchdogGen
	a.watchdog = a.Clock().AfterFunc(keepaliveMultiplier*a.keepalive, func() {
		a.onKeepaliveTimeout(gen)
	})
}

func (a *Adapter) stopWatchdogLocked() {
	if a.watchdog != nil {
		a.watchdog.Stop()
		a.watchdog = nil
	}
}

// onKeepaliveTimeout force-closes a silent socket and starts reconnecting.
func (a *Adapter) onKeepaliveTimeout(gen uint64) {
	a.mu.Lock()
	if gen != a.watchdogGen || a.conn == nil {
		a.mu.Unlock()
		return
	}
	conn := a.conn
	a.conn = nil
	a.watchdog = nil
	metrics.KeepaliveTimeouts.Inc()
	a.Log().Warn().Dur("silence", keepaliveMultiplier*a.keepalive).Msg("Keepalive watchdog expired, forcing reconnect")
	start := a.BeginReconnect()
	a.mu.Unlock()

	closeConn(conn)
	if start {
		go a.runReconnect()
	}
}

// Disconnect tears the session down. It is idempotent and stops the
// watchdog before the socket is released.
func (a *Adapter) Disconnect() error {
	a.EndLifetime()

	a.mu.Lock()
	a.stopWatchdogLocked()
	conn := a.conn
	a.conn = nil
	a.sessionID = ""
	a.subs = nil
	a.MarkDisconnected()
	a.mu.Unlock()

	if conn != nil {
		closeConn(conn)
	}
	return nil
}

// SessionID returns the active EventSub session id.
func (a *Adapter) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// Subscriptions returns the tracked subscription types keyed by id.
func (a *Adapter) Subscriptions() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string, len(a.subs))
	for id, typ := range a.subs {
		out[id] = typ
	}
	return out
}

func closeConn(conn *websocket.Conn) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	_ = conn.Close()
}
