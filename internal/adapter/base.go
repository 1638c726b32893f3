// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/tomtom215/streamrelay/internal/logging"
	"github.com/tomtom215/streamrelay/internal/metrics"
	"github.com/tomtom215/streamrelay/internal/models"
)

// State is the shared connection state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Reconnect defaults.
const (
	DefaultMaxAttempts  = 5
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultQueueSize    = 256
)

// ReconnectPolicy bounds AttemptReconnect.
type ReconnectPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// Options configures a Base.
type Options struct {
	Platform  models.Platform
	ChannelID string
	Reconnect ReconnectPolicy
	QueueSize int
	Clock     clockwork.Clock
}

// Base carries the state and primitives every concrete adapter shares:
// the connection state machine, reconnect-with-backoff, and the
// notification queue. Concrete adapters embed *Base.
type Base struct {
	platform  models.Platform
	channelID string
	policy    ReconnectPolicy
	clock     clockwork.Clock
	log       zerolog.Logger

	notifications chan Notification

	mu           sync.Mutex
	state        State
	attempts     int
	reconnecting bool
	life         context.Context
	cancelLife   context.CancelFunc
}

// NewBase creates the shared adapter core.
func NewBase(opts Options) *Base {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Base{
		platform:      opts.Platform,
		channelID:     opts.ChannelID,
		policy:        opts.Reconnect.withDefaults(),
		clock:         opts.Clock,
		log:           logging.ForAdapter(string(opts.Platform), opts.ChannelID),
		notifications: make(chan Notification, opts.QueueSize),
	}
}

// Platform returns the adapter family.
func (b *Base) Platform() models.Platform { return b.platform }

// ChannelID returns the channel this adapter serves.
func (b *Base) ChannelID() string { return b.channelID }

// Clock returns the clock timers and sleeps run on.
func (b *Base) Clock() clockwork.Clock { return b.clock }

// Log returns the adapter-scoped logger.
func (b *Base) Log() *zerolog.Logger { return &b.log }

// Notifications implements Adapter.
func (b *Base) Notifications() <-chan Notification { return b.notifications }

// Info implements Adapter.
func (b *Base) Info() Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Info{
		Platform:          b.platform,
		ChannelID:         b.channelID,
		IsConnected:       b.state == StateConnected,
		ReconnectAttempts: b.attempts,
		State:             b.state.String(),
	}
}

// State returns the current connection state.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsConnected reports whether the adapter is in the connected state.
func (b *Base) IsConnected() bool {
	return b.State() == StateConnected
}

// MarkConnecting moves to the connecting state at the start of Connect.
func (b *Base) MarkConnecting() {
	b.mu.Lock()
	b.state = StateConnecting
	b.mu.Unlock()
}

// MarkConnectFailed returns to the resting state after a failed Connect.
// Inside a reconnect loop the resting state is reconnecting.
func (b *Base) MarkConnectFailed() {
	b.mu.Lock()
	if b.reconnecting {
		b.state = StateReconnecting
	} else {
		b.state = StateDisconnected
	}
	b.mu.Unlock()
}

// MarkConnected is the success hook: flips to connected, resets the reconnect
// counter and emits a connected notification.
func (b *Base) MarkConnected() {
	b.mu.Lock()
	b.state = StateConnected
	b.attempts = 0
	b.mu.Unlock()

	metrics.SetAdapterConnected(string(b.platform), b.channelID, true)
	b.log.Info().Msg("Adapter connected")
	b.emit(Notification{Kind: KindConnected})
}

// MarkDisconnected is the disconnect hook. It emits a disconnected
// notification only on the transition out of connected and reports whether
// that transition happened, so repeated calls are harmless.
func (b *Base) MarkDisconnected() bool {
	b.mu.Lock()
	wasConnected := b.state == StateConnected
	if !b.reconnecting || wasConnected {
		b.state = StateDisconnected
	}
	b.mu.Unlock()

	if wasConnected {
		b.announceDisconnected()
	}
	return wasConnected
}

// BeginReconnect is the transport-loss hook. In one step it leaves connected
// for reconnecting and claims the reconnect loop, so observers never see
// a resting disconnected state in between. It reports whether the caller must start
// RunReconnect; false means a loop is already running or the lifetime ended,
// in which case the adapter rests in disconnected unless a loop owns it.
func (b *Base) BeginReconnect() bool {
	b.mu.Lock()
	wasConnected := b.state == StateConnected
	alive := b.life != nil && b.life.Err() == nil
	start := alive && !b.reconnecting
	switch {
	case start:
		b.reconnecting = true
		b.state = StateReconnecting
	case b.reconnecting:
		b.state = StateReconnecting
	default:
		b.state = StateDisconnected
	}
	b.mu.Unlock()

	if wasConnected {
		b.announceDisconnected()
	}
	return start
}

func (b *Base) announceDisconnected() {
	metrics.SetAdapterConnected(string(b.platform), b.channelID, false)
	b.log.Info().Msg("Adapter disconnected")
	b.emit(Notification{Kind: KindDisconnected})
}

// Lifetime returns the context that bounds background work (read loops,
// poll loops, reconnect sleeps). It is detached from parent's cancellation
// and lives until EndLifetime.
func (b *Base) Lifetime(parent context.Context) context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.life == nil || b.life.Err() != nil {
		b.life, b.cancelLife = context.WithCancel(context.WithoutCancel(parent))
	}
	return b.life
}

// EndLifetime cancels background work, including any reconnect loop.
func (b *Base) EndLifetime() {
	b.mu.Lock()
	cancel := b.cancelLife
	b.cancelLife = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (b *Base) lifetime() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.life
}

// ReconnectDelays returns the sleep before each attempt of a full reconnect
// cycle: InitialDelay doubling per attempt, capped at MaxDelay.
func (b *Base) ReconnectDelays() []time.Duration {
	bo := b.newBackOff()
	delays := make([]time.Duration, b.policy.MaxAttempts)
	for i := range delays {
		delays[i] = bo.NextBackOff()
	}
	return delays
}

func (b *Base) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.policy.InitialDelay
	bo.MaxInterval = b.policy.MaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.Reset()
	return bo
}

// AttemptReconnect re-runs connect with exponential backoff until it succeeds
// or MaxAttempts is exhausted, in which case an ErrReconnectExhausted error
// notification is emitted and the adapter rests in disconnected.
//
// It blocks for the duration of the backoff and should run on its own
// goroutine. Concurrent calls collapse into the one already running.
// EndLifetime aborts it.
func (b *Base) AttemptReconnect(connect func(context.Context) error) error {
	life := b.lifetime()
	if life == nil || life.Err() != nil {
		return ErrNotConnected
	}

	b.mu.Lock()
	if b.reconnecting {
		b.mu.Unlock()
		return nil
	}
	b.reconnecting = true
	if b.state != StateConnected {
		b.state = StateReconnecting
	}
	b.mu.Unlock()

	return b.reconnectLoop(life, connect)
}

// RunReconnect runs the loop claimed by a BeginReconnect that returned true.
func (b *Base) RunReconnect(connect func(context.Context) error) error {
	life := b.lifetime()
	if life == nil || life.Err() != nil {
		b.endReconnect()
		return ErrNotConnected
	}
	return b.reconnectLoop(life, connect)
}

func (b *Base) endReconnect() {
	b.mu.Lock()
	b.reconnecting = false
	if b.state == StateReconnecting {
		b.state = StateDisconnected
	}
	b.mu.Unlock()
}

// reconnectLoop owns the reconnecting flag until it returns. The loop ends
// as soon as the adapter is connected, whether by its own connect or by one
// made elsewhere while it slept, and releases the flag in the same critical
// section so a transport loss right after starts a fresh loop.
func (b *Base) reconnectLoop(life context.Context, connect func(context.Context) error) error {
	released := false
	defer func() {
		if !released {
			b.endReconnect()
		}
	}()

	bo := b.newBackOff()
	for {
		b.mu.Lock()
		if b.state == StateConnected {
			b.reconnecting = false
			released = true
			b.mu.Unlock()
			return nil
		}
		if b.attempts >= b.policy.MaxAttempts {
			attempts := b.attempts
			b.mu.Unlock()

			metrics.ReconnectExhausted.WithLabelValues(string(b.platform)).Inc()
			b.log.Error().Int("attempts", attempts).Msg("Reconnect attempts exhausted")
			b.EmitError(fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, attempts))
			return ErrReconnectExhausted
		}
		b.attempts++
		attempt := b.attempts
		b.mu.Unlock()

		delay := bo.NextBackOff()
		metrics.ReconnectAttempts.WithLabelValues(string(b.platform)).Inc()
		b.log.Info().Int("attempt", attempt).Int("max_attempts", b.policy.MaxAttempts).Dur("delay", delay).Msg("Reconnecting")

		select {
		case <-life.Done():
			return life.Err()
		case <-b.clock.After(delay):
		}

		if b.IsConnected() {
			b.log.Debug().Int("attempt", attempt).Msg("Connected while waiting, skipping reconnect attempt")
			continue
		}

		if err := connect(life); err != nil {
			if life.Err() != nil {
				return life.Err()
			}
			b.log.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect attempt failed")
		}
	}
}

// EmitEvent hands a normalized event to the consumer. Events that fail
// validation are logged and dropped.
func (b *Base) EmitEvent(ev *models.NormalizedEvent) {
	if err := ev.Validate(); err != nil {
		metrics.MalformedMessages.WithLabelValues(string(b.platform)).Inc()
		b.log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("Dropping invalid event")
		return
	}
	metrics.RecordEvent(string(b.platform), string(ev.Type))
	b.emit(Notification{Kind: KindEvent, Event: ev})
}

// EmitError hands an error to the consumer.
func (b *Base) EmitError(err error) {
	b.emit(Notification{Kind: KindError, Err: err})
}

// emit never blocks protocol processing. A full queue drops the notification.
func (b *Base) emit(n Notification) {
	n.Platform = b.platform
	n.ChannelID = b.channelID
	select {
	case b.notifications <- n:
	default:
		metrics.NotificationsDropped.WithLabelValues(string(b.platform), string(n.Kind)).Inc()
		b.log.Warn().Str("kind", string(n.Kind)).Msg("Notification queue full, dropping")
	}
}
