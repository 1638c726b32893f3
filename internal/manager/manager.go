// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

/*
Package manager owns one adapter per configured channel and relays their
notifications to the delivery sink.

Adapters are built through a factory registered per platform. The manager
does not connect adapters itself; each adapter runs under its own supervised
service (see supervisor/services.AdapterService). Serve drains every
adapter's notification queue on its own goroutine so a slow sink never
stalls protocol processing.
*/
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/config"
	"github.com/tomtom215/streamrelay/internal/logging"
	"github.com/tomtom215/streamrelay/internal/models"
	"github.com/tomtom215/streamrelay/internal/sink"
)

// DefaultPublishTimeout bounds one sink delivery.
const DefaultPublishTimeout = 5 * time.Second

var (
	ErrUnknownPlatform  = errors.New("no adapter factory for platform")
	ErrDuplicateChannel = errors.New("channel already registered")
)

// Factory builds the adapter for one configured channel.
type Factory func(ch config.ChannelConfig) (adapter.Adapter, error)

// Entry pairs an adapter with the configuration it was built from.
type Entry struct {
	Channel config.ChannelConfig
	Adapter adapter.Adapter
}

// Manager is the registry of running adapters.
type Manager struct {
	sink           sink.Sink
	publishTimeout time.Duration
	log            zerolog.Logger

	mu        sync.RWMutex
	factories map[models.Platform]Factory
	entries   map[string]Entry
}

// New creates an empty manager that delivers to s.
func New(s sink.Sink) *Manager {
	return &Manager{
		sink:           s,
		publishTimeout: DefaultPublishTimeout,
		log:            logging.WithComponent("manager"),
		factories:      make(map[models.Platform]Factory),
		entries:        make(map[string]Entry),
	}
}

// RegisterFactory installs the builder for platform, replacing any previous one.
func (m *Manager) RegisterFactory(platform models.Platform, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[platform] = f
}

func entryKey(platform, channel string) string {
	return platform + "/" + channel
}

// Add builds and registers the adapter for ch.
func (m *Manager) Add(ch config.ChannelConfig) (adapter.Adapter, error) {
	key := entryKey(ch.Platform, ch.Key())

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.entries[key]; dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateChannel, key)
	}
	factory, ok := m.factories[models.Platform(ch.Platform)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, ch.Platform)
	}
	a, err := factory(ch)
	if err != nil {
		return nil, fmt.Errorf("build %s adapter: %w", key, err)
	}
	m.entries[key] = Entry{Channel: ch, Adapter: a}

	m.log.Info().Str("platform", ch.Platform).Str("channel_id", ch.Key()).Str("name", ch.Name).Msg("Adapter registered")
	return a, nil
}

// AddAll registers every channel, stopping at the first failure.
func (m *Manager) AddAll(channels []config.ChannelConfig) error {
	for _, ch := range channels {
		if _, err := m.Add(ch); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns the registered adapters ordered by platform, then channel.
func (m *Manager) Entries() []Entry {
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.entries[k])
	}
	m.mu.RUnlock()
	return out
}

// Infos returns a snapshot of every adapter in the same order as Entries.
func (m *Manager) Infos() []adapter.Info {
	entries := m.Entries()
	infos := make([]adapter.Info, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.Adapter.Info())
	}
	return infos
}

// ConnectedCount returns how many adapters are currently connected.
func (m *Manager) ConnectedCount() int {
	var n int
	for _, info := range m.Infos() {
		if info.IsConnected {
			n++
		}
	}
	return n
}

// Serve relays notifications from every registered adapter until ctx is
// canceled. Adapters added after Serve starts are not relayed.
func (m *Manager) Serve(ctx context.Context) error {
	entries := m.Entries()
	m.log.Info().Int("adapters", len(entries)).Msg("Relaying adapter notifications")

	var wg conc.WaitGroup
	for _, e := range entries {
		wg.Go(func() { m.relay(ctx, e.Adapter) })
	}
	wg.Wait()
	return ctx.Err()
}

func (m *Manager) relay(ctx context.Context, a adapter.Adapter) {
	notifications := a.Notifications()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-notifications:
			m.deliver(ctx, n)
		}
	}
}

func (m *Manager) deliver(ctx context.Context, n adapter.Notification) {
	switch n.Kind {
	case adapter.KindError:
		m.log.Warn().Err(n.Err).Str("platform", string(n.Platform)).Str("channel_id", n.ChannelID).Msg("Adapter reported error")
	case adapter.KindConnected, adapter.KindDisconnected:
		m.log.Info().Str("platform", string(n.Platform)).Str("channel_id", n.ChannelID).Str("kind", string(n.Kind)).Msg("Adapter status changed")
	}

	pubCtx, cancel := context.WithTimeout(ctx, m.publishTimeout)
	defer cancel()
	if err := m.sink.Publish(pubCtx, n); err != nil {
		e := m.log.Warn().Err(err).Str("platform", string(n.Platform)).Str("channel_id", n.ChannelID).Str("kind", string(n.Kind))
		if n.Event != nil {
			e = e.Str("event_id", n.Event.ID)
		}
		e.Msg("Sink publish failed")
	}
}
