// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package manager

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/config"
	"github.com/tomtom215/streamrelay/internal/logging"
	"github.com/tomtom215/streamrelay/internal/models"
	"github.com/tomtom215/streamrelay/internal/normalize"
)

//nolint:gochecknoinits // keep test output quiet
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

type fakeAdapter struct {
	platform  models.Platform
	channelID string
	connected bool
	ch        chan adapter.Notification
}

func newFakeAdapter(ch config.ChannelConfig) *fakeAdapter {
	return &fakeAdapter{
		platform:  models.Platform(ch.Platform),
		channelID: ch.Key(),
		ch:        make(chan adapter.Notification, 8),
	}
}

func (f *fakeAdapter) Connect(context.Context) error { return nil }
func (f *fakeAdapter) Disconnect() error             { return nil }
func (f *fakeAdapter) Notifications() <-chan adapter.Notification {
	return f.ch
}

func (f *fakeAdapter) Info() adapter.Info {
	return adapter.Info{Platform: f.platform, ChannelID: f.channelID, IsConnected: f.connected}
}

func (f *fakeAdapter) emit(kind adapter.NotificationKind, ev *models.NormalizedEvent) {
	f.ch <- adapter.Notification{Kind: kind, Platform: f.platform, ChannelID: f.channelID, Event: ev}
}

type recordingSink struct {
	mu   sync.Mutex
	got  []adapter.Notification
	fail bool
	recv chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{recv: make(chan struct{}, 16)}
}

func (r *recordingSink) Name() string { return "recording" }
func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) Publish(_ context.Context, n adapter.Notification) error {
	r.mu.Lock()
	r.got = append(r.got, n)
	fail := r.fail
	r.mu.Unlock()
	r.recv <- struct{}{}
	if fail {
		return errors.New("sink down")
	}
	return nil
}

func (r *recordingSink) wait(t *testing.T, n int) []adapter.Notification {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.recv:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d of %d", i+1, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]adapter.Notification(nil), r.got...)
}

func newFakeManager(s *recordingSink) (*Manager, map[string]*fakeAdapter) {
	m := New(s)
	built := make(map[string]*fakeAdapter)
	factory := func(ch config.ChannelConfig) (adapter.Adapter, error) {
		a := newFakeAdapter(ch)
		built[ch.Platform+"/"+ch.Key()] = a
		return a, nil
	}
	m.RegisterFactory(models.PlatformTwitch, factory)
	m.RegisterFactory(models.PlatformYouTube, factory)
	return m, built
}

func TestAdd_RejectsDuplicatesAndUnknownPlatforms(t *testing.T) {
	t.Parallel()
	m, _ := newFakeManager(newRecordingSink())

	if _, err := m.Add(config.ChannelConfig{Platform: "twitch", ChannelID: "1"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := m.Add(config.ChannelConfig{Platform: "twitch", ChannelID: "1"}); !errors.Is(err, ErrDuplicateChannel) {
		t.Errorf("duplicate Add() error = %v, want ErrDuplicateChannel", err)
	}
	if _, err := m.Add(config.ChannelConfig{Platform: "youtube", ChannelID: "1"}); err != nil {
		t.Errorf("same id on another platform should be allowed: %v", err)
	}
	if _, err := m.Add(config.ChannelConfig{Platform: "kick", ChannelID: "1"}); !errors.Is(err, ErrUnknownPlatform) {
		t.Errorf("unknown platform Add() error = %v, want ErrUnknownPlatform", err)
	}

	m.RegisterFactory(models.PlatformTwitch, func(config.ChannelConfig) (adapter.Adapter, error) {
		return nil, errors.New("bad config")
	})
	if _, err := m.Add(config.ChannelConfig{Platform: "twitch", ChannelID: "2"}); err == nil {
		t.Error("factory error should propagate")
	}
	if got := len(m.Entries()); got != 2 {
		t.Errorf("Entries() = %d, want 2", got)
	}
}

func TestInfos_SortedAndCounted(t *testing.T) {
	t.Parallel()
	m, built := newFakeManager(newRecordingSink())
	err := m.AddAll([]config.ChannelConfig{
		{Platform: "youtube", VideoID: "vid-1"},
		{Platform: "twitch", ChannelID: "200"},
		{Platform: "twitch", ChannelID: "100"},
	})
	if err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	built["twitch/200"].connected = true

	infos := m.Infos()
	want := []string{"twitch/100", "twitch/200", "youtube/vid-1"}
	if len(infos) != len(want) {
		t.Fatalf("Infos() = %d entries, want %d", len(infos), len(want))
	}
	for i, info := range infos {
		if got := string(info.Platform) + "/" + info.ChannelID; got != want[i] {
			t.Errorf("Infos()[%d] = %s, want %s", i, got, want[i])
		}
	}
	if got := m.ConnectedCount(); got != 1 {
		t.Errorf("ConnectedCount() = %d, want 1", got)
	}
}

func TestServe_RelaysEveryAdapter(t *testing.T) {
	s := newRecordingSink()
	m, built := newFakeManager(s)
	_ = m.AddAll([]config.ChannelConfig{
		{Platform: "twitch", ChannelID: "100"},
		{Platform: "youtube", ChannelID: "UC1"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx) }()

	ev := models.NewEvent("e1", models.EventChat, models.PlatformTwitch, models.Sender{ID: "u"}, models.Content{Message: "hi"}, models.Metadata{ChannelID: "100"})
	built["twitch/100"].emit(adapter.KindEvent, ev)
	built["youtube/UC1"].emit(adapter.KindConnected, nil)

	got := s.wait(t, 2)
	kinds := map[adapter.NotificationKind]string{}
	for _, n := range got {
		kinds[n.Kind] = n.ChannelID
	}
	if kinds[adapter.KindEvent] != "100" || kinds[adapter.KindConnected] != "UC1" {
		t.Errorf("unexpected deliveries: %+v", got)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServe_SinkErrorDoesNotStopRelay(t *testing.T) {
	s := newRecordingSink()
	s.fail = true
	m, built := newFakeManager(s)
	_, _ = m.Add(config.ChannelConfig{Platform: "twitch", ChannelID: "100"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Serve(ctx) }()

	a := built["twitch/100"]
	a.emit(adapter.KindConnected, nil)
	a.emit(adapter.KindDisconnected, nil)
	if got := s.wait(t, 2); got[1].Kind != adapter.KindDisconnected {
		t.Errorf("second delivery = %s, want disconnected", got[1].Kind)
	}
}

func TestRegisterDefaults_BuildsPlatformAdapters(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Twitch:    config.TwitchConfig{ClientID: "id", ClientSecret: "secret"},
		YouTube:   config.YouTubeConfig{APIKey: "key"},
		Reconnect: config.ReconnectConfig{MaxAttempts: 2, InitialDelay: time.Second, MaxDelay: 2 * time.Second},
		Currency:  config.CurrencyConfig{BitsRate: 14},
	}
	m := New(newRecordingSink())
	RegisterDefaults(m, cfg, NewConverter(cfg.Currency))

	err := m.AddAll([]config.ChannelConfig{
		{Platform: "twitch", ChannelID: "141981764"},
		{Platform: "youtube", VideoID: "vid-1"},
	})
	if err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	infos := m.Infos()
	if infos[0].Platform != models.PlatformTwitch || infos[0].ChannelID != "141981764" {
		t.Errorf("unexpected twitch info: %+v", infos[0])
	}
	if infos[1].Platform != models.PlatformYouTube || infos[1].ChannelID != "vid-1" {
		t.Errorf("unexpected youtube info: %+v", infos[1])
	}
	for _, info := range infos {
		if info.IsConnected || info.State != adapter.StateDisconnected.String() {
			t.Errorf("new adapter should rest disconnected: %+v", info)
		}
	}
}

func TestNewConverter_AppliesConfiguredRates(t *testing.T) {
	t.Parallel()
	conv := NewConverter(config.CurrencyConfig{BitsRate: 10, Rates: map[string]int64{"usd": 1400}})

	if got, _ := conv.Convert(decimal.NewFromInt(100), normalize.CurrencyBits); got != 1000 {
		t.Errorf("100 bits = %d, want 1000", got)
	}
	if got, _ := conv.Convert(decimal.NewFromInt(5), "USD"); got != 7000 {
		t.Errorf("5 USD = %d, want 7000", got)
	}
	if got, known := conv.Convert(decimal.NewFromInt(5), "EUR"); !known || got != 7250 {
		t.Errorf("5 EUR = %d (known=%v), want built-in 7250", got, known)
	}
}
