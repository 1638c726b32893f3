// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package sink

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/logging"
	"github.com/tomtom215/streamrelay/internal/metrics"
	"github.com/tomtom215/streamrelay/internal/models"
)

//nolint:gochecknoinits // keep test output quiet
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

type recordingSink struct {
	name string
	err  error

	mu  sync.Mutex
	got []adapter.Notification

	closed bool
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Publish(_ context.Context, n adapter.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func testEvent() *models.NormalizedEvent {
	return models.NewEvent("evt-1", models.EventChat, models.PlatformTwitch,
		models.Sender{ID: "u1", Nickname: "viewer"},
		models.Content{Message: "hi"},
		models.Metadata{ChannelID: "141981764"})
}

func eventNotification() adapter.Notification {
	return adapter.Notification{
		Kind:      adapter.KindEvent,
		Platform:  models.PlatformTwitch,
		ChannelID: "141981764",
		Event:     testEvent(),
	}
}

func TestNewMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		n         adapter.Notification
		wantType  string
		wantError string
	}{
		{"event", eventNotification(), "event", ""},
		{"connected", adapter.Notification{Kind: adapter.KindConnected, Platform: models.PlatformYouTube, ChannelID: "UC1"}, "connected", ""},
		{"error", adapter.Notification{Kind: adapter.KindError, Platform: models.PlatformYouTube, ChannelID: "UC1", Err: errors.New("boom")}, "error", "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := NewMessage(tt.n)
			if msg.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", msg.Type, tt.wantType)
			}
			switch data := msg.Data.(type) {
			case *models.NormalizedEvent:
				if tt.n.Kind != adapter.KindEvent || data.ID != "evt-1" {
					t.Errorf("unexpected event data: %+v", data)
				}
			case StatusData:
				if data.Platform != tt.n.Platform || data.ChannelID != tt.n.ChannelID || data.Error != tt.wantError {
					t.Errorf("unexpected status data: %+v", data)
				}
			default:
				t.Errorf("unexpected data type %T", msg.Data)
			}
		})
	}
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	bad := &recordingSink{name: "test-bad", err: errors.New("unavailable")}
	before := testutil.ToFloat64(metrics.SinkPublishErrors.WithLabelValues("test-bad"))

	f := NewFanout(ok, nil, bad)
	err := f.Publish(context.Background(), eventNotification())
	if err == nil || !strings.Contains(err.Error(), "test-bad: unavailable") {
		t.Fatalf("Publish() error = %v, want joined sink error", err)
	}
	if ok.count() != 1 || bad.count() != 1 {
		t.Errorf("deliveries ok=%d bad=%d, want 1 each", ok.count(), bad.count())
	}
	if got := testutil.ToFloat64(metrics.SinkPublishErrors.WithLabelValues("test-bad")) - before; got != 1 {
		t.Errorf("publish error delta = %v, want 1", got)
	}

	if err := f.Close(); err == nil {
		t.Error("Close() should report the failing sink")
	}
	if !ok.closed || !bad.closed {
		t.Error("Close() must reach every sink")
	}
}

func TestFanout_Empty(t *testing.T) {
	t.Parallel()
	if err := NewFanout().Publish(context.Background(), eventNotification()); err != nil {
		t.Errorf("empty fanout Publish() error = %v", err)
	}
}
