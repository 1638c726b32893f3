// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package services

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/logging"
	"github.com/tomtom215/streamrelay/internal/models"
)

//nolint:gochecknoinits // keep test output quiet
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

type fakeAdapter struct {
	connectErr  error
	state       atomic.Int32
	connects    atomic.Int32
	disconnects atomic.Int32
}

func (f *fakeAdapter) Connect(ctx context.Context) error {
	f.connects.Add(1)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.state.Store(int32(adapter.StateConnected))
	return nil
}

func (f *fakeAdapter) Disconnect() error {
	f.disconnects.Add(1)
	f.state.Store(int32(adapter.StateDisconnected))
	return nil
}

func (f *fakeAdapter) Notifications() <-chan adapter.Notification { return nil }

func (f *fakeAdapter) Info() adapter.Info {
	st := adapter.State(f.state.Load())
	return adapter.Info{
		Platform:    models.PlatformTwitch,
		ChannelID:   "141981764",
		IsConnected: st == adapter.StateConnected,
		State:       st.String(),
	}
}

func runService(ctx context.Context, svc suture.Service) <-chan error {
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	return done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestAdapterService_Name(t *testing.T) {
	t.Parallel()
	if got := NewAdapterService(&fakeAdapter{}).String(); got != "adapter-twitch-141981764" {
		t.Errorf("String() = %q", got)
	}
}

func TestAdapterService_ConnectErrorReturned(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{connectErr: adapter.ErrMissingCredentials}
	svc := NewAdapterService(a, WithClock(clockwork.NewFakeClock()))

	err := svc.Serve(context.Background())
	if !errors.Is(err, adapter.ErrMissingCredentials) {
		t.Fatalf("Serve() = %v, want ErrMissingCredentials", err)
	}
	if got := a.disconnects.Load(); got != 0 {
		t.Errorf("Disconnect called %d times after a failed connect", got)
	}
}

func TestAdapterService_ConnectErrorDuringShutdown(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewAdapterService(&fakeAdapter{connectErr: errors.New("dial: context canceled")})

	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}

func TestAdapterService_ReturnsWhenSessionEnds(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	a := &fakeAdapter{}
	svc := NewAdapterService(a, WithClock(clock), WithStateCheckInterval(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runService(ctx, svc)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("state check ticker never started: %v", err)
	}

	clock.Advance(time.Second)
	select {
	case err := <-done:
		t.Fatalf("Serve returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	a.state.Store(int32(adapter.StateReconnecting))
	clock.Advance(time.Second)
	select {
	case err := <-done:
		t.Fatalf("Serve returned while reconnecting: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	a.state.Store(int32(adapter.StateDisconnected))
	clock.Advance(time.Second)
	if err := waitResult(t, done); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("Serve() = %v, want ErrSessionEnded", err)
	}
	if got := a.disconnects.Load(); got != 1 {
		t.Errorf("Disconnect called %d times, want 1", got)
	}
}

func TestAdapterService_CancelDisconnects(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{}
	svc := NewAdapterService(a, WithClock(clockwork.NewFakeClock()))

	ctx, cancel := context.WithCancel(context.Background())
	done := runService(ctx, svc)
	for a.connects.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := waitResult(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if got := a.disconnects.Load(); got != 1 {
		t.Errorf("Disconnect called %d times, want 1", got)
	}
}

func TestAdapterService_WithStateCheckIntervalIgnoresZero(t *testing.T) {
	t.Parallel()
	svc := NewAdapterService(&fakeAdapter{}, WithStateCheckInterval(0))
	if svc.checkInterval != DefaultStateCheckInterval {
		t.Errorf("checkInterval = %v, want default", svc.checkInterval)
	}
}
