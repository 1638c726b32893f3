// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/logging"
)

// DefaultStateCheckInterval is how often a running adapter's state is sampled.
const DefaultStateCheckInterval = time.Second

// ErrSessionEnded is returned when an adapter falls back to disconnected on
// its own: the stream went offline or reconnects were exhausted.
var ErrSessionEnded = errors.New("adapter session ended")

// AdapterService runs one platform adapter under suture.
//
// Serve connects the adapter and then watches its state. A failed Connect
// and a session that ends by itself both return an error, so suture's
// failure backoff decides when the next Connect happens. Cancellation
// disconnects the adapter and returns ctx.Err().
type AdapterService struct {
	adapter       adapter.Adapter
	clock         clockwork.Clock
	checkInterval time.Duration
	name          string
	log           zerolog.Logger
}

// AdapterServiceOption customizes an AdapterService.
type AdapterServiceOption func(*AdapterService)

// WithClock replaces the clock driving the state check.
func WithClock(c clockwork.Clock) AdapterServiceOption {
	return func(s *AdapterService) { s.clock = c }
}

// WithStateCheckInterval sets how often the adapter state is sampled.
func WithStateCheckInterval(d time.Duration) AdapterServiceOption {
	return func(s *AdapterService) {
		if d > 0 {
			s.checkInterval = d
		}
	}
}

// NewAdapterService wraps a for supervision.
func NewAdapterService(a adapter.Adapter, opts ...AdapterServiceOption) *AdapterService {
	info := a.Info()
	s := &AdapterService{
		adapter:       a,
		clock:         clockwork.NewRealClock(),
		checkInterval: DefaultStateCheckInterval,
		name:          fmt.Sprintf("adapter-%s-%s", info.Platform, info.ChannelID),
		log:           logging.ForAdapter(string(info.Platform), info.ChannelID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve implements suture.Service.
func (s *AdapterService) Serve(ctx context.Context) error {
	if err := s.adapter.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn().Err(err).Msg("Adapter connect failed")
		return fmt.Errorf("%s connect: %w", s.name, err)
	}
	defer func() {
		if err := s.adapter.Disconnect(); err != nil {
			s.log.Debug().Err(err).Msg("Adapter disconnect error")
		}
	}()

	ticker := s.clock.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if s.adapter.Info().State == adapter.StateDisconnected.String() {
				s.log.Info().Msg("Adapter session ended, handing back to supervisor")
				return fmt.Errorf("%s: %w", s.name, ErrSessionEnded)
			}
		}
	}
}

// String implements fmt.Stringer for logging.
func (s *AdapterService) String() string {
	return s.name
}
