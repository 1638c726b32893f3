// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/metrics"
	"github.com/tomtom215/streamrelay/internal/models"
)

// Sink receives adapter notifications from the manager.
type Sink interface {
	Name() string
	Publish(ctx context.Context, n adapter.Notification) error
	Close() error
}

// Message is the envelope every sink serializes: {type, data}. Type is the
// notification kind; Data is the NormalizedEvent for events and StatusData
// otherwise.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StatusData describes a connected, disconnected or error notification.
type StatusData struct {
	Platform  models.Platform `json:"platform"`
	ChannelID string          `json:"channelId"`
	Error     string          `json:"error,omitempty"`
}

// NewMessage builds the wire envelope for n.
func NewMessage(n adapter.Notification) Message {
	if n.Kind == adapter.KindEvent && n.Event != nil {
		return Message{Type: string(n.Kind), Data: n.Event}
	}
	status := StatusData{Platform: n.Platform, ChannelID: n.ChannelID}
	if n.Err != nil {
		status.Error = n.Err.Error()
	}
	return Message{Type: string(n.Kind), Data: status}
}

// Fanout publishes each notification to every sink concurrently. A failing
// sink does not stop delivery to the others.
type Fanout struct {
	sinks []Sink
}

var _ Sink = (*Fanout)(nil)

// NewFanout creates a fan-out over sinks. Nil entries are skipped.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Name implements Sink.
func (f *Fanout) Name() string { return "fanout" }

// Publish delivers n to all sinks and joins their errors.
func (f *Fanout) Publish(ctx context.Context, n adapter.Notification) error {
	switch len(f.sinks) {
	case 0:
		return nil
	case 1:
		return f.publishOne(ctx, f.sinks[0], n)
	}

	p := pool.New().WithErrors()
	for _, s := range f.sinks {
		p.Go(func() error {
			return f.publishOne(ctx, s, n)
		})
	}
	return p.Wait()
}

func (f *Fanout) publishOne(ctx context.Context, s Sink, n adapter.Notification) error {
	if err := s.Publish(ctx, n); err != nil {
		metrics.SinkPublishErrors.WithLabelValues(s.Name()).Inc()
		return fmt.Errorf("%s: %w", s.Name(), err)
	}
	return nil
}

// Close closes every sink.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
