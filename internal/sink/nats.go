// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/logging"
)

// DefaultSubjectPrefix is the first subject token when none is configured.
const DefaultSubjectPrefix = "streamrelay"

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// NATSSink publishes notifications to core NATS through watermill.
//
// Subjects:
//
//	<prefix>.events.<platform>.<type>   normalized events
//	<prefix>.status.<platform>          connected, disconnected, error
//
// The payload is the JSON Message envelope. Events reuse their id as the
// watermill message UUID and Nats-Msg-Id.
type NATSSink struct {
	publisher message.Publisher
	breaker   *adapter.Breaker
	prefix    string

	mu     sync.RWMutex
	closed bool
}

var _ Sink = (*NATSSink)(nil)

// NewNATSSink connects to cfg.URL. The connection retries in the background
// when the server is not yet reachable.
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	logger := newWatermillLogger(logging.WithComponent("nats-sink"))

	natsOpts := []natsgo.Option{
		natsgo.Name("streamrelay"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	return &NATSSink{
		publisher: pub,
		breaker:   adapter.NewBreaker("nats-sink"),
		prefix:    strings.TrimSuffix(cfg.SubjectPrefix, "."),
	}, nil
}

// Name implements Sink.
func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject n is published on.
func (s *NATSSink) Subject(n adapter.Notification) string {
	if n.Kind == adapter.KindEvent && n.Event != nil {
		return fmt.Sprintf("%s.events.%s.%s", s.prefix, n.Platform, n.Event.Type)
	}
	return fmt.Sprintf("%s.status.%s", s.prefix, n.Platform)
}

// Publish implements Sink.
func (s *NATSSink) Publish(ctx context.Context, n adapter.Notification) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("nats sink is closed")
	}

	payload, err := json.Marshal(NewMessage(n))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	id := uuid.NewString()
	if n.Kind == adapter.KindEvent && n.Event != nil {
		id = n.Event.ID
	}
	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(natsgo.MsgIdHdr, id)
	msg.Metadata.Set("type", string(n.Kind))
	msg.Metadata.Set("platform", string(n.Platform))
	msg.Metadata.Set("channel_id", n.ChannelID)

	subject := s.Subject(n)
	_, err = s.breaker.Do(func() ([]byte, error) {
		return nil, s.publisher.Publish(subject, msg)
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close implements Sink.
func (s *NATSSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.publisher.Close()
}

// watermillLogger routes watermill logs to zerolog.
type watermillLogger struct {
	log zerolog.Logger
}

func newWatermillLogger(log zerolog.Logger) watermill.LoggerAdapter {
	return &watermillLogger{log: log}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error().Err(err).Fields(map[string]any(fields)).Msg(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Info().Fields(map[string]any(fields)).Msg(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug().Fields(map[string]any(fields)).Msg(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Trace().Fields(map[string]any(fields)).Msg(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: l.log.With().Fields(map[string]any(fields)).Logger()}
}
