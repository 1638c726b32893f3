// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

/*
Package youtube implements the polling adapter for YouTube live chat.

Connect resolves the live chat id: a configured video id is tried first,
then the channel's current live broadcast. Polling then runs on a single
goroutine. Each tick requests the page after the last nextPageToken, emits
the mapped items, and waits for the interval the server last suggested.

A 403 from the chat endpoint ends the session the same way Disconnect does.
Any other tick failure is logged and the next tick runs on schedule.
*/
package youtube

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/metrics"
	"github.com/tomtom215/streamrelay/internal/models"
	"github.com/tomtom215/streamrelay/internal/normalize"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultAPIURL       = "https://www.googleapis.com/youtube/v3"
	DefaultPollInterval = 5 * time.Second
)

// Poll tick outcomes recorded in streamrelay_poll_ticks_total.
const (
	tickOK        = "ok"
	tickError     = "error"
	tickForbidden = "forbidden"
)

// Config configures one YouTube channel or video adapter.
type Config struct {
	ChannelID string
	VideoID   string
	APIKey    string
	APIURL    string

	// PollInterval is used until the server suggests one.
	PollInterval time.Duration

	Reconnect adapter.ReconnectPolicy
	QueueSize int

	Converter  *normalize.Converter
	Clock      clockwork.Clock
	HTTPClient *http.Client
}

// Key is the identifier the adapter reports as its channel id.
func (c Config) Key() string {
	if c.ChannelID != "" {
		return c.ChannelID
	}
	return c.VideoID
}

func (c Config) withDefaults() Config {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Converter == nil {
		c.Converter = normalize.NewConverter(nil)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// Adapter polls one live chat.
type Adapter struct {
	*adapter.Base

	cfg    Config
	client *client
	mapper *mapper

	mu         sync.Mutex
	videoID    string
	liveChatID string
	pageToken  string
	interval   time.Duration
	done       chan struct{}
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates a disconnected adapter.
func New(cfg Config) *Adapter {
	cfg = cfg.withDefaults()
	base := adapter.NewBase(adapter.Options{
		Platform:  models.PlatformYouTube,
		ChannelID: cfg.Key(),
		Reconnect: cfg.Reconnect,
		QueueSize: cfg.QueueSize,
		Clock:     cfg.Clock,
	})
	return &Adapter{
		Base:     base,
		cfg:      cfg,
		client:   newClient(cfg, cfg.Key()),
		mapper:   &mapper{channelID: cfg.Key(), converter: cfg.Converter, log: base.Log()},
		interval: cfg.PollInterval,
	}
}

// Connect resolves the live chat and starts polling. ErrNotLive is returned
// when neither the video nor the channel has an active chat.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.IsConnected() {
		return nil
	}
	if a.cfg.APIKey == "" {
		return fmt.Errorf("youtube: %w: api key is required", adapter.ErrMissingCredentials)
	}
	if a.cfg.ChannelID == "" && a.cfg.VideoID == "" {
		return fmt.Errorf("youtube: channel id or video id is required")
	}

	life := a.Lifetime(ctx)
	a.MarkConnecting()

	videoID, chatID, err := a.resolve(ctx)
	if err != nil {
		a.MarkConnectFailed()
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if life.Err() != nil {
		a.MarkConnectFailed()
		return life.Err()
	}
	a.videoID = videoID
	a.liveChatID = chatID
	a.pageToken = ""
	a.interval = a.cfg.PollInterval
	a.done = make(chan struct{})
	metrics.SetPollInterval(a.ChannelID(), a.interval)

	a.Log().Info().Str("video_id", videoID).Str("live_chat_id", chatID).Msg("Live chat resolved")
	a.MarkConnected()

	go a.pollLoop(life, a.done)
	return nil
}

// resolve tries the configured video first, then the channel's live broadcast.
func (a *Adapter) resolve(ctx context.Context) (videoID, chatID string, err error) {
	if a.cfg.VideoID != "" {
		chatID, err = a.client.activeLiveChatID(ctx, a.cfg.VideoID)
		if err != nil {
			return "", "", fmt.Errorf("youtube: resolve video %s: %w", a.cfg.VideoID, err)
		}
		if chatID != "" {
			return a.cfg.VideoID, chatID, nil
		}
	}

	if a.cfg.ChannelID != "" {
		videoID, err = a.client.liveVideoID(ctx, a.cfg.ChannelID)
		if err != nil {
			return "", "", fmt.Errorf("youtube: find live broadcast for %s: %w", a.cfg.ChannelID, err)
		}
		if videoID != "" {
			chatID, err = a.client.activeLiveChatID(ctx, videoID)
			if err != nil {
				return "", "", fmt.Errorf("youtube: resolve video %s: %w", videoID, err)
			}
			if chatID != "" {
				return videoID, chatID, nil
			}
		}
	}

	return "", "", fmt.Errorf("youtube: %s: %w", a.cfg.Key(), adapter.ErrNotLive)
}

// pollLoop runs ticks back to back with the current interval between them.
// A tick never overlaps the previous one.
func (a *Adapter) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if !a.tick(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-a.Clock().After(a.Interval()):
		}
	}
}

// tick runs one request/emit cycle and reports whether polling continues.
func (a *Adapter) tick(ctx context.Context) bool {
	a.mu.Lock()
	chatID, token := a.liveChatID, a.pageToken
	meta := sessionMeta{VideoID: a.videoID, LiveChatID: a.liveChatID}
	a.mu.Unlock()

	resp, err := a.client.listMessages(ctx, chatID, token)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		if adapter.IsForbidden(err) {
			metrics.RecordPollTick(tickForbidden)
			a.Log().Info().Err(err).Msg("Live chat no longer accessible, ending session")
			a.disconnect(false)
			return false
		}
		metrics.RecordPollTick(tickError)
		a.Log().Warn().Err(err).Msg("Poll tick failed")
		return true
	}
	metrics.RecordPollTick(tickOK)
	if ctx.Err() != nil {
		return false
	}

	for _, raw := range resp.Items {
		ev, ok, err := a.mapper.Map(raw, meta)
		if err != nil {
			metrics.MalformedMessages.WithLabelValues(string(models.PlatformYouTube)).Inc()
			a.Log().Warn().Err(err).Msg("Failed to map chat item")
			continue
		}
		if !ok {
			continue
		}
		a.EmitEvent(ev)
	}

	a.mu.Lock()
	if resp.NextPageToken != "" {
		a.pageToken = resp.NextPageToken
	}
	if resp.PollingIntervalMillis > 0 {
		a.interval = time.Duration(resp.PollingIntervalMillis) * time.Millisecond
		metrics.SetPollInterval(a.ChannelID(), a.interval)
	}
	a.mu.Unlock()

	if resp.OfflineAt != "" {
		a.Log().Info().Str("offline_at", resp.OfflineAt).Msg("Broadcast went offline, ending session")
		a.disconnect(false)
		return false
	}
	return true
}

// Disconnect stops polling and waits for an in-flight tick to finish.
// It is idempotent.
func (a *Adapter) Disconnect() error {
	a.disconnect(true)
	return nil
}

// disconnect is shared with the poll loop, which must not wait on itself.
func (a *Adapter) disconnect(wait bool) {
	a.EndLifetime()

	a.mu.Lock()
	done := a.done
	a.done = nil
	a.liveChatID = ""
	a.pageToken = ""
	a.MarkDisconnected()
	a.mu.Unlock()

	if wait && done != nil {
		<-done
	}
}

// Interval returns the current poll interval.
func (a *Adapter) Interval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interval
}

// PageToken returns the cursor the next tick will send.
func (a *Adapter) PageToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pageToken
}

// LiveChatID returns the resolved chat id, empty when disconnected.
func (a *Adapter) LiveChatID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.liveChatID
}
