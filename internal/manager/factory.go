// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package manager

import (
	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/adapter/twitch"
	"github.com/tomtom215/streamrelay/internal/adapter/youtube"
	"github.com/tomtom215/streamrelay/internal/config"
	"github.com/tomtom215/streamrelay/internal/models"
	"github.com/tomtom215/streamrelay/internal/normalize"
)

// NewConverter builds the settlement converter from currency settings.
func NewConverter(cfg config.CurrencyConfig) *normalize.Converter {
	overrides := make(map[string]int64, len(cfg.Rates)+1)
	for code, rate := range cfg.Rates {
		overrides[code] = rate
	}
	if cfg.BitsRate > 0 {
		overrides[normalize.CurrencyBits] = cfg.BitsRate
	}
	return normalize.NewConverter(normalize.NewStaticRates(overrides))
}

func reconnectPolicy(cfg config.ReconnectConfig) adapter.ReconnectPolicy {
	return adapter.ReconnectPolicy{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
	}
}

// TwitchFactory builds EventSub adapters sharing cfg's credentials.
func TwitchFactory(cfg *config.Config, conv *normalize.Converter) Factory {
	return func(ch config.ChannelConfig) (adapter.Adapter, error) {
		return twitch.New(twitch.Config{
			ChannelID:        ch.ChannelID,
			ClientID:         cfg.Twitch.ClientID,
			ClientSecret:     cfg.Twitch.ClientSecret,
			WebSocketURL:     cfg.Twitch.WebSocketURL,
			APIURL:           cfg.Twitch.APIURL,
			TokenURL:         cfg.Twitch.TokenURL,
			WelcomeTimeout:   cfg.Twitch.WelcomeTimeout,
			KeepaliveTimeout: cfg.Twitch.KeepaliveTimeout,
			Subscriptions:    cfg.Twitch.Subscriptions,
			HelixRPS:         cfg.Twitch.HelixRPS,
			HelixBurst:       cfg.Twitch.HelixBurst,
			Reconnect:        reconnectPolicy(cfg.Reconnect),
			Converter:        conv,
		}), nil
	}
}

// YouTubeFactory builds polling adapters sharing cfg's API key.
func YouTubeFactory(cfg *config.Config, conv *normalize.Converter) Factory {
	return func(ch config.ChannelConfig) (adapter.Adapter, error) {
		return youtube.New(youtube.Config{
			ChannelID:    ch.ChannelID,
			VideoID:      ch.VideoID,
			APIKey:       cfg.YouTube.APIKey,
			APIURL:       cfg.YouTube.APIURL,
			PollInterval: cfg.YouTube.PollInterval,
			Reconnect:    reconnectPolicy(cfg.Reconnect),
			Converter:    conv,
		}), nil
	}
}

// RegisterDefaults installs the twitch and youtube factories.
func RegisterDefaults(m *Manager, cfg *config.Config, conv *normalize.Converter) {
	m.RegisterFactory(models.PlatformTwitch, TwitchFactory(cfg, conv))
	m.RegisterFactory(models.PlatformYouTube, YouTubeFactory(cfg, conv))
}
