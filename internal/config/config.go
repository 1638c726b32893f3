// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

/*
Package config loads and validates streamrelay configuration.

Sources are layered with koanf, lowest precedence first:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML file (CONFIG_PATH, else ./config.yaml or /etc/streamrelay/config.yaml)
 3. Environment variables (see envTransformFunc for the mapping)

Channels can be listed in YAML:

	channels:
	  - platform: twitch
	    channel_id: "141981764"
	  - platform: youtube
	    channel_id: UCSJ4gkVC6NrvII8umztf0Ow

or through CHANNELS=twitch:141981764,youtube:UCSJ4gkVC6NrvII8umztf0Ow. A
YouTube entry may use yt-video:<videoId> to bind to a specific broadcast.
*/
package config

import "time"

// Config is the full process configuration.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Server    ServerConfig    `koanf:"server"`
	Reconnect ReconnectConfig `koanf:"reconnect"`
	Twitch    TwitchConfig    `koanf:"twitch"`
	YouTube   YouTubeConfig   `koanf:"youtube"`
	Currency  CurrencyConfig  `koanf:"currency"`
	NATS      NATSConfig      `koanf:"nats"`
	Overlay   OverlayConfig   `koanf:"overlay"`
	Channels  []ChannelConfig `koanf:"channels" validate:"dive"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// ReconnectConfig bounds the shared reconnect loop.
type ReconnectConfig struct {
	MaxAttempts  int           `koanf:"max_attempts" validate:"min=1"`
	InitialDelay time.Duration `koanf:"initial_delay" validate:"gt=0"`
	MaxDelay     time.Duration `koanf:"max_delay" validate:"gt=0"`
}

// TwitchConfig holds EventSub and Helix settings.
type TwitchConfig struct {
	ClientID         string        `koanf:"client_id"`
	ClientSecret     string        `koanf:"client_secret"`
	WebSocketURL     string        `koanf:"websocket_url" validate:"required,url"`
	APIURL           string        `koanf:"api_url" validate:"required,url"`
	TokenURL         string        `koanf:"token_url" validate:"required,url"`
	WelcomeTimeout   time.Duration `koanf:"welcome_timeout" validate:"gt=0"`
	KeepaliveTimeout time.Duration `koanf:"keepalive_timeout" validate:"gt=0"`
	Subscriptions    []string      `koanf:"subscriptions"`
	HelixRPS         float64       `koanf:"helix_rps" validate:"gt=0"`
	HelixBurst       int           `koanf:"helix_burst" validate:"min=1"`
}

// YouTubeConfig holds Data API settings.
type YouTubeConfig struct {
	APIKey       string        `koanf:"api_key"`
	APIURL       string        `koanf:"api_url" validate:"required,url"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
}

// CurrencyConfig feeds the static settlement rate table. Rates are KRW per
// unit of the keyed currency and extend or replace the built-in table.
type CurrencyConfig struct {
	BitsRate int64            `koanf:"bits_rate" validate:"gt=0"`
	Rates    map[string]int64 `koanf:"rates"`
}

// NATSConfig configures the optional NATS delivery sink.
type NATSConfig struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url"`
	SubjectPrefix string        `koanf:"subject_prefix"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// OverlayConfig configures the overlay WebSocket hub.
type OverlayConfig struct {
	SendBuffer   int           `koanf:"send_buffer" validate:"min=1"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
	PingInterval time.Duration `koanf:"ping_interval" validate:"gt=0"`
}

// ChannelConfig is one channel to ingest.
type ChannelConfig struct {
	Platform  string `koanf:"platform" validate:"required,oneof=twitch youtube"`
	ChannelID string `koanf:"channel_id"`
	VideoID   string `koanf:"video_id"`
	Name      string `koanf:"name"`
}

// Key identifies the channel within its platform.
func (c ChannelConfig) Key() string {
	if c.ChannelID != "" {
		return c.ChannelID
	}
	return c.VideoID
}
