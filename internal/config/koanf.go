// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/streamrelay/config.yaml",
	"/etc/streamrelay/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultTwitchSubscriptions is the EventSub set requested per channel.
var DefaultTwitchSubscriptions = []string{
	"channel.chat.message",
	"channel.cheer",
	"channel.subscribe",
	"channel.subscription.gift",
	"channel.subscription.message",
	"channel.follow",
	"channel.raid",
}

func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8420,
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:  5,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
		},
		Twitch: TwitchConfig{
			WebSocketURL:     "wss://eventsub.wss.twitch.tv/ws",
			APIURL:           "https://api.twitch.tv/helix",
			TokenURL:         "https://id.twitch.tv/oauth2/token",
			WelcomeTimeout:   15 * time.Second,
			KeepaliveTimeout: 10 * time.Second,
			Subscriptions:    append([]string(nil), DefaultTwitchSubscriptions...),
			HelixRPS:         10,
			HelixBurst:       5,
		},
		YouTube: YouTubeConfig{
			APIURL:       "https://www.googleapis.com/youtube/v3",
			PollInterval: 5 * time.Second,
		},
		Currency: CurrencyConfig{
			BitsRate: 14,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "streamrelay",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Overlay: OverlayConfig{
			SendBuffer:   256,
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
		},
	}
}

// Load loads configuration with layered sources: defaults, then the optional
// YAML file, then environment variables. The result is validated.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	if err := processChannels(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when they come from env.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"twitch.subscriptions",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		if parts := splitList(strVal); len(parts) > 0 {
			if err := k.Set(path, parts); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// processChannels expands CHANNELS=platform:id[,platform:id...] into the
// channels list. yt-video:<id> selects a YouTube video id instead of a
// channel id.
func processChannels(k *koanf.Koanf) error {
	strVal, ok := k.Get("channels").(string)
	if !ok {
		return nil
	}

	channels := make([]map[string]interface{}, 0)
	for _, item := range splitList(strVal) {
		platform, id, found := strings.Cut(item, ":")
		if !found || id == "" {
			return fmt.Errorf("invalid CHANNELS entry %q: want platform:id", item)
		}
		entry := map[string]interface{}{"platform": strings.ToLower(platform)}
		if strings.EqualFold(platform, "yt-video") {
			entry["platform"] = "youtube"
			entry["video_id"] = id
		} else {
			entry["channel_id"] = id
		}
		channels = append(channels, entry)
	}

	k.Delete("channels")
	if err := k.Set("channels", channels); err != nil {
		return fmt.Errorf("failed to set channels: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped variables are skipped.
//
//   - TWITCH_CLIENT_ID -> twitch.client_id
//   - HTTP_PORT -> server.port
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Server
		"http_host":             "server.host",
		"http_port":             "server.port",
		"http_read_timeout":     "server.read_timeout",
		"http_shutdown_timeout": "server.shutdown_timeout",
		"cors_origins":          "server.cors_origins",
		"rate_limit_requests":   "server.rate_limit_reqs",
		"rate_limit_window":     "server.rate_limit_window",
		"disable_rate_limit":    "server.rate_limit_disabled",

		// Reconnect
		"reconnect_max_attempts":  "reconnect.max_attempts",
		"reconnect_initial_delay": "reconnect.initial_delay",
		"reconnect_max_delay":     "reconnect.max_delay",

		// Twitch
		"twitch_client_id":         "twitch.client_id",
		"twitch_client_secret":     "twitch.client_secret",
		"twitch_websocket_url":     "twitch.websocket_url",
		"twitch_api_url":           "twitch.api_url",
		"twitch_token_url":         "twitch.token_url",
		"twitch_welcome_timeout":   "twitch.welcome_timeout",
		"twitch_keepalive_timeout": "twitch.keepalive_timeout",
		"twitch_subscriptions":     "twitch.subscriptions",
		"twitch_helix_rps":         "twitch.helix_rps",
		"twitch_helix_burst":       "twitch.helix_burst",

		// YouTube
		"youtube_api_key":       "youtube.api_key",
		"youtube_api_url":       "youtube.api_url",
		"youtube_poll_interval": "youtube.poll_interval",

		// Currency
		"bits_rate": "currency.bits_rate",

		// NATS
		"nats_enabled":        "nats.enabled",
		"nats_url":            "nats.url",
		"nats_subject_prefix": "nats.subject_prefix",
		"nats_max_reconnects": "nats.max_reconnects",
		"nats_reconnect_wait": "nats.reconnect_wait",

		// Overlay
		"overlay_send_buffer":   "overlay.send_buffer",
		"overlay_write_timeout": "overlay.write_timeout",
		"overlay_ping_interval": "overlay.ping_interval",

		// Channels
		"channels": "channels",
	}

	return envMappings[strings.ToLower(key)]
}
