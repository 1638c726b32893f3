// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/streamrelay/internal/validation"
)

// Validate checks field rules first, then the rules that span sections.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if err := c.validateReconnect(); err != nil {
		return err
	}
	if err := c.validateTwitch(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	return c.validateChannels()
}

func (c *Config) validateReconnect() error {
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("reconnect.max_delay (%v) must not be below reconnect.initial_delay (%v)",
			c.Reconnect.MaxDelay, c.Reconnect.InitialDelay)
	}
	return nil
}

func (c *Config) validateTwitch() error {
	u, err := url.Parse(c.Twitch.WebSocketURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("twitch.websocket_url must be a ws:// or wss:// URL, got %q", c.Twitch.WebSocketURL)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.enabled=true")
	}
	if c.NATS.SubjectPrefix == "" || strings.ContainsAny(c.NATS.SubjectPrefix, " *>") {
		return fmt.Errorf("nats.subject_prefix %q is not a valid subject token", c.NATS.SubjectPrefix)
	}
	return nil
}

func (c *Config) validateChannels() error {
	seen := make(map[string]int, len(c.Channels))
	for i, ch := range c.Channels {
		switch ch.Platform {
		case "twitch":
			if ch.ChannelID == "" {
				return fmt.Errorf("channels[%d]: twitch channel requires channel_id (broadcaster user id)", i)
			}
			if c.Twitch.ClientID == "" || c.Twitch.ClientSecret == "" {
				return fmt.Errorf("channels[%d]: TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET are required for twitch channels", i)
			}
		case "youtube":
			if ch.ChannelID == "" && ch.VideoID == "" {
				return fmt.Errorf("channels[%d]: youtube channel requires channel_id or video_id", i)
			}
			if c.YouTube.APIKey == "" {
				return fmt.Errorf("channels[%d]: YOUTUBE_API_KEY is required for youtube channels", i)
			}
		}

		key := ch.Platform + "/" + ch.Key()
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("channels[%d] duplicates channels[%d] (%s)", i, prev, key)
		}
		seen[key] = i
	}
	return nil
}
