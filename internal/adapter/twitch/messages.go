// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

/*
messages.go - EventSub WebSocket frames and event payloads

Every frame is {"metadata": {...}, "payload": {...}}. metadata.message_type
selects the payload shape:

	session_welcome     payload.session (id, keepalive_timeout_seconds)
	session_keepalive   empty payload
	session_reconnect   payload.session.reconnect_url
	notification        payload.subscription + payload.event
	revocation          payload.subscription

Reference: https://dev.twitch.tv/docs/eventsub/websocket-reference/
*/

package twitch

import (
	"github.com/goccy/go-json"
)

// EventSub WebSocket message types.
const (
	messageSessionWelcome   = "session_welcome"
	messageSessionKeepalive = "session_keepalive"
	messageSessionReconnect = "session_reconnect"
	messageNotification     = "notification"
	messageRevocation       = "revocation"
)

// EventSub subscription types this adapter maps.
const (
	SubChatMessage         = "channel.chat.message"
	SubCheer               = "channel.cheer"
	SubSubscribe           = "channel.subscribe"
	SubSubscriptionGift    = "channel.subscription.gift"
	SubSubscriptionMessage = "channel.subscription.message"
	SubFollow              = "channel.follow"
	SubRaid                = "channel.raid"
)

type wsMessage struct {
	Metadata messageMetadata `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

type messageMetadata struct {
	MessageID           string `json:"message_id"`
	MessageType         string `json:"message_type"`
	MessageTimestamp    string `json:"message_timestamp"`
	SubscriptionType    string `json:"subscription_type,omitempty"`
	SubscriptionVersion string `json:"subscription_version,omitempty"`
}

type sessionPayload struct {
	Session session `json:"session"`
}

type session struct {
	ID                      string  `json:"id"`
	Status                  string  `json:"status"`
	KeepaliveTimeoutSeconds *int    `json:"keepalive_timeout_seconds"`
	ReconnectURL            *string `json:"reconnect_url"`
	ConnectedAt             string  `json:"connected_at"`
}

type notificationPayload struct {
	Subscription subscription    `json:"subscription"`
	Event        json.RawMessage `json:"event"`
}

type revocationPayload struct {
	Subscription subscription `json:"subscription"`
}

type subscription struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
}

// Event payloads. Only the fields the mapper reads are declared.

type chatBadge struct {
	SetID string `json:"set_id"`
	ID    string `json:"id"`
	Info  string `json:"info"`
}

type chatMessageEvent struct {
	BroadcasterUserID string      `json:"broadcaster_user_id"`
	ChatterUserID     string      `json:"chatter_user_id"`
	ChatterUserLogin  string      `json:"chatter_user_login"`
	ChatterUserName   string      `json:"chatter_user_name"`
	MessageID         string      `json:"message_id"`
	Message           chatText    `json:"message"`
	MessageType       string      `json:"message_type"`
	Badges            []chatBadge `json:"badges"`
}

type chatText struct {
	Text string `json:"text"`
}

type cheerEvent struct {
	IsAnonymous       bool    `json:"is_anonymous"`
	UserID            *string `json:"user_id"`
	UserLogin         *string `json:"user_login"`
	UserName          *string `json:"user_name"`
	BroadcasterUserID string  `json:"broadcaster_user_id"`
	Message           string  `json:"message"`
	Bits              int64   `json:"bits"`
}

type subscribeEvent struct {
	UserID            string `json:"user_id"`
	UserLogin         string `json:"user_login"`
	UserName          string `json:"user_name"`
	BroadcasterUserID string `json:"broadcaster_user_id"`
	Tier              string `json:"tier"`
	IsGift            bool   `json:"is_gift"`
}

type giftEvent struct {
	UserID            *string `json:"user_id"`
	UserLogin         *string `json:"user_login"`
	UserName          *string `json:"user_name"`
	BroadcasterUserID string  `json:"broadcaster_user_id"`
	Total             int     `json:"total"`
	Tier              string  `json:"tier"`
	CumulativeTotal   *int    `json:"cumulative_total"`
	IsAnonymous       bool    `json:"is_anonymous"`
}

type resubEvent struct {
	UserID            string   `json:"user_id"`
	UserLogin         string   `json:"user_login"`
	UserName          string   `json:"user_name"`
	BroadcasterUserID string   `json:"broadcaster_user_id"`
	Tier              string   `json:"tier"`
	Message           chatText `json:"message"`
	CumulativeMonths  int      `json:"cumulative_months"`
	StreakMonths      *int     `json:"streak_months"`
	DurationMonths    int      `json:"duration_months"`
}

type followEvent struct {
	UserID            string `json:"user_id"`
	UserLogin         string `json:"user_login"`
	UserName          string `json:"user_name"`
	BroadcasterUserID string `json:"broadcaster_user_id"`
	FollowedAt        string `json:"followed_at"`
}

type raidEvent struct {
	FromBroadcasterUserID    string `json:"from_broadcaster_user_id"`
	FromBroadcasterUserLogin string `json:"from_broadcaster_user_login"`
	FromBroadcasterUserName  string `json:"from_broadcaster_user_name"`
	ToBroadcasterUserID      string `json:"to_broadcaster_user_id"`
	Viewers                  int    `json:"viewers"`
}
