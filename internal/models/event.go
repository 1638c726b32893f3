// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// EventType is the canonical kind of a normalized event.
type EventType string

const (
	EventChat      EventType = "chat"
	EventDonation  EventType = "donation"
	EventSubscribe EventType = "subscribe"
	EventFollow    EventType = "follow"
	EventRaid      EventType = "raid"
)

// Valid reports whether t is one of the five canonical event types.
func (t EventType) Valid() bool {
	switch t {
	case EventChat, EventDonation, EventSubscribe, EventFollow, EventRaid:
		return true
	}
	return false
}

// Platform identifies the adapter family that produced an event.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformYouTube Platform = "youtube"
)

// Role is the normalized standing of a sender in the channel.
type Role string

const (
	RoleStreamer   Role = "streamer"
	RoleManager    Role = "manager"
	RoleVIP        Role = "vip"
	RoleSubscriber Role = "subscriber"
	RoleRegular    Role = "regular"
)

// Valid reports whether r is one of the five canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStreamer, RoleManager, RoleVIP, RoleSubscriber, RoleRegular:
		return true
	}
	return false
}

// Badge is a platform-native badge descriptor, kept in source order.
type Badge struct {
	SetID string `json:"setId"`
	ID    string `json:"id,omitempty"`
	Info  string `json:"info,omitempty"`
}

// Sender describes who triggered the event.
type Sender struct {
	ID           string  `json:"id"`
	Nickname     string  `json:"nickname"`
	ProfileImage *string `json:"profileImage"`
	Role         Role    `json:"role"`
	Badges       []Badge `json:"badges"`
}

// Sticker carries super sticker metadata for donations that include one.
type Sticker struct {
	ID      string `json:"id"`
	AltText string `json:"altText,omitempty"`
}

// Content is the type-dependent payload. Only the fields relevant to the
// event type are populated; the rest are omitted from JSON.
//
// Amount is always in the settlement currency (KRW). OriginalAmount and
// Currency keep the native value for audit.
type Content struct {
	Message string `json:"message"`

	// donation
	Amount         *int64   `json:"amount,omitempty"`
	OriginalAmount *float64 `json:"originalAmount,omitempty"`
	Currency       string   `json:"currency,omitempty"`
	DonationType   string   `json:"donationType,omitempty"`
	Sticker        *Sticker `json:"sticker,omitempty"`

	// donation and subscribe
	Tier string `json:"tier,omitempty"`

	// subscribe
	IsGift           bool `json:"isGift,omitempty"`
	GiftCount        *int `json:"giftCount,omitempty"`
	CumulativeTotal  *int `json:"cumulativeTotal,omitempty"`
	CumulativeMonths *int `json:"cumulativeMonths,omitempty"`
	StreakMonths     *int `json:"streakMonths,omitempty"`

	// raid
	ViewerCount *int `json:"viewerCount,omitempty"`
}

// Metadata carries ordering, routing and audit information.
type Metadata struct {
	Timestamp        time.Time       `json:"timestamp"`
	ChannelID        string          `json:"channelId"`
	BroadcasterID    string          `json:"broadcasterId,omitempty"`
	SubscriptionType string          `json:"subscriptionType,omitempty"`
	VideoID          string          `json:"videoId,omitempty"`
	LiveChatID       string          `json:"liveChatId,omitempty"`
	RawData          json.RawMessage `json:"rawData,omitempty"`
}

// NormalizedEvent is the single canonical shape every adapter emits.
// It is treated as immutable once constructed: adapters build it, emit it
// once, and never touch it again.
type NormalizedEvent struct {
	ID       string    `json:"id"`
	Type     EventType `json:"type"`
	Platform Platform  `json:"platform"`
	Sender   Sender    `json:"sender"`
	Content  Content   `json:"content"`
	Metadata Metadata  `json:"metadata"`
}

// NewEvent assembles an event, substituting a random UUID when the platform
// did not supply an id and the ingestion time when it did not supply a
// timestamp. Badges are never nil so JSON consumers always see an array.
func NewEvent(id string, typ EventType, platform Platform, sender Sender, content Content, meta Metadata) *NormalizedEvent {
	if id == "" {
		id = uuid.NewString()
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	if sender.Badges == nil {
		sender.Badges = []Badge{}
	}
	if sender.Role == "" {
		sender.Role = RoleRegular
	}
	return &NormalizedEvent{
		ID:       id,
		Type:     typ,
		Platform: platform,
		Sender:   sender,
		Content:  content,
		Metadata: meta,
	}
}

// Validate checks the invariants every emitted event must hold.
func (e *NormalizedEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is empty")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("event type %q is not canonical", e.Type)
	}
	if !e.Sender.Role.Valid() {
		return fmt.Errorf("sender role %q is not canonical", e.Sender.Role)
	}
	if e.Platform == "" {
		return fmt.Errorf("event platform is empty")
	}
	return nil
}

// Int returns a pointer to v, for the optional counters in Content.
func Int(v int) *int { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// String returns a pointer to v, or nil when v is empty.
func String(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
