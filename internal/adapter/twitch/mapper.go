// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package twitch

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/tomtom215/streamrelay/internal/models"
	"github.com/tomtom215/streamrelay/internal/normalize"
)

// Sender used when Twitch withholds the user of a cheer or gift.
const (
	anonymousID       = "anonymous"
	anonymousNickname = "Anonymous"
)

// Twitch badge set ids that carry a role, translated to normalize flags.
var badgeFlags = map[string]string{
	"broadcaster": normalize.FlagBroadcaster,
	"moderator":   normalize.FlagModerator,
	"vip":         normalize.FlagVIP,
	"subscriber":  normalize.FlagSubscriber,
	"founder":     normalize.FlagFounder,
}

// notificationMeta is the frame-level context a mapped event inherits.
type notificationMeta struct {
	MessageID string
	SubType   string
	Timestamp time.Time
}

// mapper turns EventSub notification events into NormalizedEvents.
type mapper struct {
	channelID string
	converter *normalize.Converter
}

type mapFunc func(m *mapper, meta notificationMeta, raw json.RawMessage) (*models.NormalizedEvent, error)

var mappers = map[string]mapFunc{
	SubChatMessage:         (*mapper).mapChatMessage,
	SubCheer:               (*mapper).mapCheer,
	SubSubscribe:           (*mapper).mapSubscribe,
	SubSubscriptionGift:    (*mapper).mapGift,
	SubSubscriptionMessage: (*mapper).mapResub,
	SubFollow:              (*mapper).mapFollow,
	SubRaid:                (*mapper).mapRaid,
}

// Map returns ok=false for subscription types with no mapping. A non-nil
// error means the event payload did not decode.
func (m *mapper) Map(meta notificationMeta, raw json.RawMessage) (ev *models.NormalizedEvent, ok bool, err error) {
	fn, ok := mappers[meta.SubType]
	if !ok {
		return nil, false, nil
	}
	ev, err = fn(m, meta, raw)
	if err != nil {
		return nil, true, fmt.Errorf("map %s: %w", meta.SubType, err)
	}
	return ev, true, nil
}

func (m *mapper) newEvent(meta notificationMeta, typ models.EventType, broadcasterID string, sender models.Sender, content models.Content, raw json.RawMessage) *models.NormalizedEvent {
	return models.NewEvent(meta.MessageID, typ, models.PlatformTwitch, sender, content, models.Metadata{
		Timestamp:        meta.Timestamp,
		ChannelID:        m.channelID,
		BroadcasterID:    broadcasterID,
		SubscriptionType: meta.SubType,
		RawData:          raw,
	})
}

func (m *mapper) mapChatMessage(meta notificationMeta, raw json.RawMessage) (*models.NormalizedEvent, error) {
	var e chatMessageEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}

	badges := make([]models.Badge, 0, len(e.Badges))
	flags := make([]string, 0, len(e.Badges))
	for _, b := range e.Badges {
		badges = append(badges, models.Badge{SetID: b.SetID, ID: b.ID, Info: b.Info})
		if flag, ok := badgeFlags[b.SetID]; ok {
			flags = append(flags, flag)
		}
	}

	sender := models.Sender{
		ID:       e.ChatterUserID,
		Nickname: displayName(e.ChatterUserName, e.ChatterUserLogin),
		Role:     normalize.MapRoleFromFlags(flags),
		Badges:   badges,
	}
	return m.newEvent(meta, models.EventChat, e.BroadcasterUserID, sender, models.Content{Message: e.Message.Text}, raw), nil
}

func (m *mapper) mapCheer(meta notificationMeta, raw json.RawMessage) (*models.NormalizedEvent, error) {
	var e cheerEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}

	krw, _ := m.converter.Convert(decimal.NewFromInt(e.Bits), normalize.CurrencyBits)
	content := models.Content{
		Message:        e.Message,
		Amount:         models.Int64(krw),
		OriginalAmount: models.Float64(float64(e.Bits)),
		Currency:       normalize.CurrencyBits,
		DonationType:   "cheer",
	}
	sender := optionalSender(e.IsAnonymous, e.UserID, e.UserName, e.UserLogin)
	return m.newEvent(meta, models.EventDonation, e.BroadcasterUserID, sender, content, raw), nil
}

func (m *mapper) mapSubscribe(meta notificationMeta, raw json.RawMessage) (*models.NormalizedEvent, error) {
	var e subscribeEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}

	sender := models.Sender{ID: e.UserID, Nickname: displayName(e.UserName, e.UserLogin), Role: models.RoleSubscriber}
	content := models.Content{Tier: e.Tier, IsGift: e.IsGift}
	return m.newEvent(meta, models.EventSubscribe, e.BroadcasterUserID, sender, content, raw), nil
}

func (m *mapper) mapGift(meta notificationMeta, raw json.RawMessage) (*models.NormalizedEvent, error) {
	var e giftEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}

	content := models.Content{
		Tier:            e.Tier,
		IsGift:          true,
		GiftCount:       models.Int(e.Total),
		CumulativeTotal: e.CumulativeTotal,
	}
	sender := optionalSender(e.IsAnonymous, e.UserID, e.UserName, e.UserLogin)
	return m.newEvent(meta, models.EventSubscribe, e.BroadcasterUserID, sender, content, raw), nil
}

func (m *mapper) mapResub(meta notificationMeta, raw json.RawMessage) (*models.NormalizedEvent, error) {
	var e resubEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}

	sender := models.Sender{ID: e.UserID, Nickname: displayName(e.UserName, e.UserLogin), Role: models.RoleSubscriber}
	content := models.Content{
		Message:          e.Message.Text,
		Tier:             e.Tier,
		CumulativeMonths: models.Int(e.CumulativeMonths),
		StreakMonths:     e.StreakMonths,
	}
	return m.newEvent(meta, models.EventSubscribe, e.BroadcasterUserID, sender, content, raw), nil
}

func (m *mapper) mapFollow(meta notificationMeta, raw json.RawMessage) (*models.NormalizedEvent, error) {
	var e followEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}

	sender := models.Sender{ID: e.UserID, Nickname: displayName(e.UserName, e.UserLogin)}
	content := models.Content{Message: sender.Nickname + " followed"}
	return m.newEvent(meta, models.EventFollow, e.BroadcasterUserID, sender, content, raw), nil
}

func (m *mapper) mapRaid(meta notificationMeta, raw json.RawMessage) (*models.NormalizedEvent, error) {
	var e raidEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}

	sender := models.Sender{
		ID:       e.FromBroadcasterUserID,
		Nickname: displayName(e.FromBroadcasterUserName, e.FromBroadcasterUserLogin),
	}
	content := models.Content{
		Message:     fmt.Sprintf("%s raided with %d viewers", sender.Nickname, e.Viewers),
		ViewerCount: models.Int(e.Viewers),
	}
	return m.newEvent(meta, models.EventRaid, e.ToBroadcasterUserID, sender, content, raw), nil
}

// optionalSender handles the events where Twitch nulls the user fields for
// anonymous actions.
func optionalSender(anonymous bool, id, name, login *string) models.Sender {
	if anonymous || id == nil || *id == "" {
		return models.Sender{ID: anonymousID, Nickname: anonymousNickname, Role: models.RoleRegular}
	}
	return models.Sender{ID: *id, Nickname: displayName(deref(name), deref(login))}
}

func displayName(name, login string) string {
	if name != "" {
		return name
	}
	return login
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
