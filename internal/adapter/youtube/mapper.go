// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package youtube

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/streamrelay/internal/models"
	"github.com/tomtom215/streamrelay/internal/normalize"
)

// liveChatMessage item types that map to an event.
const (
	itemTextMessage     = "textMessageEvent"
	itemSuperChat       = "superChatEvent"
	itemSuperSticker    = "superStickerEvent"
	itemNewSponsor      = "newSponsorEvent"
	itemMemberMilestone = "memberMilestoneChatEvent"
	itemMembershipGift  = "membershipGiftingEvent"
)

type liveChatMessage struct {
	ID            string         `json:"id"`
	Snippet       messageSnippet `json:"snippet"`
	AuthorDetails *authorDetails `json:"authorDetails"`
}

type messageSnippet struct {
	Type            string `json:"type"`
	LiveChatID      string `json:"liveChatId"`
	AuthorChannelID string `json:"authorChannelId"`
	PublishedAt     string `json:"publishedAt"`
	DisplayMessage  string `json:"displayMessage"`

	TextMessageDetails *struct {
		MessageText string `json:"messageText"`
	} `json:"textMessageDetails"`

	SuperChatDetails *struct {
		AmountMicros        string `json:"amountMicros"`
		Currency            string `json:"currency"`
		AmountDisplayString string `json:"amountDisplayString"`
		UserComment         string `json:"userComment"`
		Tier                int    `json:"tier"`
	} `json:"superChatDetails"`

	SuperStickerDetails *struct {
		SuperStickerMetadata struct {
			StickerID string `json:"stickerId"`
			AltText   string `json:"altText"`
		} `json:"superStickerMetadata"`
		AmountMicros        string `json:"amountMicros"`
		Currency            string `json:"currency"`
		AmountDisplayString string `json:"amountDisplayString"`
		Tier                int    `json:"tier"`
	} `json:"superStickerDetails"`

	NewSponsorDetails *struct {
		MemberLevelName string `json:"memberLevelName"`
		IsUpgrade       bool   `json:"isUpgrade"`
	} `json:"newSponsorDetails"`

	MemberMilestoneChatDetails *struct {
		UserComment     string `json:"userComment"`
		MemberMonth     int    `json:"memberMonth"`
		MemberLevelName string `json:"memberLevelName"`
	} `json:"memberMilestoneChatDetails"`

	MembershipGiftingDetails *struct {
		GiftMembershipsCount     int    `json:"giftMembershipsCount"`
		GiftMembershipsLevelName string `json:"giftMembershipsLevelName"`
	} `json:"membershipGiftingDetails"`
}

type authorDetails struct {
	ChannelID       string `json:"channelId"`
	DisplayName     string `json:"displayName"`
	ProfileImageURL string `json:"profileImageUrl"`
	IsVerified      bool   `json:"isVerified"`
	IsChatOwner     bool   `json:"isChatOwner"`
	IsChatSponsor   bool   `json:"isChatSponsor"`
	IsChatModerator bool   `json:"isChatModerator"`
}

// flags translates author booleans to normalize flags.
func (a *authorDetails) flags() []string {
	var flags []string
	if a.IsChatOwner {
		flags = append(flags, normalize.FlagOwner)
	}
	if a.IsChatModerator {
		flags = append(flags, normalize.FlagModerator)
	}
	if a.IsChatSponsor {
		flags = append(flags, normalize.FlagMember)
	}
	return flags
}

// sessionMeta is the context a mapped item inherits from the poll session.
type sessionMeta struct {
	VideoID    string
	LiveChatID string
}

type mapper struct {
	channelID string
	converter *normalize.Converter
	log       *zerolog.Logger
}

// Map decodes one raw chat item. ok is false for item types with no mapping
// (deletions, bans, tombstones, chat-ended markers).
func (m *mapper) Map(raw json.RawMessage, meta sessionMeta) (ev *models.NormalizedEvent, ok bool, err error) {
	var item liveChatMessage
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, false, fmt.Errorf("decode chat item: %w", err)
	}

	s := item.Snippet
	var (
		typ     models.EventType
		content models.Content
	)

	switch s.Type {
	case itemTextMessage:
		typ = models.EventChat
		content.Message = s.DisplayMessage
		if s.TextMessageDetails != nil {
			content.Message = s.TextMessageDetails.MessageText
		}

	case itemSuperChat:
		if s.SuperChatDetails == nil {
			return nil, true, fmt.Errorf("%s %s has no superChatDetails", s.Type, item.ID)
		}
		d := s.SuperChatDetails
		typ = models.EventDonation
		if content, err = m.donation(d.AmountMicros, d.Currency, "superChat", d.Tier); err != nil {
			return nil, true, err
		}
		content.Message = d.UserComment

	case itemSuperSticker:
		if s.SuperStickerDetails == nil {
			return nil, true, fmt.Errorf("%s %s has no superStickerDetails", s.Type, item.ID)
		}
		d := s.SuperStickerDetails
		typ = models.EventDonation
		if content, err = m.donation(d.AmountMicros, d.Currency, "superSticker", d.Tier); err != nil {
			return nil, true, err
		}
		content.Sticker = &models.Sticker{ID: d.SuperStickerMetadata.StickerID, AltText: d.SuperStickerMetadata.AltText}

	case itemNewSponsor:
		typ = models.EventSubscribe
		if s.NewSponsorDetails != nil {
			content.Tier = s.NewSponsorDetails.MemberLevelName
		}

	case itemMemberMilestone:
		typ = models.EventSubscribe
		if d := s.MemberMilestoneChatDetails; d != nil {
			content.Tier = d.MemberLevelName
			content.Message = d.UserComment
			content.CumulativeMonths = models.Int(d.MemberMonth)
		}

	case itemMembershipGift:
		typ = models.EventSubscribe
		content.IsGift = true
		if d := s.MembershipGiftingDetails; d != nil {
			content.Tier = d.GiftMembershipsLevelName
			content.GiftCount = models.Int(d.GiftMembershipsCount)
		}

	default:
		return nil, false, nil
	}

	// A missing or bad publishedAt leaves ts zero and NewEvent stamps ingestion time.
	ts, _ := time.Parse(time.RFC3339Nano, s.PublishedAt)
	liveChatID := s.LiveChatID
	if liveChatID == "" {
		liveChatID = meta.LiveChatID
	}

	return models.NewEvent(item.ID, typ, models.PlatformYouTube, m.sender(item), content, models.Metadata{
		Timestamp:  ts.UTC(),
		ChannelID:  m.channelID,
		VideoID:    meta.VideoID,
		LiveChatID: liveChatID,
		RawData:    raw,
	}), true, nil
}

func (m *mapper) donation(amountMicros, currency, donationType string, tier int) (models.Content, error) {
	micros, err := strconv.ParseInt(amountMicros, 10, 64)
	if err != nil {
		return models.Content{}, fmt.Errorf("invalid amountMicros %q: %w", amountMicros, err)
	}

	krw, native, known := m.converter.ConvertMicros(micros, currency)
	if !known && m.log != nil {
		m.log.Warn().Str("currency", currency).Msg("Unknown currency, converting 1:1")
	}
	original, _ := native.Float64()

	content := models.Content{
		Amount:         models.Int64(krw),
		OriginalAmount: models.Float64(original),
		Currency:       currency,
		DonationType:   donationType,
	}
	if tier > 0 {
		content.Tier = strconv.Itoa(tier)
	}
	return content, nil
}

func (m *mapper) sender(item liveChatMessage) models.Sender {
	a := item.AuthorDetails
	if a == nil {
		return models.Sender{ID: item.Snippet.AuthorChannelID, Role: models.RoleRegular}
	}
	return models.Sender{
		ID:           a.ChannelID,
		Nickname:     a.DisplayName,
		ProfileImage: models.String(a.ProfileImageURL),
		Role:         normalize.MapRoleFromFlags(a.flags()),
	}
}
