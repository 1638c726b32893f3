// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package youtube

import (
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/streamrelay/internal/models"
	"github.com/tomtom215/streamrelay/internal/normalize"
)

var testMeta = sessionMeta{VideoID: "vid-1", LiveChatID: "chat-1"}

func newTestMapper() *mapper {
	return &mapper{channelID: "UCtest", converter: normalize.NewConverter(nil)}
}

func mustMap(t *testing.T, raw string) *models.NormalizedEvent {
	t.Helper()
	ev, ok, err := newTestMapper().Map(json.RawMessage(raw), testMeta)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if !ok {
		t.Fatal("Map() reported no mapping")
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("mapped event invalid: %v", err)
	}
	if ev.Platform != models.PlatformYouTube || ev.Metadata.ChannelID != "UCtest" || ev.Metadata.VideoID != "vid-1" {
		t.Errorf("unexpected metadata: %+v", ev.Metadata)
	}
	return ev
}

func textItem(author string) string {
	return `{"id":"m1","snippet":{"type":"textMessageEvent","liveChatId":"chat-1","authorChannelId":"UCa",
		"publishedAt":"2026-03-01T12:00:00.123Z","displayMessage":"hi",
		"textMessageDetails":{"messageText":"hello there"}},"authorDetails":` + author + `}`
}

func TestMapText_AuthorRoles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		author string
		want   models.Role
	}{
		{"regular", `{"channelId":"UCa","displayName":"Viewer"}`, models.RoleRegular},
		{"member", `{"channelId":"UCa","displayName":"Viewer","isChatSponsor":true}`, models.RoleSubscriber},
		{"moderator over member", `{"channelId":"UCa","displayName":"Viewer","isChatSponsor":true,"isChatModerator":true}`, models.RoleManager},
		{"owner over all", `{"channelId":"UCa","displayName":"Owner","isChatOwner":true,"isChatModerator":true,"isChatSponsor":true}`, models.RoleStreamer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := mustMap(t, textItem(tt.author))
			if ev.Type != models.EventChat || ev.Content.Message != "hello there" {
				t.Errorf("unexpected chat event: %+v", ev.Content)
			}
			if ev.Sender.Role != tt.want {
				t.Errorf("Role = %s, want %s", ev.Sender.Role, tt.want)
			}
		})
	}
}

func TestMapText_SenderFields(t *testing.T) {
	t.Parallel()

	ev := mustMap(t, textItem(`{"channelId":"UCa","displayName":"Viewer","profileImageUrl":"https://yt3.example/a.jpg"}`))
	if ev.ID != "m1" || ev.Sender.ID != "UCa" || ev.Sender.Nickname != "Viewer" {
		t.Errorf("unexpected sender: id=%s %+v", ev.ID, ev.Sender)
	}
	if ev.Sender.ProfileImage == nil || *ev.Sender.ProfileImage != "https://yt3.example/a.jpg" {
		t.Errorf("ProfileImage = %v", ev.Sender.ProfileImage)
	}
	if ev.Metadata.LiveChatID != "chat-1" || ev.Metadata.Timestamp.Year() != 2026 {
		t.Errorf("unexpected metadata: %+v", ev.Metadata)
	}

	noAuthor := mustMap(t, `{"id":"m2","snippet":{"type":"textMessageEvent","authorChannelId":"UCz","displayMessage":"x"}}`)
	if noAuthor.Sender.ID != "UCz" || noAuthor.Sender.Role != models.RoleRegular || noAuthor.Content.Message != "x" {
		t.Errorf("unexpected authorless sender: %+v", noAuthor.Sender)
	}
	if noAuthor.Metadata.LiveChatID != "chat-1" || noAuthor.Metadata.Timestamp.IsZero() {
		t.Errorf("authorless metadata should fall back to session values: %+v", noAuthor.Metadata)
	}
}

func TestMapSuperChat_ConvertsMicros(t *testing.T) {
	t.Parallel()

	ev := mustMap(t, `{"id":"sc1","snippet":{"type":"superChatEvent","publishedAt":"2026-03-01T12:00:00Z",
		"superChatDetails":{"amountMicros":"5000000","currency":"USD","amountDisplayString":"$5.00","userComment":"great stream","tier":2}},
		"authorDetails":{"channelId":"UCb","displayName":"Donor"}}`)

	if ev.Type != models.EventDonation {
		t.Fatalf("Type = %s, want donation", ev.Type)
	}
	if ev.Content.Amount == nil || *ev.Content.Amount != 6750 {
		t.Errorf("Amount = %v, want 6750", ev.Content.Amount)
	}
	if ev.Content.OriginalAmount == nil || *ev.Content.OriginalAmount != 5 {
		t.Errorf("OriginalAmount = %v, want 5", ev.Content.OriginalAmount)
	}
	if ev.Content.Currency != "USD" || ev.Content.DonationType != "superChat" || ev.Content.Tier != "2" {
		t.Errorf("unexpected donation fields: %+v", ev.Content)
	}
	if ev.Content.Message != "great stream" {
		t.Errorf("Message = %q", ev.Content.Message)
	}
}

func TestMapSuperChat_UnknownCurrencyFallsBack(t *testing.T) {
	t.Parallel()

	ev := mustMap(t, `{"id":"sc2","snippet":{"type":"superChatEvent",
		"superChatDetails":{"amountMicros":"2500000","currency":"XYZ","tier":1}}}`)
	if *ev.Content.Amount != 3 {
		t.Errorf("Amount = %d, want 3 (1:1, rounded)", *ev.Content.Amount)
	}
	if ev.Content.Currency != "XYZ" {
		t.Errorf("Currency = %q", ev.Content.Currency)
	}
}

func TestMapSuperSticker(t *testing.T) {
	t.Parallel()

	ev := mustMap(t, `{"id":"st1","snippet":{"type":"superStickerEvent",
		"superStickerDetails":{"superStickerMetadata":{"stickerId":"stk_1","altText":"party hat"},
		"amountMicros":"1000000000","currency":"JPY","tier":1}}}`)
	if ev.Type != models.EventDonation || ev.Content.DonationType != "superSticker" {
		t.Fatalf("unexpected event: %s %+v", ev.Type, ev.Content)
	}
	if *ev.Content.Amount != 9000 {
		t.Errorf("Amount = %d, want 9000", *ev.Content.Amount)
	}
	if ev.Content.Sticker == nil || ev.Content.Sticker.ID != "stk_1" || ev.Content.Sticker.AltText != "party hat" {
		t.Errorf("Sticker = %+v", ev.Content.Sticker)
	}
}

func TestMapMembershipEvents(t *testing.T) {
	t.Parallel()

	sponsor := mustMap(t, `{"id":"ns1","snippet":{"type":"newSponsorEvent",
		"newSponsorDetails":{"memberLevelName":"Gold","isUpgrade":false}}}`)
	if sponsor.Type != models.EventSubscribe || sponsor.Content.Tier != "Gold" || sponsor.Content.IsGift {
		t.Errorf("unexpected sponsor event: %+v", sponsor.Content)
	}

	milestone := mustMap(t, `{"id":"mm1","snippet":{"type":"memberMilestoneChatEvent",
		"memberMilestoneChatDetails":{"userComment":"six months!","memberMonth":6,"memberLevelName":"Gold"}}}`)
	if milestone.Content.CumulativeMonths == nil || *milestone.Content.CumulativeMonths != 6 || milestone.Content.Message != "six months!" {
		t.Errorf("unexpected milestone event: %+v", milestone.Content)
	}

	gift := mustMap(t, `{"id":"mg1","snippet":{"type":"membershipGiftingEvent",
		"membershipGiftingDetails":{"giftMembershipsCount":10,"giftMembershipsLevelName":"Silver"}}}`)
	if !gift.Content.IsGift || gift.Content.GiftCount == nil || *gift.Content.GiftCount != 10 || gift.Content.Tier != "Silver" {
		t.Errorf("unexpected gift event: %+v", gift.Content)
	}

	bare := mustMap(t, `{"id":"ns2","snippet":{"type":"newSponsorEvent"}}`)
	if bare.Content.Tier != "" {
		t.Errorf("tier must not be inferred, got %q", bare.Content.Tier)
	}
}

func TestMap_SkipsAndErrors(t *testing.T) {
	t.Parallel()
	m := newTestMapper()

	for _, typ := range []string{"messageDeletedEvent", "userBannedEvent", "tombstone", "chatEndedEvent"} {
		ev, ok, err := m.Map(json.RawMessage(`{"id":"x","snippet":{"type":"`+typ+`"}}`), testMeta)
		if ev != nil || ok || err != nil {
			t.Errorf("%s: got ev=%v ok=%v err=%v, want skip", typ, ev, ok, err)
		}
	}

	if _, _, err := m.Map(json.RawMessage(`{"id":`), testMeta); err == nil {
		t.Error("truncated item should fail to decode")
	}
	if _, ok, err := m.Map(json.RawMessage(`{"id":"bad","snippet":{"type":"superChatEvent",
		"superChatDetails":{"amountMicros":"abc","currency":"USD"}}}`), testMeta); !ok || err == nil {
		t.Errorf("bad amountMicros: ok=%v err=%v, want mapped type with error", ok, err)
	}
	if _, ok, err := m.Map(json.RawMessage(`{"id":"bad2","snippet":{"type":"superChatEvent"}}`), testMeta); !ok || err == nil {
		t.Errorf("missing details: ok=%v err=%v, want mapped type with error", ok, err)
	}
}
