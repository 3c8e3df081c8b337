package telegram

import (
	"testing"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/dogbot/internal/database"
)

func TestToIncoming(t *testing.T) {
	t.Parallel()

	group := models.Chat{ID: -100, Type: models.ChatTypeSupergroup, Title: "pack"}
	from := &models.User{ID: 7, FirstName: "Ana", Username: "ana"}

	tests := []struct {
		name           string
		msg            *models.Message
		wantOK         bool
		wantText       string
		wantAttachment database.AttachmentType
		wantReplyTo    int64
	}{
		{name: "nil", msg: nil},
		{name: "no sender", msg: &models.Message{ID: 1, Chat: group, Text: "hi"}},
		{name: "no text", msg: &models.Message{ID: 1, Chat: group, From: from, Photo: []models.PhotoSize{{FileID: "p"}}}},
		{
			name:     "plain text",
			msg:      &models.Message{ID: 10, Chat: group, From: from, Date: 1741262400, Text: "hello"},
			wantOK:   true,
			wantText: "hello",
		},
		{
			name:           "captioned photo reply",
			msg:            &models.Message{ID: 11, Chat: group, From: from, Caption: "look", Photo: []models.PhotoSize{{FileID: "p"}}, ReplyToMessage: &models.Message{ID: 9}},
			wantOK:         true,
			wantText:       "look",
			wantAttachment: database.AttachmentPhoto,
			wantReplyTo:    9,
		},
		{
			name:           "sticker",
			msg:            &models.Message{ID: 12, Chat: group, From: from, Sticker: &models.Sticker{Emoji: "😀"}},
			wantOK:         true,
			wantText:       "😀 (grinning face)",
			wantAttachment: database.AttachmentSticker,
		},
		{
			name:           "animation wins over document",
			msg:            &models.Message{ID: 13, Chat: group, From: from, Caption: "lol", Animation: &models.Animation{}, Document: &models.Document{}},
			wantOK:         true,
			wantText:       "lol",
			wantAttachment: database.AttachmentAnimation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ToIncoming(tt.msg)
			if ok != tt.wantOK {
				t.Fatalf("ToIncoming() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Text != tt.wantText || got.AttachmentType != tt.wantAttachment || got.ReplyToAPIID != tt.wantReplyTo {
				t.Errorf("ToIncoming() = %+v", got)
			}
			if got.Chat.APIID != -100 || got.Chat.Type != database.ChatTypeSupergroup || got.From.APIID != 7 || got.From.FirstName != "Ana" {
				t.Errorf("chat or sender = %+v / %+v", got.Chat, got.From)
			}
			if got.APIID != int64(tt.msg.ID) || !got.Date.Equal(time.Unix(int64(tt.msg.Date), 0)) {
				t.Errorf("id or date = %d / %v", got.APIID, got.Date)
			}
		})
	}
}

func TestMentionsBot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{text: "hey @DogBot, sit", want: true},
		{text: "@dogbot", want: true},
		{text: "hey @dogbot_fan", want: false},
		{text: "email dogbot@example.com", want: false},
		{text: "no mention", want: false},
	}
	for _, tt := range tests {
		if got := MentionsBot(&models.Message{Text: tt.text}, "dogbot"); got != tt.want {
			t.Errorf("MentionsBot(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
	if MentionsBot(&models.Message{Text: "@dogbot"}, "") {
		t.Error("MentionsBot matched with an unknown username")
	}
}

func TestRepliesToBot(t *testing.T) {
	t.Parallel()

	reply := &models.Message{ReplyToMessage: &models.Message{From: &models.User{ID: 42}}}
	if !RepliesToBot(reply, 42) || RepliesToBot(reply, 43) || RepliesToBot(&models.Message{}, 42) {
		t.Error("RepliesToBot() mismatch")
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text       string
		wantName   string
		wantTarget string
		wantArgs   string
		wantOK     bool
	}{
		{text: "/summarize", wantName: "summarize", wantOK: true},
		{text: "/Translate@DogBot german  hallo welt ", wantName: "translate", wantTarget: "DogBot", wantArgs: "german  hallo welt", wantOK: true},
		{text: "/translate\nline two", wantName: "translate", wantArgs: "line two", wantOK: true},
		{text: "hello /summarize"},
		{text: "/"},
		{text: "/@bot"},
	}
	for _, tt := range tests {
		name, target, args, ok := ParseCommand(tt.text)
		if name != tt.wantName || target != tt.wantTarget || args != tt.wantArgs || ok != tt.wantOK {
			t.Errorf("ParseCommand(%q) = %q, %q, %q, %v", tt.text, name, target, args, ok)
		}
	}
}

func TestCommandMatcher(t *testing.T) {
	t.Parallel()

	match := CommandMatcher("summarize", func() string { return "dogbot" })
	tests := []struct {
		text string
		want bool
	}{
		{text: "/summarize", want: true},
		{text: "/summarize@dogbot", want: true},
		{text: "/summarize@otherbot", want: false},
		{text: "/summarize_nicely", want: false},
		{text: "summarize", want: false},
	}
	for _, tt := range tests {
		if got := match(&models.Update{Message: &models.Message{Text: tt.text}}); got != tt.want {
			t.Errorf("match(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
	if match(&models.Update{}) {
		t.Error("matched an update without a message")
	}
}

func TestCommandMenu(t *testing.T) {
	t.Parallel()

	menu := CommandMenu(map[string]RegisteredHandler{
		"b":      {Pattern: "vibe_check", Description: "vibes"},
		"a":      {Pattern: "help", Description: "help"},
		"hidden": {Pattern: "secret"},
	})
	if len(menu) != 2 || menu[0].Command != "help" || menu[1].Command != "vibe_check" {
		t.Errorf("CommandMenu() = %+v", menu)
	}
}
