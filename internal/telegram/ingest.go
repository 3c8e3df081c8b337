package telegram

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/text/unicode/runenames"

	"github.com/edgard/dogbot/internal/database"
)

// ToIncoming reduces a platform message to what the store keeps. It reports
// false for messages without a human sender or without any text to store.
func ToIncoming(msg *models.Message) (database.IncomingMessage, bool) {
	if msg == nil || msg.From == nil {
		return database.IncomingMessage{}, false
	}
	text := MessageText(msg)
	if strings.TrimSpace(text) == "" {
		return database.IncomingMessage{}, false
	}

	in := database.IncomingMessage{
		Chat: database.IncomingChat{
			APIID: msg.Chat.ID,
			Type:  database.ChatType(msg.Chat.Type),
			Title: msg.Chat.Title,
		},
		From:           IncomingUser(msg.From),
		APIID:          int64(msg.ID),
		Date:           time.Unix(int64(msg.Date), 0).UTC(),
		Text:           text,
		AttachmentType: Attachment(msg),
	}
	if msg.ReplyToMessage != nil {
		in.ReplyToAPIID = int64(msg.ReplyToMessage.ID)
	}
	return in, true
}

// IncomingUser converts a platform user.
func IncomingUser(u *models.User) database.IncomingUser {
	return database.IncomingUser{
		APIID:     u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		IsBot:     u.IsBot,
	}
}

// MessageText returns the text, the caption or a rendering of the sticker
// emoji, in that order of preference.
func MessageText(msg *models.Message) string {
	switch {
	case msg.Text != "":
		return msg.Text
	case msg.Caption != "":
		return msg.Caption
	case msg.Sticker != nil && msg.Sticker.Emoji != "":
		return StickerText(msg.Sticker.Emoji)
	}
	return ""
}

// StickerText renders a sticker emoji as "<emoji> (<unicode name>)".
func StickerText(emoji string) string {
	r, _ := utf8.DecodeRuneInString(emoji)
	name := strings.ToLower(runenames.Name(r))
	if name == "" {
		return emoji
	}
	return fmt.Sprintf("%s (%s)", emoji, name)
}

// Attachment returns the kind of media the message carries, if any.
func Attachment(msg *models.Message) database.AttachmentType {
	switch {
	case len(msg.Photo) > 0:
		return database.AttachmentPhoto
	case msg.Sticker != nil:
		return database.AttachmentSticker
	case msg.Animation != nil:
		return database.AttachmentAnimation
	case msg.Video != nil:
		return database.AttachmentVideo
	case msg.VideoNote != nil:
		return database.AttachmentVideoNote
	case msg.Voice != nil:
		return database.AttachmentVoice
	case msg.Audio != nil:
		return database.AttachmentAudio
	case msg.Document != nil:
		return database.AttachmentDocument
	case msg.Story != nil:
		return database.AttachmentStory
	case msg.Contact != nil:
		return database.AttachmentContact
	case msg.Dice != nil:
		return database.AttachmentDice
	case msg.Game != nil:
		return database.AttachmentGame
	case msg.Poll != nil:
		return database.AttachmentPoll
	case msg.Venue != nil:
		return database.AttachmentVenue
	case msg.Location != nil:
		return database.AttachmentLocation
	}
	return ""
}

// MentionsBot reports whether the message text or caption contains @username.
func MentionsBot(msg *models.Message, username string) bool {
	if msg == nil || username == "" {
		return false
	}
	mention := "@" + strings.ToLower(username)
	text := strings.ToLower(msg.Text + " " + msg.Caption)
	for _, w := range strings.Fields(text) {
		w = strings.TrimRightFunc(w, func(r rune) bool { return unicode.IsPunct(r) && r != '_' })
		if w == mention {
			return true
		}
	}
	return false
}

// RepliesToBot reports whether msg is a reply to a message sent by botID.
func RepliesToBot(msg *models.Message, botID int64) bool {
	return msg != nil && msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && msg.ReplyToMessage.From.ID == botID
}

// ParseCommand splits "/name@bot args" into its parts. ok is false when text
// is not a command.
func ParseCommand(text string) (name, target, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", "", false
	}
	head, rest := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, rest = head[:i], head[i:]
	}
	name, target, _ = strings.Cut(head, "@")
	if name == "" {
		return "", "", "", false
	}
	return strings.ToLower(name), target, strings.TrimSpace(rest), true
}

// CommandMatcher matches messages invoking /name, with or without an
// @username suffix addressed to this bot.
func CommandMatcher(name string, username func() string) bot.MatchFunc {
	return func(update *models.Update) bool {
		if update.Message == nil {
			return false
		}
		cmd, target, _, ok := ParseCommand(update.Message.Text)
		if !ok || cmd != name {
			return false
		}
		return target == "" || strings.EqualFold(target, username())
	}
}
