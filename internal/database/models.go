package database

import (
	"database/sql"
	"time"
)

// BotMessageAPIID is stored as the platform id of messages the bot sent itself,
// since the bot never learns the id Telegram assigned to its own output.
const BotMessageAPIID int64 = -1

// ChatType mirrors the Telegram chat kinds.
type ChatType string

const (
	ChatTypePrivate    ChatType = "private"
	ChatTypeGroup      ChatType = "group"
	ChatTypeSupergroup ChatType = "supergroup"
	ChatTypeChannel    ChatType = "channel"
)

// IsGroup reports whether the engine operates in chats of this kind.
func (t ChatType) IsGroup() bool {
	return t == ChatTypeGroup || t == ChatTypeSupergroup
}

// AttachmentType is the kind of media attached to a message, if any.
type AttachmentType string

const (
	AttachmentAnimation AttachmentType = "animation"
	AttachmentAudio     AttachmentType = "audio"
	AttachmentDocument  AttachmentType = "document"
	AttachmentPhoto     AttachmentType = "photo"
	AttachmentSticker   AttachmentType = "sticker"
	AttachmentStory     AttachmentType = "story"
	AttachmentVideo     AttachmentType = "video"
	AttachmentVideoNote AttachmentType = "video_note"
	AttachmentVoice     AttachmentType = "voice"
	AttachmentContact   AttachmentType = "contact"
	AttachmentDice      AttachmentType = "dice"
	AttachmentGame      AttachmentType = "game"
	AttachmentPoll      AttachmentType = "poll"
	AttachmentVenue     AttachmentType = "venue"
	AttachmentLocation  AttachmentType = "location"
)

// SummaryStyle is the subtype of a summarization operation.
type SummaryStyle string

const (
	SummaryStyleDefault   SummaryStyle = "default"
	SummaryStyleNice      SummaryStyle = "nice"
	SummaryStyleVibeCheck SummaryStyle = "vibe_check"
)

// Valid reports whether s is a known summary style.
func (s SummaryStyle) Valid() bool {
	switch s {
	case SummaryStyleDefault, SummaryStyleNice, SummaryStyleVibeCheck:
		return true
	}
	return false
}

// SummaryStatus is the lifecycle state of a ChatSummary.
type SummaryStatus string

const (
	SummaryStatusRunning  SummaryStatus = "running"
	SummaryStatusComplete SummaryStatus = "complete"
)

// Chat is a Telegram chat room tracked by the bot.
type Chat struct {
	ID        int64     `db:"id"`
	APIID     int64     `db:"api_id"`
	APIType   ChatType  `db:"api_type"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// User is a message sender. The bot's own synthetic identity has IsThisBot set
// and no platform id.
type User struct {
	ID        int64         `db:"id"`
	APIID     sql.NullInt64 `db:"api_id"`
	Username  string        `db:"username"`
	FirstName string        `db:"first_name"`
	IsBot     bool          `db:"is_bot"`
	IsThisBot bool          `db:"is_this_bot"`
	OptOut    bool          `db:"opt_out"`
	CreatedAt time.Time     `db:"created_at"`
	UpdatedAt time.Time     `db:"updated_at"`
}

// ChatUser joins a user to a chat and carries the per-chat message counters.
type ChatUser struct {
	ID                  int64     `db:"id"`
	ChatID              int64     `db:"chat_id"`
	UserID              int64     `db:"user_id"`
	NumChatUserMessages int64     `db:"num_chatuser_messages"`
	NumStoredMessages   int64     `db:"num_stored_messages"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

// Message is a stored chat message. Sender fields are joined in on reads.
type Message struct {
	ID               int64          `db:"id"`
	ChatID           int64          `db:"chat_id"`
	ChatUserID       int64          `db:"chat_user_id"`
	APIID            int64          `db:"api_id"`
	Date             time.Time      `db:"date"`
	Text             string         `db:"text"`
	AttachmentType   sql.NullString `db:"attachment_type"`
	ReplyToMessageID sql.NullInt64  `db:"reply_to_message_id"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`

	SenderFirstName string `db:"sender_first_name"`
	SenderUsername  string `db:"sender_username"`
	SenderIsThisBot bool   `db:"sender_is_this_bot"`
}

// HasReplyParent reports whether the message references a stored parent.
func (m Message) HasReplyParent() bool {
	return m.ReplyToMessageID.Valid
}

// ChatSummary is one in-flight or completed summarization of a chat.
type ChatSummary struct {
	ID                  int64         `db:"id"`
	Token               string        `db:"token"`
	ChatID              int64         `db:"chat_id"`
	Style               SummaryStyle  `db:"style"`
	Status              SummaryStatus `db:"status"`
	Text                string        `db:"text"`
	SummaryMessageAPIID sql.NullInt64 `db:"summary_message_api_id"`
	CreatedAt           time.Time     `db:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at"`
}

// IncomingChat describes the chat an inbound message was posted to.
type IncomingChat struct {
	APIID int64
	Type  ChatType
	Title string
}

// IncomingUser describes the sender of an inbound message.
type IncomingUser struct {
	APIID     int64
	Username  string
	FirstName string
	IsBot     bool
}

// IncomingMessage is a platform message reduced to what the store keeps.
// It is built once at the ingestion boundary.
type IncomingMessage struct {
	Chat           IncomingChat
	From           IncomingUser
	APIID          int64
	Date           time.Time
	Text           string
	AttachmentType AttachmentType
	ReplyToAPIID   int64
}

// UserCount is one row of a chat's poster ranking.
type UserCount struct {
	FirstName string `db:"first_name"`
	Count     int64  `db:"count"`
}

// ChatStats aggregates message counters for a chat.
type ChatStats struct {
	TotalMessages  int64
	StoredMessages int64
	TopStored      []UserCount
	TopAllTime     []UserCount
}

// NewMessage is the input of AppendMessage. ReplyToAPIID is the platform id of
// the parent; zero means no parent.
type NewMessage struct {
	ChatID         int64
	ChatUserID     int64
	APIID          int64
	Date           time.Time
	Text           string
	AttachmentType AttachmentType
	ReplyToAPIID   int64
}

// MessageUpdate holds the fields an edit may change in place.
type MessageUpdate struct {
	Text           string
	AttachmentType AttachmentType
	ReplyToAPIID   int64
}

// AdmitSummaryParams describes a summary admission attempt.
type AdmitSummaryParams struct {
	ChatID      int64
	Style       SummaryStyle
	Token       string
	StaleBefore time.Time
	Now         time.Time
}
