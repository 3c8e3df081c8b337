package engine

import (
	"bytes"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/edgard/dogbot/internal/database"
)

// contextEntry is one message as the model sees it.
type contextEntry struct {
	ID         string `yaml:"id"`
	User       string `yaml:"user"`
	Text       string `yaml:"text"`
	ReplyTo    string `yaml:"reply_to,omitempty"`
	Attachment string `yaml:"attachment,omitempty"`
}

// SerializeContext renders msgs as a YAML list. Ids are the platform message
// ids; the bot's own messages have none and show "?". A reply_to field is
// only emitted when the parent is part of the same list.
func SerializeContext(msgs []database.Message, botName string) (string, error) {
	byID := make(map[int64]database.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}

	entries := make([]contextEntry, 0, len(msgs))
	for _, m := range msgs {
		entry := contextEntry{
			ID:   apiIDString(m),
			User: m.SenderFirstName,
			Text: m.Text,
		}
		if m.SenderIsThisBot {
			entry.User = botName
		}
		if m.ReplyToMessageID.Valid {
			if parent, ok := byID[m.ReplyToMessageID.Int64]; ok && !parent.SenderIsThisBot {
				entry.ReplyTo = apiIDString(parent)
			}
		}
		if m.AttachmentType.Valid {
			entry.Attachment = m.AttachmentType.String
		}
		entries = append(entries, entry)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(entries); err != nil {
		return "", fmt.Errorf("failed to encode context: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode context: %w", err)
	}
	return buf.String(), nil
}

func apiIDString(m database.Message) string {
	if m.SenderIsThisBot || m.APIID == database.BotMessageAPIID {
		return "?"
	}
	return strconv.FormatInt(m.APIID, 10)
}
