// Package logger builds the application's slog logger and the Telegram
// update logging middleware.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const previewLength = 50

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// NewLogger creates a slog Logger writing to stdout, as JSON when jsonOutput
// is set. Unknown levels fall back to info. The logger also becomes the
// slog default.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	level, ok := levels[strings.ToLower(levelStr)]
	if !ok {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Middleware logs every update before and after it is handled. Chat messages
// are frequent, so only commands are logged at info level.
func Middleware(log *slog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			startTime := time.Now()
			entry := log.With("update_id", update.ID)
			level := slog.LevelDebug

			msg, kind := updateMessage(update)
			if msg != nil {
				text := msg.Text
				if text == "" {
					text = msg.Caption
				}
				entry = entry.With(
					"message_id", msg.ID,
					"chat_id", msg.Chat.ID,
					"chat_type", msg.Chat.Type,
					"text_preview", truncateString(text, previewLength),
				)
				if msg.From != nil {
					entry = entry.With("user_id", msg.From.ID)
				}
				if msg.ReplyToMessage != nil {
					entry = entry.With("reply_to_message_id", msg.ReplyToMessage.ID)
				}
				if cmd := commandName(msg.Text); cmd != "" {
					entry = entry.With("command", cmd)
					level = slog.LevelInfo
				}
			}
			entry = entry.With("update_type", kind)

			entry.Log(ctx, level, "Processing update")
			next(ctx, b, update)
			entry.Log(ctx, level, "Finished processing update", "duration", time.Since(startTime))
		}
	}
}

func updateMessage(update *models.Update) (*models.Message, string) {
	switch {
	case update.Message != nil:
		return update.Message, "message"
	case update.EditedMessage != nil:
		return update.EditedMessage, "edited_message"
	case update.MyChatMember != nil:
		return nil, "my_chat_member"
	}
	return nil, "other"
}

// commandName returns "summarize" for "/summarize@dogbot now", or "" when
// text is not a command.
func commandName(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	head, _, _ := strings.Cut(strings.Fields(text)[0][1:], "@")
	return strings.ToLower(head)
}

// truncateString shortens s to at most maxLen runes, counting the ellipsis.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}
