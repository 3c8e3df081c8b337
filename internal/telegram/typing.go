package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// TypingInterval is how often the typing status is refreshed; clients drop it after about five seconds.
const TypingInterval = 4 * time.Second

// ChatActionSender is the part of *bot.Bot used for chat actions.
type ChatActionSender interface {
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

// KeepTyping shows the typing status in chatID until ctx is cancelled.
func KeepTyping(ctx context.Context, b ChatActionSender, chatID int64, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := sendTyping(ctx, b, chatID); err != nil {
		log.DebugContext(ctx, "Failed to send initial typing action", "error", err, "chat_id", chatID)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sendTyping(ctx, b, chatID); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.DebugContext(ctx, "Typing action failed", "error", err, "chat_id", chatID)
			}
		}
	}
}

func sendTyping(ctx context.Context, b ChatActionSender, chatID int64) error {
	if _, err := b.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping}); err != nil {
		return fmt.Errorf("failed to send typing action: %w", err)
	}
	return nil
}
