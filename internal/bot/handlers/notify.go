package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/dogbot/internal/telegram"
)

func notify(ctx context.Context, log *slog.Logger, s telegram.Sender, chatID int64, replyTo int, text string) {
	if text == "" {
		return
	}
	if _, err := telegram.SendText(ctx, s, chatID, replyTo, text); err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
	}
}

func sticker(ctx context.Context, log *slog.Logger, s telegram.Sender, chatID int64, replyTo int, fileID string) {
	if err := telegram.SendStickerID(ctx, s, chatID, replyTo, fileID); err != nil {
		log.WarnContext(ctx, "Failed to send sticker", "error", err, "chat_id", chatID)
	}
}
