package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Sender is the part of *bot.Bot used to post into chats.
type Sender interface {
	ChatActionSender
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendSticker(ctx context.Context, params *bot.SendStickerParams) (*models.Message, error)
}

// SendText posts text to chatID, as a reply when replyTo is positive. A
// reply whose parent has been deleted is sent as a plain message.
func SendText(ctx context.Context, s Sender, chatID int64, replyTo int, text string) (*models.Message, error) {
	params := &bot.SendMessageParams{ChatID: chatID, Text: text}
	if replyTo > 0 {
		params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
	}
	msg, err := s.SendMessage(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return msg, nil
}

// SendStickerID posts a sticker by file id. An empty id is a no-op.
func SendStickerID(ctx context.Context, s Sender, chatID int64, replyTo int, fileID string) error {
	if fileID == "" {
		return nil
	}
	params := &bot.SendStickerParams{ChatID: chatID, Sticker: &models.InputFileString{Data: fileID}}
	if replyTo > 0 {
		params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
	}
	if _, err := s.SendSticker(ctx, params); err != nil {
		return fmt.Errorf("failed to send sticker to chat %d: %w", chatID, err)
	}
	return nil
}
