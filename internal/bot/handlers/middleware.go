// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/dogbot/internal/config"
	"github.com/edgard/dogbot/internal/database"
	"github.com/edgard/dogbot/internal/telegram"
)

// GroupOnly stops commands that are not sent by a person in an allowed group
// chat. Senders are told why, except opted-out users, who are ignored.
func GroupOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if authorize(ctx, deps, b, update) {
				next(ctx, b, update)
			}
		}
	}
}

func authorize(ctx context.Context, deps HandlerDeps, s telegram.Sender, update *models.Update) bool {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return false
	}
	log := deps.Logger.With("middleware", "GroupOnly")
	chatID := msg.Chat.ID
	messages := deps.Config.Messages

	if msg.From.IsBot {
		log.InfoContext(ctx, "Rejected command from bot", "chat_id", chatID, "user_id", msg.From.ID)
		notify(ctx, log, s, chatID, msg.ID, messages.FromBot)
		sticker(ctx, log, s, chatID, msg.ID, messages.Stickers[config.StickerGun])
		return false
	}
	if !database.ChatType(msg.Chat.Type).IsGroup() {
		log.InfoContext(ctx, "Rejected command outside group chat", "chat_id", chatID, "chat_type", msg.Chat.Type)
		notify(ctx, log, s, chatID, msg.ID, messages.NotGroupChat)
		return false
	}
	if !deps.Config.Telegram.ChatAllowed(chatID) {
		log.WarnContext(ctx, "Rejected command from chat not on whitelist", "chat_id", chatID)
		notify(ctx, log, s, chatID, msg.ID, messages.NotWhitelisted)
		return false
	}

	optedOut, err := deps.Store.IsOptedOut(ctx, msg.From.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to check opt-out", "error", err, "user_id", msg.From.ID)
		return false
	}
	if optedOut && !isOptIn(msg) {
		log.DebugContext(ctx, "Ignoring command from opted-out user", "chat_id", chatID, "user_id", msg.From.ID)
		return false
	}
	return true
}

// isOptIn lets opted-out users reach the command that undoes it.
func isOptIn(msg *models.Message) bool {
	name, _, _, ok := telegram.ParseCommand(msg.Text)
	return ok && name == CommandOptIn
}

// StoreCommand records the command message itself before it is handled.
func StoreCommand(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if _, err := ingest(ctx, deps, update.Message); err != nil {
				deps.Logger.ErrorContext(ctx, "Failed to store command message", "error", err)
			}
			next(ctx, b, update)
		}
	}
}
