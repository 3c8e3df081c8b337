package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return textHandler(deps, "start", func(d HandlerDeps) string { return d.Config.Messages.Start })
}

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) bot.HandlerFunc {
	return textHandler(deps, "help", func(d HandlerDeps) string { return d.Config.Messages.Help })
}

// textHandler answers with a fixed configured message, with "@botname"
// replaced by the bot's username.
func textHandler(deps HandlerDeps, name string, text func(HandlerDeps) string) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", name)
		if update.Message == nil || update.Message.From == nil {
			log.WarnContext(ctx, "Handler received update with nil message or sender", "update_id", update.ID)
			return
		}
		log.InfoContext(ctx, "Handling command", "chat_id", update.Message.Chat.ID, "user_id", update.Message.From.ID)
		notify(ctx, log, b, update.Message.Chat.ID, 0, withBotName(text(deps), deps.botUsername()))
	}
}

func withBotName(text, username string) string {
	if username == "" {
		return text
	}
	return strings.ReplaceAll(text, "@botname", "@"+username)
}
