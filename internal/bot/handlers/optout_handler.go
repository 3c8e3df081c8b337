package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/dogbot/internal/config"
	"github.com/edgard/dogbot/internal/telegram"
)

// NewOptOutInfoHandler returns a handler for /opt_out, which only explains
// how opting out works.
func NewOptOutInfoHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if update.Message == nil {
			return
		}
		log := deps.Logger.With("handler", "opt_out")
		notify(ctx, log, b, update.Message.Chat.ID, update.Message.ID, deps.Config.Messages.OptOutInfo)
	}
}

// NewOptOutHandler returns a handler that sets or clears the sender's opt-out.
func NewOptOutHandler(deps HandlerDeps, optOut bool) bot.HandlerFunc {
	h := optOutHandler{deps: deps, optOut: optOut}
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.handle(ctx, b, update)
	}
}

type optOutHandler struct {
	deps   HandlerDeps
	optOut bool
}

func (h optOutHandler) handle(ctx context.Context, s telegram.Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "opt_out", "opt_out", h.optOut)
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	messages := h.deps.Config.Messages

	deleted, err := h.deps.Store.SetOptOut(ctx, telegram.IncomingUser(msg.From), h.optOut)
	if err != nil {
		log.ErrorContext(ctx, "Failed to update opt-out", "error", err, "user_id", msg.From.ID)
		notify(ctx, log, s, msg.Chat.ID, msg.ID, messages.GeneralError)
		return
	}

	if h.optOut {
		notify(ctx, log, s, msg.Chat.ID, msg.ID, fmt.Sprintf(messages.OptOutConfirmed, deleted))
		sticker(ctx, log, s, msg.Chat.ID, msg.ID, messages.Stickers[config.StickerHeck])
		return
	}
	notify(ctx, log, s, msg.Chat.ID, msg.ID, messages.OptInConfirmed)
}
