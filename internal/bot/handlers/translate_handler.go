package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/dogbot/internal/bot/jobs"
	"github.com/edgard/dogbot/internal/config"
	"github.com/edgard/dogbot/internal/telegram"
)

// NewTranslateHandler returns a handler for the /translate command.
func NewTranslateHandler(deps HandlerDeps) bot.HandlerFunc {
	h := translateHandler{deps}
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.handle(ctx, b, update)
	}
}

type translateHandler struct {
	deps HandlerDeps
}

// parseTranslateArgs picks the target language from the first word when it
// names a configured language, and the text from the rest. Without text after
// the command the replied-to message is translated.
func parseTranslateArgs(tg config.TelegramConfig, args, replied string) (language, text string) {
	language = tg.DefaultLanguage
	text = args
	if first, rest, _ := strings.Cut(args, " "); first != "" {
		if lang, ok := tg.LookupLanguage(first); ok {
			language = lang
			text = strings.TrimSpace(rest)
		}
	}
	if strings.TrimSpace(text) == "" {
		text = replied
	}
	return language, strings.TrimSpace(text)
}

func (h translateHandler) handle(ctx context.Context, s telegram.Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "translate")
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	tg := h.deps.Config.Telegram
	messages := h.deps.Config.Messages

	_, _, args, _ := telegram.ParseCommand(msg.Text)
	var replied string
	replyTo := msg.ID
	if msg.ReplyToMessage != nil {
		replied = telegram.MessageText(msg.ReplyToMessage)
		replyTo = msg.ReplyToMessage.ID
	}

	language, text := parseTranslateArgs(tg, args, replied)
	if text == "" {
		notify(ctx, log, s, msg.Chat.ID, msg.ID, fmt.Sprintf(messages.TranslateUsage, strings.Join(tg.TranslateLanguages, ", ")))
		return
	}

	job, err := jobs.NewJob(jobs.KindTranslate, jobs.TranslatePayload{
		ChatAPIID:    msg.Chat.ID,
		ReplyToAPIID: replyTo,
		Text:         text,
		Language:     language,
	})
	if err == nil {
		err = h.deps.Jobs.Enqueue(ctx, job)
	}
	if err != nil {
		log.WarnContext(ctx, "Failed to queue translation", "error", err, "chat_id", msg.Chat.ID)
		reply := messages.TranslateFailed
		if errors.Is(err, jobs.ErrQueueFull) {
			reply = messages.Busy
		}
		notify(ctx, log, s, msg.Chat.ID, msg.ID, reply)
		return
	}
	log.InfoContext(ctx, "Translation queued", "chat_id", msg.Chat.ID, "language", language, "job_id", job.ID)
}
