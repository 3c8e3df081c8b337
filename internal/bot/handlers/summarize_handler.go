package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/dogbot/internal/bot/jobs"
	"github.com/edgard/dogbot/internal/config"
	"github.com/edgard/dogbot/internal/database"
	"github.com/edgard/dogbot/internal/engine"
	"github.com/edgard/dogbot/internal/telegram"
)

// NewSummarizeHandler returns a handler that queues a summary of the given style.
func NewSummarizeHandler(deps HandlerDeps, style database.SummaryStyle) bot.HandlerFunc {
	h := summarizeHandler{deps: deps, style: style}
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.handle(ctx, b, update)
	}
}

type summarizeHandler struct {
	deps  HandlerDeps
	style database.SummaryStyle
}

func (h summarizeHandler) handle(ctx context.Context, s telegram.Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "summarize", "style", h.style)
	msg := update.Message
	if msg == nil || msg.From == nil {
		log.WarnContext(ctx, "Summarize handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	chatAPIID := msg.Chat.ID
	messages := h.deps.Config.Messages

	chat, err := h.deps.Store.GetChatByAPIID(ctx, chatAPIID)
	if errors.Is(err, database.ErrNotFound) {
		notify(ctx, log, s, chatAPIID, msg.ID, messages.NoHistory)
		return
	}
	if err != nil {
		log.ErrorContext(ctx, "Failed to load chat", "error", err, "chat_id", chatAPIID)
		notify(ctx, log, s, chatAPIID, msg.ID, messages.GeneralError)
		return
	}

	adm, err := h.deps.Summarizer.TryAdmitSummarization(ctx, chat.ID, h.style)
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning):
		notify(ctx, log, s, chatAPIID, msg.ID, messages.SummaryRunning)
		sticker(ctx, log, s, chatAPIID, msg.ID, messages.Stickers[config.StickerSprayBottle])
		return
	case errors.Is(err, engine.ErrNoHistory):
		notify(ctx, log, s, chatAPIID, msg.ID, messages.NoHistory)
		return
	case err != nil:
		log.ErrorContext(ctx, "Failed to admit summarization", "error", err, "chat_id", chatAPIID)
		notify(ctx, log, s, chatAPIID, msg.ID, messages.SummaryFailed)
		return
	}

	job, err := jobs.NewJob(jobs.KindSummarize, jobs.SummarizePayload{
		Admission:    *adm,
		ChatAPIID:    chatAPIID,
		RequestAPIID: msg.ID,
	})
	if err == nil {
		err = h.deps.Jobs.Enqueue(ctx, job)
	}
	if err != nil {
		log.ErrorContext(ctx, "Failed to queue summarization", "error", err, "chat_id", chatAPIID)
		h.deps.Summarizer.AbandonSummarization(ctx, *adm)
		text := messages.SummaryFailed
		if errors.Is(err, jobs.ErrQueueFull) {
			text = messages.Busy
		}
		notify(ctx, log, s, chatAPIID, msg.ID, text)
		return
	}

	log.InfoContext(ctx, "Summarization queued", "chat_id", chatAPIID, "summary_id", adm.SummaryID, "job_id", job.ID)
}
