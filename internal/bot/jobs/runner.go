package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edgard/dogbot/internal/config"
	"github.com/edgard/dogbot/internal/database"
	"github.com/edgard/dogbot/internal/engine"
	"github.com/edgard/dogbot/internal/telegram"
)

// Engine is the part of engine.Engine the runner drives.
type Engine interface {
	RunSummarization(ctx context.Context, adm engine.Admission) (string, error)
	ComposeReply(ctx context.Context, triggerID int64) (string, error)
	Translate(ctx context.Context, lang, text string) (string, error)
}

// Store records what the bot posted.
type Store interface {
	AppendBotMessage(ctx context.Context, chatID int64, text string, replyToMessageID int64) (*database.Message, error)
	SetSummaryMessageID(ctx context.Context, id, apiID int64) error
}

// Runner executes jobs against the engine and posts the outcome to Telegram.
// Every job ends in exactly one message to the chat, or none for discarded
// outcomes.
type Runner struct {
	engine   Engine
	store    Store
	sender   telegram.Sender
	messages config.MessagesConfig
	log      *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(e Engine, store Store, sender telegram.Sender, messages config.MessagesConfig, log *slog.Logger) *Runner {
	return &Runner{
		engine:   e,
		store:    store,
		sender:   sender,
		messages: messages,
		log:      log.With("component", "job_runner"),
	}
}

// Handle implements Handler.
func (r *Runner) Handle(ctx context.Context, job Job) error {
	switch job.Kind {
	case KindSummarize:
		return r.summarize(ctx, job)
	case KindReply:
		return r.reply(ctx, job)
	case KindTranslate:
		return r.translate(ctx, job)
	}
	return fmt.Errorf("unknown job kind %q", job.Kind)
}

func (r *Runner) summarize(ctx context.Context, job Job) error {
	var p SummarizePayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	log := r.log.With("job_id", job.ID, "chat_id", p.ChatID, "summary_id", p.SummaryID)

	stop := r.keepTyping(ctx, p.ChatAPIID)
	text, err := r.engine.RunSummarization(ctx, p.Admission)
	stop()
	if err != nil {
		return r.fail(ctx, log, p.ChatAPIID, p.RequestAPIID, err, r.messages.SummaryFailed, config.StickerDead)
	}

	sent, err := telegram.SendText(ctx, r.sender, p.ChatAPIID, 0, text)
	if err != nil {
		return err
	}
	r.recordBotMessage(ctx, log, p.ChatID, text, 0)
	if err := r.store.SetSummaryMessageID(ctx, p.SummaryID, int64(sent.ID)); err != nil {
		log.WarnContext(ctx, "Failed to save summary message id", "error", err)
	}
	log.InfoContext(ctx, "Summary posted", "message_api_id", sent.ID)
	return nil
}

func (r *Runner) reply(ctx context.Context, job Job) error {
	var p ReplyPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	log := r.log.With("job_id", job.ID, "chat_id", p.ChatID, "message_id", p.MessageID)

	stop := r.keepTyping(ctx, p.ChatAPIID)
	text, err := r.engine.ComposeReply(ctx, p.MessageID)
	stop()
	if err != nil {
		return r.fail(ctx, log, p.ChatAPIID, p.MessageAPIID, err, r.messages.ReplyFailed, config.StickerHeavyTyping)
	}

	if _, err := telegram.SendText(ctx, r.sender, p.ChatAPIID, p.MessageAPIID, text); err != nil {
		return err
	}
	r.recordBotMessage(ctx, log, p.ChatID, text, p.MessageID)
	return nil
}

func (r *Runner) translate(ctx context.Context, job Job) error {
	var p TranslatePayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	log := r.log.With("job_id", job.ID, "chat_api_id", p.ChatAPIID, "language", p.Language)

	if strings.EqualFold(p.Language, "french") {
		r.sticker(ctx, log, p.ChatAPIID, p.ReplyToAPIID, config.StickerNoFrench)
	}

	stop := r.keepTyping(ctx, p.ChatAPIID)
	text, err := r.engine.Translate(ctx, p.Language, p.Text)
	stop()
	if err != nil {
		return r.fail(ctx, log, p.ChatAPIID, p.ReplyToAPIID, err, r.messages.TranslateFailed, "")
	}

	_, err = telegram.SendText(ctx, r.sender, p.ChatAPIID, p.ReplyToAPIID, text)
	return err
}

// fail turns an engine error into the single notice the chat should see.
func (r *Runner) fail(ctx context.Context, log *slog.Logger, chatAPIID int64, replyTo int, err error, failText, sticker string) error {
	switch engine.VerdictOf(err) {
	case engine.Discarded:
		log.InfoContext(ctx, "Job discarded", "reason", err)
		return nil
	case engine.Rejected:
		r.notice(ctx, log, chatAPIID, replyTo, r.rejectedText(err))
		return nil
	case engine.Fatal:
		r.notice(ctx, log, chatAPIID, replyTo, failText)
		r.sticker(ctx, log, chatAPIID, replyTo, sticker)
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.WarnContext(ctx, "Job interrupted", "error", err)
		return err
	}
	r.notice(ctx, log, chatAPIID, replyTo, failText)
	return err
}

func (r *Runner) rejectedText(err error) string {
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning):
		return r.messages.SummaryRunning
	case errors.Is(err, engine.ErrNoHistory):
		return r.messages.NoHistory
	}
	return r.messages.GeneralError
}

func (r *Runner) notice(ctx context.Context, log *slog.Logger, chatAPIID int64, replyTo int, text string) {
	if text == "" {
		return
	}
	if _, err := telegram.SendText(context.WithoutCancel(ctx), r.sender, chatAPIID, replyTo, text); err != nil {
		log.ErrorContext(ctx, "Failed to send notice", "error", err)
	}
}

func (r *Runner) sticker(ctx context.Context, log *slog.Logger, chatAPIID int64, replyTo int, name string) {
	if name == "" {
		return
	}
	if err := telegram.SendStickerID(ctx, r.sender, chatAPIID, replyTo, r.messages.Stickers[name]); err != nil {
		log.WarnContext(ctx, "Failed to send sticker", "sticker", name, "error", err)
	}
}

func (r *Runner) recordBotMessage(ctx context.Context, log *slog.Logger, chatID int64, text string, replyTo int64) {
	if _, err := r.store.AppendBotMessage(ctx, chatID, text, replyTo); err != nil {
		log.ErrorContext(ctx, "Failed to store bot message", "error", err)
	}
}

func (r *Runner) keepTyping(ctx context.Context, chatAPIID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)
	go telegram.KeepTyping(typingCtx, r.sender, chatAPIID, telegram.TypingInterval, r.log)
	return cancel
}
