// Package engine decides which stored messages an LLM call sees, shrinks that
// context when the model rejects it, and keeps at most one summarization per
// chat and style in flight.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/edgard/dogbot/internal/config"
	"github.com/edgard/dogbot/internal/database"
	"github.com/edgard/dogbot/internal/llm"
)

const (
	replyMaxTokens       int32   = 128
	summarizeTemperature float32 = 0.7
	translateTemperature float32 = 0.3
)

// Store is the subset of database.Store the engine reads and writes.
type Store interface {
	GetMessage(ctx context.Context, id int64) (*database.Message, error)
	GetMessagesByIDs(ctx context.Context, ids []int64) ([]database.Message, error)
	QueryMessagesSince(ctx context.Context, chatID int64, since time.Time) ([]database.Message, error)
	QueryLastN(ctx context.Context, chatID int64, n int) ([]database.Message, error)
	CountMessagesSince(ctx context.Context, chatID int64, since time.Time) (int, error)
	AdmitSummary(ctx context.Context, params database.AdmitSummaryParams) (*database.ChatSummary, int64, error)
	GetSummary(ctx context.Context, id int64) (*database.ChatSummary, error)
	LatestCompletedSummary(ctx context.Context, chatID int64, style database.SummaryStyle) (*database.ChatSummary, error)
	CompleteSummary(ctx context.Context, id int64, text string) error
	DeleteSummary(ctx context.Context, id int64) error
}

// Admission is a granted summarization slot together with the context
// snapshot taken when it was granted. It is what a worker needs to run the
// job, so it doubles as the job payload.
type Admission struct {
	SummaryID  int64                 `json:"summary_id"`
	Token      string                `json:"token"`
	ChatID     int64                 `json:"chat_id"`
	Style      database.SummaryStyle `json:"style"`
	MessageIDs []int64               `json:"message_ids"`
}

// Engine runs the LLM operations of the bot.
type Engine struct {
	store       Store
	invoker     llm.Invoker
	prompts     *llm.Prompts
	selector    *Selector
	gate        *Gate
	maxAttempts int
	log         *slog.Logger

	translateModel string
	botName        string
	botUsername    string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for admission timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.gate.now = now }
}

// WithTokenSource overrides how admission tokens are generated.
func WithTokenSource(next func() string) Option {
	return func(e *Engine) { e.gate.newToken = next }
}

// WithTranslateModel selects the model used for translations.
func WithTranslateModel(model string) Option {
	return func(e *Engine) { e.translateModel = model }
}

// WithBotIdentity sets the name the bot answers to in replies and context.
func WithBotIdentity(name, username string) Option {
	return func(e *Engine) {
		e.botName = name
		e.botUsername = username
	}
}

// New builds an engine. A nil logger discards output.
func New(store Store, invoker llm.Invoker, prompts *llm.Prompts, cfg config.EngineConfig, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log = log.With("component", "engine")

	e := &Engine{
		store:   store,
		invoker: invoker,
		prompts: prompts,
		selector: &Selector{
			store:        store,
			maxContext:   cfg.MaxContext,
			minSince:     cfg.MinMessagesBetweenSummaries,
			replyContext: cfg.ReplyContext,
		},
		gate:        NewGate(store, cfg.SummaryStaleAfter, log),
		maxAttempts: cfg.MaxAttempts,
		log:         log,
		botName:     "Bot",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Selector exposes the context selector the engine uses.
func (e *Engine) Selector() *Selector { return e.selector }

// TryAdmitSummarization claims the summarization slot for the chat and style
// and snapshots its context. It returns ErrAlreadyRunning while another run
// holds the slot and ErrNoHistory when there is nothing to summarize.
func (e *Engine) TryAdmitSummarization(ctx context.Context, chatID int64, style database.SummaryStyle) (*Admission, error) {
	summary, err := e.gate.Admit(ctx, chatID, style)
	if err != nil {
		if IsRejected(err) {
			e.log.InfoContext(ctx, "Summarization already running", "chat_id", chatID, "style", style)
		}
		return nil, err
	}

	msgs, err := e.selector.SelectContext(ctx, chatID, OperationSummarize, style)
	if err != nil {
		e.gate.Release(ctx, summary.ID)
		return nil, fmt.Errorf("failed to select context: %w", err)
	}
	if len(msgs) == 0 {
		e.gate.Release(ctx, summary.ID)
		return nil, ErrNoHistory
	}

	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	e.log.InfoContext(ctx, "Summarization admitted",
		"chat_id", chatID, "style", style, "summary_id", summary.ID, "context_size", len(ids))

	return &Admission{
		SummaryID:  summary.ID,
		Token:      summary.Token,
		ChatID:     chatID,
		Style:      style,
		MessageIDs: ids,
	}, nil
}

// AbandonSummarization releases an admission that will never run, for
// example because it could not be queued.
func (e *Engine) AbandonSummarization(ctx context.Context, adm Admission) {
	e.gate.Release(ctx, adm.SummaryID)
}

// RunSummarization produces the summary for an admission and marks its
// record complete. On a permanent failure the record is released so the
// next request is admitted right away.
func (e *Engine) RunSummarization(ctx context.Context, adm Admission) (string, error) {
	log := e.log.With("chat_id", adm.ChatID, "summary_id", adm.SummaryID, "style", adm.Style)

	summary, err := e.store.GetSummary(ctx, adm.SummaryID)
	if errors.Is(err, database.ErrNotFound) {
		return "", tagged(ErrNotAdmitted, fmt.Errorf("summary %d no longer exists", adm.SummaryID))
	}
	if err != nil {
		return "", fmt.Errorf("failed to load summary: %w", err)
	}
	if summary.Token != adm.Token || summary.Status != database.SummaryStatusRunning {
		return "", tagged(ErrNotAdmitted, fmt.Errorf("summary %d was reclaimed", adm.SummaryID))
	}

	// A stale record may be reclaimed, so the run ends when it goes stale.
	runCtx := ctx
	if remaining, ok := e.gate.Remaining(summary); ok {
		if remaining <= 0 {
			e.gate.Release(ctx, adm.SummaryID)
			return "", permanent(fmt.Errorf("summary %d went stale before it started", adm.SummaryID))
		}
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, remaining)
		defer cancel()
	}

	prompt, err := e.summaryPrompt(adm.Style)
	if err != nil {
		e.gate.Release(ctx, adm.SummaryID)
		return "", permanent(err)
	}

	msgs, err := e.store.GetMessagesByIDs(ctx, adm.MessageIDs)
	if err != nil {
		e.gate.Release(ctx, adm.SummaryID)
		return "", fmt.Errorf("failed to load context: %w", err)
	}
	if len(msgs) == 0 {
		e.gate.Release(ctx, adm.SummaryID)
		return "", ErrNoHistory
	}

	params := llm.DefaultParams
	params.Temperature = summarizeTemperature

	text, err := RunWithShrinkingContext(runCtx, msgs, e.maxAttempts, e.invokeWith(prompt, params), log)
	if err != nil {
		e.gate.Release(ctx, adm.SummaryID)
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = permanent(fmt.Errorf("summary %d outlasted its admission: %w", adm.SummaryID, err))
		}
		log.ErrorContext(ctx, "Summarization failed", "error", err)
		return "", err
	}

	if err := e.store.CompleteSummary(ctx, adm.SummaryID, text); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			log.WarnContext(ctx, "Summary record reclaimed before completion, dropping result")
			return "", tagged(ErrNotAdmitted, fmt.Errorf("summary %d was reclaimed while running", adm.SummaryID))
		}
		log.ErrorContext(ctx, "Failed to complete summary record", "error", err)
	}
	log.InfoContext(ctx, "Summarization complete", "context_size", len(msgs))
	return text, nil
}

// ComposeReply answers the stored message triggerID using the recent chat
// history, keeping the message it replies to in view.
func (e *Engine) ComposeReply(ctx context.Context, triggerID int64) (string, error) {
	trigger, err := e.store.GetMessage(ctx, triggerID)
	if errors.Is(err, database.ErrNotFound) {
		return "", tagged(ErrMissingTrigger, fmt.Errorf("message %d", triggerID))
	}
	if err != nil {
		return "", fmt.Errorf("failed to load trigger message: %w", err)
	}
	log := e.log.With("chat_id", trigger.ChatID, "message_id", trigger.ID)

	recent, err := e.selector.SelectContext(ctx, trigger.ChatID, OperationReply, "")
	if err != nil {
		return "", fmt.Errorf("failed to select context: %w", err)
	}
	before := recent[:0:0]
	for _, m := range recent {
		if m.ID < trigger.ID {
			before = append(before, m)
		}
	}

	window, err := e.resolve(ctx, before, *trigger)
	if err != nil {
		return "", err
	}

	params := llm.DefaultParams
	params.MaxTokens = replyMaxTokens

	text, err := RunWithShrinkingContext(ctx, window, e.maxAttempts, e.invokeWith(e.prompts.Reply(e.botName, e.botUsername), params), log)
	if err != nil {
		log.ErrorContext(ctx, "Reply failed", "error", err)
		return "", err
	}
	return text, nil
}

// Translate translates text into lang with a single LLM call.
func (e *Engine) Translate(ctx context.Context, lang, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNothingToDo
	}

	params := llm.DefaultParams
	params.Model = e.translateModel
	params.Temperature = translateTemperature

	out, err := e.invoker.Invoke(ctx, llm.Request{
		SystemPrompt: e.prompts.Get(llm.PromptTranslate),
		UserPrompt:   fmt.Sprintf("Translate into %s:\n%s", cases.Title(language.English).String(lang), text),
		Params:       params,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		e.log.ErrorContext(ctx, "Translation failed", "language", lang, "error", err)
		return "", permanent(err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", permanent(llm.NewFailure(llm.KindBlank, errors.New("blank translation")))
	}
	return out, nil
}

func (e *Engine) summaryPrompt(style database.SummaryStyle) (string, error) {
	switch style {
	case database.SummaryStyleDefault:
		return e.prompts.Get(llm.PromptSummarize), nil
	case database.SummaryStyleNice:
		return e.prompts.Get(llm.PromptSummarizeNicely), nil
	case database.SummaryStyleVibeCheck:
		return e.prompts.Get(llm.PromptVibeCheck), nil
	}
	return "", fmt.Errorf("unknown summary style %q", style)
}

func (e *Engine) invokeWith(systemPrompt string, params llm.Params) InvokeFunc {
	return func(ctx context.Context, window []database.Message) (string, error) {
		body, err := SerializeContext(window, e.botName)
		if err != nil {
			return "", err
		}
		return e.invoker.Invoke(ctx, llm.Request{
			SystemPrompt: systemPrompt,
			UserPrompt:   body,
			Params:       params,
		})
	}
}
