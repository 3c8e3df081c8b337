package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/dogbot/internal/bot/jobs"
	"github.com/edgard/dogbot/internal/config"
	"github.com/edgard/dogbot/internal/database"
	"github.com/edgard/dogbot/internal/engine"
)

// Summarizer admits summarization requests.
type Summarizer interface {
	TryAdmitSummarization(ctx context.Context, chatID int64, style database.SummaryStyle) (*engine.Admission, error)
	AbandonSummarization(ctx context.Context, adm engine.Admission)
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger     *slog.Logger
	Config     *config.Config
	Store      database.Store
	Summarizer Summarizer
	Jobs       jobs.Dispatcher
}

func (d HandlerDeps) botUsername() string {
	if d.Config.Telegram.BotInfo == nil {
		return ""
	}
	return d.Config.Telegram.BotInfo.Username
}

func (d HandlerDeps) botID() int64 {
	if d.Config.Telegram.BotInfo == nil {
		return 0
	}
	return d.Config.Telegram.BotInfo.ID
}
