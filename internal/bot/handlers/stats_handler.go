package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/dogbot/internal/database"
	"github.com/edgard/dogbot/internal/telegram"
)

const statsTopUsers = 5

// NewStatsHandler returns a handler for the /chat_stats command.
func NewStatsHandler(deps HandlerDeps) bot.HandlerFunc {
	h := statsHandler{deps}
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.handle(ctx, b, update)
	}
}

type statsHandler struct {
	deps HandlerDeps
}

func (h statsHandler) handle(ctx context.Context, s telegram.Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "chat_stats")
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	messages := h.deps.Config.Messages

	chat, err := h.deps.Store.GetChatByAPIID(ctx, msg.Chat.ID)
	if errors.Is(err, database.ErrNotFound) {
		notify(ctx, log, s, msg.Chat.ID, msg.ID, messages.StatsEmpty)
		return
	}
	if err != nil {
		log.ErrorContext(ctx, "Failed to load chat", "error", err, "chat_id", msg.Chat.ID)
		notify(ctx, log, s, msg.Chat.ID, msg.ID, messages.GeneralError)
		return
	}

	stats, err := h.deps.Store.ChatStats(ctx, chat.ID, statsTopUsers)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load chat stats", "error", err, "chat_id", msg.Chat.ID)
		notify(ctx, log, s, msg.Chat.ID, msg.ID, messages.GeneralError)
		return
	}
	if stats.TotalMessages == 0 {
		notify(ctx, log, s, msg.Chat.ID, msg.ID, messages.StatsEmpty)
		return
	}
	text := formatStats(stats)
	if _, err := telegram.SendText(ctx, s, msg.Chat.ID, msg.ID, text); err != nil {
		log.ErrorContext(ctx, "Failed to send chat stats", "error", err, "chat_id", msg.Chat.ID)
		return
	}
	// Stats are bot output and join the chat history.
	if _, err := h.deps.Store.AppendBotMessage(ctx, chat.ID, text, 0); err != nil {
		log.ErrorContext(ctx, "Failed to store chat stats", "error", err, "chat_id", msg.Chat.ID)
	}
}

func formatStats(stats *database.ChatStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Messages seen: %d\n", stats.TotalMessages)
	fmt.Fprintf(&sb, "💾 Messages stored: %d (%.1f%%)\n", stats.StoredMessages, percent(stats.StoredMessages, stats.TotalMessages))

	writeRanking(&sb, "\n🗣 Top posters (stored)", stats.TopStored)
	writeRanking(&sb, "\n🏆 Top posters (all time)", stats.TopAllTime)
	return strings.TrimRight(sb.String(), "\n")
}

func writeRanking(sb *strings.Builder, title string, rows []database.UserCount) {
	if len(rows) == 0 {
		return
	}
	sb.WriteString(title + "\n")
	for i, row := range rows {
		fmt.Fprintf(sb, "%d. %s: %d\n", i+1, row.FirstName, row.Count)
	}
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}
