package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/edgard/dogbot/internal/database"
)

// Gate admits at most one running summarization per chat and style. Records
// older than staleAfter are treated as abandoned and reclaimed on the next
// admission attempt.
type Gate struct {
	store      Store
	staleAfter time.Duration
	now        func() time.Time
	newToken   func() string
	log        *slog.Logger
}

// NewGate returns a gate over store.
func NewGate(store Store, staleAfter time.Duration, log *slog.Logger) *Gate {
	return &Gate{
		store:      store,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
		newToken:   uuid.NewString,
		log:        log,
	}
}

// Admit creates a running record for the chat and style, or returns
// ErrAlreadyRunning when a fresh one exists.
func (g *Gate) Admit(ctx context.Context, chatID int64, style database.SummaryStyle) (*database.ChatSummary, error) {
	now := g.now()
	summary, _, err := g.store.AdmitSummary(ctx, database.AdmitSummaryParams{
		ChatID:      chatID,
		Style:       style,
		Token:       g.newToken(),
		StaleBefore: now.Add(-g.staleAfter),
		Now:         now,
	})
	if errors.Is(err, database.ErrSummaryRunning) {
		return nil, &Error{Verdict: Rejected, Reason: ErrAlreadyRunning.Reason, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to admit summarization: %w", err)
	}
	return summary, nil
}

// Release drops the record so the next request is admitted immediately.
// It runs even when ctx is already cancelled.
func (g *Gate) Release(ctx context.Context, summaryID int64) {
	if err := g.store.DeleteSummary(context.WithoutCancel(ctx), summaryID); err != nil {
		g.log.ErrorContext(ctx, "Failed to release summarization record", "summary_id", summaryID, "error", err)
	}
}

// Remaining is how long the record's owner may keep running before the next
// admission attempt may reclaim it. Zero staleAfter disables the bound.
func (g *Gate) Remaining(summary *database.ChatSummary) (time.Duration, bool) {
	if g.staleAfter <= 0 {
		return 0, false
	}
	return summary.CreatedAt.Add(g.staleAfter).Sub(g.now()), true
}
