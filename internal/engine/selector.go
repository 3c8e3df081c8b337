package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgard/dogbot/internal/database"
)

// OperationKind is the class of LLM operation a context is selected for.
type OperationKind string

const (
	OperationSummarize OperationKind = "summarize"
	OperationReply     OperationKind = "reply"
)

// Selector computes the message window fed to an operation.
type Selector struct {
	store        Store
	maxContext   int
	minSince     int
	replyContext int
}

// SelectContext returns the window for the chat, oldest first.
//
// Summaries read everything newer than the last completed summary of the same
// style. Without such a summary, or when fewer than minSince messages arrived
// after it, the newest maxContext messages are used instead.
func (s *Selector) SelectContext(ctx context.Context, chatID int64, kind OperationKind, style database.SummaryStyle) ([]database.Message, error) {
	switch kind {
	case OperationReply:
		return s.store.QueryLastN(ctx, chatID, s.replyContext)
	case OperationSummarize:
	default:
		return nil, fmt.Errorf("unknown operation kind %q", kind)
	}

	last, err := s.store.LatestCompletedSummary(ctx, chatID, style)
	if errors.Is(err, database.ErrNotFound) {
		return s.store.QueryLastN(ctx, chatID, s.maxContext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up last %s summary: %w", style, err)
	}

	count, err := s.store.CountMessagesSince(ctx, chatID, last.CreatedAt)
	if err != nil {
		return nil, err
	}
	if count < s.minSince {
		return s.store.QueryLastN(ctx, chatID, s.maxContext)
	}
	return s.store.QueryMessagesSince(ctx, chatID, last.CreatedAt)
}
