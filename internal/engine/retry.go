package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/edgard/dogbot/internal/database"
	"github.com/edgard/dogbot/internal/llm"
)

// InvokeFunc runs one LLM attempt over a context window.
type InvokeFunc func(ctx context.Context, window []database.Message) (string, error)

// RunWithShrinkingContext calls invoke with the full window, then on each
// too-large or blank failure again with the oldest quarter, half and three
// quarters dropped (for maxAttempts 4). Attempt n keeps the newest
// len*(maxAttempts-n+1)/maxAttempts messages. Transport failures and an
// exhausted attempt budget end in a permanent failure; context cancellation
// is returned as is.
func RunWithShrinkingContext(ctx context.Context, window []database.Message, maxAttempts int, invoke InvokeFunc, log *slog.Logger) (string, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if attempt > maxAttempts {
			return "", permanent(lastErr)
		}

		current := shrink(window, attempt, maxAttempts)
		if len(current) == 0 {
			if lastErr == nil {
				lastErr = errors.New("empty context")
			}
			return "", permanent(lastErr)
		}

		text, err := invoke(ctx, current)
		if err == nil && strings.TrimSpace(text) != "" {
			if attempt > 1 {
				log.InfoContext(ctx, "LLM succeeded on a reduced context", "attempt", attempt, "context_size", len(current))
			}
			return strings.TrimSpace(text), nil
		}
		if err == nil {
			err = llm.NewFailure(llm.KindBlank, errors.New("blank output"))
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}

		kind := llm.KindOf(err)
		if kind == llm.KindTransport {
			log.ErrorContext(ctx, "LLM transport failure", "attempt", attempt, "error", err)
			return "", permanent(err)
		}

		log.WarnContext(ctx, "LLM attempt failed, shrinking context",
			"attempt", attempt, "max_attempts", maxAttempts, "context_size", len(current), "kind", kind.String(), "error", err)
		lastErr = err
	}
}

// shrink keeps the newest len*(max-attempt+1)/max messages, rounding down.
func shrink(window []database.Message, attempt, maxAttempts int) []database.Message {
	keep := len(window) * (maxAttempts - attempt + 1) / maxAttempts
	return window[len(window)-keep:]
}
