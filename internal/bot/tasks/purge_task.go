package tasks

import (
	"context"
	"fmt"

	"github.com/edgard/dogbot/internal/config"
)

// PurgeResult counts what a purge removed.
type PurgeResult struct {
	Messages  int64
	Summaries int64
}

// RunPurge deletes messages and summaries older than the configured
// retention windows.
func RunPurge(ctx context.Context, deps TaskDeps) (PurgeResult, error) {
	now := deps.now()
	retain := deps.Config.Purge

	var res PurgeResult
	var err error
	res.Messages, err = deps.Store.DeleteMessagesOlderThan(ctx, now.Add(-retain.RetainMessages))
	if err != nil {
		return res, fmt.Errorf("failed to purge messages: %w", err)
	}
	res.Summaries, err = deps.Store.DeleteSummariesOlderThan(ctx, now.Add(-retain.RetainSummaries))
	if err != nil {
		return res, fmt.Errorf("failed to purge summaries: %w", err)
	}
	return res, nil
}

// newPurgeTask creates the scheduled task that applies the retention windows.
func newPurgeTask(deps TaskDeps) ScheduledTaskFunc {
	return timed(deps.Logger.With("task", config.TaskPurgeOldMessages), func(ctx context.Context) ([]any, error) {
		res, err := RunPurge(ctx, deps)
		return []any{"deleted_messages", res.Messages, "deleted_summaries", res.Summaries}, err
	})
}
