package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/dogbot/internal/config"
)

// ScheduledTaskFunc defines the standard signature for all scheduled tasks.
// The context provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns the scheduled tasks keyed by the name used in the
// scheduler section of the configuration.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		config.TaskPurgeOldMessages: newPurgeTask(deps),
		config.TaskSQLMaintenance:   newSQLMaintenanceTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}

// timed runs fn with start and completion logs. fn returns extra attributes
// for the completion line.
func timed(log *slog.Logger, fn func(ctx context.Context) ([]any, error)) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled task...")
		startTime := time.Now()

		attrs, err := fn(ctx)
		attrs = append(attrs, "duration", time.Since(startTime))
		if err != nil {
			log.ErrorContext(ctx, "Scheduled task failed", append(attrs, "error", err)...)
			return err
		}
		log.InfoContext(ctx, "Scheduled task completed successfully", attrs...)
		return nil
	}
}
