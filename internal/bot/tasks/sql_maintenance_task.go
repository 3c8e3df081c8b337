package tasks

import (
	"context"
	"fmt"

	"github.com/edgard/dogbot/internal/config"
)

// newSQLMaintenanceTask vacuums and analyzes the database.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	return timed(deps.Logger.With("task", config.TaskSQLMaintenance), func(ctx context.Context) ([]any, error) {
		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			return nil, fmt.Errorf("sql maintenance failed: %w", err)
		}
		return nil, nil
	})
}
