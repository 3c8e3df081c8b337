// Package tasks implements scheduled maintenance tasks for the bot.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/dogbot/internal/config"
)

// Store is the part of the database used by scheduled tasks.
type Store interface {
	DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteSummariesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	RunSQLMaintenance(ctx context.Context) error
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  Store
	Config *config.Config
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d TaskDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
