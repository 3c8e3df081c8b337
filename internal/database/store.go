package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSummaryRunning is returned by AdmitSummary when a non-stale running
	// summary already holds the (chat, style) slot.
	ErrSummaryRunning = errors.New("summary already running")
)

// Store defines the interface for database operations.
// Methods should accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// StoreIncoming upserts the chat, sender and membership of an inbound message,
	// appends the message and bumps the membership counters in one transaction.
	StoreIncoming(ctx context.Context, in IncomingMessage) (*Message, error)
	// UpdateIncoming applies an edited inbound message in place. Returns ErrNotFound
	// when the original was never stored.
	UpdateIncoming(ctx context.Context, in IncomingMessage) (*Message, error)

	// AppendMessage inserts a message for an existing membership.
	AppendMessage(ctx context.Context, msg NewMessage) (*Message, error)
	// UpdateMessage edits a stored message identified by its platform id.
	UpdateMessage(ctx context.Context, chatID, apiID int64, upd MessageUpdate) (*Message, error)
	// AppendBotMessage stores output sent by the bot under its synthetic identity.
	AppendBotMessage(ctx context.Context, chatID int64, text string, replyToMessageID int64) (*Message, error)
	// SetBotIdentity names the bot's synthetic user after the account it runs as.
	SetBotIdentity(ctx context.Context, firstName, username string) error

	GetChat(ctx context.Context, id int64) (*Chat, error)
	GetChatByAPIID(ctx context.Context, apiID int64) (*Chat, error)
	GetMessage(ctx context.Context, id int64) (*Message, error)
	GetMessageByAPIID(ctx context.Context, chatID, apiID int64) (*Message, error)
	GetMessagesByIDs(ctx context.Context, ids []int64) ([]Message, error)

	// QueryMessagesSince returns messages strictly newer than since, oldest first.
	QueryMessagesSince(ctx context.Context, chatID int64, since time.Time) ([]Message, error)
	// QueryLastN returns the newest n messages, oldest first.
	QueryLastN(ctx context.Context, chatID int64, n int) ([]Message, error)
	// CountMessagesSince counts messages strictly newer than since.
	CountMessagesSince(ctx context.Context, chatID int64, since time.Time) (int, error)

	// DeleteMessages nullifies reply references pointing at the given rows,
	// decrements stored counters and deletes the rows.
	DeleteMessages(ctx context.Context, ids []int64) (int64, error)
	DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// AdmitSummary reclaims stale running summaries of the (chat, style) pair and,
	// unless one is still running, creates a new running summary.
	AdmitSummary(ctx context.Context, params AdmitSummaryParams) (*ChatSummary, int64, error)
	GetSummary(ctx context.Context, id int64) (*ChatSummary, error)
	LatestCompletedSummary(ctx context.Context, chatID int64, style SummaryStyle) (*ChatSummary, error)
	CountRunningSummaries(ctx context.Context, chatID int64, style SummaryStyle) (int, error)
	CompleteSummary(ctx context.Context, id int64, text string) error
	SetSummaryMessageID(ctx context.Context, id, apiID int64) error
	DeleteSummary(ctx context.Context, id int64) error
	DeleteSummariesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	IsOptedOut(ctx context.Context, userAPIID int64) (bool, error)
	// SetOptOut records the user's choice. Opting out deletes all of the user's
	// stored messages and returns how many were removed.
	SetOptOut(ctx context.Context, user IncomingUser, optOut bool) (int64, error)
	ChatStats(ctx context.Context, chatID int64, top int) (*ChatStats, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, rolling back unless fn succeeds and the commit goes through.
func (s *sqlxStore) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "op", op, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "op", op, "error", rollbackErr)
				}
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "op", op, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil
	return nil
}

// RunSQLMaintenance executes VACUUM and ANALYZE on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite
	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "ANALYZE;"); err != nil {
		s.logger.WarnContext(ctx, "ANALYZE failed after VACUUM", "error", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
