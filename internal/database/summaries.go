package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const summaryColumns = `id, token, chat_id, style, status, text, summary_message_api_id, created_at, updated_at`

// AdmitSummary reclaims stale running rows of the pair, then inserts a running
// row unless a fresh one still holds the slot. The whole check runs in one
// transaction; with a single connection this serializes concurrent admissions.
func (s *sqlxStore) AdmitSummary(ctx context.Context, params AdmitSummaryParams) (*ChatSummary, int64, error) {
	if !params.Style.Valid() {
		return nil, 0, fmt.Errorf("invalid summary style %q", params.Style)
	}
	if params.Token == "" {
		return nil, 0, errors.New("summary token is empty")
	}
	now := params.Now.UTC()
	if params.Now.IsZero() {
		now = time.Now().UTC()
	}

	var (
		summary   *ChatSummary
		reclaimed int64
	)
	err := s.withTx(ctx, "admit_summary", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM chat_summaries
			WHERE chat_id = ? AND style = ? AND status = ? AND created_at < ?`,
			params.ChatID, string(params.Style), string(SummaryStatusRunning), params.StaleBefore.UTC())
		if err != nil {
			return fmt.Errorf("failed to reclaim stale summaries: %w", err)
		}
		reclaimed, _ = res.RowsAffected()

		var running int
		if err := tx.GetContext(ctx, &running, `
			SELECT COUNT(*) FROM chat_summaries WHERE chat_id = ? AND style = ? AND status = ?`,
			params.ChatID, string(params.Style), string(SummaryStatusRunning)); err != nil {
			return fmt.Errorf("failed to count running summaries: %w", err)
		}
		if running > 0 {
			return ErrSummaryRunning
		}

		row := ChatSummary{
			Token:     params.Token,
			ChatID:    params.ChatID,
			Style:     params.Style,
			Status:    SummaryStatusRunning,
			CreatedAt: now,
			UpdatedAt: now,
		}
		res, err = tx.NamedExecContext(ctx, `
			INSERT INTO chat_summaries (token, chat_id, style, status, text, created_at, updated_at)
			VALUES (:token, :chat_id, :style, :status, :text, :created_at, :updated_at)`, &row)
		if err != nil {
			return fmt.Errorf("failed to insert summary: %w", err)
		}
		if row.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read inserted summary id: %w", err)
		}
		summary = &row
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSummaryRunning) {
			return nil, 0, err
		}
		s.logger.ErrorContext(ctx, "Error admitting summary", "chat_id", params.ChatID, "style", params.Style, "error", err)
		return nil, 0, fmt.Errorf("failed to admit %s summary for chat %d: %w", params.Style, params.ChatID, err)
	}

	if reclaimed > 0 {
		s.logger.WarnContext(ctx, "Reclaimed stale running summaries",
			"chat_id", params.ChatID, "style", params.Style, "reclaimed", reclaimed)
	}
	return summary, reclaimed, nil
}

func (s *sqlxStore) GetSummary(ctx context.Context, id int64) (*ChatSummary, error) {
	var summary ChatSummary
	err := s.db.GetContext(ctx, &summary, `SELECT `+summaryColumns+` FROM chat_summaries WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary %d: %w", id, err)
	}
	return &summary, nil
}

// LatestCompletedSummary returns the newest complete summary of the given
// style, or ErrNotFound.
func (s *sqlxStore) LatestCompletedSummary(ctx context.Context, chatID int64, style SummaryStyle) (*ChatSummary, error) {
	var summary ChatSummary
	err := s.db.GetContext(ctx, &summary, `
		SELECT `+summaryColumns+` FROM chat_summaries
		WHERE chat_id = ? AND style = ? AND status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		chatID, string(style), string(SummaryStatusComplete))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest %s summary for chat %d: %w", style, chatID, err)
	}
	return &summary, nil
}

func (s *sqlxStore) CountRunningSummaries(ctx context.Context, chatID int64, style SummaryStyle) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM chat_summaries WHERE chat_id = ? AND style = ? AND status = ?`,
		chatID, string(style), string(SummaryStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to count running summaries for chat %d: %w", chatID, err)
	}
	return count, nil
}

// CompleteSummary stores the result and marks a running summary complete.
// Returns ErrNotFound when the row was reclaimed or already completed.
func (s *sqlxStore) CompleteSummary(ctx context.Context, id int64, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_summaries SET status = ?, text = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(SummaryStatusComplete), text, time.Now().UTC(), id, string(SummaryStatusRunning))
	if err != nil {
		s.logger.ErrorContext(ctx, "Error completing summary", "summary_id", id, "error", err)
		return fmt.Errorf("failed to complete summary %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlxStore) SetSummaryMessageID(ctx context.Context, id, apiID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_summaries SET summary_message_api_id = ?, updated_at = ? WHERE id = ?`,
		apiID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set message id of summary %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSummary removes a summary row. Deleting a missing row is not an error.
func (s *sqlxStore) DeleteSummary(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_summaries WHERE id = ?`, id); err != nil {
		s.logger.ErrorContext(ctx, "Error deleting summary", "summary_id", id, "error", err)
		return fmt.Errorf("failed to delete summary %d: %w", id, err)
	}
	return nil
}

func (s *sqlxStore) DeleteSummariesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_summaries WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error purging old summaries", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to delete summaries older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	n, _ := res.RowsAffected()
	s.logger.InfoContext(ctx, "Purged old summaries", "cutoff", cutoff, "deleted", n)
	return n, nil
}
