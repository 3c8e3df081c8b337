package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// IsOptedOut reports whether the user asked not to be recorded. Unknown users
// are not opted out.
func (s *sqlxStore) IsOptedOut(ctx context.Context, userAPIID int64) (bool, error) {
	var optOut bool
	err := s.db.GetContext(ctx, &optOut, `SELECT opt_out FROM users WHERE api_id = ?`, userAPIID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read opt-out flag of user %d: %w", userAPIID, err)
	}
	return optOut, nil
}

func (s *sqlxStore) SetOptOut(ctx context.Context, user IncomingUser, optOut bool) (int64, error) {
	if user.APIID == 0 {
		return 0, errors.New("user must have a non-zero id")
	}

	now := time.Now().UTC()
	var deleted int64
	err := s.withTx(ctx, "set_opt_out", func(tx *sqlx.Tx) error {
		userID, err := upsertUser(ctx, tx, user, now)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET opt_out = ?, updated_at = ? WHERE id = ?`, optOut, now, userID); err != nil {
			return fmt.Errorf("failed to set opt-out flag: %w", err)
		}
		if !optOut {
			return nil
		}

		var ids []int64
		if err := tx.SelectContext(ctx, &ids, `
			SELECT m.id FROM messages m
			JOIN chat_users cu ON cu.id = m.chat_user_id
			WHERE cu.user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to select messages of user: %w", err)
		}
		deleted, err = deleteMessagesTx(ctx, tx, ids, now)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error setting opt-out", "user_api_id", user.APIID, "opt_out", optOut, "error", err)
		return 0, fmt.Errorf("failed to set opt-out for user %d: %w", user.APIID, err)
	}

	s.logger.InfoContext(ctx, "Updated opt-out", "user_api_id", user.APIID, "opt_out", optOut, "deleted_messages", deleted)
	return deleted, nil
}

// ChatStats sums the membership counters of a chat and ranks its top posters.
// The bot's own identity is counted in the totals but never ranked.
func (s *sqlxStore) ChatStats(ctx context.Context, chatID int64, top int) (*ChatStats, error) {
	stats := &ChatStats{TopStored: []UserCount{}, TopAllTime: []UserCount{}}

	err := s.db.QueryRowxContext(ctx, `
		SELECT COALESCE(SUM(num_chatuser_messages), 0), COALESCE(SUM(num_stored_messages), 0)
		FROM chat_users WHERE chat_id = ?`, chatID).Scan(&stats.TotalMessages, &stats.StoredMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to sum counters for chat %d: %w", chatID, err)
	}
	if top <= 0 {
		return stats, nil
	}

	rank := func(column string, dest *[]UserCount) error {
		return s.db.SelectContext(ctx, dest, `
			SELECT u.first_name AS first_name, cu.`+column+` AS count
			FROM chat_users cu
			JOIN users u ON u.id = cu.user_id
			WHERE cu.chat_id = ? AND u.is_this_bot = 0 AND cu.`+column+` > 0
			ORDER BY cu.`+column+` DESC, u.first_name
			LIMIT ?`, chatID, top)
	}
	if err := rank("num_stored_messages", &stats.TopStored); err != nil {
		return nil, fmt.Errorf("failed to rank stored posters for chat %d: %w", chatID, err)
	}
	if err := rank("num_chatuser_messages", &stats.TopAllTime); err != nil {
		return nil, fmt.Errorf("failed to rank posters for chat %d: %w", chatID, err)
	}
	return stats, nil
}
