package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// deleteChunkSize keeps IN lists well below SQLite's bound-variable limit.
const deleteChunkSize = 500

const messageColumns = `
	m.id, m.chat_id, m.chat_user_id, m.api_id, m.date, m.text, m.attachment_type,
	m.reply_to_message_id, m.created_at, m.updated_at,
	u.first_name AS sender_first_name, u.username AS sender_username, u.is_this_bot AS sender_is_this_bot`

const messageFrom = `
	FROM messages m
	JOIN chat_users cu ON cu.id = m.chat_user_id
	JOIN users u ON u.id = cu.user_id`

// StoreIncoming upserts the chat, user and membership and appends the message.
func (s *sqlxStore) StoreIncoming(ctx context.Context, in IncomingMessage) (*Message, error) {
	if err := validateIncoming(in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var id int64
	err := s.withTx(ctx, "store_incoming", func(tx *sqlx.Tx) error {
		chatID, err := upsertChat(ctx, tx, in.Chat, now)
		if err != nil {
			return err
		}
		userID, err := upsertUser(ctx, tx, in.From, now)
		if err != nil {
			return err
		}
		chatUserID, err := ensureChatUser(ctx, tx, chatID, userID, now)
		if err != nil {
			return err
		}

		id, err = appendMessageTx(ctx, tx, NewMessage{
			ChatID:         chatID,
			ChatUserID:     chatUserID,
			APIID:          in.APIID,
			Date:           in.Date,
			Text:           in.Text,
			AttachmentType: in.AttachmentType,
			ReplyToAPIID:   in.ReplyToAPIID,
		}, now)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error storing incoming message",
			"chat_api_id", in.Chat.APIID, "message_api_id", in.APIID, "error", err)
		return nil, fmt.Errorf("failed to store message %d in chat %d: %w", in.APIID, in.Chat.APIID, err)
	}

	s.logger.DebugContext(ctx, "Stored incoming message", "chat_api_id", in.Chat.APIID, "message_id", id)
	return s.GetMessage(ctx, id)
}

// UpdateIncoming refreshes chat and sender details and edits the stored message in place.
func (s *sqlxStore) UpdateIncoming(ctx context.Context, in IncomingMessage) (*Message, error) {
	if err := validateIncoming(in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var chatID int64
	err := s.withTx(ctx, "update_incoming", func(tx *sqlx.Tx) error {
		var err error
		chatID, err = upsertChat(ctx, tx, in.Chat, now)
		if err != nil {
			return err
		}
		userID, err := upsertUser(ctx, tx, in.From, now)
		if err != nil {
			return err
		}
		if _, err := ensureChatUser(ctx, tx, chatID, userID, now); err != nil {
			return err
		}
		return updateMessageTx(ctx, tx, chatID, in.APIID, MessageUpdate{
			Text:           in.Text,
			AttachmentType: in.AttachmentType,
			ReplyToAPIID:   in.ReplyToAPIID,
		}, now)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update message %d in chat %d: %w", in.APIID, in.Chat.APIID, err)
	}

	return s.GetMessageByAPIID(ctx, chatID, in.APIID)
}

// AppendMessage inserts a message for an existing membership and bumps its counters.
func (s *sqlxStore) AppendMessage(ctx context.Context, msg NewMessage) (*Message, error) {
	if msg.ChatID == 0 || msg.ChatUserID == 0 {
		return nil, fmt.Errorf("message must have a chat and a chat user")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, fmt.Errorf("message must have non-empty text")
	}

	var id int64
	err := s.withTx(ctx, "append_message", func(tx *sqlx.Tx) error {
		var err error
		id, err = appendMessageTx(ctx, tx, msg, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append message to chat %d: %w", msg.ChatID, err)
	}
	return s.GetMessage(ctx, id)
}

// UpdateMessage edits a stored message identified by chat and platform id.
func (s *sqlxStore) UpdateMessage(ctx context.Context, chatID, apiID int64, upd MessageUpdate) (*Message, error) {
	err := s.withTx(ctx, "update_message", func(tx *sqlx.Tx) error {
		return updateMessageTx(ctx, tx, chatID, apiID, upd, time.Now().UTC())
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update message %d in chat %d: %w", apiID, chatID, err)
	}
	return s.GetMessageByAPIID(ctx, chatID, apiID)
}

// AppendBotMessage stores text the bot sent under its synthetic identity.
// replyToMessageID is a row id; zero means no parent.
func (s *sqlxStore) AppendBotMessage(ctx context.Context, chatID int64, text string, replyToMessageID int64) (*Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("bot message must have non-empty text")
	}

	now := time.Now().UTC()
	var id int64
	err := s.withTx(ctx, "append_bot_message", func(tx *sqlx.Tx) error {
		botUserID, err := ensureBotUser(ctx, tx, now)
		if err != nil {
			return err
		}
		chatUserID, err := ensureChatUser(ctx, tx, chatID, botUserID, now)
		if err != nil {
			return err
		}

		row := Message{
			ChatID:     chatID,
			ChatUserID: chatUserID,
			APIID:      BotMessageAPIID,
			Date:       now,
			Text:       text,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if replyToMessageID > 0 {
			row.ReplyToMessageID = sql.NullInt64{Int64: replyToMessageID, Valid: true}
		}
		id, err = insertMessageRow(ctx, tx, &row)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE chat_users SET num_stored_messages = num_stored_messages + 1, updated_at = ? WHERE id = ?`,
			now, chatUserID)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error storing bot message", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to store bot message in chat %d: %w", chatID, err)
	}
	return s.GetMessage(ctx, id)
}

// SetBotIdentity records the display name of the bot's synthetic user.
func (s *sqlxStore) SetBotIdentity(ctx context.Context, firstName, username string) error {
	now := time.Now().UTC()
	return s.withTx(ctx, "set_bot_identity", func(tx *sqlx.Tx) error {
		id, err := ensureBotUser(ctx, tx, now)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET first_name = ?, username = ?, is_bot = 1, updated_at = ? WHERE id = ?`,
			firstName, username, now, id)
		return err
	})
}

func (s *sqlxStore) GetChat(ctx context.Context, id int64) (*Chat, error) {
	var chat Chat
	err := s.db.GetContext(ctx, &chat,
		`SELECT id, api_id, api_type, title, created_at, updated_at FROM chats WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat %d: %w", id, err)
	}
	return &chat, nil
}

func (s *sqlxStore) GetChatByAPIID(ctx context.Context, apiID int64) (*Chat, error) {
	var chat Chat
	err := s.db.GetContext(ctx, &chat,
		`SELECT id, api_id, api_type, title, created_at, updated_at FROM chats WHERE api_id = ?`, apiID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat by api id %d: %w", apiID, err)
	}
	return &chat, nil
}

func (s *sqlxStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var msg Message
	err := s.db.GetContext(ctx, &msg, `SELECT `+messageColumns+messageFrom+` WHERE m.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}
	return &msg, nil
}

// GetMessageByAPIID looks up a user message by chat row id and platform id.
func (s *sqlxStore) GetMessageByAPIID(ctx context.Context, chatID, apiID int64) (*Message, error) {
	var msg Message
	err := s.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+messageFrom+` WHERE m.chat_id = ? AND m.api_id = ? ORDER BY m.id DESC LIMIT 1`,
		chatID, apiID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d in chat %d: %w", apiID, chatID, err)
	}
	return &msg, nil
}

// GetMessagesByIDs returns the requested rows that still exist, oldest first.
func (s *sqlxStore) GetMessagesByIDs(ctx context.Context, ids []int64) ([]Message, error) {
	if len(ids) == 0 {
		return []Message{}, nil
	}

	query, args, err := sqlx.In(`SELECT `+messageColumns+messageFrom+` WHERE m.id IN (?) ORDER BY m.date, m.id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build message lookup query: %w", err)
	}

	messages := []Message{}
	if err := s.db.SelectContext(ctx, &messages, s.db.Rebind(query), args...); err != nil {
		if isContextErr(err) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "Error loading messages by id", "count", len(ids), "error", err)
		return nil, fmt.Errorf("failed to load %d messages: %w", len(ids), err)
	}
	return messages, nil
}

func (s *sqlxStore) QueryMessagesSince(ctx context.Context, chatID int64, since time.Time) ([]Message, error) {
	messages := []Message{}
	err := s.db.SelectContext(ctx, &messages,
		`SELECT `+messageColumns+messageFrom+` WHERE m.chat_id = ? AND m.date > ? ORDER BY m.date, m.id`,
		chatID, since.UTC())
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "Error querying messages since", "chat_id", chatID, "since", since, "error", err)
		return nil, fmt.Errorf("failed to query messages for chat %d: %w", chatID, err)
	}
	return messages, nil
}

func (s *sqlxStore) QueryLastN(ctx context.Context, chatID int64, n int) ([]Message, error) {
	messages := []Message{}
	if n <= 0 {
		return messages, nil
	}

	query := `SELECT * FROM (
		SELECT ` + messageColumns + messageFrom + `
		WHERE m.chat_id = ?
		ORDER BY m.date DESC, m.id DESC
		LIMIT ?
	) ORDER BY date, id`

	if err := s.db.SelectContext(ctx, &messages, query, chatID, n); err != nil {
		if isContextErr(err) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "Error querying last messages", "chat_id", chatID, "limit", n, "error", err)
		return nil, fmt.Errorf("failed to query last %d messages for chat %d: %w", n, chatID, err)
	}
	return messages, nil
}

func (s *sqlxStore) CountMessagesSince(ctx context.Context, chatID int64, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages WHERE chat_id = ? AND date > ?`, chatID, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count messages for chat %d: %w", chatID, err)
	}
	return count, nil
}

func (s *sqlxStore) DeleteMessages(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.withTx(ctx, "delete_messages", func(tx *sqlx.Tx) error {
		var err error
		deleted, err = deleteMessagesTx(ctx, tx, ids, time.Now().UTC())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}

	s.logger.DebugContext(ctx, "Deleted messages", "requested", len(ids), "deleted", deleted)
	return deleted, nil
}

func (s *sqlxStore) DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.withTx(ctx, "delete_old_messages", func(tx *sqlx.Tx) error {
		var ids []int64
		if err := tx.SelectContext(ctx, &ids, `SELECT id FROM messages WHERE date < ?`, cutoff.UTC()); err != nil {
			return fmt.Errorf("failed to select old messages: %w", err)
		}
		var err error
		deleted, err = deleteMessagesTx(ctx, tx, ids, time.Now().UTC())
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error purging old messages", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to delete messages older than %s: %w", cutoff.Format(time.RFC3339), err)
	}

	s.logger.InfoContext(ctx, "Purged old messages", "cutoff", cutoff, "deleted", deleted)
	return deleted, nil
}

// deleteMessagesTx removes rows in chunks. Children replying to a deleted row
// keep existing with a NULL parent.
func deleteMessagesTx(ctx context.Context, tx *sqlx.Tx, ids []int64, now time.Time) (int64, error) {
	var deleted int64
	for start := 0; start < len(ids); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(ids))
		chunk := ids[start:end]

		if err := execIn(ctx, tx,
			`UPDATE messages SET reply_to_message_id = NULL, updated_at = ? WHERE reply_to_message_id IN (?)`,
			now, chunk); err != nil {
			return deleted, fmt.Errorf("failed to detach replies: %w", err)
		}

		if err := execIn(ctx, tx,
			`UPDATE chat_users SET num_stored_messages = MAX(0, num_stored_messages - (
				SELECT COUNT(*) FROM messages m WHERE m.chat_user_id = chat_users.id AND m.id IN (?)
			)), updated_at = ?
			WHERE id IN (SELECT chat_user_id FROM messages WHERE id IN (?))`,
			chunk, now, chunk); err != nil {
			return deleted, fmt.Errorf("failed to decrement stored counters: %w", err)
		}

		query, args, err := sqlx.In(`DELETE FROM messages WHERE id IN (?)`, chunk)
		if err != nil {
			return deleted, fmt.Errorf("failed to build delete query: %w", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete messages: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	return deleted, nil
}

func execIn(ctx context.Context, tx *sqlx.Tx, query string, args ...any) error {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(q), a...)
	return err
}

func appendMessageTx(ctx context.Context, tx *sqlx.Tx, msg NewMessage, now time.Time) (int64, error) {
	parentID, err := resolveReplyParent(ctx, tx, msg.ChatID, msg.ReplyToAPIID, 0)
	if err != nil {
		return 0, err
	}

	row := Message{
		ChatID:           msg.ChatID,
		ChatUserID:       msg.ChatUserID,
		APIID:            msg.APIID,
		Date:             msg.Date.UTC(),
		Text:             msg.Text,
		AttachmentType:   nullAttachment(msg.AttachmentType),
		ReplyToMessageID: parentID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	id, err := insertMessageRow(ctx, tx, &row)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE chat_users SET
			num_chatuser_messages = num_chatuser_messages + 1,
			num_stored_messages = num_stored_messages + 1,
			updated_at = ?
		WHERE id = ?`, now, msg.ChatUserID); err != nil {
		return 0, fmt.Errorf("failed to increment membership counters: %w", err)
	}
	return id, nil
}

func insertMessageRow(ctx context.Context, tx *sqlx.Tx, row *Message) (int64, error) {
	query := `
		INSERT INTO messages (chat_id, chat_user_id, api_id, date, text, attachment_type, reply_to_message_id, created_at, updated_at)
		VALUES (:chat_id, :chat_user_id, :api_id, :date, :text, :attachment_type, :reply_to_message_id, :created_at, :updated_at)`
	res, err := tx.NamedExecContext(ctx, query, row)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted message id: %w", err)
	}
	row.ID = id
	return id, nil
}

func updateMessageTx(ctx context.Context, tx *sqlx.Tx, chatID, apiID int64, upd MessageUpdate, now time.Time) error {
	var id int64
	err := tx.GetContext(ctx, &id,
		`SELECT id FROM messages WHERE chat_id = ? AND api_id = ? AND api_id <> ? ORDER BY id DESC LIMIT 1`,
		chatID, apiID, BotMessageAPIID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to find message to update: %w", err)
	}

	parentID, err := resolveReplyParent(ctx, tx, chatID, upd.ReplyToAPIID, id)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE messages SET text = ?, attachment_type = ?, reply_to_message_id = ?, updated_at = ? WHERE id = ?`,
		upd.Text, nullAttachment(upd.AttachmentType), parentID, now, id)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

// resolveReplyParent finds the stored row a platform reply id points at. Only
// messages from real senders in the same chat qualify, so a reply to the bot
// has no parent: bot output is stored without its platform id.
func resolveReplyParent(ctx context.Context, tx *sqlx.Tx, chatID, replyToAPIID, selfID int64) (sql.NullInt64, error) {
	if replyToAPIID <= 0 {
		return sql.NullInt64{}, nil
	}

	var parentID int64
	err := tx.GetContext(ctx, &parentID, `
		SELECT m.id FROM messages m
		JOIN chat_users cu ON cu.id = m.chat_user_id
		JOIN users u ON u.id = cu.user_id
		WHERE m.chat_id = ? AND m.api_id = ? AND u.is_this_bot = 0 AND m.id <> ?
		ORDER BY m.id DESC LIMIT 1`,
		chatID, replyToAPIID, selfID)
	if errors.Is(err, sql.ErrNoRows) {
		return sql.NullInt64{}, nil
	}
	if err != nil {
		return sql.NullInt64{}, fmt.Errorf("failed to resolve reply parent: %w", err)
	}
	return sql.NullInt64{Int64: parentID, Valid: true}, nil
}

func upsertChat(ctx context.Context, tx *sqlx.Tx, chat IncomingChat, now time.Time) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO chats (api_id, api_type, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (api_id) DO UPDATE SET
			api_type = excluded.api_type,
			title = excluded.title,
			updated_at = excluded.updated_at
		RETURNING id`,
		chat.APIID, string(chat.Type), chat.Title, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert chat %d: %w", chat.APIID, err)
	}
	return id, nil
}

func upsertUser(ctx context.Context, tx *sqlx.Tx, user IncomingUser, now time.Time) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO users (api_id, username, first_name, is_bot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (api_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			is_bot = excluded.is_bot,
			updated_at = excluded.updated_at
		RETURNING id`,
		user.APIID, user.Username, user.FirstName, user.IsBot, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert user %d: %w", user.APIID, err)
	}
	return id, nil
}

func ensureChatUser(ctx context.Context, tx *sqlx.Tx, chatID, userID int64, now time.Time) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO chat_users (chat_id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET updated_at = excluded.updated_at
		RETURNING id`,
		chatID, userID, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure membership of user %d in chat %d: %w", userID, chatID, err)
	}
	return id, nil
}

func ensureBotUser(ctx context.Context, tx *sqlx.Tx, now time.Time) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `SELECT id FROM users WHERE is_this_bot = 1`)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up bot user: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (api_id, first_name, is_bot, is_this_bot, created_at, updated_at) VALUES (NULL, '', 1, 1, ?, ?)`,
		now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create bot user: %w", err)
	}
	return res.LastInsertId()
}

func nullAttachment(t AttachmentType) sql.NullString {
	if t == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(t), Valid: true}
}

func validateIncoming(in IncomingMessage) error {
	switch {
	case in.Chat.APIID == 0:
		return fmt.Errorf("message must have a non-zero chat id")
	case in.From.APIID == 0:
		return fmt.Errorf("message must have a non-zero sender id")
	case strings.TrimSpace(in.Text) == "":
		return fmt.Errorf("message must have non-empty text")
	case in.Date.IsZero():
		return fmt.Errorf("message must have a non-zero date")
	}
	return nil
}
