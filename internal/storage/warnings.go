package storage

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type NewWarning struct {
	ServerID    int64
	UserID      int64
	ModeratorID int64
	Datestamp   int64
	Reason      string
}

type Warning struct {
	ID          string
	ServerID    int64
	UserID      int64
	ModeratorID int64
	Datestamp   int64
	Reason      string
	// Message is the announcement the warning was linked to, if any.
	Message *MessageLink
}

type MessageLink struct {
	ChannelID int64
	MessageID int64
}

// AddWarn stores a new warning and returns its generated id.
func (s *Store) AddWarn(ctx context.Context, w NewWarning) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO warnings (id, server_id, user_id, moderator_id, datestamp, reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`), id, w.ServerID, w.UserID, w.ModeratorID, w.Datestamp, w.Reason)
	if err != nil {
		return "", s.fail("add_warn", err, zap.Int64("user_id", w.UserID), zap.Int64("datestamp", w.Datestamp))
	}
	return id, nil
}

// DelWarn removes a warning and its announcement link in one transaction.
func (s *Store) DelWarn(ctx context.Context, warnID string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("del_warn", err, zap.String("warn_id", warnID))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, execErr := tx.ExecContext(ctx, s.rebind(`DELETE FROM warn_message WHERE warn_id = ?`), warnID); execErr != nil {
		return s.fail("del_warn", execErr, zap.String("warn_id", warnID))
	}
	result, execErr := tx.ExecContext(ctx, s.rebind(`DELETE FROM warnings WHERE id = ?`), warnID)
	if execErr != nil {
		return s.fail("del_warn", execErr, zap.String("warn_id", warnID))
	}
	affected, execErr := result.RowsAffected()
	if execErr != nil {
		return s.fail("del_warn", execErr, zap.String("warn_id", warnID))
	}
	if affected == 0 {
		return ErrNotFound
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return s.fail("del_warn", commitErr, zap.String("warn_id", warnID))
	}
	return nil
}

// ListWarns returns every warning for the user, oldest first, with the
// announcement link attached when one was recorded.
func (s *Store) ListWarns(ctx context.Context, userID int64) ([]Warning, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT w.id, w.server_id, w.user_id, w.moderator_id, w.datestamp, w.reason,
			m.channel_id, m.message_id
		FROM warnings w
		LEFT JOIN warn_message m ON w.id = m.warn_id
		WHERE w.user_id = ?
		ORDER BY w.datestamp, w.id
	`), userID)
	if err != nil {
		return nil, s.fail("list_warns", err, zap.Int64("user_id", userID))
	}
	defer rows.Close()

	warnings := []Warning{}
	for rows.Next() {
		var w Warning
		var channelID, messageID sql.NullInt64
		if err := rows.Scan(&w.ID, &w.ServerID, &w.UserID, &w.ModeratorID, &w.Datestamp, &w.Reason, &channelID, &messageID); err != nil {
			return nil, s.fail("list_warns", err, zap.Int64("user_id", userID))
		}
		if channelID.Valid && messageID.Valid {
			w.Message = &MessageLink{ChannelID: channelID.Int64, MessageID: messageID.Int64}
		}
		warnings = append(warnings, w)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list_warns", err, zap.Int64("user_id", userID))
	}
	return warnings, nil
}

// AddWarnMessageID links a warning to the message that announced it. The
// warning is not required to exist.
func (s *Store) AddWarnMessageID(ctx context.Context, warnID string, channelID, messageID int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO warn_message (warn_id, channel_id, message_id) VALUES (?, ?, ?)
	`), warnID, channelID, messageID)
	if err != nil {
		return s.fail("add_warn_message_id", err, zap.String("warn_id", warnID), zap.Int64("channel_id", channelID), zap.Int64("message_id", messageID))
	}
	return nil
}
