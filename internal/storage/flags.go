package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type NewFlag struct {
	ServerID    int64
	UserID      int64
	ModeratorID int64
	Datestamp   int64
}

type Flag struct {
	ID          string
	ServerID    int64
	UserID      int64
	ModeratorID int64
	Datestamp   int64
}

// AddFlag stores a flag. Repeated flags for one user are kept as separate rows.
func (s *Store) AddFlag(ctx context.Context, f NewFlag) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO flags (id, server_id, user_id, moderator_id, datestamp)
		VALUES (?, ?, ?, ?, ?)
	`), id, f.ServerID, f.UserID, f.ModeratorID, f.Datestamp)
	if err != nil {
		return "", s.fail("add_flag", err, zap.Int64("user_id", f.UserID))
	}
	return id, nil
}

// GetFlag returns the user's most recent flag by datestamp, ties broken by
// descending id, or nil when the user was never flagged.
func (s *Store) GetFlag(ctx context.Context, userID int64) (*Flag, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, server_id, user_id, moderator_id, datestamp
		FROM flags
		WHERE user_id = ?
		ORDER BY datestamp DESC, id DESC
		LIMIT 1
	`), userID)

	var f Flag
	if err := row.Scan(&f.ID, &f.ServerID, &f.UserID, &f.ModeratorID, &f.Datestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, s.fail("get_flag", err, zap.Int64("user_id", userID))
	}
	return &f, nil
}
