package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type AuditEntry struct {
	ID          int64
	GuildID     string
	ModeratorID string
	TargetID    string
	Action      string
	Details     string
	CreatedAt   time.Time
}

func (s *Store) AddAuditEntry(ctx context.Context, entry AuditEntry) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO audit_logs (guild_id, moderator_id, target_id, action, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), entry.GuildID, entry.ModeratorID, entry.TargetID, entry.Action, entry.Details, entry.CreatedAt.Unix())
	if err != nil {
		return s.fail("add_audit_entry", err, zap.String("action", entry.Action))
	}
	return nil
}

func (s *Store) ListAuditEntries(ctx context.Context, guildID string, since time.Time) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, guild_id, moderator_id, target_id, action, details, created_at
		FROM audit_logs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`), guildID, since.Unix())
	if err != nil {
		return nil, s.fail("list_audit_entries", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var created int64
		if err := rows.Scan(&entry.ID, &entry.GuildID, &entry.ModeratorID, &entry.TargetID, &entry.Action, &entry.Details, &created); err != nil {
			return nil, s.fail("list_audit_entries", err)
		}
		entry.CreatedAt = time.Unix(created, 0)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list_audit_entries", err)
	}
	return entries, nil
}

// CleanupAuditEntries drops entries older than retentionDays and reports how many were removed.
func (s *Store) CleanupAuditEntries(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM audit_logs WHERE created_at < ?`), cutoff.Unix())
	if err != nil {
		return 0, s.fail("cleanup_audit_entries", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, s.fail("cleanup_audit_entries", err)
	}
	return removed, nil
}
