package audit

import (
	"context"
	"time"

	"modwarden/internal/storage"

	"go.uber.org/zap"
)

// Moderator actions recorded in the audit trail.
const (
	ActionWarn    = "warn"
	ActionDelWarn = "delwarn"
	ActionFlag    = "flag"
	ActionMute    = "mute"
	ActionBan     = "ban"
	ActionAppeal  = "appeal"
)

type Recorder interface {
	AddAuditEntry(ctx context.Context, entry storage.AuditEntry) error
}

type Logger struct {
	store  Recorder
	logger *zap.Logger
	notify func(context.Context, storage.AuditEntry)
	now    func() time.Time
}

func NewLogger(store Recorder, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{store: store, logger: logger, now: time.Now}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditEntry)) {
	l.notify = notify
}

// Log records a moderator action. The trail is supplementary: a failed write
// is logged and never fails the action itself.
func (l *Logger) Log(ctx context.Context, action, guildID, moderatorID, targetID, details string) {
	entry := storage.AuditEntry{
		GuildID:     guildID,
		ModeratorID: moderatorID,
		TargetID:    targetID,
		Action:      action,
		Details:     details,
		CreatedAt:   l.now(),
	}
	if l.store != nil {
		if err := l.store.AddAuditEntry(ctx, entry); err != nil {
			l.logger.Warn("audit entry not persisted", zap.String("action", action), zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit",
		zap.String("action", action),
		zap.String("guild_id", guildID),
		zap.String("moderator_id", moderatorID),
		zap.String("target_id", targetID),
		zap.String("details", details),
	)
}
