package analytics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"modwarden/internal/storage"

	"go.uber.org/zap"
)

func TestReportCountsRecentActions(t *testing.T) {
	store, err := storage.New(storage.DriverSQLite, filepath.Join(t.TempDir(), "analytics.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	now := time.Now()
	entries := []storage.AuditEntry{
		{GuildID: "g1", ModeratorID: "m1", TargetID: "u1", Action: "warn", CreatedAt: now},
		{GuildID: "g1", ModeratorID: "m1", TargetID: "u2", Action: "warn", CreatedAt: now},
		{GuildID: "g1", ModeratorID: "m2", TargetID: "u3", Action: "ban", CreatedAt: now},
		{GuildID: "g1", ModeratorID: "m2", TargetID: "u4", Action: "mute", CreatedAt: now.AddDate(0, 0, -10)},
		{GuildID: "g2", ModeratorID: "m3", TargetID: "u5", Action: "warn", CreatedAt: now},
	}
	for _, entry := range entries {
		if err := store.AddAuditEntry(ctx, entry); err != nil {
			t.Fatalf("add entry: %v", err)
		}
	}

	report, err := New(store).Report(ctx, "g1", now.AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Total != 3 {
		t.Fatalf("expected 3 actions, got %d", report.Total)
	}
	if report.ByAction["warn"] != 2 || report.ByAction["ban"] != 1 || report.ByAction["mute"] != 0 {
		t.Fatalf("unexpected by-action counts %v", report.ByAction)
	}

	top := report.TopModerators(1)
	if len(top) != 1 || top[0].ModeratorID != "m1" || top[0].Count != 2 {
		t.Fatalf("unexpected leaderboard %+v", top)
	}
}

func TestTopModeratorsTieBreak(t *testing.T) {
	report := Report{ByModerator: map[string]int{"b": 1, "a": 1, "c": 3}}
	top := report.TopModerators(0)
	if len(top) != 3 {
		t.Fatalf("expected all moderators, got %d", len(top))
	}
	if top[0].ModeratorID != "c" || top[1].ModeratorID != "a" || top[2].ModeratorID != "b" {
		t.Fatalf("unexpected order %+v", top)
	}
}
