package analytics

import (
	"context"
	"sort"
	"time"

	"modwarden/internal/storage"
)

type Source interface {
	ListAuditEntries(ctx context.Context, guildID string, since time.Time) ([]storage.AuditEntry, error)
}

type Service struct {
	store Source
}

func New(store Source) *Service {
	return &Service{store: store}
}

type Report struct {
	Since       time.Time
	Total       int
	ByAction    map[string]int
	ByModerator map[string]int
}

// ModeratorCount is one row of the per-moderator leaderboard.
type ModeratorCount struct {
	ModeratorID string
	Count       int
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	entries, err := s.store.ListAuditEntries(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Since:       since,
		ByAction:    make(map[string]int),
		ByModerator: make(map[string]int),
	}
	for _, entry := range entries {
		report.Total++
		report.ByAction[entry.Action]++
		if entry.ModeratorID != "" {
			report.ByModerator[entry.ModeratorID]++
		}
	}
	return report, nil
}

// TopModerators orders moderators by action count, ties by id.
func (r Report) TopModerators(limit int) []ModeratorCount {
	out := make([]ModeratorCount, 0, len(r.ByModerator))
	for id, count := range r.ByModerator {
		out = append(out, ModeratorCount{ModeratorID: id, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ModeratorID < out[j].ModeratorID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
