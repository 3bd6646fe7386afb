package utils

import (
	"sync"
	"time"
)

type joinEntry struct {
	userID string
	at     time.Time
}

// JoinStats describes the joins seen within the counter's window, the
// current one included.
type JoinStats struct {
	Recent int
	// Rejoins counts earlier joins by the same user still inside the window.
	Rejoins int
}

type JoinCounter struct {
	mu      sync.Mutex
	window  time.Duration
	entries []joinEntry
}

func NewJoinCounter(window time.Duration) *JoinCounter {
	return &JoinCounter{window: window}
}

func (c *JoinCounter) Add(userID string, now time.Time) JoinStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked(now)
	stats := JoinStats{}
	for _, entry := range c.entries {
		if entry.userID == userID {
			stats.Rejoins++
		}
	}
	c.entries = append(c.entries, joinEntry{userID: userID, at: now})
	stats.Recent = len(c.entries)
	return stats
}

func (c *JoinCounter) Count(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(now)
	return len(c.entries)
}

func (c *JoinCounter) Window() time.Duration {
	return c.window
}

func (c *JoinCounter) pruneLocked(now time.Time) {
	cutoff := now.Add(-c.window)
	idx := 0
	for _, entry := range c.entries {
		if entry.at.After(cutoff) {
			break
		}
		idx++
	}
	c.entries = c.entries[idx:]
}
