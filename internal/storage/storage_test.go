package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(DriverSQLite, filepath.Join(t.TempDir(), "modwarden.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate())
	return store
}

func TestMigrateIsRepeatable(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Migrate())
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New("mysql", "", nil)
	require.Error(t, err)
}

func TestAddWarnThenList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seen := map[string]struct{}{}
	for i := 0; i < 5; i++ {
		id, err := store.AddWarn(ctx, NewWarning{
			ServerID:    1,
			UserID:      42,
			ModeratorID: 7,
			Datestamp:   1700000000 + int64(i),
			Reason:      "spamming",
		})
		require.NoError(t, err)
		require.NotEmpty(t, id)
		_, dup := seen[id]
		require.False(t, dup, "id %s returned twice", id)
		seen[id] = struct{}{}
	}

	warnings, err := store.ListWarns(ctx, 42)
	require.NoError(t, err)
	require.Len(t, warnings, 5)
	for i, w := range warnings {
		assert.Equal(t, "spamming", w.Reason)
		assert.Equal(t, int64(7), w.ModeratorID)
		assert.Equal(t, int64(1700000000+i), w.Datestamp)
		assert.Nil(t, w.Message)
	}
}

func TestListWarnsEmpty(t *testing.T) {
	store := newTestStore(t)
	warnings, err := store.ListWarns(context.Background(), 99)
	require.NoError(t, err)
	assert.NotNil(t, warnings)
	assert.Empty(t, warnings)
}

func TestDelWarn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	keep, err := store.AddWarn(ctx, NewWarning{ServerID: 1, UserID: 42, ModeratorID: 7, Datestamp: 1, Reason: "a"})
	require.NoError(t, err)
	drop, err := store.AddWarn(ctx, NewWarning{ServerID: 1, UserID: 42, ModeratorID: 7, Datestamp: 2, Reason: "b"})
	require.NoError(t, err)

	require.NoError(t, store.DelWarn(ctx, drop))

	warnings, err := store.ListWarns(ctx, 42)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, keep, warnings[0].ID)

	assert.ErrorIs(t, store.DelWarn(ctx, drop), ErrNotFound)
	assert.ErrorIs(t, store.DelWarn(ctx, "never-existed"), ErrNotFound)
}

func TestWarnMessageLink(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.AddWarn(ctx, NewWarning{ServerID: 1, UserID: 42, ModeratorID: 7, Datestamp: 1, Reason: "a"})
	require.NoError(t, err)
	require.NoError(t, store.AddWarnMessageID(ctx, id, 555, 666))

	warnings, err := store.ListWarns(ctx, 42)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.NotNil(t, warnings[0].Message)
	assert.Equal(t, int64(555), warnings[0].Message.ChannelID)
	assert.Equal(t, int64(666), warnings[0].Message.MessageID)

	// A warning carries at most one announcement link.
	assert.ErrorIs(t, store.AddWarnMessageID(ctx, id, 1, 2), ErrDatabase)
}

func TestWarnMessageLinkDanglingIsAccepted(t *testing.T) {
	store := newTestStore(t)
	// No foreign key is enforced on insert; the row is simply orphaned.
	require.NoError(t, store.AddWarnMessageID(context.Background(), "no-such-warning", 1, 2))
}

func TestDelWarnRemovesLink(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.AddWarn(ctx, NewWarning{ServerID: 1, UserID: 42, ModeratorID: 7, Datestamp: 1, Reason: "a"})
	require.NoError(t, err)
	require.NoError(t, store.AddWarnMessageID(ctx, id, 555, 666))
	require.NoError(t, store.DelWarn(ctx, id))

	var count int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM warn_message WHERE warn_id = ?`, id).Scan(&count))
	assert.Zero(t, count)
}

func TestFlags(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	flag, err := store.GetFlag(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, flag)

	_, err = store.AddFlag(ctx, NewFlag{ServerID: 1, UserID: 42, ModeratorID: 7, Datestamp: 100})
	require.NoError(t, err)
	flag, err = store.GetFlag(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, flag)
	assert.Equal(t, int64(1), flag.ServerID)
	assert.Equal(t, int64(42), flag.UserID)
	assert.Equal(t, int64(7), flag.ModeratorID)
	assert.Equal(t, int64(100), flag.Datestamp)

	_, err = store.AddFlag(ctx, NewFlag{ServerID: 1, UserID: 42, ModeratorID: 8, Datestamp: 200})
	require.NoError(t, err)

	first, err := store.GetFlag(ctx, 42)
	require.NoError(t, err)
	second, err := store.GetFlag(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(200), first.Datestamp)
}

func TestConcurrentAddWarn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids := make([]string, 2)
	var group errgroup.Group
	for i := range ids {
		i := i
		group.Go(func() error {
			id, err := store.AddWarn(ctx, NewWarning{ServerID: 1, UserID: 42, ModeratorID: int64(i + 1), Datestamp: 1, Reason: "race"})
			ids[i] = id
			return err
		})
	}
	require.NoError(t, group.Wait())
	assert.NotEqual(t, ids[0], ids[1])

	warnings, err := store.ListWarns(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, warnings, 2)
}

func TestClosedStoreReportsDatabaseError(t *testing.T) {
	store, err := New(DriverSQLite, filepath.Join(t.TempDir(), "closed.db"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	store.Close()

	_, err = store.AddWarn(context.Background(), NewWarning{UserID: 1, Reason: "x"})
	assert.ErrorIs(t, err, ErrDatabase)
	_, err = store.ListWarns(context.Background(), 1)
	assert.ErrorIs(t, err, ErrDatabase)
	assert.ErrorIs(t, store.DelWarn(context.Background(), "x"), ErrDatabase)
}

func TestAuditEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := AuditEntry{GuildID: "g1", ModeratorID: "m1", TargetID: "u1", Action: "warn", Details: "old", CreatedAt: time.Now().AddDate(0, 0, -40)}
	recent := AuditEntry{GuildID: "g1", ModeratorID: "m1", TargetID: "u1", Action: "ban", Details: "recent", CreatedAt: time.Now()}
	require.NoError(t, store.AddAuditEntry(ctx, old))
	require.NoError(t, store.AddAuditEntry(ctx, recent))

	entries, err := store.ListAuditEntries(ctx, "g1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ban", entries[0].Action)

	removed, err := store.CleanupAuditEntries(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestRebind(t *testing.T) {
	store := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", store.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	store.driver = DriverSQLite
	assert.Equal(t, "a = ?", store.rebind("a = ?"))
}
