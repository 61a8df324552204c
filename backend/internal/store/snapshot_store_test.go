package store

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beatmapCollab/backend/internal/beatmap"
)

func TestIsDuplicate(t *testing.T) {
	assert.True(t, isDuplicate(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.True(t, isDuplicate(fmt.Errorf("create: %w", &mysql.MySQLError{Number: 1062})))
	assert.False(t, isDuplicate(&mysql.MySQLError{Number: 1146}))
	assert.False(t, isDuplicate(assert.AnError))
}

func testStore(t *testing.T, keep int) *SnapshotStore {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skipf("TEST_MYSQL_DSN not set")
	}
	db, err := InitMySQL(dsn)
	if err != nil {
		t.Skipf("mysql not available: %v", err)
	}
	return NewSnapshotStore(db, keep)
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	s := testStore(t, 0)
	ctx := context.Background()
	id := uuid.NewString()
	t.Cleanup(func() { s.db.Where("beatmap_id = ?", id).Delete(&BeatmapSnapshot{}) })

	_, _, ok, err := s.LoadSnapshot(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	b := beatmap.New(id)
	b.Bookmarks.Add(beatmap.Bookmark{Time: 10, Name: "a"})
	require.NoError(t, s.SaveSnapshot(ctx, id, 1, b.Snapshot()))
	// 重复 revision 不报错
	require.NoError(t, s.SaveSnapshot(ctx, id, 1, b.Snapshot()))

	b.Bookmarks.Add(beatmap.Bookmark{Time: 20, Name: "b"})
	require.NoError(t, s.SaveSnapshot(ctx, id, 2, b.Snapshot()))

	snap, rev, ok, err := s.LoadSnapshot(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), rev)
	assert.Equal(t, b.Snapshot(), snap)
}

func TestSnapshotStorePrunes(t *testing.T) {
	s := testStore(t, 2)
	ctx := context.Background()
	id := uuid.NewString()
	t.Cleanup(func() { s.db.Where("beatmap_id = ?", id).Delete(&BeatmapSnapshot{}) })

	b := beatmap.New(id)
	for rev := uint64(1); rev <= 4; rev++ {
		require.NoError(t, s.SaveSnapshot(ctx, id, rev, b.Snapshot()))
	}
	var revs []uint64
	require.NoError(t, s.db.Model(&BeatmapSnapshot{}).Where("beatmap_id = ?", id).Order("revision").Pluck("revision", &revs).Error)
	assert.Equal(t, []uint64{3, 4}, revs)
}
