package localstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beatmapCollab/backend/internal/beatmap"
)

func openTemp(t *testing.T) (*SnapshotCache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.db")
	c, err := Open(path)
	require.NoError(t, err)
	return c, path
}

func TestPutGet(t *testing.T) {
	c, _ := openTemp(t)
	defer c.Close()

	_, err := c.Get("m1")
	assert.ErrorIs(t, err, ErrNotCached)

	b := beatmap.New("m1")
	require.True(t, b.HitObjects.Add(&beatmap.HitObject{ID: "h", Kind: beatmap.KindCircle, StartTime: 10}))
	require.NoError(t, c.Put("m1", 3, b.Snapshot()))

	e, err := c.Get("m1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), e.Revision)
	restored, err := beatmap.FromSnapshot(e.Snapshot)
	require.NoError(t, err)
	assert.NotNil(t, restored.HitObjects.Get("h"))

	require.NoError(t, c.Put("m1", 4, b.Snapshot()))
	assert.Equal(t, uint64(2), c.Saves("m1"))
}

func TestPersistsAcrossReopen(t *testing.T) {
	c, path := openTemp(t)
	require.NoError(t, c.Put("a", 1, beatmap.New("a").Snapshot()))
	require.NoError(t, c.Put("b", 1, beatmap.New("b").Snapshot()))
	require.NoError(t, c.Close())

	c, err := Open(path)
	require.NoError(t, err)
	defer c.Close()
	ids, err := c.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, c.Delete("a"))
	_, err = c.Get("a")
	assert.ErrorIs(t, err, ErrNotCached)
	assert.Zero(t, c.Saves("a"))
}
