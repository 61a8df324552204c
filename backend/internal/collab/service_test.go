package collab

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beatmapCollab/backend/internal/beatmap"
	"beatmapCollab/backend/internal/command"
)

// memStore 与 MySQL 实现一致：按 (beatmap, revision) 唯一，重复 revision 忽略，读取最大 revision
type memStore struct {
	mu    sync.Mutex
	snaps map[string]map[uint64]beatmap.Snapshot
	revs  map[string]uint64
	loads atomic.Int32
	saves atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[string]map[uint64]beatmap.Snapshot), revs: make(map[string]uint64)}
}

func (m *memStore) LoadSnapshot(_ context.Context, id string) (beatmap.Snapshot, uint64, bool, error) {
	m.loads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	rev, ok := m.revs[id]
	if !ok {
		return beatmap.Snapshot{}, 0, false, nil
	}
	return m.snaps[id][rev], rev, true, nil
}

func (m *memStore) SaveSnapshot(_ context.Context, id string, rev uint64, s beatmap.Snapshot) error {
	m.saves.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snaps[id] == nil {
		m.snaps[id] = make(map[uint64]beatmap.Snapshot)
	}
	if _, dup := m.snaps[id][rev]; dup {
		return nil
	}
	m.snaps[id][rev] = s
	if cur, ok := m.revs[id]; !ok || rev > cur {
		m.revs[id] = rev
	}
	return nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []BatchEvent
}

func (e *eventRecorder) Enqueue(_ context.Context, evt BatchEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
	return nil
}

func encode(t *testing.T, cmds ...command.Command) []byte {
	t.Helper()
	vs := make([]command.Versioned, len(cmds))
	for i, c := range cmds {
		vs[i] = command.Versioned{Command: c, Version: uint64(i + 1)}
	}
	data, err := command.EncodeBatch(vs)
	require.NoError(t, err)
	return data
}

func TestSubmitAppliesToRoomCopy(t *testing.T) {
	store := newMemStore()
	events := &eventRecorder{}
	svc := NewInMemoryService(ServiceOptions{Store: store, Events: events, Strict: true})
	ctx := context.Background()

	snap, _, err := svc.Join(ctx, "m1", "s1")
	require.NoError(t, err)
	assert.Empty(t, snap.HitObjects)

	create := command.NewCreateHitObject(&beatmap.HitObject{Kind: beatmap.KindCircle, StartTime: 100, Position: beatmap.Vec2{X: 5, Y: 5}})
	applied, err := svc.Submit(ctx, "m1", "s1", encode(t, create, command.CreateBookmark{Time: 50, Name: "x"}))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), applied.Revision)
	assert.Equal(t, 2, applied.Commands)
	assert.Equal(t, "s1", applied.SessionID)

	snap, err = svc.Snapshot(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, snap.HitObjects, 1)
	assert.Equal(t, create.HitObject.ID, snap.HitObjects[0].ID)
	assert.Equal(t, []beatmap.Bookmark{{Time: 50, Name: "x"}}, snap.Bookmarks)

	require.Len(t, events.events, 1)
	assert.Equal(t, EventBatchApplied, events.events[0].EventType)
	assert.Equal(t, []string{"createHitObject", "createBookmark"}, events.events[0].Kinds)
}

func TestSubmitRejectsMalformedBatchAtomically(t *testing.T) {
	svc := NewInMemoryService(ServiceOptions{})
	ctx := context.Background()
	_, _, err := svc.Join(ctx, "m1", "s1")
	require.NoError(t, err)
	before, _ := svc.Snapshot(ctx, "m1")

	payload := encode(t, command.CreateBookmark{Time: 1, Name: "ok"})
	_, err = svc.Submit(ctx, "m1", "s1", payload[:len(payload)-1])
	assert.ErrorIs(t, err, command.ErrMalformedBatch)

	after, _ := svc.Snapshot(ctx, "m1")
	assert.Equal(t, before, after)
}

func TestUnknownRoom(t *testing.T) {
	svc := NewInMemoryService(ServiceOptions{Store: newMemStore()})
	ctx := context.Background()

	_, err := svc.Submit(ctx, "nope", "s", encode(t))
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = svc.Snapshot(ctx, "nope")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.ErrorIs(t, svc.SaveSnapshot(ctx, "nope"), ErrRoomNotFound)
	assert.ErrorIs(t, svc.Leave(ctx, "nope", "s"), ErrRoomNotFound)
}

func TestSaveSnapshotSkipsUnchangedRoom(t *testing.T) {
	store := newMemStore()
	svc := NewInMemoryService(ServiceOptions{Store: store})
	ctx := context.Background()
	_, _, err := svc.Join(ctx, "m1", "s1")
	require.NoError(t, err)

	require.NoError(t, svc.SaveSnapshot(ctx, "m1"))
	require.NoError(t, svc.SaveSnapshot(ctx, "m1"))
	assert.Equal(t, int32(1), store.saves.Load())

	_, err = svc.Submit(ctx, "m1", "s1", encode(t, command.CreateBookmark{Time: 1, Name: "a"}))
	require.NoError(t, err)
	require.NoError(t, svc.SaveSnapshot(ctx, "m1"))
	assert.Equal(t, int32(2), store.saves.Load())
	assert.Equal(t, uint64(1), store.revs["m1"])
}

func TestLastLeaveSavesAndUnloads(t *testing.T) {
	store := newMemStore()
	svc := NewInMemoryService(ServiceOptions{Store: store})
	ctx := context.Background()

	_, _, err := svc.Join(ctx, "m1", "s1")
	require.NoError(t, err)
	_, _, err = svc.Join(ctx, "m1", "s2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, svc.Members("m1"))

	_, err = svc.Submit(ctx, "m1", "s1", encode(t, command.CreateBookmark{Time: 1, Name: "a"}))
	require.NoError(t, err)

	require.NoError(t, svc.Leave(ctx, "m1", "s1"))
	assert.Equal(t, int32(0), store.saves.Load())
	require.NoError(t, svc.Leave(ctx, "m1", "s2"))
	assert.Equal(t, int32(1), store.saves.Load())

	_, err = svc.Snapshot(ctx, "m1")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	// 再次加入时从存储恢复
	snap, _, err := svc.Join(ctx, "m1", "s3")
	require.NoError(t, err)
	assert.Equal(t, []beatmap.Bookmark{{Time: 1, Name: "a"}}, snap.Bookmarks)
}

func TestReloadedRoomContinuesStoredRevision(t *testing.T) {
	store := newMemStore()
	svc := NewInMemoryService(ServiceOptions{Store: store})
	ctx := context.Background()

	_, _, err := svc.Join(ctx, "m1", "s1")
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err = svc.Submit(ctx, "m1", "s1", encode(t, command.CreateBookmark{Time: float64(i), Name: "a"}))
		require.NoError(t, err)
	}
	require.NoError(t, svc.Leave(ctx, "m1", "s1"))
	assert.Equal(t, uint64(3), store.revs["m1"])

	// 重新加载后版本从 3 继续
	_, rev, err := svc.Join(ctx, "m1", "s2")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rev)

	applied, err := svc.Submit(ctx, "m1", "s2", encode(t, command.CreateBookmark{Time: 4, Name: "after reload"}))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), applied.Revision)
	require.NoError(t, svc.Leave(ctx, "m1", "s2"))
	assert.Equal(t, uint64(4), store.revs["m1"])

	snap, rev, err := svc.Join(ctx, "m1", "s3")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), rev)
	require.Len(t, snap.Bookmarks, 4)
	assert.Equal(t, "after reload", snap.Bookmarks[3].Name)
}

func TestConcurrentJoinLoadsOnce(t *testing.T) {
	store := newMemStore()
	svc := NewInMemoryService(ServiceOptions{Store: store})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := svc.Join(ctx, "m1", string(rune('a'+i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, svc.Members("m1"), 16)
	assert.LessOrEqual(t, store.loads.Load(), int32(16))

	svc.mu.RLock()
	defer svc.mu.RUnlock()
	assert.Len(t, svc.rooms, 1)
}

func TestNewRoomUsesConfiguredLeniency(t *testing.T) {
	svc := NewInMemoryService(ServiceOptions{StackLeniency: 0.5})
	snap, _, err := svc.Join(context.Background(), "m1", "s1")
	require.NoError(t, err)
	require.NotNil(t, snap.General)
	assert.Equal(t, 0.5, snap.General.StackLeniency)
}

func TestApplyRelayed(t *testing.T) {
	events := &eventRecorder{}
	svc := NewInMemoryService(ServiceOptions{Events: events})
	ctx := context.Background()
	_, _, err := svc.Join(ctx, "m1", "local")
	require.NoError(t, err)

	var delivered []AppliedBatch
	svc.SetOnApplied(func(a AppliedBatch) { delivered = append(delivered, a) })

	require.NoError(t, svc.ApplyRelayed(ctx, "m1", "remote-session", encode(t, command.CreateBookmark{Time: 3, Name: "r"})))
	require.Len(t, delivered, 1)
	assert.Equal(t, "remote-session", delivered[0].SessionID)
	snap, err := svc.Snapshot(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, snap.Bookmarks, 1)
	assert.Empty(t, events.events)

	assert.ErrorIs(t, svc.ApplyRelayed(ctx, "other", "x", encode(t)), ErrRoomNotFound)
}

func TestOnAppliedFollowsApplyOrder(t *testing.T) {
	var revs []uint64
	svc := NewInMemoryService(ServiceOptions{OnApplied: func(a AppliedBatch) { revs = append(revs, a.Revision) }})
	ctx := context.Background()
	_, _, err := svc.Join(ctx, "m1", "s1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Submit(ctx, "m1", "s1", encode(t, command.CreateBookmark{Time: float64(i), Name: "b"}))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Len(t, revs, 20)
	for i, rev := range revs {
		assert.Equal(t, uint64(i+1), rev)
	}
}
