package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beatmapCollab/backend/internal/beatmap"
	"beatmapCollab/backend/internal/timing"
)

func fixture(t *testing.T) (*beatmap.Beatmap, *Manager) {
	t.Helper()
	b := beatmap.New("m")
	b.ControlPoints.Add(timing.ControlPoint{ID: "tp", Kind: timing.KindTiming, Time: 0, BeatLength: 500, Meter: 4})
	b.ControlPointsChanged()
	require.True(t, b.HitObjects.Add(&beatmap.HitObject{ID: "x", Kind: beatmap.KindCircle, StartTime: 0, Position: beatmap.Vec2{X: 10, Y: 10}, NewCombo: true}))
	require.True(t, b.HitObjects.Add(&beatmap.HitObject{
		ID: "sl", Kind: beatmap.KindSlider, StartTime: 1000, Position: beatmap.Vec2{X: 200, Y: 200},
		Path:             []beatmap.PathPoint{{X: 0, Y: 0, Type: beatmap.PathLinear}, {X: 100, Y: 0}},
		ExpectedDistance: 100,
	}))
	b.Bookmarks.Add(beatmap.Bookmark{Time: 500, Name: "intro"})
	m := NewManager(b, NewRegistry(true))
	m.TrackPending()
	return b, m
}

func vec(x, y float64) *beatmap.Vec2 { return &beatmap.Vec2{X: x, Y: y} }
func f64(v float64) *float64         { return &v }
func boolp(v bool) *bool             { return &v }

func TestUndoInverseLaw(t *testing.T) {
	cases := map[string]Command{
		"createHitObject": NewCreateHitObject(&beatmap.HitObject{Kind: beatmap.KindCircle, StartTime: 3000, Position: beatmap.Vec2{X: 1, Y: 1}}),
		"deleteHitObject": DeleteHitObject{ID: "sl"},
		"updateHitObject": UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(50, 50), StartTime: f64(2500), NewCombo: boolp(false)}},
		"updateRepeats": UpdateHitObject{ID: "sl", Patch: beatmap.HitObjectPatch{
			Repeats: func() *int { r := 3; return &r }(),
		}},
		"createControlPoint": NewCreateControlPoint(timing.ControlPoint{Kind: timing.KindVelocity, Time: 900, Velocity: 2}),
		"deleteControlPoint": DeleteControlPoint{ID: "tp"},
		"updateControlPoint": UpdateControlPoint{ID: "tp", Patch: timing.Patch{BeatLength: f64(300)}},
		"createBookmark":     CreateBookmark{Time: 700, Name: "drop"},
		"removeBookmark":     RemoveBookmark{Time: 500},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			b, m := fixture(t)
			before := b.Snapshot()

			require.True(t, m.Submit(cmd, true))
			applied := b.Snapshot()
			assert.NotEqual(t, before, applied)
			assert.True(t, m.CanUndo())

			require.True(t, m.Undo())
			assert.Equal(t, before, b.Snapshot())
			assert.True(t, m.CanRedo())

			require.True(t, m.Redo())
			assert.Equal(t, applied, b.Snapshot())
		})
	}
}

func TestMergeWithinTransaction(t *testing.T) {
	b, m := fixture(t)

	require.True(t, m.Submit(UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(1, 1)}}, false))
	require.True(t, m.Submit(UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{StartTime: f64(200)}}, false))
	require.True(t, m.Submit(UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(2, 2)}}, false))
	assert.Equal(t, StateRecording, m.State())

	require.Len(t, m.current, 1)
	e := m.current[0]
	p := e.cmd.(UpdateHitObject).Patch
	assert.Equal(t, beatmap.Vec2{X: 2, Y: 2}, *p.Position)
	assert.Equal(t, 200.0, *p.StartTime)

	// 逆命令保留最早的原值
	u := e.undo.(UpdateHitObject).Patch
	assert.Equal(t, beatmap.Vec2{X: 10, Y: 10}, *u.Position)
	assert.Equal(t, 0.0, *u.StartTime)

	require.True(t, m.Commit())
	assert.Equal(t, StateIdle, m.State())
	require.True(t, m.Undo())
	x := b.HitObjects.Get("x")
	assert.Equal(t, beatmap.Vec2{X: 10, Y: 10}, x.Position)
	assert.Equal(t, 0.0, x.StartTime)
}

func TestMergeKeepsDifferentTargetsApart(t *testing.T) {
	_, m := fixture(t)
	m.Submit(UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(1, 1)}}, false)
	m.Submit(UpdateHitObject{ID: "sl", Patch: beatmap.HitObjectPatch{Position: vec(1, 1)}}, false)
	m.Submit(CreateBookmark{Time: 1, Name: "a"}, false)
	assert.Len(t, m.current, 3)
}

func TestCanBeIgnoredKeepsHistoryClean(t *testing.T) {
	_, m := fixture(t)
	assert.False(t, m.Submit(UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(10, 10)}}, true))
	assert.False(t, m.Submit(UpdateHitObject{ID: "missing", Patch: beatmap.HitObjectPatch{Position: vec(1, 1)}}, true))
	assert.False(t, m.Submit(CreateBookmark{Time: 500, Name: "dup"}, true))
	assert.False(t, m.Submit(DeleteHitObject{ID: "missing"}, true))
	assert.False(t, m.CanUndo())
	assert.Zero(t, m.Pending().Len())
}

func TestCommitClearsRedo(t *testing.T) {
	_, m := fixture(t)
	var events [][2]bool
	cancel := m.OnAvailabilityChanged(func(u, r bool) { events = append(events, [2]bool{u, r}) })
	defer cancel()

	m.Submit(CreateBookmark{Time: 1, Name: "a"}, true)
	m.Undo()
	assert.True(t, m.CanRedo())
	m.Submit(CreateBookmark{Time: 2, Name: "b"}, true)
	assert.False(t, m.CanRedo())
	assert.False(t, m.Redo())

	assert.Equal(t, [][2]bool{{true, false}, {false, true}, {true, false}}, events)
}

func TestUndoOrderWithinTransaction(t *testing.T) {
	b, m := fixture(t)
	created := NewCreateHitObject(&beatmap.HitObject{Kind: beatmap.KindCircle, StartTime: 4000})
	m.Submit(created, false)
	m.Submit(UpdateHitObject{ID: created.HitObject.ID, Patch: beatmap.HitObjectPatch{Position: vec(5, 5)}}, false)
	m.Commit()
	require.NotNil(t, b.HitObjects.Get(created.HitObject.ID))

	// 先撤销修改，再撤销创建
	require.True(t, m.Undo())
	assert.Nil(t, b.HitObjects.Get(created.HitObject.ID))

	require.True(t, m.Redo())
	h := b.HitObjects.Get(created.HitObject.ID)
	require.NotNil(t, h)
	assert.Equal(t, beatmap.Vec2{X: 5, Y: 5}, h.Position)
}

func TestUndoCreateAfterRemoteDelete(t *testing.T) {
	b, m := fixture(t)
	created := NewCreateHitObject(&beatmap.HitObject{Kind: beatmap.KindCircle, StartTime: 4000})
	m.Submit(created, true)

	m.Receive(Versioned{Command: DeleteHitObject{ID: created.HitObject.ID}, Version: 9}, ModeRemote)
	require.Nil(t, b.HitObjects.Get(created.HitObject.ID))

	before := b.Snapshot()
	assert.True(t, m.Undo())
	assert.Equal(t, before, b.Snapshot())
}

func TestUndoCurrentTransaction(t *testing.T) {
	b, m := fixture(t)
	before := b.Snapshot()
	m.Submit(UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(1, 1)}}, false)
	m.Submit(DeleteHitObject{ID: "sl"}, false)

	assert.True(t, m.UndoCurrentTransaction())
	assert.Equal(t, before, b.Snapshot())
	assert.False(t, m.CanUndo())
	assert.False(t, m.CanRedo())
}

func TestRemoteDoesNotClobberPendingLocal(t *testing.T) {
	b, m := fixture(t)
	m.version = 4
	require.True(t, m.Submit(UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(100, 100)}}, true))
	v, ok := m.Pending().Version("x", "position")
	require.True(t, ok)
	assert.Equal(t, uint64(5), v)

	m.Receive(Versioned{
		Command: UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(7, 7), NewCombo: boolp(false), StartTime: f64(30)}},
		Version: 3,
	}, ModeRemote)

	x := b.HitObjects.Get("x")
	assert.Equal(t, beatmap.Vec2{X: 100, Y: 100}, x.Position)
	assert.False(t, x.NewCombo)
	assert.Equal(t, 30.0, x.StartTime)
}

func TestOwnEchoIsIdempotent(t *testing.T) {
	b, m := fixture(t)
	m.version = 4
	m.Submit(UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(100, 100)}}, true)
	echo := Versioned{Command: UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(100, 100)}}, Version: 5}

	m.Receive(echo, ModeOwnEcho)
	once := b.Snapshot()
	assert.False(t, m.Pending().Has("x", "position"))

	m.Receive(echo, ModeOwnEcho)
	assert.Equal(t, once, b.Snapshot())

	// 回显确认后远端修改可以生效
	m.Receive(Versioned{Command: UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(7, 7)}}, Version: 6}, ModeRemote)
	assert.Equal(t, beatmap.Vec2{X: 7, Y: 7}, b.HitObjects.Get("x").Position)
}

func TestOwnEchoOfOlderVersionKeepsPending(t *testing.T) {
	_, m := fixture(t)
	m.Submit(UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(1, 1)}}, true)
	m.Submit(UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(2, 2)}}, true)

	m.Receive(Versioned{Command: UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(1, 1)}}, Version: 1}, ModeOwnEcho)
	assert.True(t, m.Pending().Has("x", "position"))
	m.Receive(Versioned{Command: UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(2, 2)}}, Version: 2}, ModeOwnEcho)
	assert.False(t, m.Pending().Has("x", "position"))
}

func TestStructuralEchoDoesNotDoubleApply(t *testing.T) {
	b, m := fixture(t)
	created := NewCreateHitObject(&beatmap.HitObject{Kind: beatmap.KindCircle, StartTime: 4000})
	m.Submit(created, true)
	m.Submit(DeleteHitObject{ID: created.HitObject.ID}, true)

	// 回显到达时对象已被本地删除，不能重新创建
	m.Receive(Versioned{Command: created, Version: 1}, ModeOwnEcho)
	assert.Nil(t, b.HitObjects.Get(created.HitObject.ID))

	// 他人的创建会执行
	other := NewCreateHitObject(&beatmap.HitObject{Kind: beatmap.KindCircle, StartTime: 5000})
	m.Receive(Versioned{Command: other, Version: 1}, ModeRemote)
	assert.NotNil(t, b.HitObjects.Get(other.HitObject.ID))

	m.Receive(Versioned{Command: CreateBookmark{Time: 9, Name: "r"}, Version: 2}, ModeOwnEcho)
	_, ok := b.Bookmarks.Get(9)
	assert.False(t, ok)
}

func TestDeleteClearsPending(t *testing.T) {
	_, m := fixture(t)
	m.Submit(UpdateHitObject{ID: "x", Patch: beatmap.HitObjectPatch{Position: vec(1, 1)}}, true)
	require.Equal(t, 1, m.Pending().Len())
	m.Receive(Versioned{Command: DeleteHitObject{ID: "x"}, Version: 1}, ModeRemote)
	assert.Zero(t, m.Pending().Len())
}

type bogus struct{}

func (bogus) Kind() Kind { return Kind(200) }

func TestUnknownCommand(t *testing.T) {
	b := beatmap.New("m")
	strict := NewManager(b, NewRegistry(true))
	assert.Panics(t, func() { strict.Submit(bogus{}, true) })

	lenient := NewManager(b, NewRegistry(false))
	assert.False(t, lenient.Submit(bogus{}, true))
	assert.NotPanics(t, func() { lenient.Receive(Versioned{Command: bogus{}, Version: 1}, ModeRemote) })

	_, err := NewRegistry(false).Lookup(Kind(200))
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestAfterSubmitSeesVersions(t *testing.T) {
	_, m := fixture(t)
	var sent []Versioned
	m.SetAfterSubmit(func(v Versioned) { sent = append(sent, v) })

	m.Submit(CreateBookmark{Time: 1, Name: "a"}, true)
	m.Submit(CreateBookmark{Time: 1, Name: "ignored"}, true)
	m.Submit(CreateBookmark{Time: 2, Name: "b"}, true)
	m.Undo()

	require.Len(t, sent, 3)
	assert.Equal(t, uint64(1), sent[0].Version)
	assert.Equal(t, uint64(3), sent[1].Version)
	assert.Equal(t, RemoveBookmark{Time: 2}, sent[2].Command)
	assert.Greater(t, sent[2].Version, sent[1].Version)
}

func TestUndoDeleteKeepsSameTimeOrder(t *testing.T) {
	b := beatmap.New("m")
	first, second := beatmap.NewID(), beatmap.NewID()
	require.True(t, b.HitObjects.Add(&beatmap.HitObject{ID: first, Kind: beatmap.KindCircle, StartTime: 100, NewCombo: true}))
	require.True(t, b.HitObjects.Add(&beatmap.HitObject{ID: second, Kind: beatmap.KindCircle, StartTime: 100, Position: beatmap.Vec2{X: 300}}))
	m := NewManager(b, NewRegistry(true))
	before := b.Snapshot()

	require.True(t, m.Submit(DeleteHitObject{ID: first}, true))
	require.True(t, m.Undo())

	objs := b.HitObjects.All()
	require.Len(t, objs, 2)
	assert.Equal(t, first, objs[0].ID)
	assert.Equal(t, second, objs[1].ID)
	assert.Equal(t, []int{0, 0}, []int{objs[0].ComboIndex, objs[1].ComboIndex})
	assert.Equal(t, 1, objs[1].IndexInCombo)
	assert.Equal(t, before, b.Snapshot())
}
