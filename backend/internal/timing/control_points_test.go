package timing

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimingPointAt_Default(t *testing.T) {
	c := New(nil, nil)
	tp := c.TimingPointAt(1234)
	assert.Equal(t, 500.0, tp.BeatLength)
	assert.Equal(t, 1.0, c.VelocityAt(1234))
}

func TestTimingPointAt_LatestBeforeQuery(t *testing.T) {
	c := New([]ControlPoint{
		{ID: "a", Time: 1000, BeatLength: 400, Meter: 4},
		{ID: "b", Time: 0, BeatLength: 500, Meter: 4},
	}, []ControlPoint{
		{ID: "v1", Time: 2000, Velocity: 1.5},
	})

	assert.Equal(t, "b", c.TimingPointAt(999).ID)
	assert.Equal(t, "a", c.TimingPointAt(1000).ID)
	assert.Equal(t, "a", c.TimingPointAt(50_000).ID)
	// 早于第一个点时使用默认值
	assert.Equal(t, DefaultBeatLength, c.TimingPointAt(-10).BeatLength)

	assert.Equal(t, 1.0, c.VelocityAt(1999))
	assert.Equal(t, 1.5, c.VelocityAt(2000))
}

func TestSnap(t *testing.T) {
	c := New([]ControlPoint{{ID: "t", Time: 0, BeatLength: 500, Meter: 4}}, nil)

	assert.Equal(t, 625.0, c.Snap(620, 4, SnapRound))
	assert.Equal(t, 500.0, c.Snap(620, 4, SnapFloor))
	assert.Equal(t, 625.0, c.Snap(501, 4, SnapCeil))
	assert.Equal(t, 620.0, c.Snap(620, 0, SnapRound))
}

func TestSnapClampsNegativeTime(t *testing.T) {
	c := New([]ControlPoint{{ID: "t", Time: 0, BeatLength: 500, Meter: 4}}, nil)

	assert.Equal(t, 0.0, c.Snap(-100, 4, SnapRound))
	assert.Equal(t, 0.0, c.Snap(-1, 4, SnapFloor))
	assert.Equal(t, 0.0, c.Snap(-100, 0, SnapRound))
	assert.Equal(t, 0.0, c.Snap(-100, 4, SnapCeil))
}

func TestAddRemovePatch(t *testing.T) {
	c := New(nil, nil)
	require.True(t, c.Add(ControlPoint{ID: "x", Kind: KindTiming, Time: 100, BeatLength: 300, Meter: 4}))
	require.False(t, c.Add(ControlPoint{ID: "x", Kind: KindTiming, Time: 200}))
	require.True(t, c.Add(ControlPoint{ID: "y", Kind: KindTiming, Time: 50, BeatLength: 250, Meter: 3}))

	assert.Equal(t, []string{"y", "x"}, ids(c.Timing()))

	bl := 600.0
	tm := 10.0
	require.True(t, c.Patch("x", Patch{Time: &tm, BeatLength: &bl}))
	assert.Equal(t, []string{"x", "y"}, ids(c.Timing()))
	got, ok := c.Get("x")
	require.True(t, ok)
	assert.Equal(t, 600.0, got.BeatLength)

	removed, ok := c.Remove("y")
	require.True(t, ok)
	assert.Equal(t, 3, removed.Meter)
	_, ok = c.Remove("y")
	assert.False(t, ok)
	assert.False(t, c.Patch("missing", Patch{Time: &tm}))
}

func TestPatch_CaptureAndMerge(t *testing.T) {
	cp := ControlPoint{ID: "x", Time: 100, BeatLength: 300, Meter: 4}
	bl := 400.0
	m := 3
	p := Patch{BeatLength: &bl}.Merge(Patch{Meter: &m})
	assert.Equal(t, []Field{FieldBeatLength, FieldMeter}, p.Fields())

	undo := p.Capture(cp)
	require.NotNil(t, undo.BeatLength)
	assert.Equal(t, 300.0, *undo.BeatLength)
	assert.Nil(t, undo.Time)

	next := p.ApplyTo(cp)
	assert.False(t, p.Matches(cp))
	assert.True(t, p.Matches(next))
	assert.Equal(t, cp, undo.ApplyTo(next))
	assert.Equal(t, []Field{FieldMeter}, p.Without(FieldBeatLength).Fields())
}

func TestTicks_Classes(t *testing.T) {
	c := New([]ControlPoint{{ID: "t", Time: 0, BeatLength: 480, Meter: 4}}, nil)

	var types []TickType
	for tick := range c.Ticks(0, 480, 4) {
		types = append(types, tick.Type)
	}
	assert.Equal(t, []TickType{TickFull, TickQuarter, TickHalf, TickQuarter, TickFull}, types)

	types = types[:0]
	for tick := range c.Ticks(0, 479, 3) {
		types = append(types, tick.Type)
	}
	assert.Equal(t, []TickType{TickFull, TickThird, TickThird}, types)
}

func TestTicks_SegmentsAndRestart(t *testing.T) {
	c := New([]ControlPoint{
		{ID: "a", Time: 100, BeatLength: 200},
		{ID: "b", Time: 500, BeatLength: 100},
	}, nil)

	seq := c.Ticks(0, 700, 1)
	var times []float64
	for tick := range seq {
		times = append(times, tick.Time)
	}
	assert.Equal(t, []float64{100, 300, 500, 600, 700}, times)

	// 可以重复遍历
	again := slices.Collect(seq)
	assert.Len(t, again, len(times))

	// 提前结束
	for range seq {
		break
	}
	assert.Empty(t, slices.Collect(New(nil, nil).Ticks(0, 1000, 4)))
}

func TestTicks_BeforeFirstPoint(t *testing.T) {
	c := New([]ControlPoint{{ID: "a", Time: 1000, BeatLength: 500}}, nil)
	var times []float64
	for tick := range c.Ticks(0, 1000, 2) {
		times = append(times, tick.Time)
	}
	assert.Equal(t, []float64{0, 250, 500, 750, 1000}, times)
}

func ids(points []ControlPoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.ID
	}
	return out
}
