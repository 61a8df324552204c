package beatmap

import (
	"slices"

	"beatmapCollab/backend/internal/timing"
)

type Kind uint8

const (
	KindCircle Kind = iota + 1
	KindSlider
	KindSpinner
)

func (k Kind) String() string {
	switch k {
	case KindCircle:
		return "circle"
	case KindSlider:
		return "slider"
	case KindSpinner:
		return "spinner"
	}
	return "unknown"
}

func ParseKind(s string) (Kind, bool) {
	switch s {
	case "circle":
		return KindCircle, true
	case "slider":
		return KindSlider, true
	case "spinner":
		return KindSpinner, true
	}
	return 0, false
}

// 转盘固定在游戏区域中心
var SpinnerPosition = Vec2{X: 256, Y: 192}

// HitObject 是圆圈/滑条/转盘的统一表示，按 Kind 区分变体字段。
// 从索引里拿到的指针只读，修改必须经过 HitObjects.Patch。
type HitObject struct {
	ID          string
	Kind        Kind
	StartTime   float64
	Position    Vec2
	NewCombo    bool
	ComboOffset int
	HitSound    HitSound

	// slider
	Path             []PathPoint
	ExpectedDistance float64
	Repeats          int
	Velocity         float64 // 0 表示继承控制点
	EdgeHitSounds    []HitSound

	// spinner
	Duration float64

	// 派生字段，不参与序列化
	ComboIndex   int
	IndexInCombo int
	StackHeight  int
	StackRoot    string
	TimePreempt  float64

	baseVelocity      float64
	inheritedVelocity float64
	path              *SliderPath
}

// normalizeEdgeHitSounds 让边缘音效数 = spans+1，只在修改 repeats 时调用，
// 反序列化的数据原样保留
func (h *HitObject) normalizeEdgeHitSounds() {
	want := h.Spans() + 1
	n := len(h.EdgeHitSounds)
	if n == want {
		return
	}
	last := DefaultHitSound()
	if n > 0 {
		last = h.EdgeHitSounds[n-1]
	}
	if n > want {
		h.EdgeHitSounds = slices.Clone(h.EdgeHitSounds[:want])
		h.EdgeHitSounds[want-1] = last
		return
	}
	for len(h.EdgeHitSounds) < want {
		h.EdgeHitSounds = append(h.EdgeHitSounds, last)
	}
}

func (h *HitObject) Spans() int { return h.Repeats + 1 }

// EdgeHitSound 返回第 i 个边缘的音效，缺失时沿用最后一个，没有则用对象音效
func (h *HitObject) EdgeHitSound(i int) HitSound {
	switch n := len(h.EdgeHitSounds); {
	case n == 0:
		return h.HitSound
	case i >= n:
		return h.EdgeHitSounds[n-1]
	case i < 0:
		return h.EdgeHitSounds[0]
	}
	return h.EdgeHitSounds[i]
}

func (h *HitObject) SliderPath() *SliderPath {
	if h.path == nil {
		h.path = CalculatePath(h.Path)
	}
	return h.path
}

// SliderVelocity 是每毫秒的移动距离
func (h *HitObject) SliderVelocity() float64 {
	v := h.Velocity
	if v == 0 {
		v = h.inheritedVelocity
	}
	return v * h.baseVelocity
}

func (h *HitObject) SpanDuration() float64 {
	v := h.SliderVelocity()
	if v <= 0 {
		return 0
	}
	return h.ExpectedDistance / v
}

func (h *HitObject) EffectiveDuration() float64 {
	switch h.Kind {
	case KindSlider:
		return h.SpanDuration() * float64(h.Spans())
	case KindSpinner:
		return h.Duration
	}
	return 0
}

func (h *HitObject) EndTime() float64 { return h.StartTime + h.EffectiveDuration() }

// EndPosition 对偶数次折返的滑条是路径终点，其余对象就是起点
func (h *HitObject) EndPosition() Vec2 {
	switch {
	case h.Kind == KindSpinner:
		return SpinnerPosition
	case h.Kind == KindSlider && h.Repeats%2 == 0:
		return h.Position.Add(h.SliderPath().PositionAt(h.ExpectedDistance))
	}
	return h.Position
}

// 堆叠后的显示位置；转盘总是显示在中心，存储的 Position 不变
func (h *HitObject) StackedPosition() Vec2 {
	if h.Kind == KindSpinner {
		return SpinnerPosition
	}
	off := float64(h.StackHeight) * 3
	return h.Position.Sub(Vec2{off, off})
}

func (h *HitObject) applyDefaults(d Difficulty, cp *timing.ControlPoints) {
	h.TimePreempt = difficultyRange(d.ApproachRate, 1800, 1200, 450)
	if h.Kind != KindSlider {
		return
	}
	tp := cp.TimingPointAt(h.StartTime)
	h.baseVelocity = 100 * d.SliderMultiplier / tp.BeatLength
	h.inheritedVelocity = cp.VelocityAt(h.StartTime)
}

func difficultyRange(diff, min, mid, max float64) float64 {
	switch {
	case diff > 5:
		return mid + (max-mid)*(diff-5)/5
	case diff < 5:
		return mid - (mid-min)*(5-diff)/5
	}
	return mid
}

// Clone 深拷贝，不带派生字段
func (h *HitObject) Clone() *HitObject {
	c := &HitObject{
		ID:               h.ID,
		Kind:             h.Kind,
		StartTime:        h.StartTime,
		Position:         h.Position,
		NewCombo:         h.NewCombo,
		ComboOffset:      h.ComboOffset,
		HitSound:         h.HitSound,
		Path:             slices.Clone(h.Path),
		ExpectedDistance: h.ExpectedDistance,
		Repeats:          h.Repeats,
		Velocity:         h.Velocity,
		EdgeHitSounds:    slices.Clone(h.EdgeHitSounds),
		Duration:         h.Duration,
	}
	return c
}

// Equal 比较可序列化字段
func (h *HitObject) Equal(o *HitObject) bool {
	return h.ID == o.ID && h.Kind == o.Kind && h.StartTime == o.StartTime &&
		h.Position == o.Position && h.NewCombo == o.NewCombo && h.ComboOffset == o.ComboOffset &&
		h.HitSound == o.HitSound && slices.Equal(h.Path, o.Path) &&
		h.ExpectedDistance == o.ExpectedDistance && h.Repeats == o.Repeats &&
		h.Velocity == o.Velocity && slices.Equal(h.EdgeHitSounds, o.EdgeHitSounds) &&
		h.Duration == o.Duration
}
