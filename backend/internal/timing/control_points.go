package timing

import (
	"math"
	"sort"
)

type Kind uint8

const (
	KindTiming Kind = iota
	KindVelocity
)

func (k Kind) String() string {
	if k == KindVelocity {
		return "velocity"
	}
	return "timing"
}

// 控制点：timing 点使用 BeatLength/Meter，velocity 点使用 Velocity
type ControlPoint struct {
	ID         string  `json:"id"`
	Kind       Kind    `json:"-" codec:"kind"`
	Time       float64 `json:"time"`
	BeatLength float64 `json:"beatLength,omitempty"`
	Meter      int     `json:"meter,omitempty"`
	Velocity   float64 `json:"velocity,omitempty"`
}

const (
	DefaultBeatLength = 60_000.0 / 120
	DefaultMeter      = 4
	DefaultVelocity   = 1.0
)

// 列表为空或查询时间早于第一个点时使用
var DefaultTimingPoint = ControlPoint{Kind: KindTiming, Time: 0, BeatLength: DefaultBeatLength, Meter: DefaultMeter}

// ControlPoints 持有两条按时间排序的控制点列表。
// 不加锁：只由一个 command manager 持有并在单一 goroutine 中修改。
type ControlPoints struct {
	timing   []*ControlPoint
	velocity []*ControlPoint
	byID     map[string]*ControlPoint
}

func New(timingPoints, velocityPoints []ControlPoint) *ControlPoints {
	c := &ControlPoints{byID: make(map[string]*ControlPoint)}
	for _, p := range timingPoints {
		p.Kind = KindTiming
		c.Add(p)
	}
	for _, p := range velocityPoints {
		p.Kind = KindVelocity
		c.Add(p)
	}
	return c
}

func (c *ControlPoints) list(k Kind) *[]*ControlPoint {
	if k == KindVelocity {
		return &c.velocity
	}
	return &c.timing
}

// 第一个 Time > t 的下标
func upperBound(points []*ControlPoint, t float64) int {
	return sort.Search(len(points), func(i int) bool { return points[i].Time > t })
}

func (c *ControlPoints) TimingPointAt(t float64) ControlPoint {
	i := upperBound(c.timing, t)
	if i == 0 {
		return DefaultTimingPoint
	}
	return *c.timing[i-1]
}

func (c *ControlPoints) VelocityAt(t float64) float64 {
	i := upperBound(c.velocity, t)
	if i == 0 {
		return DefaultVelocity
	}
	return c.velocity[i-1].Velocity
}

type SnapMode uint8

const (
	SnapRound SnapMode = iota
	SnapFloor
	SnapCeil
)

// Snap 把 t 投影到当前 timing 点的 beatLength/divisor 网格上，负时间先收到 0
func (c *ControlPoints) Snap(t float64, divisor int, mode SnapMode) float64 {
	t = max(t, 0)
	if divisor <= 0 {
		return t
	}
	tp := c.TimingPointAt(t)
	step := tp.BeatLength / float64(divisor)
	if step <= 0 {
		return t
	}
	beats := (t - tp.Time) / step
	switch mode {
	case SnapFloor:
		beats = math.Floor(beats)
	case SnapCeil:
		beats = math.Ceil(beats)
	default:
		beats = math.Round(beats)
	}
	return tp.Time + beats*step
}

// Add 插入控制点，同一时间的点按插入顺序排在后面。ID 已存在时返回 false
func (c *ControlPoints) Add(p ControlPoint) bool {
	if p.ID != "" {
		if _, ok := c.byID[p.ID]; ok {
			return false
		}
	}
	cp := p
	l := c.list(p.Kind)
	i := upperBound(*l, p.Time)
	*l = append(*l, nil)
	copy((*l)[i+1:], (*l)[i:])
	(*l)[i] = &cp
	if cp.ID != "" {
		c.byID[cp.ID] = &cp
	}
	return true
}

func (c *ControlPoints) Remove(id string) (ControlPoint, bool) {
	cp, ok := c.byID[id]
	if !ok {
		return ControlPoint{}, false
	}
	delete(c.byID, id)
	l := c.list(cp.Kind)
	for i, p := range *l {
		if p == cp {
			*l = append((*l)[:i], (*l)[i+1:]...)
			break
		}
	}
	return *cp, true
}

func (c *ControlPoints) Get(id string) (ControlPoint, bool) {
	cp, ok := c.byID[id]
	if !ok {
		return ControlPoint{}, false
	}
	return *cp, true
}

// Patch 修改字段；修改 Time 时重新排序
func (c *ControlPoints) Patch(id string, p Patch) bool {
	cp, ok := c.byID[id]
	if !ok {
		return false
	}
	next := p.ApplyTo(*cp)
	if next.Time != cp.Time {
		c.Remove(id)
		c.Add(next)
		return true
	}
	*cp = next
	return true
}

func (c *ControlPoints) Timing() []ControlPoint   { return copyPoints(c.timing) }
func (c *ControlPoints) Velocity() []ControlPoint { return copyPoints(c.velocity) }

func (c *ControlPoints) Len() int { return len(c.timing) + len(c.velocity) }

func copyPoints(points []*ControlPoint) []ControlPoint {
	out := make([]ControlPoint, len(points))
	for i, p := range points {
		out[i] = *p
	}
	return out
}
