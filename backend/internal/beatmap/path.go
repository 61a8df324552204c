package beatmap

import (
	"fmt"
	"math"
	"strconv"
)

// PathType 标记一段曲线的类型。PathNone 表示该点不开始新的一段
type PathType uint8

const (
	PathNone PathType = iota
	PathLinear
	PathPerfectCurve
	PathCatmull
	PathBezier
)

// 快照中写成 null 或 0..3
func (t PathType) MarshalJSON() ([]byte, error) {
	if t == PathNone {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(t) - 1)), nil
}

func (t *PathType) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*t = PathNone
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 3 {
		return fmt.Errorf("invalid path type %q", s)
	}
	*t = PathType(n + 1)
	return nil
}

// PathPoint 坐标相对滑条起点
type PathPoint struct {
	X    float64  `json:"x"`
	Y    float64  `json:"y"`
	Type PathType `json:"type"`
}

const (
	bezierTolerance = 0.5
	arcTolerance    = 0.1
	catmullDetail   = 50
)

// SliderPath 是控制点近似后的折线，带累计长度
type SliderPath struct {
	points     []Vec2
	cumulative []float64
}

func CalculatePath(controlPoints []PathPoint) *SliderPath {
	p := &SliderPath{}
	if len(controlPoints) == 0 {
		return p
	}
	first := Vec2{controlPoints[0].X, controlPoints[0].Y}
	p.points = []Vec2{first}
	p.cumulative = []float64{0}

	segStart := 0
	for i := 1; i < len(controlPoints); i++ {
		if controlPoints[i].Type == PathNone && i != len(controlPoints)-1 {
			continue
		}
		typ := controlPoints[segStart].Type
		if typ == PathNone {
			typ = PathBezier
		}
		seg := make([]Vec2, 0, i-segStart+1)
		for _, cp := range controlPoints[segStart : i+1] {
			seg = append(seg, Vec2{cp.X, cp.Y})
		}
		for _, v := range approximateSegment(typ, seg) {
			last := p.points[len(p.points)-1]
			if last == v {
				continue
			}
			p.points = append(p.points, v)
			p.cumulative = append(p.cumulative, p.cumulative[len(p.cumulative)-1]+last.Distance(v))
		}
		segStart = i
	}
	return p
}

func (p *SliderPath) Length() float64 {
	if len(p.cumulative) == 0 {
		return 0
	}
	return p.cumulative[len(p.cumulative)-1]
}

// PositionAt 返回沿路径距离 d 处的位置（相对起点）
func (p *SliderPath) PositionAt(d float64) Vec2 {
	switch len(p.points) {
	case 0:
		return Vec2{}
	case 1:
		return p.points[0]
	}
	i := 0
	for i < len(p.cumulative)-2 && p.cumulative[i+1] <= d {
		i++
	}
	span := p.cumulative[i+1] - p.cumulative[i]
	if span <= 0 {
		return p.points[i]
	}
	t := (d - p.cumulative[i]) / span
	switch {
	case t <= 0:
		return p.points[i]
	case t >= 1:
		return p.points[i+1]
	}
	return p.points[i].Lerp(p.points[i+1], t)
}

func approximateSegment(typ PathType, cps []Vec2) []Vec2 {
	switch typ {
	case PathLinear:
		return cps
	case PathPerfectCurve:
		if len(cps) == 3 {
			if out, ok := approximateArc(cps); ok {
				return out
			}
		}
		return approximateBezier(cps)
	case PathCatmull:
		return approximateCatmull(cps)
	default:
		return approximateBezier(cps)
	}
}

// 自适应细分：不够平直就一分为二，用栈代替递归
func approximateBezier(cps []Vec2) []Vec2 {
	if len(cps) == 0 {
		return nil
	}
	var out []Vec2
	stack := [][]Vec2{append([]Vec2(nil), cps...)}
	for len(stack) > 0 {
		parent := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if bezierFlatEnough(parent) {
			out = append(out, bezierFlatten(parent)...)
			continue
		}
		l, r := bezierSubdivide(parent)
		stack = append(stack, r, l)
	}
	return append(out, cps[len(cps)-1])
}

func bezierFlatEnough(cps []Vec2) bool {
	for i := 1; i < len(cps)-1; i++ {
		d := cps[i-1].Sub(cps[i].Scale(2)).Add(cps[i+1])
		if d.LengthSq() > bezierTolerance*bezierTolerance*4 {
			return false
		}
	}
	return true
}

// de Casteljau 一分为二
func bezierSubdivide(cps []Vec2) (left, right []Vec2) {
	n := len(cps)
	left = make([]Vec2, n)
	right = make([]Vec2, n)
	mid := append([]Vec2(nil), cps...)
	for i := 0; i < n; i++ {
		left[i] = mid[0]
		right[n-i-1] = mid[n-i-1]
		for j := 0; j < n-i-1; j++ {
			mid[j] = mid[j].Add(mid[j+1]).Scale(0.5)
		}
	}
	return left, right
}

// 已足够平直时，每个控制点输出一个近似点（不含终点）
func bezierFlatten(cps []Vec2) []Vec2 {
	n := len(cps)
	l, r := bezierSubdivide(cps)
	joined := append(l, r[1:]...)
	out := []Vec2{cps[0]}
	for i := 1; i < n-1; i++ {
		idx := 2 * i
		out = append(out, joined[idx-1].Add(joined[idx].Scale(2)).Add(joined[idx+1]).Scale(0.25))
	}
	return out
}

func approximateArc(cps []Vec2) ([]Vec2, bool) {
	a, b, c := cps[0], cps[1], cps[2]
	if math.Abs((b.Y-a.Y)*(c.X-a.X)-(b.X-a.X)*(c.Y-a.Y)) < 0.001 {
		return nil, false
	}
	d := 2 * (a.X*(b.Y-c.Y) + b.X*(c.Y-a.Y) + c.X*(a.Y-b.Y))
	aSq, bSq, cSq := a.LengthSq(), b.LengthSq(), c.LengthSq()
	centre := Vec2{
		(aSq*(b.Y-c.Y) + bSq*(c.Y-a.Y) + cSq*(a.Y-b.Y)) / d,
		(aSq*(c.X-b.X) + bSq*(a.X-c.X) + cSq*(b.X-a.X)) / d,
	}
	dA, dC := a.Sub(centre), c.Sub(centre)
	radius := dA.Length()
	thetaStart := math.Atan2(dA.Y, dA.X)
	thetaEnd := math.Atan2(dC.Y, dC.X)
	for thetaEnd < thetaStart {
		thetaEnd += 2 * math.Pi
	}
	dir := 1.0
	thetaRange := thetaEnd - thetaStart
	ac := c.Sub(a)
	if (Vec2{ac.Y, -ac.X}).Dot(b.Sub(a)) < 0 {
		dir = -1
		thetaRange = 2*math.Pi - thetaRange
	}

	amount := 2
	if 2*radius > arcTolerance {
		angle := 2 * math.Acos(1-arcTolerance/radius)
		n := math.Ceil(thetaRange / angle)
		if !math.IsInf(n, 0) && !math.IsNaN(n) && int(n) > amount {
			amount = int(n)
		}
	}
	out := make([]Vec2, 0, amount)
	for i := 0; i < amount; i++ {
		theta := thetaStart + dir*float64(i)/float64(amount-1)*thetaRange
		out = append(out, Vec2{math.Cos(theta), math.Sin(theta)}.Scale(radius).Add(centre))
	}
	return out, true
}

func approximateCatmull(cps []Vec2) []Vec2 {
	var out []Vec2
	n := len(cps)
	for i := 0; i < n-1; i++ {
		v1 := cps[i]
		if i > 0 {
			v1 = cps[i-1]
		}
		v2 := cps[i]
		v3 := cps[i+1]
		v4 := v3.Scale(2).Sub(v2)
		if i < n-2 {
			v4 = cps[i+2]
		}
		for c := 0; c < catmullDetail; c++ {
			out = append(out,
				catmullPoint(v1, v2, v3, v4, float64(c)/catmullDetail),
				catmullPoint(v1, v2, v3, v4, float64(c+1)/catmullDetail))
		}
	}
	return out
}

func catmullPoint(v1, v2, v3, v4 Vec2, t float64) Vec2 {
	t2, t3 := t*t, t*t*t
	f := func(a, b, c, d float64) float64 {
		return 0.5 * (2*b + (-a+c)*t + (2*a-5*b+4*c-d)*t2 + (-a+3*b-3*c+d)*t3)
	}
	return Vec2{f(v1.X, v2.X, v3.X, v4.X), f(v1.Y, v2.Y, v3.Y, v4.Y)}
}
