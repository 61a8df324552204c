package timing

import (
	"iter"
	"math"
)

// TickType 是拍子细分类别，数值即分母
type TickType uint8

const (
	TickFull      TickType = 1
	TickHalf      TickType = 2
	TickThird     TickType = 3
	TickQuarter   TickType = 4
	TickSixth     TickType = 6
	TickEighth    TickType = 8
	TickTwelfth   TickType = 12
	TickSixteenth TickType = 16
)

func (t TickType) String() string {
	switch t {
	case TickHalf:
		return "1/2"
	case TickThird:
		return "1/3"
	case TickQuarter:
		return "1/4"
	case TickSixth:
		return "1/6"
	case TickEighth:
		return "1/8"
	case TickTwelfth:
		return "1/12"
	case TickSixteenth:
		return "1/16"
	default:
		return "1/1"
	}
}

type Tick struct {
	Time float64
	Type TickType
}

// 一拍按 48 份计算相位，按顺序取第一个整除的类别
var tickClasses = []struct {
	mod int
	typ TickType
}{
	{48, TickFull},
	{24, TickHalf},
	{16, TickThird},
	{12, TickQuarter},
	{8, TickSixth},
	{6, TickEighth},
	{4, TickTwelfth},
	{3, TickSixteenth},
}

func classify(subticks int) TickType {
	subticks = ((subticks % 48) + 48) % 48
	for _, c := range tickClasses {
		if subticks%c.mod == 0 {
			return c.typ
		}
	}
	return TickFull
}

// Ticks 惰性生成 [start, end] 内的细分刻度。
// 第一个 timing 点之前的区域按第一个点向前延伸；每个点的区间到下一个点为止。
// 返回的序列可以重复遍历。
func (c *ControlPoints) Ticks(start, end float64, divisor int) iter.Seq[Tick] {
	return func(yield func(Tick) bool) {
		if len(c.timing) == 0 || divisor <= 0 || end < start {
			return
		}
		first := upperBound(c.timing, start) - 1
		if first < 0 {
			first = 0
		}
		for idx := first; idx < len(c.timing); idx++ {
			tp := c.timing[idx]
			if tp.Time > end {
				return
			}
			step := tp.BeatLength / float64(divisor)
			if step <= 0 {
				continue
			}
			hasNext := idx+1 < len(c.timing) && c.timing[idx+1].Time <= end
			i := int(math.Ceil((start - tp.Time) / step))
			if idx != first && i < 0 {
				i = 0
			}
			for ; ; i++ {
				t := tp.Time + float64(i)*step
				if hasNext && t >= c.timing[idx+1].Time {
					break
				}
				if t > end {
					return
				}
				typ := classify(int(math.Round(float64(i*48) / float64(divisor))))
				if !yield(Tick{Time: t, Type: typ}) {
					return
				}
			}
		}
	}
}
