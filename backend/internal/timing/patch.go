package timing

// Field 是可修改的控制点字段
type Field uint8

const (
	FieldTime Field = iota + 1
	FieldBeatLength
	FieldMeter
	FieldVelocity
)

var fieldNames = [...]string{
	FieldTime:       "time",
	FieldBeatLength: "beatLength",
	FieldMeter:      "meter",
	FieldVelocity:   "velocity",
}

func (f Field) String() string {
	if int(f) < len(fieldNames) && fieldNames[f] != "" {
		return fieldNames[f]
	}
	return "unknown"
}

// Patch 是部分字段更新，nil 表示不修改
type Patch struct {
	Time       *float64 `json:"time,omitempty"`
	BeatLength *float64 `json:"beatLength,omitempty"`
	Meter      *int     `json:"meter,omitempty"`
	Velocity   *float64 `json:"velocity,omitempty"`
}

func (p Patch) Fields() []Field {
	var out []Field
	if p.Time != nil {
		out = append(out, FieldTime)
	}
	if p.BeatLength != nil {
		out = append(out, FieldBeatLength)
	}
	if p.Meter != nil {
		out = append(out, FieldMeter)
	}
	if p.Velocity != nil {
		out = append(out, FieldVelocity)
	}
	return out
}

func (p Patch) Empty() bool { return len(p.Fields()) == 0 }

func (p Patch) Without(f Field) Patch {
	switch f {
	case FieldTime:
		p.Time = nil
	case FieldBeatLength:
		p.BeatLength = nil
	case FieldMeter:
		p.Meter = nil
	case FieldVelocity:
		p.Velocity = nil
	}
	return p
}

// Merge 合并两个 patch，q 的字段覆盖 p
func (p Patch) Merge(q Patch) Patch {
	if q.Time != nil {
		p.Time = q.Time
	}
	if q.BeatLength != nil {
		p.BeatLength = q.BeatLength
	}
	if q.Meter != nil {
		p.Meter = q.Meter
	}
	if q.Velocity != nil {
		p.Velocity = q.Velocity
	}
	return p
}

// Capture 读取 cp 中 p 涉及字段的当前值（用于撤销）
func (p Patch) Capture(cp ControlPoint) Patch {
	var out Patch
	if p.Time != nil {
		out.Time = ptr(cp.Time)
	}
	if p.BeatLength != nil {
		out.BeatLength = ptr(cp.BeatLength)
	}
	if p.Meter != nil {
		out.Meter = ptr(cp.Meter)
	}
	if p.Velocity != nil {
		out.Velocity = ptr(cp.Velocity)
	}
	return out
}

// Matches 报告 patch 是否不会改变 cp
func (p Patch) Matches(cp ControlPoint) bool {
	return (p.Time == nil || *p.Time == cp.Time) &&
		(p.BeatLength == nil || *p.BeatLength == cp.BeatLength) &&
		(p.Meter == nil || *p.Meter == cp.Meter) &&
		(p.Velocity == nil || *p.Velocity == cp.Velocity)
}

func (p Patch) ApplyTo(cp ControlPoint) ControlPoint {
	if p.Time != nil {
		cp.Time = *p.Time
	}
	if p.BeatLength != nil {
		cp.BeatLength = *p.BeatLength
	}
	if p.Meter != nil {
		cp.Meter = *p.Meter
	}
	if p.Velocity != nil {
		cp.Velocity = *p.Velocity
	}
	return cp
}

func ptr[T any](v T) *T { return &v }
