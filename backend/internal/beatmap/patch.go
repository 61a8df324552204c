package beatmap

import "slices"

// Field 是可修改的 hit object 字段
type Field uint8

const (
	FieldStartTime Field = iota + 1
	FieldPosition
	FieldNewCombo
	FieldComboOffset
	FieldHitSound
	FieldPath
	FieldExpectedDistance
	FieldRepeats
	FieldVelocity
	FieldEdgeHitSounds
	FieldDuration
)

var fieldNames = [...]string{
	FieldStartTime:        "startTime",
	FieldPosition:         "position",
	FieldNewCombo:         "newCombo",
	FieldComboOffset:      "comboOffset",
	FieldHitSound:         "hitSound",
	FieldPath:             "path",
	FieldExpectedDistance: "expectedDistance",
	FieldRepeats:          "repeats",
	FieldVelocity:         "velocity",
	FieldEdgeHitSounds:    "hitSounds",
	FieldDuration:         "duration",
}

func (f Field) String() string {
	if int(f) < len(fieldNames) && fieldNames[f] != "" {
		return fieldNames[f]
	}
	return "unknown"
}

// HitObjectPatch 是部分字段更新，nil 表示不修改。
// Velocity 设为 0 表示取消覆盖、回到继承值。
type HitObjectPatch struct {
	StartTime        *float64     `json:"startTime,omitempty"`
	Position         *Vec2        `json:"position,omitempty"`
	NewCombo         *bool        `json:"newCombo,omitempty"`
	ComboOffset      *int         `json:"comboOffset,omitempty"`
	HitSound         *HitSound    `json:"hitSound,omitempty"`
	Path             *[]PathPoint `json:"path,omitempty"`
	ExpectedDistance *float64     `json:"expectedDistance,omitempty"`
	Repeats          *int         `json:"repeats,omitempty"`
	Velocity         *float64     `json:"velocity,omitempty"`
	EdgeHitSounds    *[]HitSound  `json:"hitSounds,omitempty"`
	Duration         *float64     `json:"duration,omitempty"`
}

func (p HitObjectPatch) Fields() []Field {
	var out []Field
	add := func(set bool, f Field) {
		if set {
			out = append(out, f)
		}
	}
	add(p.StartTime != nil, FieldStartTime)
	add(p.Position != nil, FieldPosition)
	add(p.NewCombo != nil, FieldNewCombo)
	add(p.ComboOffset != nil, FieldComboOffset)
	add(p.HitSound != nil, FieldHitSound)
	add(p.Path != nil, FieldPath)
	add(p.ExpectedDistance != nil, FieldExpectedDistance)
	add(p.Repeats != nil, FieldRepeats)
	add(p.Velocity != nil, FieldVelocity)
	add(p.EdgeHitSounds != nil, FieldEdgeHitSounds)
	add(p.Duration != nil, FieldDuration)
	return out
}

func (p HitObjectPatch) Empty() bool { return len(p.Fields()) == 0 }

func (p HitObjectPatch) Without(f Field) HitObjectPatch {
	switch f {
	case FieldStartTime:
		p.StartTime = nil
	case FieldPosition:
		p.Position = nil
	case FieldNewCombo:
		p.NewCombo = nil
	case FieldComboOffset:
		p.ComboOffset = nil
	case FieldHitSound:
		p.HitSound = nil
	case FieldPath:
		p.Path = nil
	case FieldExpectedDistance:
		p.ExpectedDistance = nil
	case FieldRepeats:
		p.Repeats = nil
	case FieldVelocity:
		p.Velocity = nil
	case FieldEdgeHitSounds:
		p.EdgeHitSounds = nil
	case FieldDuration:
		p.Duration = nil
	}
	return p
}

// Merge 合并两个 patch，q 的字段覆盖 p
func (p HitObjectPatch) Merge(q HitObjectPatch) HitObjectPatch {
	for _, f := range q.Fields() {
		p = p.with(f, q)
	}
	return p
}

func (p HitObjectPatch) with(f Field, q HitObjectPatch) HitObjectPatch {
	switch f {
	case FieldStartTime:
		p.StartTime = q.StartTime
	case FieldPosition:
		p.Position = q.Position
	case FieldNewCombo:
		p.NewCombo = q.NewCombo
	case FieldComboOffset:
		p.ComboOffset = q.ComboOffset
	case FieldHitSound:
		p.HitSound = q.HitSound
	case FieldPath:
		p.Path = q.Path
	case FieldExpectedDistance:
		p.ExpectedDistance = q.ExpectedDistance
	case FieldRepeats:
		p.Repeats = q.Repeats
	case FieldVelocity:
		p.Velocity = q.Velocity
	case FieldEdgeHitSounds:
		p.EdgeHitSounds = q.EdgeHitSounds
	case FieldDuration:
		p.Duration = q.Duration
	}
	return p
}

// Capture 读取 h 中 p 涉及字段的当前值。
// 修改 repeats 会重排边缘音效，所以同时记录 hitSounds。
func (p HitObjectPatch) Capture(h *HitObject) HitObjectPatch {
	var out HitObjectPatch
	for _, f := range p.Fields() {
		switch f {
		case FieldStartTime:
			out.StartTime = ptr(h.StartTime)
		case FieldPosition:
			out.Position = ptr(h.Position)
		case FieldNewCombo:
			out.NewCombo = ptr(h.NewCombo)
		case FieldComboOffset:
			out.ComboOffset = ptr(h.ComboOffset)
		case FieldHitSound:
			out.HitSound = ptr(h.HitSound)
		case FieldPath:
			out.Path = ptr(slices.Clone(h.Path))
		case FieldExpectedDistance:
			out.ExpectedDistance = ptr(h.ExpectedDistance)
		case FieldRepeats:
			out.Repeats = ptr(h.Repeats)
			out.EdgeHitSounds = ptr(slices.Clone(h.EdgeHitSounds))
		case FieldVelocity:
			out.Velocity = ptr(h.Velocity)
		case FieldEdgeHitSounds:
			out.EdgeHitSounds = ptr(slices.Clone(h.EdgeHitSounds))
		case FieldDuration:
			out.Duration = ptr(h.Duration)
		}
	}
	return out
}

// Matches 报告 patch 是否不会改变 h
func (p HitObjectPatch) Matches(h *HitObject) bool {
	next := h.Clone()
	p.applyTo(next)
	return next.Equal(h)
}

// applyTo 写入字段并返回受影响的派生数据
func (p HitObjectPatch) applyTo(h *HitObject) (timeChanged, comboChanged, shapeChanged bool) {
	if p.StartTime != nil && *p.StartTime != h.StartTime {
		h.StartTime = *p.StartTime
		timeChanged = true
	}
	// 转盘的位置不可编辑
	if p.Position != nil && h.Kind != KindSpinner && *p.Position != h.Position {
		h.Position = *p.Position
		shapeChanged = true
	}
	if p.NewCombo != nil && *p.NewCombo != h.NewCombo {
		h.NewCombo = *p.NewCombo
		comboChanged = true
	}
	if p.ComboOffset != nil && *p.ComboOffset != h.ComboOffset {
		h.ComboOffset = *p.ComboOffset
		comboChanged = true
	}
	if p.HitSound != nil {
		h.HitSound = *p.HitSound
	}
	if h.Kind == KindSlider {
		if p.Path != nil {
			h.Path = slices.Clone(*p.Path)
			h.path = nil
			shapeChanged = true
		}
		if p.ExpectedDistance != nil && *p.ExpectedDistance != h.ExpectedDistance {
			h.ExpectedDistance = *p.ExpectedDistance
			shapeChanged = true
		}
		if p.EdgeHitSounds != nil {
			h.EdgeHitSounds = slices.Clone(*p.EdgeHitSounds)
		}
		if p.Repeats != nil && *p.Repeats != h.Repeats {
			h.Repeats = *p.Repeats
			shapeChanged = true
			// 撤销时 patch 自带原来的 hitSounds，不再补齐
			if p.EdgeHitSounds == nil {
				h.normalizeEdgeHitSounds()
			}
		}
		if p.Velocity != nil && *p.Velocity != h.Velocity {
			h.Velocity = *p.Velocity
			shapeChanged = true
		}
	}
	if h.Kind == KindSpinner && p.Duration != nil && *p.Duration != h.Duration {
		h.Duration = *p.Duration
		shapeChanged = true
	}
	return
}

func ptr[T any](v T) *T { return &v }
