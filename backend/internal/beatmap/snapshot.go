package beatmap

import (
	"errors"
	"fmt"
	"slices"

	"github.com/goccy/go-json"

	"beatmapCollab/backend/internal/timing"
)

var ErrInvalidSnapshot = errors.New("INVALID_SNAPSHOT")

// HitObjectData 是对象的序列化形式，快照和 createHitObject 命令共用
type HitObjectData struct {
	ID               string      `json:"id"`
	Type             string      `json:"type"`
	StartTime        float64     `json:"startTime"`
	Position         Vec2        `json:"position"`
	NewCombo         bool        `json:"newCombo"`
	ComboOffset      int         `json:"comboOffset"`
	HitSound         HitSound    `json:"hitSound"`
	Path             []PathPoint `json:"path,omitempty"`
	ExpectedDistance float64     `json:"expectedDistance,omitempty"`
	Repeats          int         `json:"repeats,omitempty"`
	Velocity         *float64    `json:"velocity,omitempty"`
	HitSounds        []HitSound  `json:"hitSounds,omitempty"`
	Duration         float64     `json:"duration,omitempty"`
}

func (h *HitObject) Data() HitObjectData {
	d := HitObjectData{
		ID:          h.ID,
		Type:        h.Kind.String(),
		StartTime:   h.StartTime,
		Position:    h.Position,
		NewCombo:    h.NewCombo,
		ComboOffset: h.ComboOffset,
		HitSound:    h.HitSound,
	}
	switch h.Kind {
	case KindSlider:
		d.Path = slices.Clone(h.Path)
		d.ExpectedDistance = h.ExpectedDistance
		d.Repeats = h.Repeats
		if h.Velocity != 0 {
			d.Velocity = ptr(h.Velocity)
		}
		d.HitSounds = slices.Clone(h.EdgeHitSounds)
	case KindSpinner:
		d.Duration = h.Duration
	}
	return d
}

// HitObject 反序列化为对象，type 未知时返回 ErrInvalidSnapshot
func (d HitObjectData) HitObject() (*HitObject, error) {
	kind, ok := ParseKind(d.Type)
	if !ok {
		return nil, fmt.Errorf("%w: unknown hit object type %q", ErrInvalidSnapshot, d.Type)
	}
	h := &HitObject{
		ID:          d.ID,
		Kind:        kind,
		StartTime:   d.StartTime,
		Position:    d.Position,
		NewCombo:    d.NewCombo,
		ComboOffset: d.ComboOffset,
		HitSound:    d.HitSound,
	}
	switch kind {
	case KindSlider:
		h.Path = slices.Clone(d.Path)
		h.ExpectedDistance = d.ExpectedDistance
		h.Repeats = d.Repeats
		if d.Velocity != nil {
			h.Velocity = *d.Velocity
		}
		h.EdgeHitSounds = slices.Clone(d.HitSounds)
	case KindSpinner:
		h.Duration = d.Duration
	}
	return h, nil
}

type ControlPointsData struct {
	Timing   []timing.ControlPoint `json:"timing"`
	Velocity []timing.ControlPoint `json:"velocity"`
}

// Snapshot 是文档的持久化/初始同步格式
type Snapshot struct {
	ID             string            `json:"id"`
	SetID          string            `json:"setId"`
	Name           string            `json:"name"`
	Metadata       Metadata          `json:"metadata"`
	Difficulty     Difficulty        `json:"difficulty"`
	General        *General          `json:"general,omitempty"`
	ControlPoints  ControlPointsData `json:"controlPoints"`
	HitObjects     []HitObjectData   `json:"hitObjects"`
	Bookmarks      []Bookmark        `json:"bookmarks"`
	Colors         []string          `json:"colors"`
	AudioFilename  string            `json:"audioFilename"`
	BackgroundPath string            `json:"backgroundPath"`
	HitSounds      *HitSoundConfig   `json:"hitSounds,omitempty"`
}

func (b *Beatmap) Snapshot() Snapshot {
	objs := b.HitObjects.All()
	data := make([]HitObjectData, 0, len(objs))
	for _, h := range objs {
		data = append(data, h.Data())
	}
	general := b.General
	hitSounds := b.HitSounds
	return Snapshot{
		ID:         b.ID,
		SetID:      b.SetID,
		Name:       b.Name,
		Metadata:   b.Metadata,
		Difficulty: b.Difficulty,
		General:    &general,
		ControlPoints: ControlPointsData{
			Timing:   b.ControlPoints.Timing(),
			Velocity: b.ControlPoints.Velocity(),
		},
		HitObjects:     data,
		Bookmarks:      b.Bookmarks.All(),
		Colors:         slices.Clone(b.Colors),
		AudioFilename:  b.AudioFilename,
		BackgroundPath: b.BackgroundPath,
		HitSounds:      &hitSounds,
	}
}

// FromSnapshot 构建谱面；缺省的 general/colors/hitSounds 使用默认值
func FromSnapshot(s Snapshot) (*Beatmap, error) {
	b := &Beatmap{
		ID:             s.ID,
		SetID:          s.SetID,
		Name:           s.Name,
		Metadata:       s.Metadata,
		Difficulty:     s.Difficulty,
		General:        General{StackLeniency: DefaultStackLeniency},
		Colors:         slices.Clone(s.Colors),
		AudioFilename:  s.AudioFilename,
		BackgroundPath: s.BackgroundPath,
		Bookmarks:      NewBookmarks(s.Bookmarks),
	}
	if s.General != nil {
		b.General = *s.General
	}
	if len(b.Colors) == 0 {
		b.Colors = slices.Clone(DefaultColors)
	}
	if s.HitSounds != nil {
		b.HitSounds = *s.HitSounds
	} else {
		b.HitSounds = DefaultHitSoundConfig()
	}
	b.ControlPoints = timing.New(s.ControlPoints.Timing, s.ControlPoints.Velocity)
	b.HitObjects = NewHitObjects(&b.Difficulty, b.ControlPoints, b.General.StackLeniency)
	for _, d := range s.HitObjects {
		h, err := d.HitObject()
		if err != nil {
			return nil, err
		}
		if !b.HitObjects.Add(h) {
			return nil, fmt.Errorf("%w: duplicate hit object id %q", ErrInvalidSnapshot, d.ID)
		}
	}
	return b, nil
}

func (b *Beatmap) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(b.Snapshot())
}

func UnmarshalSnapshot(data []byte) (*Beatmap, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return FromSnapshot(s)
}
