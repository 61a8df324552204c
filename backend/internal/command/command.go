package command

import (
	"beatmapCollab/backend/internal/beatmap"
	"beatmapCollab/backend/internal/timing"
)

// Kind 是命令的类型标签，也是线上编码里的 tag
type Kind uint8

const (
	KindCreateHitObject Kind = iota + 1
	KindDeleteHitObject
	KindUpdateHitObject
	KindCreateControlPoint
	KindDeleteControlPoint
	KindUpdateControlPoint
	KindCreateBookmark
	KindRemoveBookmark
)

var kindNames = map[Kind]string{
	KindCreateHitObject:    "createHitObject",
	KindDeleteHitObject:    "deleteHitObject",
	KindUpdateHitObject:    "updateHitObject",
	KindCreateControlPoint: "createControlPoint",
	KindDeleteControlPoint: "deleteControlPoint",
	KindUpdateControlPoint: "updateControlPoint",
	KindCreateBookmark:     "createBookmark",
	KindRemoveBookmark:     "removeBookmark",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Command 只携带重放所需的数据：目标 id 和部分字段，不持有活对象
type Command interface {
	Kind() Kind
}

// Versioned 是提交后带版本号的命令，也是批量传输的单元
type Versioned struct {
	Command Command
	Version uint64
}

type CreateHitObject struct {
	HitObject beatmap.HitObjectData
}

type DeleteHitObject struct {
	ID string
}

type UpdateHitObject struct {
	ID    string
	Patch beatmap.HitObjectPatch
}

type CreateControlPoint struct {
	Point timing.ControlPoint
}

type DeleteControlPoint struct {
	ID string
}

type UpdateControlPoint struct {
	ID    string
	Patch timing.Patch
}

type CreateBookmark struct {
	Time float64
	Name string
}

type RemoveBookmark struct {
	Time float64
}

func (CreateHitObject) Kind() Kind    { return KindCreateHitObject }
func (DeleteHitObject) Kind() Kind    { return KindDeleteHitObject }
func (UpdateHitObject) Kind() Kind    { return KindUpdateHitObject }
func (CreateControlPoint) Kind() Kind { return KindCreateControlPoint }
func (DeleteControlPoint) Kind() Kind { return KindDeleteControlPoint }
func (UpdateControlPoint) Kind() Kind { return KindUpdateControlPoint }
func (CreateBookmark) Kind() Kind     { return KindCreateBookmark }
func (RemoveBookmark) Kind() Kind     { return KindRemoveBookmark }

// NewCreateHitObject 序列化对象，缺少 id 时分配一个
func NewCreateHitObject(h *beatmap.HitObject) CreateHitObject {
	d := h.Data()
	if d.ID == "" {
		d.ID = beatmap.NewID()
	}
	return CreateHitObject{HitObject: d}
}

func NewCreateControlPoint(p timing.ControlPoint) CreateControlPoint {
	if p.ID == "" {
		p.ID = beatmap.NewID()
	}
	return CreateControlPoint{Point: p}
}
