package beatmap

import "beatmapCollab/backend/internal/timing"

type Difficulty struct {
	HPDrainRate       float64 `json:"hpDrainRate"`
	CircleSize        float64 `json:"circleSize"`
	OverallDifficulty float64 `json:"overallDifficulty"`
	ApproachRate      float64 `json:"approachRate"`
	SliderMultiplier  float64 `json:"sliderMultiplier"`
	SliderTickRate    float64 `json:"sliderTickRate"`
}

func DefaultDifficulty() Difficulty {
	return Difficulty{
		HPDrainRate:       5,
		CircleSize:        4,
		OverallDifficulty: 5,
		ApproachRate:      5,
		SliderMultiplier:  1.4,
		SliderTickRate:    1,
	}
}

type General struct {
	StackLeniency float64 `json:"stackLeniency"`
}

const DefaultStackLeniency = 0.7

type Metadata struct {
	Title  string   `json:"title"`
	Artist string   `json:"artist"`
	Tags   []string `json:"tags"`
}

var DefaultColors = []string{"#ff0000", "#00ff00", "#0000ff"}

// Beatmap 是协作编辑的整个文档。
// 控制点和对象索引只归一个 command manager 所有，不做并发保护。
type Beatmap struct {
	ID             string
	SetID          string
	Name           string
	Metadata       Metadata
	Difficulty     Difficulty
	General        General
	Colors         []string
	AudioFilename  string
	BackgroundPath string
	HitSounds      HitSoundConfig

	ControlPoints *timing.ControlPoints
	HitObjects    *HitObjects
	Bookmarks     *Bookmarks
}

// New 创建空谱面
func New(id string) *Beatmap {
	b := &Beatmap{
		ID:         id,
		Difficulty: DefaultDifficulty(),
		General:    General{StackLeniency: DefaultStackLeniency},
		Colors:     append([]string(nil), DefaultColors...),
		HitSounds:  DefaultHitSoundConfig(),
		Bookmarks:  NewBookmarks(nil),
	}
	b.ControlPoints = timing.New(nil, nil)
	b.HitObjects = NewHitObjects(&b.Difficulty, b.ControlPoints, b.General.StackLeniency)
	return b
}

// ControlPointsChanged 在控制点增删改后调用，刷新对象默认参数
func (b *Beatmap) ControlPointsChanged() {
	b.HitObjects.InvalidateDefaults()
}
