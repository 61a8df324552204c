package beatmap

type SampleSet uint8

const (
	SampleSetAuto SampleSet = iota
	SampleSetNormal
	SampleSetSoft
	SampleSetDrum
)

// Additions 是位掩码
type Additions uint8

const (
	AdditionNone    Additions = 0
	AdditionWhistle Additions = 1
	AdditionFinish  Additions = 2
	AdditionClap    Additions = 4
)

type HitSound struct {
	SampleSet   SampleSet `json:"sampleSet"`
	AdditionSet SampleSet `json:"additionSet"`
	Additions   Additions `json:"additions"`
	Index       int       `json:"index"`
}

func DefaultHitSound() HitSound { return HitSound{} }

// 以下是谱面级别的打击音配置（图层 + 音量包络），只参与快照读写

type HitSoundSample struct {
	ID   string  `json:"id"`
	Time float64 `json:"time"`
}

type HitSoundLayer struct {
	ID             string           `json:"id"`
	Name           *string          `json:"name"`
	SampleSet      SampleSet        `json:"sampleSet"`
	Type           int              `json:"type"`
	CustomFilename *string          `json:"customFilename"`
	Samples        []HitSoundSample `json:"samples"`
	Enabled        bool             `json:"enabled"`
	Volume         float64          `json:"volume"`
}

type EnvelopePoint struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
	Type  int     `json:"type"`
}

type Envelope struct {
	ControlPoints []EnvelopePoint `json:"controlPoints"`
}

type HitSoundConfig struct {
	Layers []HitSoundLayer `json:"layers"`
	Volume Envelope        `json:"volume"`
}

// 默认图层：Normal/Soft/Drum × Normal/Whistle/Finish/Clap
func DefaultHitSoundConfig() HitSoundConfig {
	cfg := HitSoundConfig{Volume: Envelope{ControlPoints: []EnvelopePoint{}}}
	for _, set := range []SampleSet{SampleSetNormal, SampleSetSoft, SampleSetDrum} {
		for typ := 0; typ < 4; typ++ {
			cfg.Layers = append(cfg.Layers, HitSoundLayer{
				ID:        NewID(),
				SampleSet: set,
				Type:      typ,
				Samples:   []HitSoundSample{},
				Enabled:   true,
				Volume:    1,
			})
		}
	}
	return cfg
}
