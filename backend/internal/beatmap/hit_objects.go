package beatmap

import (
	"sort"

	"beatmapCollab/backend/internal/timing"
)

type ChangeType uint8

const (
	ChangeAdded ChangeType = iota + 1
	ChangeRemoved
	ChangeUpdated
)

// Change 通知订阅者（渲染层等）某个对象发生了变化
type Change struct {
	Type   ChangeType
	ID     string
	Fields []Field
}

// HitObjects 是按 (StartTime, ID) 排序的对象列表加 id 索引。ID 是 ULID，
// 同一时间的对象按创建顺序排列，撤销删除后回到原位，各副本顺序一致。
// 修改只标记 dirty，combo/stacking 在下一次读取前统一重算。
type HitObjects struct {
	list []*HitObject
	byID map[string]*HitObject

	difficulty    *Difficulty
	controlPoints *timing.ControlPoints
	stackLeniency float64

	comboDirty bool
	stackAll   bool
	// 需要重新堆叠的对象，读取时换算成下标区间
	stackDirty map[*HitObject]struct{}

	observers map[int]func(Change)
	nextObs   int
}

const stackDistance = 3

func NewHitObjects(difficulty *Difficulty, cp *timing.ControlPoints, stackLeniency float64) *HitObjects {
	return &HitObjects{
		byID:          make(map[string]*HitObject),
		difficulty:    difficulty,
		controlPoints: cp,
		stackLeniency: stackLeniency,
		stackDirty:    make(map[*HitObject]struct{}),
		observers:     make(map[int]func(Change)),
	}
}

// Subscribe 注册变更回调，返回取消函数
func (s *HitObjects) Subscribe(fn func(Change)) func() {
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() { delete(s.observers, id) }
}

func (s *HitObjects) emit(c Change) {
	for _, fn := range s.observers {
		fn(c)
	}
}

// 第一个排在 (t, id) 之后的位置
func (s *HitObjects) searchAfter(t float64, id string) int {
	return sort.Search(len(s.list), func(i int) bool {
		h := s.list[i]
		return h.StartTime > t || (h.StartTime == t && h.ID > id)
	})
}

func (s *HitObjects) indexOf(h *HitObject) int {
	i := sort.Search(len(s.list), func(i int) bool {
		o := s.list[i]
		return o.StartTime > h.StartTime || (o.StartTime == h.StartTime && o.ID >= h.ID)
	})
	if i < len(s.list) && s.list[i] == h {
		return i
	}
	return -1
}

func (s *HitObjects) insert(h *HitObject) {
	i := s.searchAfter(h.StartTime, h.ID)
	s.list = append(s.list, nil)
	copy(s.list[i+1:], s.list[i:])
	s.list[i] = h
}

func (s *HitObjects) detach(h *HitObject) int {
	i := s.indexOf(h)
	if i < 0 {
		return -1
	}
	s.list = append(s.list[:i], s.list[i+1:]...)
	return i
}

// Add 插入对象，id 已存在时返回 false
func (s *HitObjects) Add(h *HitObject) bool {
	if h == nil || h.ID == "" {
		return false
	}
	if _, ok := s.byID[h.ID]; ok {
		return false
	}
	h.path = nil
	h.applyDefaults(*s.difficulty, s.controlPoints)
	s.insert(h)
	s.byID[h.ID] = h
	s.comboDirty = true
	s.markStack(h)
	s.emit(Change{Type: ChangeAdded, ID: h.ID})
	return true
}

// Remove 删除对象，不存在时返回 nil
func (s *HitObjects) Remove(id string) *HitObject {
	h, ok := s.byID[id]
	if !ok {
		return nil
	}
	i := s.detach(h)
	delete(s.byID, id)
	delete(s.stackDirty, h)
	// 原来堆在它上面的相邻对象需要重算
	if i > 0 {
		s.markStack(s.list[i-1])
	}
	if i >= 0 && i < len(s.list) {
		s.markStack(s.list[i])
	}
	s.comboDirty = true
	s.emit(Change{Type: ChangeRemoved, ID: id})
	return h
}

// Patch 修改对象字段，不存在时返回 false
func (s *HitObjects) Patch(id string, p HitObjectPatch) bool {
	h, ok := s.byID[id]
	if !ok {
		return false
	}
	if i := s.indexOf(h); i > 0 {
		s.markStack(s.list[i-1])
	}
	i := s.detach(h)
	timeChanged, comboChanged, shapeChanged := p.applyTo(h)
	if i >= 0 {
		s.insert(h)
	}
	if timeChanged {
		h.applyDefaults(*s.difficulty, s.controlPoints)
		comboChanged = true
		shapeChanged = true
	}
	if comboChanged {
		s.comboDirty = true
	}
	if shapeChanged {
		s.markStack(h)
	}
	s.emit(Change{Type: ChangeUpdated, ID: id, Fields: p.Fields()})
	return true
}

// InvalidateDefaults 在控制点或难度变化后重新计算每个对象的默认参数
func (s *HitObjects) InvalidateDefaults() {
	for _, h := range s.list {
		h.applyDefaults(*s.difficulty, s.controlPoints)
	}
	s.stackAll = true
}

func (s *HitObjects) SetStackLeniency(v float64) {
	s.stackLeniency = v
	s.stackAll = true
}

func (s *HitObjects) markStack(h *HitObject) {
	s.stackDirty[h] = struct{}{}
}

// resolve 在读取派生字段前重算 combo 与 stacking
func (s *HitObjects) resolve() {
	if s.comboDirty {
		s.calculateCombos()
		s.comboDirty = false
	}
	if s.stackAll {
		s.Restack()
		return
	}
	if len(s.stackDirty) == 0 {
		return
	}
	start, end := len(s.list), -1
	for h := range s.stackDirty {
		i := s.indexOf(h)
		if i < 0 {
			continue
		}
		start = min(start, i)
		end = max(end, i)
	}
	clear(s.stackDirty)
	if end >= 0 {
		calculateStacking(s.list, s.stackLeniency, stackDistance, start, end)
	}
}

// Restack 对整个列表重新堆叠
func (s *HitObjects) Restack() {
	clear(s.stackDirty)
	s.stackAll = false
	if len(s.list) > 0 {
		calculateStacking(s.list, s.stackLeniency, stackDistance, 0, len(s.list)-1)
	}
}

// 第一个对象、标记新 combo 的对象、转盘之后的第一个非转盘对象开始新 combo。
// 转盘本身留在前一个 combo 里，它的 NewCombo 不参与计算。
func (s *HitObjects) calculateCombos() {
	comboIndex, indexInCombo := -1, 0
	force := true
	for _, h := range s.list {
		switch {
		case h.Kind == KindSpinner:
			if comboIndex < 0 {
				comboIndex = 0
			}
			force = true
		case h.NewCombo:
			comboIndex += 1 + h.ComboOffset
			indexInCombo = 0
			force = false
		case force:
			comboIndex++
			indexInCombo = 0
			force = false
		}
		h.ComboIndex = comboIndex
		h.IndexInCombo = indexInCombo
		indexInCombo++
	}
}

func (s *HitObjects) Get(id string) *HitObject {
	s.resolve()
	return s.byID[id]
}

func (s *HitObjects) Len() int { return len(s.list) }

func (s *HitObjects) At(i int) *HitObject {
	s.resolve()
	return s.list[i]
}

// All 返回排序后的对象列表副本
func (s *HitObjects) All() []*HitObject {
	s.resolve()
	out := make([]*HitObject, len(s.list))
	copy(out, s.list)
	return out
}

// AtTime 返回 [StartTime, EndTime) 包含 t 的对象，StartTime 恰好等于 t 时优先
func (s *HitObjects) AtTime(t float64) *HitObject {
	s.resolve()
	i := sort.Search(len(s.list), func(i int) bool { return s.list[i].StartTime >= t })
	if i < len(s.list) && s.list[i].StartTime == t {
		return s.list[i]
	}
	if i == 0 {
		return nil
	}
	if h := s.list[i-1]; h.EndTime() > t {
		return h
	}
	return nil
}
