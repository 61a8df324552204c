package command

import "beatmapCollab/backend/internal/beatmap"

// Mode 决定一次 apply 的语义，三者互斥
type Mode uint8

const (
	// 本地 UI 发起
	ModeLocal Mode = iota
	// 自己发出的命令经服务器回显
	ModeOwnEcho
	// 其他参与者的命令
	ModeRemote
)

func (m Mode) String() string {
	switch m {
	case ModeOwnEcho:
		return "own"
	case ModeRemote:
		return "remote"
	}
	return "local"
}

type Context struct {
	Beatmap *beatmap.Beatmap
	Mode    Mode
	Version uint64
	Pending *PendingFields
}

func (c *Context) Local() bool { return c.Mode == ModeLocal }
func (c *Context) Own() bool   { return c.Mode == ModeOwnEcho }

// 创建/删除类命令：本地或他人的命令才执行，自己的回显只是确认
func (c *Context) appliesStructural() bool {
	return c.Mode != ModeOwnEcho
}

// PendingFields 记录 target → field → 最近一次本地修改的版本号。
// nil 值可用，此时所有操作都是空操作。
type PendingFields struct {
	m map[string]map[string]uint64
}

func NewPendingFields() *PendingFields {
	return &PendingFields{m: make(map[string]map[string]uint64)}
}

func (p *PendingFields) Stamp(target, field string, version uint64) {
	if p == nil {
		return
	}
	fields := p.m[target]
	if fields == nil {
		fields = make(map[string]uint64)
		p.m[target] = fields
	}
	fields[field] = version
}

// Resolve 版本一致时清除该字段，返回是否清除
func (p *PendingFields) Resolve(target, field string, version uint64) bool {
	if p == nil {
		return false
	}
	fields := p.m[target]
	if v, ok := fields[field]; !ok || v != version {
		return false
	}
	delete(fields, field)
	if len(fields) == 0 {
		delete(p.m, target)
	}
	return true
}

func (p *PendingFields) Has(target, field string) bool {
	_, ok := p.Version(target, field)
	return ok
}

func (p *PendingFields) Version(target, field string) (uint64, bool) {
	if p == nil {
		return 0, false
	}
	v, ok := p.m[target][field]
	return v, ok
}

// Clear 删除目标的全部记录（目标被删除时）
func (p *PendingFields) Clear(target string) {
	if p == nil {
		return
	}
	delete(p.m, target)
}

// Len 返回仍在等待确认的字段数
func (p *PendingFields) Len() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, fields := range p.m {
		n += len(fields)
	}
	return n
}
