package command

import (
	"fmt"

	"github.com/golang/glog"

	"beatmapCollab/backend/internal/beatmap"
)

type entry struct {
	cmd  Command
	undo Command // 可能为 nil
}

// 一次提交的事务：若干 {命令, 逆命令}
type transaction []entry

type State uint8

const (
	StateIdle State = iota
	StateRecording
)

// Manager 是本地事务引擎：分配版本号、记录逆命令、维护撤销/重做栈。
// 所有方法都在同一个 goroutine 上调用。
type Manager struct {
	beatmap  *beatmap.Beatmap
	registry *Registry
	pending  *PendingFields

	version uint64
	current transaction
	undo    []transaction
	redo    []transaction

	canUndo, canRedo bool
	observers        map[int]func(canUndo, canRedo bool)
	nextObs          int

	afterSubmit func(Versioned)
}

func NewManager(bm *beatmap.Beatmap, registry *Registry) *Manager {
	if registry == nil {
		registry = NewRegistry(false)
	}
	return &Manager{
		beatmap:   bm,
		registry:  registry,
		observers: make(map[int]func(bool, bool)),
	}
}

// TrackPending 打开待确认字段记录，只有联网编辑才需要
func (m *Manager) TrackPending() *PendingFields {
	if m.pending == nil {
		m.pending = NewPendingFields()
	}
	return m.pending
}

func (m *Manager) Pending() *PendingFields { return m.pending }

func (m *Manager) Beatmap() *beatmap.Beatmap { return m.beatmap }

func (m *Manager) Version() uint64 { return m.version }

// SetAfterSubmit 注册本地命令执行后的回调（用于发送缓冲）
func (m *Manager) SetAfterSubmit(fn func(Versioned)) {
	m.afterSubmit = fn
}

func (m *Manager) State() State {
	if len(m.current) > 0 {
		return StateRecording
	}
	return StateIdle
}

func (m *Manager) context(mode Mode, version uint64) *Context {
	return &Context{Beatmap: m.beatmap, Mode: mode, Version: version, Pending: m.pending}
}

func (m *Manager) lookup(k Kind) (Handler, bool) {
	h, err := m.registry.Lookup(k)
	if err != nil {
		if m.registry.Strict() {
			panic(err)
		}
		glog.Errorf("[command] dropped: %v", err)
		return nil, false
	}
	return h, true
}

// Submit 执行一条本地命令。返回 false 表示命令被忽略或无法识别。
func (m *Manager) Submit(cmd Command, commit bool) bool {
	h, ok := m.lookup(cmd.Kind())
	if !ok {
		return false
	}
	m.version++
	ctx := m.context(ModeLocal, m.version)
	if h.CanBeIgnored(ctx, cmd) {
		glog.V(2).Infof("[command] %s v%d ignored", cmd.Kind(), m.version)
		return false
	}
	undo := h.CreateUndo(ctx, cmd)
	m.record(ctx, h, cmd, undo)
	h.Apply(ctx, cmd)
	m.emitSubmit(cmd, m.version)
	if commit {
		m.Commit()
	}
	return true
}

// record 向后合并到当前事务中同类型同目标的条目。
// 逆命令按 merge(新, 旧) 合并，重叠字段保留更早的原值。
func (m *Manager) record(ctx *Context, h Handler, cmd, undo Command) {
	for i := len(m.current) - 1; i >= 0; i-- {
		e := &m.current[i]
		if e.cmd.Kind() != cmd.Kind() {
			continue
		}
		merged := h.Merge(ctx, e.cmd, cmd)
		if merged == nil {
			continue
		}
		mergedUndo := e.undo
		switch {
		case undo == nil:
		case e.undo == nil:
			mergedUndo = undo
		default:
			uh, ok := m.lookup(undo.Kind())
			if !ok || undo.Kind() != e.undo.Kind() {
				continue
			}
			if mergedUndo = uh.Merge(ctx, undo, e.undo); mergedUndo == nil {
				continue
			}
		}
		e.cmd, e.undo = merged, mergedUndo
		return
	}
	m.current = append(m.current, entry{cmd: cmd, undo: undo})
}

func (m *Manager) emitSubmit(cmd Command, version uint64) {
	glog.V(2).Infof("[command] %s v%d applied", cmd.Kind(), version)
	if m.afterSubmit != nil {
		m.afterSubmit(Versioned{Command: cmd, Version: version})
	}
}

// Commit 把当前事务压入撤销栈并清空重做栈
func (m *Manager) Commit() bool {
	if len(m.current) == 0 {
		return false
	}
	m.undo = append(m.undo, m.current)
	m.current = nil
	m.redo = nil
	m.updateAvailability()
	return true
}

func (m *Manager) Undo() bool {
	m.Commit()
	if len(m.undo) == 0 {
		return false
	}
	tx := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	m.redo = append(m.redo, m.replay(tx))
	m.updateAvailability()
	return true
}

func (m *Manager) Redo() bool {
	m.Commit()
	if len(m.redo) == 0 {
		return false
	}
	tx := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	m.undo = append(m.undo, m.replay(tx))
	m.updateAvailability()
	return true
}

// UndoCurrentTransaction 回滚尚未提交的事务，不进入重做栈
func (m *Manager) UndoCurrentTransaction() bool {
	if len(m.current) == 0 {
		return false
	}
	tx := m.current
	m.current = nil
	m.replay(tx)
	return true
}

// replay 倒序执行每个条目的逆命令，并重新求出逆命令的逆，组成反方向的事务
func (m *Manager) replay(tx transaction) transaction {
	out := make(transaction, 0, len(tx))
	for i := len(tx) - 1; i >= 0; i-- {
		cmd := tx[i].undo
		if cmd == nil {
			continue
		}
		h, ok := m.lookup(cmd.Kind())
		if !ok {
			continue
		}
		m.version++
		ctx := m.context(ModeLocal, m.version)
		if h.CanBeIgnored(ctx, cmd) {
			continue
		}
		inverse := h.CreateUndo(ctx, cmd)
		h.Apply(ctx, cmd)
		m.emitSubmit(cmd, m.version)
		out = append(out, entry{cmd: cmd, undo: inverse})
	}
	return out
}

// Receive 执行来自网络的命令（自己的回显或他人的命令），不进入历史
func (m *Manager) Receive(v Versioned, mode Mode) {
	if mode == ModeLocal {
		panic(fmt.Sprintf("command: Receive with local mode for %s", v.Command.Kind()))
	}
	h, ok := m.lookup(v.Command.Kind())
	if !ok {
		return
	}
	h.Apply(m.context(mode, v.Version), v.Command)
}

func (m *Manager) CanUndo() bool { return m.canUndo }
func (m *Manager) CanRedo() bool { return m.canRedo }

// OnAvailabilityChanged 在 canUndo/canRedo 变化时回调，返回取消函数
func (m *Manager) OnAvailabilityChanged(fn func(canUndo, canRedo bool)) func() {
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	return func() { delete(m.observers, id) }
}

func (m *Manager) updateAvailability() {
	canUndo, canRedo := len(m.undo) > 0, len(m.redo) > 0
	if canUndo == m.canUndo && canRedo == m.canRedo {
		return
	}
	m.canUndo, m.canRedo = canUndo, canRedo
	for _, fn := range m.observers {
		fn(canUndo, canRedo)
	}
}
