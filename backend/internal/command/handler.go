package command

import (
	"errors"
	"fmt"
)

var ErrUnknownCommand = errors.New("UNKNOWN_COMMAND")

// Handler 对一种命令实现执行、忽略判断、求逆和合并
type Handler interface {
	Apply(ctx *Context, cmd Command)
	CanBeIgnored(ctx *Context, cmd Command) bool
	// CreateUndo 必须在 Apply 之前调用；目标不存在时返回 nil
	CreateUndo(ctx *Context, cmd Command) Command
	// Merge 合并同类型、同目标的两条命令，b 的字段覆盖 a；不能合并时返回 nil
	Merge(ctx *Context, a, b Command) Command
}

// TypedHandler 是按具体命令类型编写的 handler，通过 Adapt 注册
type TypedHandler[C Command] interface {
	Apply(ctx *Context, cmd C)
	CanBeIgnored(ctx *Context, cmd C) bool
	CreateUndo(ctx *Context, cmd C) Command
	Merge(ctx *Context, a, b C) (C, bool)
}

type adapter[C Command] struct {
	h TypedHandler[C]
}

func Adapt[C Command](h TypedHandler[C]) Handler {
	return adapter[C]{h: h}
}

func (a adapter[C]) cast(cmd Command) C {
	c, ok := cmd.(C)
	if !ok {
		var zero C
		panic(fmt.Sprintf("command: handler for %s got %T", zero.Kind(), cmd))
	}
	return c
}

func (a adapter[C]) Apply(ctx *Context, cmd Command) { a.h.Apply(ctx, a.cast(cmd)) }

func (a adapter[C]) CanBeIgnored(ctx *Context, cmd Command) bool {
	return a.h.CanBeIgnored(ctx, a.cast(cmd))
}

func (a adapter[C]) CreateUndo(ctx *Context, cmd Command) Command {
	return a.h.CreateUndo(ctx, a.cast(cmd))
}

func (a adapter[C]) Merge(ctx *Context, x, y Command) Command {
	merged, ok := a.h.Merge(ctx, a.cast(x), a.cast(y))
	if !ok {
		return nil
	}
	return merged
}

// noMerge 给不支持合并的 handler 复用
type noMerge[C Command] struct{}

func (noMerge[C]) Merge(*Context, C, C) (C, bool) {
	var zero C
	return zero, false
}

// Registry 按命令类型查找 handler。
// strict 模式下未知类型直接 panic（开发环境），否则记录日志并丢弃。
type Registry struct {
	handlers map[Kind]Handler
	strict   bool
}

func NewRegistry(strict bool) *Registry {
	r := &Registry{handlers: make(map[Kind]Handler), strict: strict}
	r.Register(KindCreateHitObject, Adapt[CreateHitObject](createHitObjectHandler{}))
	r.Register(KindDeleteHitObject, Adapt[DeleteHitObject](deleteHitObjectHandler{}))
	r.Register(KindUpdateHitObject, Adapt[UpdateHitObject](updateHitObjectHandler{}))
	r.Register(KindCreateControlPoint, Adapt[CreateControlPoint](createControlPointHandler{}))
	r.Register(KindDeleteControlPoint, Adapt[DeleteControlPoint](deleteControlPointHandler{}))
	r.Register(KindUpdateControlPoint, Adapt[UpdateControlPoint](updateControlPointHandler{}))
	r.Register(KindCreateBookmark, Adapt[CreateBookmark](createBookmarkHandler{}))
	r.Register(KindRemoveBookmark, Adapt[RemoveBookmark](removeBookmarkHandler{}))
	return r
}

func (r *Registry) Register(k Kind, h Handler) {
	r.handlers[k] = h
}

func (r *Registry) Unregister(k Kind) {
	delete(r.handlers, k)
}

func (r *Registry) Strict() bool { return r.strict }

func (r *Registry) Lookup(k Kind) (Handler, error) {
	h, ok := r.handlers[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCommand, uint8(k))
	}
	return h, nil
}
