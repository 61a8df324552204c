package command

import (
	"github.com/golang/glog"
)

type createHitObjectHandler struct{ noMerge[CreateHitObject] }

func (createHitObjectHandler) Apply(ctx *Context, cmd CreateHitObject) {
	if !ctx.appliesStructural() {
		return
	}
	h, err := cmd.HitObject.HitObject()
	if err != nil {
		glog.Warningf("[command] createHitObject %s dropped: %v", cmd.HitObject.ID, err)
		return
	}
	ctx.Beatmap.HitObjects.Add(h)
}

func (createHitObjectHandler) CanBeIgnored(ctx *Context, cmd CreateHitObject) bool {
	return cmd.HitObject.ID == "" || ctx.Beatmap.HitObjects.Get(cmd.HitObject.ID) != nil
}

func (createHitObjectHandler) CreateUndo(_ *Context, cmd CreateHitObject) Command {
	if cmd.HitObject.ID == "" {
		return nil
	}
	return DeleteHitObject{ID: cmd.HitObject.ID}
}

type deleteHitObjectHandler struct{ noMerge[DeleteHitObject] }

func (deleteHitObjectHandler) Apply(ctx *Context, cmd DeleteHitObject) {
	if !ctx.appliesStructural() {
		return
	}
	if ctx.Beatmap.HitObjects.Remove(cmd.ID) != nil {
		ctx.Pending.Clear(cmd.ID)
	}
}

func (deleteHitObjectHandler) CanBeIgnored(ctx *Context, cmd DeleteHitObject) bool {
	return ctx.Beatmap.HitObjects.Get(cmd.ID) == nil
}

func (deleteHitObjectHandler) CreateUndo(ctx *Context, cmd DeleteHitObject) Command {
	h := ctx.Beatmap.HitObjects.Get(cmd.ID)
	if h == nil {
		return nil
	}
	return CreateHitObject{HitObject: h.Data()}
}

type updateHitObjectHandler struct{}

// Apply 按模式处理字段：
// 本地修改记录每个字段的版本；自己的回显只清除版本一致的记录；
// 远端修改跳过仍有本地未确认修改的字段。
func (updateHitObjectHandler) Apply(ctx *Context, cmd UpdateHitObject) {
	objs := ctx.Beatmap.HitObjects
	if objs.Get(cmd.ID) == nil {
		return
	}
	switch ctx.Mode {
	case ModeLocal:
		for _, f := range cmd.Patch.Fields() {
			ctx.Pending.Stamp(cmd.ID, f.String(), ctx.Version)
		}
		objs.Patch(cmd.ID, cmd.Patch)
	case ModeOwnEcho:
		for _, f := range cmd.Patch.Fields() {
			ctx.Pending.Resolve(cmd.ID, f.String(), ctx.Version)
		}
	case ModeRemote:
		p := cmd.Patch
		for _, f := range cmd.Patch.Fields() {
			if ctx.Pending.Has(cmd.ID, f.String()) {
				p = p.Without(f)
			}
		}
		if !p.Empty() {
			objs.Patch(cmd.ID, p)
		}
	}
}

func (updateHitObjectHandler) CanBeIgnored(ctx *Context, cmd UpdateHitObject) bool {
	h := ctx.Beatmap.HitObjects.Get(cmd.ID)
	return h == nil || cmd.Patch.Empty() || cmd.Patch.Matches(h)
}

func (updateHitObjectHandler) CreateUndo(ctx *Context, cmd UpdateHitObject) Command {
	h := ctx.Beatmap.HitObjects.Get(cmd.ID)
	if h == nil {
		return nil
	}
	return UpdateHitObject{ID: cmd.ID, Patch: cmd.Patch.Capture(h)}
}

func (updateHitObjectHandler) Merge(_ *Context, a, b UpdateHitObject) (UpdateHitObject, bool) {
	if a.ID != b.ID {
		return UpdateHitObject{}, false
	}
	return UpdateHitObject{ID: a.ID, Patch: a.Patch.Merge(b.Patch)}, true
}
