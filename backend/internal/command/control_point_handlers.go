package command

// 控制点变化会影响滑条速度与时长，处理完都要刷新对象默认值

type createControlPointHandler struct{ noMerge[CreateControlPoint] }

func (createControlPointHandler) Apply(ctx *Context, cmd CreateControlPoint) {
	if !ctx.appliesStructural() {
		return
	}
	if ctx.Beatmap.ControlPoints.Add(cmd.Point) {
		ctx.Beatmap.ControlPointsChanged()
	}
}

func (createControlPointHandler) CanBeIgnored(ctx *Context, cmd CreateControlPoint) bool {
	if cmd.Point.ID == "" {
		return true
	}
	_, exists := ctx.Beatmap.ControlPoints.Get(cmd.Point.ID)
	return exists
}

func (createControlPointHandler) CreateUndo(_ *Context, cmd CreateControlPoint) Command {
	if cmd.Point.ID == "" {
		return nil
	}
	return DeleteControlPoint{ID: cmd.Point.ID}
}

type deleteControlPointHandler struct{ noMerge[DeleteControlPoint] }

func (deleteControlPointHandler) Apply(ctx *Context, cmd DeleteControlPoint) {
	if !ctx.appliesStructural() {
		return
	}
	if _, ok := ctx.Beatmap.ControlPoints.Remove(cmd.ID); ok {
		ctx.Pending.Clear(cmd.ID)
		ctx.Beatmap.ControlPointsChanged()
	}
}

func (deleteControlPointHandler) CanBeIgnored(ctx *Context, cmd DeleteControlPoint) bool {
	_, exists := ctx.Beatmap.ControlPoints.Get(cmd.ID)
	return !exists
}

func (deleteControlPointHandler) CreateUndo(ctx *Context, cmd DeleteControlPoint) Command {
	cp, ok := ctx.Beatmap.ControlPoints.Get(cmd.ID)
	if !ok {
		return nil
	}
	return CreateControlPoint{Point: cp}
}

type updateControlPointHandler struct{}

func (updateControlPointHandler) Apply(ctx *Context, cmd UpdateControlPoint) {
	cps := ctx.Beatmap.ControlPoints
	if _, ok := cps.Get(cmd.ID); !ok {
		return
	}
	p := cmd.Patch
	switch ctx.Mode {
	case ModeLocal:
		for _, f := range p.Fields() {
			ctx.Pending.Stamp(cmd.ID, f.String(), ctx.Version)
		}
	case ModeOwnEcho:
		for _, f := range p.Fields() {
			ctx.Pending.Resolve(cmd.ID, f.String(), ctx.Version)
		}
		return
	case ModeRemote:
		for _, f := range cmd.Patch.Fields() {
			if ctx.Pending.Has(cmd.ID, f.String()) {
				p = p.Without(f)
			}
		}
	}
	if p.Empty() {
		return
	}
	cps.Patch(cmd.ID, p)
	ctx.Beatmap.ControlPointsChanged()
}

func (updateControlPointHandler) CanBeIgnored(ctx *Context, cmd UpdateControlPoint) bool {
	cp, ok := ctx.Beatmap.ControlPoints.Get(cmd.ID)
	return !ok || cmd.Patch.Empty() || cmd.Patch.Matches(cp)
}

func (updateControlPointHandler) CreateUndo(ctx *Context, cmd UpdateControlPoint) Command {
	cp, ok := ctx.Beatmap.ControlPoints.Get(cmd.ID)
	if !ok {
		return nil
	}
	return UpdateControlPoint{ID: cmd.ID, Patch: cmd.Patch.Capture(cp)}
}

func (updateControlPointHandler) Merge(_ *Context, a, b UpdateControlPoint) (UpdateControlPoint, bool) {
	if a.ID != b.ID {
		return UpdateControlPoint{}, false
	}
	return UpdateControlPoint{ID: a.ID, Patch: a.Patch.Merge(b.Patch)}, true
}
