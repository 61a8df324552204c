package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"

	"beatmapCollab/backend/internal/collab"
	"beatmapCollab/backend/internal/localstore"
	"beatmapCollab/backend/internal/timing"
	"beatmapCollab/backend/internal/ws"
)

// remote 是 agent 需要的服务端能力，ws.Client 实现它
type remote interface {
	collab.Transport
	Save(ctx context.Context) error
}

type agent struct {
	rec       *collab.Reconciler
	remote    remote
	cache     *localstore.SnapshotCache
	beatmapID string
	revision  uint64
	out       io.Writer
}

// exec 执行一行输入，返回是否退出
func (a *agent) exec(ctx context.Context, line string) (bool, error) {
	o, err := parseLine(line, a.rec.Manager().Beatmap())
	if err != nil {
		if errors.Is(err, ErrEmptyLine) {
			return false, nil
		}
		return false, err
	}

	switch o.kind {
	case opSubmit:
		if !a.rec.Submit(o.cmd, true) {
			fmt.Fprintf(a.out, "no change (%s)\n", o.cmd.Kind())
		}
	case opUndo:
		if !a.rec.Undo() {
			fmt.Fprintln(a.out, "nothing to undo")
		}
	case opRedo:
		if !a.rec.Redo() {
			fmt.Fprintln(a.out, "nothing to redo")
		}
	case opSnap:
		t := a.rec.Manager().Beatmap().ControlPoints.Snap(o.time, o.divisor, timing.SnapRound)
		fmt.Fprintf(a.out, "%g\n", t)
	case opSave:
		return false, a.save(ctx)
	case opList:
		a.list()
	case opQuit:
		return true, nil
	}
	return false, nil
}

// save 先把还没发出的命令推给服务端，再写本地缓存并请求服务端落库
func (a *agent) save(ctx context.Context) error {
	if err := a.rec.Flush(ctx); err != nil {
		return err
	}
	if a.cache != nil {
		snap := a.rec.Manager().Beatmap().Snapshot()
		if err := a.cache.Put(a.beatmapID, a.revision, snap); err != nil {
			return fmt.Errorf("local cache: %w", err)
		}
	}
	return a.remote.Save(ctx)
}

// pump 把 next 读到的值送进 out，直到 next 出错或 ctx 结束；不会阻塞在发送上
func pump[T any](ctx context.Context, next func() (T, error), out chan<- T) error {
	for {
		v, err := next()
		if err != nil {
			return err
		}
		select {
		case out <- v:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// onMessage 处理服务端推送
func (a *agent) onMessage(msg ws.ServerMessage) error {
	switch msg.Type {
	case ws.TypeCommands:
		if err := a.rec.Receive(msg.Payload, msg.SessionID); err != nil {
			return err
		}
		if msg.Revision > a.revision {
			a.revision = msg.Revision
		}
	case ws.TypeSaved:
		fmt.Fprintf(a.out, "saved at revision %d\n", msg.Revision)
	case ws.TypePresence:
		for _, m := range msg.Members {
			fmt.Fprintf(a.out, "online: %s (%s)\n", m.Username, m.SessionID)
		}
	case ws.TypeError:
		glog.Warningf("[agent] server error: %s", msg.Content)
	}
	return nil
}

func (a *agent) list() {
	b := a.rec.Manager().Beatmap()
	for _, p := range b.ControlPoints.Timing() {
		fmt.Fprintf(a.out, "timing   %-26s t=%-8g beat=%g meter=%d\n", p.ID, p.Time, p.BeatLength, p.Meter)
	}
	for _, p := range b.ControlPoints.Velocity() {
		fmt.Fprintf(a.out, "velocity %-26s t=%-8g sv=%g\n", p.ID, p.Time, p.Velocity)
	}
	for _, h := range b.HitObjects.All() {
		pos := h.StackedPosition()
		fmt.Fprintf(a.out, "%-8s %-26s t=%-8g (%g,%g) combo=%d.%d stack=%d\n",
			h.Kind, h.ID, h.StartTime, pos.X, pos.Y, h.ComboIndex, h.IndexInCombo, h.StackHeight)
	}
	for _, bm := range b.Bookmarks.All() {
		fmt.Fprintf(a.out, "bookmark t=%-8g %s\n", bm.Time, bm.Name)
	}
	fmt.Fprintf(a.out, "revision %d, %d buffered\n", a.revision, a.rec.Buffered())
}
