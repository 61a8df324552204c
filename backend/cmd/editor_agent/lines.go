package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"beatmapCollab/backend/internal/beatmap"
	"beatmapCollab/backend/internal/command"
	"beatmapCollab/backend/internal/timing"
)

var (
	ErrEmptyLine      = errors.New("EMPTY_LINE")
	ErrUnknownVerb    = errors.New("UNKNOWN_VERB")
	ErrBadArgs        = errors.New("BAD_ARGS")
	ErrUnknownObject  = errors.New("UNKNOWN_HIT_OBJECT")
	ErrUnknownPointID = errors.New("UNKNOWN_CONTROL_POINT")
)

type opKind uint8

const (
	opSubmit opKind = iota + 1
	opUndo
	opRedo
	opSnap
	opSave
	opList
	opQuit
)

// op 是一行输入解析后的动作
type op struct {
	kind    opKind
	cmd     command.Command
	time    float64
	divisor int
}

const usage = `circle <t> <x> <y> | slider <t> <x> <y> <x2> <y2> | spinner <t> <duration>
move <id> <x> <y> | shift <id> <t> | nc <id> | delete <id>
timing <t> <beatLength> | sv <t> <velocity> | bpm <pointId> <beatLength> | unpoint <pointId>
bookmark <t> <name> | unbookmark <t>
undo | redo | snap <t> <divisor> | save | list | quit`

// parseLine 把一行文本解析成命令；需要读当前对象的动作会查 b
func parseLine(line string, b *beatmap.Beatmap) (op, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return op{}, ErrEmptyLine
	}
	verb, args := strings.ToLower(f[0]), f[1:]

	switch verb {
	case "undo":
		return op{kind: opUndo}, nil
	case "redo":
		return op{kind: opRedo}, nil
	case "save":
		return op{kind: opSave}, nil
	case "list":
		return op{kind: opList}, nil
	case "quit", "exit":
		return op{kind: opQuit}, nil

	case "circle":
		n, err := floats(args, 3)
		if err != nil {
			return op{}, err
		}
		h := &beatmap.HitObject{Kind: beatmap.KindCircle, StartTime: n[0], Position: beatmap.Vec2{X: n[1], Y: n[2]}}
		return submit(command.NewCreateHitObject(h)), nil

	case "slider":
		n, err := floats(args, 5)
		if err != nil {
			return op{}, err
		}
		start := beatmap.Vec2{X: n[1], Y: n[2]}
		end := beatmap.Vec2{X: n[3], Y: n[4]}
		h := &beatmap.HitObject{
			Kind:      beatmap.KindSlider,
			StartTime: n[0],
			Position:  start,
			Path: []beatmap.PathPoint{
				{X: 0, Y: 0, Type: beatmap.PathLinear},
				{X: end.X - start.X, Y: end.Y - start.Y},
			},
			ExpectedDistance: start.Distance(end),
		}
		return submit(command.NewCreateHitObject(h)), nil

	case "spinner":
		n, err := floats(args, 2)
		if err != nil {
			return op{}, err
		}
		h := &beatmap.HitObject{Kind: beatmap.KindSpinner, StartTime: n[0], Duration: n[1]}
		return submit(command.NewCreateHitObject(h)), nil

	case "move":
		if len(args) != 3 {
			return op{}, ErrBadArgs
		}
		if b.HitObjects.Get(args[0]) == nil {
			return op{}, fmt.Errorf("%w: %s", ErrUnknownObject, args[0])
		}
		n, err := floats(args[1:], 2)
		if err != nil {
			return op{}, err
		}
		pos := beatmap.Vec2{X: n[0], Y: n[1]}
		return submit(command.UpdateHitObject{ID: args[0], Patch: beatmap.HitObjectPatch{Position: &pos}}), nil

	case "shift":
		if len(args) != 2 {
			return op{}, ErrBadArgs
		}
		if b.HitObjects.Get(args[0]) == nil {
			return op{}, fmt.Errorf("%w: %s", ErrUnknownObject, args[0])
		}
		n, err := floats(args[1:], 1)
		if err != nil {
			return op{}, err
		}
		return submit(command.UpdateHitObject{ID: args[0], Patch: beatmap.HitObjectPatch{StartTime: &n[0]}}), nil

	case "nc":
		if len(args) != 1 {
			return op{}, ErrBadArgs
		}
		h := b.HitObjects.Get(args[0])
		if h == nil {
			return op{}, fmt.Errorf("%w: %s", ErrUnknownObject, args[0])
		}
		// 切换
		nc := !h.NewCombo
		return submit(command.UpdateHitObject{ID: h.ID, Patch: beatmap.HitObjectPatch{NewCombo: &nc}}), nil

	case "delete":
		if len(args) != 1 {
			return op{}, ErrBadArgs
		}
		if b.HitObjects.Get(args[0]) == nil {
			return op{}, fmt.Errorf("%w: %s", ErrUnknownObject, args[0])
		}
		return submit(command.DeleteHitObject{ID: args[0]}), nil

	case "timing":
		n, err := floats(args, 2)
		if err != nil {
			return op{}, err
		}
		if n[1] <= 0 {
			return op{}, ErrBadArgs
		}
		p := timing.ControlPoint{Kind: timing.KindTiming, Time: n[0], BeatLength: n[1], Meter: timing.DefaultMeter}
		return submit(command.NewCreateControlPoint(p)), nil

	case "sv":
		n, err := floats(args, 2)
		if err != nil {
			return op{}, err
		}
		p := timing.ControlPoint{Kind: timing.KindVelocity, Time: n[0], Velocity: n[1]}
		return submit(command.NewCreateControlPoint(p)), nil

	case "bpm":
		if len(args) != 2 {
			return op{}, ErrBadArgs
		}
		if _, ok := b.ControlPoints.Get(args[0]); !ok {
			return op{}, fmt.Errorf("%w: %s", ErrUnknownPointID, args[0])
		}
		n, err := floats(args[1:], 1)
		if err != nil {
			return op{}, err
		}
		return submit(command.UpdateControlPoint{ID: args[0], Patch: timing.Patch{BeatLength: &n[0]}}), nil

	case "unpoint":
		if len(args) != 1 {
			return op{}, ErrBadArgs
		}
		if _, ok := b.ControlPoints.Get(args[0]); !ok {
			return op{}, fmt.Errorf("%w: %s", ErrUnknownPointID, args[0])
		}
		return submit(command.DeleteControlPoint{ID: args[0]}), nil

	case "bookmark":
		if len(args) < 2 {
			return op{}, ErrBadArgs
		}
		n, err := floats(args[:1], 1)
		if err != nil {
			return op{}, err
		}
		return submit(command.CreateBookmark{Time: n[0], Name: strings.Join(args[1:], " ")}), nil

	case "unbookmark":
		n, err := floats(args, 1)
		if err != nil {
			return op{}, err
		}
		return submit(command.RemoveBookmark{Time: n[0]}), nil

	case "snap":
		if len(args) != 2 {
			return op{}, ErrBadArgs
		}
		n, err := floats(args[:1], 1)
		if err != nil {
			return op{}, err
		}
		div, err := strconv.Atoi(args[1])
		if err != nil || div <= 0 {
			return op{}, ErrBadArgs
		}
		return op{kind: opSnap, time: n[0], divisor: div}, nil
	}
	return op{}, fmt.Errorf("%w: %s", ErrUnknownVerb, verb)
}

func submit(cmd command.Command) op { return op{kind: opSubmit, cmd: cmd} }

func floats(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, ErrBadArgs
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadArgs, a)
		}
		out[i] = v
	}
	return out, nil
}
