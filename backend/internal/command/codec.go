package command

import (
	"errors"
	"fmt"

	"github.com/ugorji/go/codec"
)

var ErrMalformedBatch = errors.New("MALFORMED_BATCH")

// 结构体按数组编码，不写字段名
var msgpackHandle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.StructToArray = true
	h.WriteExt = true
	return h
}()

// 线上格式：[{tag, version, body}...]，body 是单条命令的 msgpack 编码
type wireEntry struct {
	Tag     Kind
	Version uint64
	Body    []byte
}

var decoders = map[Kind]func([]byte) (Command, error){
	KindCreateHitObject:    decodeAs[CreateHitObject],
	KindDeleteHitObject:    decodeAs[DeleteHitObject],
	KindUpdateHitObject:    decodeAs[UpdateHitObject],
	KindCreateControlPoint: decodeAs[CreateControlPoint],
	KindDeleteControlPoint: decodeAs[DeleteControlPoint],
	KindUpdateControlPoint: decodeAs[UpdateControlPoint],
	KindCreateBookmark:     decodeAs[CreateBookmark],
	KindRemoveBookmark:     decodeAs[RemoveBookmark],
}

func decodeAs[C Command](body []byte) (Command, error) {
	var c C
	if err := codec.NewDecoderBytes(body, msgpackHandle).Decode(&c); err != nil {
		return nil, err
	}
	return c, nil
}

func EncodeBatch(cmds []Versioned) ([]byte, error) {
	entries := make([]wireEntry, 0, len(cmds))
	for _, v := range cmds {
		var body []byte
		if err := codec.NewEncoderBytes(&body, msgpackHandle).Encode(v.Command); err != nil {
			return nil, fmt.Errorf("encode %s: %w", v.Command.Kind(), err)
		}
		entries = append(entries, wireEntry{Tag: v.Command.Kind(), Version: v.Version, Body: body})
	}
	var out []byte
	if err := codec.NewEncoderBytes(&out, msgpackHandle).Encode(entries); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeBatch 要么全部解码成功，要么返回 ErrMalformedBatch，不返回部分结果
func DecodeBatch(data []byte) ([]Versioned, error) {
	var entries []wireEntry
	if err := codec.NewDecoderBytes(data, msgpackHandle).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	out := make([]Versioned, 0, len(entries))
	for i, e := range entries {
		dec, ok := decoders[e.Tag]
		if !ok {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrMalformedBatch, i, fmt.Errorf("%w: %d", ErrUnknownCommand, uint8(e.Tag)))
		}
		cmd, err := dec(e.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d (%s): %v", ErrMalformedBatch, i, e.Tag, err)
		}
		out = append(out, Versioned{Command: cmd, Version: e.Version})
	}
	return out, nil
}
