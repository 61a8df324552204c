package ws

import (
	"github.com/goccy/go-json"

	"beatmapCollab/backend/internal/cache"
)

// 消息类型
const (
	TypeCommands  = "commands"  // 双向：命令批次
	TypeRoomState = "roomState" // 服务端 → 客户端：加入后的会话 id 与快照
	TypeHeartbeat = "heartbeat"
	TypePresence  = "presence"
	TypeSave      = "save"
	TypeSaved     = "saved"
	TypeError     = "error"
)

type ClientMessage struct {
	Type string `json:"type"`
	// commands 的 msgpack 批次，json 中为 base64
	Payload []byte `json:"payload,omitempty"`
}

type ServerMessage struct {
	Type      string `json:"type"`
	BeatmapID string `json:"beatmapId,omitempty"`
	// commands：发送者的会话；roomState：接收者自己的会话
	SessionID string                 `json:"sessionId,omitempty"`
	Revision  uint64                 `json:"revision,omitempty"`
	Payload   []byte                 `json:"payload,omitempty"`
	Snapshot  json.RawMessage        `json:"snapshot,omitempty"`
	Members   []cache.PresenceMember `json:"members,omitempty"`
	Content   string                 `json:"content,omitempty"`
}

func errorMessage(content string) ServerMessage {
	return ServerMessage{Type: TypeError, Content: content}
}
