package collab

import "time"

const EventBatchApplied = "BATCH_APPLIED"

// BatchEvent 是写入 Kafka 的已应用批次事件，按 beatmapId 分区
type BatchEvent struct {
	EventType string    `json:"eventType"` // 固定 "BATCH_APPLIED"
	EventID   string    `json:"eventId"`
	BeatmapID string    `json:"beatmapId"`
	SessionID string    `json:"sessionId"`
	Revision  uint64    `json:"revision"` // 房间内已应用的批次数
	Kinds     []string  `json:"kinds"`
	Payload   []byte    `json:"payload"` // 原始 msgpack 批次，json 中为 base64
	AppliedAt time.Time `json:"appliedAt"`
}
