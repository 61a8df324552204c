package cache

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/golang/glog"
	redis "github.com/redis/go-redis/v9"
)

// RelayMessage 是跨节点转发的一条房间消息。
// 同一谱面的会话可能连在不同节点上，本节点应用的批次要转发给其他节点的会话。
type RelayMessage struct {
	NodeID    string `json:"nodeId"`
	BeatmapID string `json:"beatmapId"`
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	Revision  uint64 `json:"revision,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
}

type RoomRelay interface {
	Publish(ctx context.Context, msg RelayMessage) error
	// Subscribe 订阅谱面频道，忽略本节点发出的消息；返回的函数取消订阅
	Subscribe(ctx context.Context, beatmapID string, fn func(RelayMessage)) (func() error, error)
}

type redisRelay struct {
	rdb    redis.UniversalClient
	nodeID string
}

func NewRedisRelay(rdb redis.UniversalClient, nodeID string) RoomRelay {
	return &redisRelay{rdb: rdb, nodeID: nodeID}
}

func (r *redisRelay) Publish(ctx context.Context, msg RelayMessage) error {
	msg.NodeID = r.nodeID
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, relayChannel(msg.BeatmapID), b).Err()
}

func (r *redisRelay) Subscribe(ctx context.Context, beatmapID string, fn func(RelayMessage)) (func() error, error) {
	pubsub := r.rdb.Subscribe(ctx, relayChannel(beatmapID))
	// 等订阅确认，之后发布的消息不会丢
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	go func() {
		for m := range pubsub.Channel() {
			var msg RelayMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				glog.Warningf("[relay] bad message on %s: %v", m.Channel, err)
				continue
			}
			if msg.NodeID == r.nodeID {
				continue
			}
			fn(msg)
		}
	}()
	return pubsub.Close, nil
}
