package ws

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"beatmapCollab/backend/internal/cache"
	"beatmapCollab/backend/internal/collab"
)

type Hub struct {
	// 可以为 nil：不记录在线状态
	presence cache.PresenceCache
	// 可以为 nil：单节点部署
	relay cache.RoomRelay
	svc   collab.Service

	mu sync.RWMutex
	// beatmapID -> 本节点的连接
	rooms map[string]map[*Conn]struct{}
	// beatmapID -> 取消 relay 订阅
	unsubscribe map[string]func() error
}

func NewHub(p cache.PresenceCache, relay cache.RoomRelay, svc collab.Service) *Hub {
	return &Hub{
		presence:    p,
		relay:       relay,
		svc:         svc,
		rooms:       make(map[string]map[*Conn]struct{}),
		unsubscribe: make(map[string]func() error),
	}
}

// Join 将连接加入谱面房间；本节点第一个连接负责订阅跨节点转发
func (h *Hub) Join(ctx context.Context, beatmapID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[beatmapID] == nil {
		// 同一用户可能多端连接，按连接而不是按用户存
		h.rooms[beatmapID] = make(map[*Conn]struct{})
		if h.relay != nil {
			cancel, err := h.relay.Subscribe(context.WithoutCancel(ctx), beatmapID, h.onRelay)
			if err != nil {
				glog.Errorf("[hub] relay subscribe %s: %v", beatmapID, err)
			} else {
				h.unsubscribe[beatmapID] = cancel
			}
		}
	}
	h.rooms[beatmapID][c] = struct{}{}
}

func (h *Hub) Leave(beatmapID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.rooms[beatmapID]
	if !ok {
		return
	}
	delete(conns, c)
	if len(conns) > 0 {
		return
	}
	delete(h.rooms, beatmapID)
	if cancel := h.unsubscribe[beatmapID]; cancel != nil {
		if err := cancel(); err != nil {
			glog.Warningf("[hub] relay unsubscribe %s: %v", beatmapID, err)
		}
		delete(h.unsubscribe, beatmapID)
	}
}

func (h *Hub) conns(beatmapID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.rooms[beatmapID]))
	for c := range h.rooms[beatmapID] {
		out = append(out, c)
	}
	return out
}

func (h *Hub) broadcast(beatmapID string, msg ServerMessage) {
	for _, c := range h.conns(beatmapID) {
		c.Enqueue(msg)
	}
}

// Deliver 把已应用的批次发给本节点房间内所有连接（包括发送者，作为回显）。
// 作为服务的 OnApplied 回调在房间锁内调用，只做非阻塞入队。
func (h *Hub) Deliver(applied collab.AppliedBatch) {
	h.broadcast(applied.BeatmapID, ServerMessage{
		Type:      TypeCommands,
		BeatmapID: applied.BeatmapID,
		SessionID: applied.SessionID,
		Revision:  applied.Revision,
		Payload:   applied.Payload,
	})
}

// Relay 把本节点接受的批次转发给其他节点
func (h *Hub) Relay(ctx context.Context, applied collab.AppliedBatch) {
	if h.relay == nil {
		return
	}
	err := h.relay.Publish(ctx, cache.RelayMessage{
		BeatmapID: applied.BeatmapID,
		SessionID: applied.SessionID,
		Type:      TypeCommands,
		Revision:  applied.Revision,
		Payload:   applied.Payload,
	})
	if err != nil {
		glog.Warningf("[hub] relay publish %s: %v", applied.BeatmapID, err)
	}
}

func (h *Hub) BroadcastPresence(ctx context.Context, beatmapID string) {
	if h.presence == nil {
		return
	}
	members, err := h.presence.GetAliveMembers(ctx, beatmapID)
	if err != nil {
		glog.Warningf("[hub] presence %s: %v", beatmapID, err)
		return
	}
	h.broadcast(beatmapID, ServerMessage{Type: TypePresence, BeatmapID: beatmapID, Members: members})
}

// onRelay 处理其他节点接受的批次，房间副本执行后由 Deliver 发给本节点的连接
func (h *Hub) onRelay(msg cache.RelayMessage) {
	if msg.Type != TypeCommands {
		return
	}
	if err := h.svc.ApplyRelayed(context.Background(), msg.BeatmapID, msg.SessionID, msg.Payload); err != nil {
		glog.Errorf("[hub] relayed batch %s from %s: %v", msg.BeatmapID, msg.NodeID, err)
	}
}
