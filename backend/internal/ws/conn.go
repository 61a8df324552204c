package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"beatmapCollab/backend/internal/collab"
	"beatmapCollab/backend/internal/command"
)

const (
	writeWait    = 10 * time.Second
	submitWait   = 200 * time.Millisecond
	presenceTTL  = 60 * time.Second
	sendQueueLen = 256
)

type Conn struct {
	ws        *websocket.Conn
	hub       *Hub
	svc       collab.Service
	sem       *collab.SemaphoreControl
	beatmapID string
	sessionID string
	userID    uint64
	username  string

	// roomState 对应的房间版本，写循环跳过不大于它的批次
	joinedRevision uint64

	mu     sync.Mutex
	closed bool
	send   chan ServerMessage
}

func NewConn(ws *websocket.Conn, hub *Hub, svc collab.Service, sem *collab.SemaphoreControl,
	beatmapID, sessionID string, userID uint64, username string) *Conn {
	return &Conn{
		ws:        ws,
		hub:       hub,
		svc:       svc,
		sem:       sem,
		beatmapID: beatmapID,
		sessionID: sessionID,
		userID:    userID,
		username:  username,
		send:      make(chan ServerMessage, sendQueueLen),
	}
}

// Enqueue 非阻塞入队。队列满说明客户端跟不上，直接断开让它重连拿新快照，
// 不能丢掉中间的批次。
func (c *Conn) Enqueue(msg ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		glog.Warningf("[ws] send queue full, closing session=%s beatmap=%s", c.sessionID, c.beatmapID)
		c.closeLocked()
		_ = c.ws.Close()
	}
}

func (c *Conn) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}

func (c *Conn) write(msg ServerMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *Conn) writeLoop() {
	for msg := range c.send {
		if msg.Type == TypeCommands && msg.Revision <= c.joinedRevision {
			continue
		}
		if err := c.write(msg); err != nil {
			glog.V(1).Infof("[ws] write error session=%s: %v", c.sessionID, err)
			_ = c.ws.Close()
			// 继续消费直到通道关闭，避免 Enqueue 误判队列满
		}
	}
}

func (c *Conn) handleCommands(ctx context.Context, payload []byte) {
	submitCtx, cancel := context.WithTimeout(ctx, submitWait)
	defer cancel()

	if err := c.sem.Acquire(submitCtx); err != nil {
		c.Enqueue(errorMessage(err.Error()))
		return
	}
	applied, err := c.svc.Submit(submitCtx, c.beatmapID, c.sessionID, payload)
	_ = c.sem.Release()
	if err != nil {
		glog.Warningf("[ws] submit rejected session=%s beatmap=%s: %v", c.sessionID, c.beatmapID, err)
		code := "SUBMIT_FAILED"
		if errors.Is(err, command.ErrMalformedBatch) {
			code = "MALFORMED_BATCH"
		}
		c.Enqueue(errorMessage(code))
		return
	}
	// 本节点的回显已经由 hub.Deliver 在房间锁内入队
	c.hub.Relay(ctx, applied)
}

func (c *Conn) heartbeat(ctx context.Context) {
	if c.hub.presence == nil {
		return
	}
	if err := c.hub.presence.AddMember(ctx, c.beatmapID, c.sessionID, c.username, presenceTTL); err != nil {
		glog.Warningf("[ws] add member: %v", err)
		return
	}
	c.hub.BroadcastPresence(ctx, c.beatmapID)
}

func (c *Conn) readLoop(ctx context.Context) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.Warningf("[ws] read error session=%s beatmap=%s: %v", c.sessionID, c.beatmapID, err)
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Enqueue(errorMessage("BAD_MESSAGE"))
			continue
		}

		switch msg.Type {
		case TypeCommands:
			c.handleCommands(ctx, msg.Payload)

		case TypeHeartbeat:
			c.heartbeat(ctx)

		case TypeSave:
			if err := c.svc.SaveSnapshot(ctx, c.beatmapID); err != nil {
				glog.Errorf("[ws] save %s: %v", c.beatmapID, err)
				c.Enqueue(errorMessage("SAVE_FAILED"))
				continue
			}
			c.Enqueue(ServerMessage{Type: TypeSaved, BeatmapID: c.beatmapID})

		default:
			c.Enqueue(errorMessage("UNKNOWN_MESSAGE_TYPE"))
		}
	}
}
