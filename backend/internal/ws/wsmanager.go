package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"beatmapCollab/backend/internal/collab"
)

// 允许本地开发环境的来源
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// 非浏览器客户端不发送 Origin，或为 "null"
	if origin == "" || origin == "null" {
		return true
	}
	for _, p := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	h   *Hub
	svc collab.Service
	sem *collab.SemaphoreControl
}

func NewManager(h *Hub, svc collab.Service, sem *collab.SemaphoreControl) *Manager {
	return &Manager{h: h, svc: svc, sem: sem}
}

// WebSocketConnect 处理 /ws?beatmapId=，鉴权中间件已写入 userId/username
func (m *Manager) WebSocketConnect(c *gin.Context) {
	beatmapID := c.Query("beatmapId")
	if beatmapID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": "missing beatmapId"})
		return
	}
	userID := c.GetUint64("userId")
	username := c.GetString("username")

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		glog.Warningf("[ws] upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer wsConn.Close()

	// 请求结束后 gin 的 context 会被取消，会话生命周期内用独立的 ctx
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	sessionID := uuid.NewString()
	conn := NewConn(wsConn, m.h, m.svc, m.sem, beatmapID, sessionID, userID, username)

	// 先加入 hub 再取快照：之间应用的批次会入队，由 joinedRevision 过滤
	m.h.Join(ctx, beatmapID, conn)
	defer m.h.Leave(beatmapID, conn)

	snap, rev, err := m.svc.Join(ctx, beatmapID, sessionID)
	if err != nil {
		glog.Errorf("[ws] join %s: %v", beatmapID, err)
		_ = conn.write(errorMessage("JOIN_FAILED"))
		conn.close()
		return
	}
	defer func() {
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer leaveCancel()
		if err := m.svc.Leave(leaveCtx, beatmapID, sessionID); err != nil {
			glog.Errorf("[ws] leave %s: %v", beatmapID, err)
		}
		if m.h.presence != nil {
			_ = m.h.presence.RemoveMember(leaveCtx, beatmapID, sessionID)
			m.h.BroadcastPresence(leaveCtx, beatmapID)
		}
	}()

	body, err := json.Marshal(snap)
	if err != nil {
		glog.Errorf("[ws] encode snapshot %s: %v", beatmapID, err)
		conn.close()
		return
	}
	conn.joinedRevision = rev
	if err := conn.write(ServerMessage{
		Type:      TypeRoomState,
		BeatmapID: beatmapID,
		SessionID: sessionID,
		Revision:  rev,
		Snapshot:  body,
	}); err != nil {
		conn.close()
		return
	}
	glog.Infof("[ws] session %s (user %d) joined %s at rev %d", sessionID, userID, beatmapID, rev)

	done := make(chan struct{})
	go func() {
		conn.writeLoop()
		close(done)
	}()
	conn.heartbeat(ctx)

	// 阻塞至连接关闭
	conn.readLoop(ctx)
	conn.close()
	<-done
}
