package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

var ErrNoRoomState = errors.New("NO_ROOM_STATE")

// Client 是编辑端的连接，实现 collab.Transport
type Client struct {
	conn *websocket.Conn
	// gorilla/websocket 只允许一个并发写
	wmu sync.Mutex
}

// Dial 连接 serverURL（http(s)://host:port）下的 /collab/ws
func Dial(ctx context.Context, serverURL, beatmapID, token string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/") + "/collab/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("beatmapId", beatmapID)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.Redacted(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) writeJSON(ctx context.Context, msg ClientMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Send 发送一个命令批次
func (c *Client) Send(ctx context.Context, payload []byte) error {
	return c.writeJSON(ctx, ClientMessage{Type: TypeCommands, Payload: payload})
}

func (c *Client) Heartbeat(ctx context.Context) error {
	return c.writeJSON(ctx, ClientMessage{Type: TypeHeartbeat})
}

func (c *Client) Save(ctx context.Context) error {
	return c.writeJSON(ctx, ClientMessage{Type: TypeSave})
}

// Read 阻塞读取下一条服务端消息，只能在一个 goroutine 中调用
func (c *Client) Read() (ServerMessage, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return ServerMessage{}, err
	}
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerMessage{}, err
	}
	return msg, nil
}

// WaitRoomState 读取连接后的第一条消息，必须是 roomState
func (c *Client) WaitRoomState() (ServerMessage, error) {
	msg, err := c.Read()
	if err != nil {
		return ServerMessage{}, err
	}
	if msg.Type != TypeRoomState {
		return ServerMessage{}, fmt.Errorf("%w: got %q (%s)", ErrNoRoomState, msg.Type, msg.Content)
	}
	return msg, nil
}

func (c *Client) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.conn.Close()
}
