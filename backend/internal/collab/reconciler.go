package collab

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"beatmapCollab/backend/internal/command"
)

const DefaultFlushInterval = 50 * time.Millisecond

// Transport 把一个编码好的批次发给服务端
type Transport interface {
	Send(ctx context.Context, payload []byte) error
}

// Reconciler 是联网模式下的 Manager：
// 本地命令进入发送缓冲，定时打包发送；收到的批次按会话区分自己的回显和他人的命令。
// Submit/Undo/Redo/Receive 必须在同一个 goroutine 上调用，只有缓冲区由 Run 并发访问。
type Reconciler struct {
	manager   *command.Manager
	transport Transport
	interval  time.Duration

	mu     sync.Mutex
	buffer []command.Versioned

	sessionID string
}

func NewReconciler(m *command.Manager, t Transport, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	r := &Reconciler{manager: m, transport: t, interval: interval}
	m.TrackPending()
	m.SetAfterSubmit(r.enqueue)
	return r
}

func (r *Reconciler) Manager() *command.Manager { return r.manager }

// SetSessionID 在收到 roomState 后设置，用来识别自己的回显
func (r *Reconciler) SetSessionID(id string) { r.sessionID = id }

func (r *Reconciler) SessionID() string { return r.sessionID }

func (r *Reconciler) Submit(cmd command.Command, commit bool) bool {
	return r.manager.Submit(cmd, commit)
}

func (r *Reconciler) Commit() bool { return r.manager.Commit() }
func (r *Reconciler) Undo() bool   { return r.manager.Undo() }
func (r *Reconciler) Redo() bool   { return r.manager.Redo() }

func (r *Reconciler) enqueue(v command.Versioned) {
	r.mu.Lock()
	r.buffer = append(r.buffer, v)
	r.mu.Unlock()
}

// Buffered 返回尚未发送的命令数
func (r *Reconciler) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// Flush 取走缓冲区并作为一个批次发送。缓冲为空时什么都不做。
// 发送失败时命令放回缓冲区头部，下次重发。
func (r *Reconciler) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.buffer
	r.buffer = nil
	r.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	payload, err := command.EncodeBatch(batch)
	if err == nil {
		err = r.transport.Send(ctx, payload)
	}
	if err != nil {
		r.mu.Lock()
		r.buffer = append(batch, r.buffer...)
		r.mu.Unlock()
		return err
	}
	glog.V(1).Infof("[reconciler] flushed %d commands (%d bytes)", len(batch), len(payload))
	return nil
}

// Run 按 interval 定时 Flush，ctx 结束时再做最后一次 Flush
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			if err := r.Flush(flushCtx); err != nil {
				glog.Warningf("[reconciler] final flush: %v", err)
			}
			cancel()
			return ctx.Err()
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				glog.Warningf("[reconciler] flush: %v", err)
			}
		}
	}
}

// Receive 先解码整个批次，任何一条失败则整体拒绝；再按顺序执行
func (r *Reconciler) Receive(payload []byte, sessionID string) error {
	batch, err := command.DecodeBatch(payload)
	if err != nil {
		return err
	}
	mode := command.ModeRemote
	if r.sessionID != "" && sessionID == r.sessionID {
		mode = command.ModeOwnEcho
	}
	for _, v := range batch {
		r.manager.Receive(v, mode)
	}
	glog.V(2).Infof("[reconciler] received %d commands from %s (%s)", len(batch), sessionID, mode)
	return nil
}
