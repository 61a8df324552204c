package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	"beatmapCollab/backend/internal/beatmap"
	"beatmapCollab/backend/internal/command"
)

var (
	ErrRoomNotFound       = errors.New("ROOM_NOT_FOUND")
	ErrStoreNotConfigured = errors.New("SNAPSHOT_STORE_NOT_INITIALIZED")
)

// 协作房间服务：每个谱面一个房间，房间持有服务端的权威副本
type Service interface {
	// Join 加载房间（必要时从存储读取），返回当前快照和它对应的房间版本
	Join(ctx context.Context, beatmapID, sessionID string) (beatmap.Snapshot, uint64, error)
	// Leave 最后一个成员离开时保存并卸载房间
	Leave(ctx context.Context, beatmapID, sessionID string) error
	// Submit 校验并执行一个批次，返回需要转发给房间成员的结果
	Submit(ctx context.Context, beatmapID, sessionID string, payload []byte) (AppliedBatch, error)
	// ApplyRelayed 执行其他节点已接受的批次，不再产生事件
	ApplyRelayed(ctx context.Context, beatmapID, sessionID string, payload []byte) error

	Snapshot(ctx context.Context, beatmapID string) (beatmap.Snapshot, error)
	SaveSnapshot(ctx context.Context, beatmapID string) error
	Members(beatmapID string) []string
}

// 快照存储接口，实现在 store 中。LoadSnapshot 返回最新一条及其房间版本
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, beatmapID string) (beatmap.Snapshot, uint64, bool, error)
	SaveSnapshot(ctx context.Context, beatmapID string, revision uint64, snap beatmap.Snapshot) error
}

// 事件出口，KafkaDispatcher 实现
type EventSink interface {
	Enqueue(ctx context.Context, evt BatchEvent) error
}

type AppliedBatch struct {
	BeatmapID string
	SessionID string
	Revision  uint64
	Commands  int
	Payload   []byte
	AppliedAt time.Time
}

type ServiceOptions struct {
	Store         SnapshotStore
	Events        EventSink
	Strict        bool
	StackLeniency float64
	EnqueueWait   time.Duration
	// OnApplied 在房间锁内调用，保证转发顺序与执行顺序一致；不能阻塞
	OnApplied func(AppliedBatch)
}

type room struct {
	mu       sync.Mutex
	beatmap  *beatmap.Beatmap
	manager  *command.Manager
	revision uint64
	saved    uint64
	// 存储中已有与 saved 对应的快照
	persisted bool
	members   map[string]struct{}
}

// 内存实现：持有所有已加载房间
type InMemoryService struct {
	mu    sync.RWMutex
	rooms map[string]*room
	loads singleflight.Group

	store       SnapshotStore
	events      EventSink
	registry    *command.Registry
	leniency    float64
	enqueueWait time.Duration
	onApplied   func(AppliedBatch)
}

func NewInMemoryService(opt ServiceOptions) *InMemoryService {
	if opt.EnqueueWait <= 0 {
		opt.EnqueueWait = 200 * time.Millisecond
	}
	return &InMemoryService{
		rooms:       make(map[string]*room),
		store:       opt.Store,
		events:      opt.Events,
		registry:    command.NewRegistry(opt.Strict),
		leniency:    opt.StackLeniency,
		enqueueWait: opt.EnqueueWait,
		onApplied:   opt.OnApplied,
	}
}

// SetOnApplied 用于 hub 与服务互相引用的场景，必须在处理请求前调用
func (s *InMemoryService) SetOnApplied(fn func(AppliedBatch)) {
	s.onApplied = fn
}

// applyLocked 按远端模式执行批次并推进房间版本，调用方持有 r.mu
func (s *InMemoryService) applyLocked(r *room, beatmapID, sessionID string, payload []byte, batch []command.Versioned) AppliedBatch {
	for _, v := range batch {
		r.manager.Receive(v, command.ModeRemote)
	}
	r.revision++
	applied := AppliedBatch{
		BeatmapID: beatmapID,
		SessionID: sessionID,
		Revision:  r.revision,
		Commands:  len(batch),
		Payload:   payload,
		AppliedAt: time.Now(),
	}
	if s.onApplied != nil {
		s.onApplied(applied)
	}
	return applied
}

func (s *InMemoryService) getRoom(beatmapID string) (*room, error) {
	s.mu.RLock()
	r := s.rooms[beatmapID]
	s.mu.RUnlock()
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, beatmapID)
	}
	return r, nil
}

// LoadRoom 确保房间已加载
func (s *InMemoryService) LoadRoom(ctx context.Context, beatmapID string) error {
	_, err := s.loadRoom(ctx, beatmapID)
	return err
}

// loadRoom 返回已加载的房间，否则从存储读取；同一谱面的并发加载只读一次
func (s *InMemoryService) loadRoom(ctx context.Context, beatmapID string) (*room, error) {
	if r, err := s.getRoom(beatmapID); err == nil {
		return r, nil
	}
	v, err, _ := s.loads.Do(beatmapID, func() (any, error) {
		if r, err := s.getRoom(beatmapID); err == nil {
			return r, nil
		}
		b, rev, persisted, err := s.loadBeatmap(ctx, beatmapID)
		if err != nil {
			return nil, err
		}
		// 版本从存储中的版本继续，之后的保存不会与旧快照冲突
		r := &room{
			beatmap:   b,
			manager:   command.NewManager(b, s.registry),
			revision:  rev,
			saved:     rev,
			persisted: persisted,
			members:   make(map[string]struct{}),
		}
		s.mu.Lock()
		s.rooms[beatmapID] = r
		s.mu.Unlock()
		glog.Infof("[room] loaded %s at rev %d (%d objects)", beatmapID, rev, b.HitObjects.Len())
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*room), nil
}

func (s *InMemoryService) loadBeatmap(ctx context.Context, beatmapID string) (*beatmap.Beatmap, uint64, bool, error) {
	if s.store != nil {
		snap, rev, ok, err := s.store.LoadSnapshot(ctx, beatmapID)
		if err != nil {
			return nil, 0, false, fmt.Errorf("load snapshot %s: %w", beatmapID, err)
		}
		if ok {
			snap.ID = beatmapID
			b, err := beatmap.FromSnapshot(snap)
			if err != nil {
				return nil, 0, false, err
			}
			return b, rev, true, nil
		}
	}
	b := beatmap.New(beatmapID)
	if s.leniency > 0 {
		b.General.StackLeniency = s.leniency
		b.HitObjects.SetStackLeniency(s.leniency)
	}
	return b, 0, false, nil
}

func (s *InMemoryService) Join(ctx context.Context, beatmapID, sessionID string) (beatmap.Snapshot, uint64, error) {
	r, err := s.loadRoom(ctx, beatmapID)
	if err != nil {
		return beatmap.Snapshot{}, 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[sessionID] = struct{}{}
	return r.beatmap.Snapshot(), r.revision, nil
}

func (s *InMemoryService) Leave(ctx context.Context, beatmapID, sessionID string) error {
	r, err := s.getRoom(beatmapID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.members, sessionID)
	empty := len(r.members) == 0
	r.mu.Unlock()
	if !empty {
		return nil
	}

	if s.store != nil {
		if err := s.SaveSnapshot(ctx, beatmapID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	// 保存期间可能有新成员加入
	r.mu.Lock()
	if len(r.members) == 0 && s.rooms[beatmapID] == r {
		delete(s.rooms, beatmapID)
		glog.Infof("[room] unloaded %s", beatmapID)
	}
	r.mu.Unlock()
	s.mu.Unlock()
	return nil
}

func (s *InMemoryService) Members(beatmapID string) []string {
	r, err := s.getRoom(beatmapID)
	if err != nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}

// Submit 先完整解码批次，解码失败整体拒绝；房间副本按远端模式执行
func (s *InMemoryService) Submit(ctx context.Context, beatmapID, sessionID string, payload []byte) (AppliedBatch, error) {
	r, err := s.getRoom(beatmapID)
	if err != nil {
		return AppliedBatch{}, err
	}
	batch, err := command.DecodeBatch(payload)
	if err != nil {
		return AppliedBatch{}, err
	}

	r.mu.Lock()
	applied := s.applyLocked(r, beatmapID, sessionID, payload, batch)
	r.mu.Unlock()

	if s.events != nil {
		kinds := make([]string, len(batch))
		for i, v := range batch {
			kinds[i] = v.Command.Kind().String()
		}
		evt := BatchEvent{
			EventType: EventBatchApplied,
			EventID:   ulid.Make().String(),
			BeatmapID: beatmapID,
			SessionID: sessionID,
			Revision:  applied.Revision,
			Kinds:     kinds,
			Payload:   payload,
			AppliedAt: applied.AppliedAt,
		}
		enqCtx, cancel := context.WithTimeout(ctx, s.enqueueWait)
		if err := s.events.Enqueue(enqCtx, evt); err != nil {
			glog.Warningf("[room] event dropped beatmap=%s rev=%d: %v", beatmapID, applied.Revision, err)
		}
		cancel()
	}
	return applied, nil
}

func (s *InMemoryService) ApplyRelayed(ctx context.Context, beatmapID, sessionID string, payload []byte) error {
	r, err := s.getRoom(beatmapID)
	if err != nil {
		return err
	}
	batch, err := command.DecodeBatch(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	s.applyLocked(r, beatmapID, sessionID, payload, batch)
	r.mu.Unlock()
	return nil
}

func (s *InMemoryService) Snapshot(ctx context.Context, beatmapID string) (beatmap.Snapshot, error) {
	r, err := s.getRoom(beatmapID)
	if err != nil {
		return beatmap.Snapshot{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.beatmap.Snapshot(), nil
}

// SaveSnapshot 只在有新批次时写入存储
func (s *InMemoryService) SaveSnapshot(ctx context.Context, beatmapID string) error {
	if s.store == nil {
		return ErrStoreNotConfigured
	}
	r, err := s.getRoom(beatmapID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.persisted && r.saved == r.revision {
		r.mu.Unlock()
		return nil
	}
	snap := r.beatmap.Snapshot()
	rev := r.revision
	r.mu.Unlock()

	if err := s.store.SaveSnapshot(ctx, beatmapID, rev, snap); err != nil {
		return fmt.Errorf("save snapshot %s: %w", beatmapID, err)
	}
	r.mu.Lock()
	if rev >= r.saved {
		r.saved = rev
		r.persisted = true
	}
	r.mu.Unlock()
	return nil
}

// RunAutosave 定时保存所有有改动的房间，直到 ctx 结束
func (s *InMemoryService) RunAutosave(ctx context.Context, interval time.Duration) error {
	if s.store == nil || interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.mu.RLock()
			ids := make([]string, 0, len(s.rooms))
			for id := range s.rooms {
				ids = append(ids, id)
			}
			s.mu.RUnlock()
			for _, id := range ids {
				if err := s.SaveSnapshot(ctx, id); err != nil && !errors.Is(err, ErrRoomNotFound) {
					glog.Errorf("[room] autosave %s: %v", id, err)
				}
			}
		}
	}
}
