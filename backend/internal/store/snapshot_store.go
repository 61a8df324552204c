package store

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/goccy/go-json"
	"github.com/golang/glog"
	"gorm.io/gorm"

	"beatmapCollab/backend/internal/beatmap"
)

// BeatmapSnapshot 每个谱面按 revision 追加保存，读取时取最新一条
type BeatmapSnapshot struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	BeatmapID string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_beatmap_rev,priority:1"`
	Revision  uint64    `gorm:"not null;uniqueIndex:uk_beatmap_rev,priority:2"`
	Content   []byte    `gorm:"type:longblob;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (BeatmapSnapshot) TableName() string { return "beatmap_snapshots" }

type SnapshotStore struct {
	db *gorm.DB
	// 每个谱面保留的快照数，0 表示全部保留
	keep int
}

func NewSnapshotStore(db *gorm.DB, keep int) *SnapshotStore {
	return &SnapshotStore{db: db, keep: keep}
}

// SaveSnapshot 同一 revision 重复保存视为成功
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, beatmapID string, revision uint64, snap beatmap.Snapshot) error {
	content, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	row := BeatmapSnapshot{BeatmapID: beatmapID, Revision: revision, Content: content}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return nil
		}
		return err
	}
	if s.keep > 0 {
		if _, err := s.Prune(ctx, beatmapID, s.keep); err != nil {
			glog.Warningf("[store] prune %s: %v", beatmapID, err)
		}
	}
	return nil
}

// LoadSnapshot 返回最新快照和它的 revision
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, beatmapID string) (beatmap.Snapshot, uint64, bool, error) {
	var row BeatmapSnapshot
	err := s.db.WithContext(ctx).
		Where("beatmap_id = ?", beatmapID).
		Order("revision DESC, id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return beatmap.Snapshot{}, 0, false, nil
	}
	if err != nil {
		return beatmap.Snapshot{}, 0, false, err
	}
	var snap beatmap.Snapshot
	if err := json.Unmarshal(row.Content, &snap); err != nil {
		return beatmap.Snapshot{}, 0, false, errors.Join(beatmap.ErrInvalidSnapshot, err)
	}
	return snap, row.Revision, true, nil
}

// Prune 只保留最新的 keep 条快照
func (s *SnapshotStore) Prune(ctx context.Context, beatmapID string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&BeatmapSnapshot{}).
		Where("beatmap_id = ?", beatmapID).
		Order("revision DESC, id DESC").
		Pluck("id", &ids).Error
	if err != nil || len(ids) <= keep {
		return 0, err
	}
	res := s.db.WithContext(ctx).Where("id IN ?", ids[keep:]).Delete(&BeatmapSnapshot{})
	return res.RowsAffected, res.Error
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
