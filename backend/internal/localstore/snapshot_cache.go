// Package localstore 为编辑端保存本地快照，断线或服务端不可用时仍可恢复。
package localstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"

	"beatmapCollab/backend/internal/beatmap"
)

var ErrNotCached = errors.New("SNAPSHOT_NOT_CACHED")

var (
	bucketSnapshots = []byte("snapshots")
	bucketMeta      = []byte("meta")
)

// Entry 是一条本地快照
type Entry struct {
	BeatmapID string           `json:"beatmapId"`
	Revision  uint64           `json:"revision"`
	SavedAt   time.Time        `json:"savedAt"`
	Snapshot  beatmap.Snapshot `json:"snapshot"`
}

type SnapshotCache struct {
	db *bolt.DB
}

func Open(path string) (*SnapshotCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSnapshots, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SnapshotCache{db: db}, nil
}

func (c *SnapshotCache) Close() error { return c.db.Close() }

// Put 覆盖谱面的本地快照，并记录保存次数
func (c *SnapshotCache) Put(beatmapID string, revision uint64, snap beatmap.Snapshot) error {
	b, err := json.Marshal(Entry{BeatmapID: beatmapID, Revision: revision, SavedAt: time.Now(), Snapshot: snap})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketSnapshots).Put([]byte(beatmapID), b); err != nil {
			return err
		}
		meta := tx.Bucket(bucketMeta)
		var n uint64
		if v := meta.Get([]byte(beatmapID)); len(v) == 8 {
			n = binary.BigEndian.Uint64(v)
		}
		return meta.Put([]byte(beatmapID), binary.BigEndian.AppendUint64(nil, n+1))
	})
}

func (c *SnapshotCache) Get(beatmapID string) (Entry, error) {
	var e Entry
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSnapshots).Get([]byte(beatmapID))
		if v == nil {
			return ErrNotCached
		}
		// v 只在事务内有效，Unmarshal 会复制
		return json.Unmarshal(v, &e)
	})
	return e, err
}

// Saves 返回本地保存过的次数
func (c *SnapshotCache) Saves(beatmapID string) uint64 {
	var n uint64
	_ = c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get([]byte(beatmapID)); len(v) == 8 {
			n = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return n
}

func (c *SnapshotCache) List() ([]string, error) {
	var ids []string
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (c *SnapshotCache) Delete(beatmapID string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketSnapshots).Delete([]byte(beatmapID)); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Delete([]byte(beatmapID))
	})
}
