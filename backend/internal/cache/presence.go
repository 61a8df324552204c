package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type PresenceCache interface {
	AddMember(ctx context.Context, beatmapID, sessionID, username string, ttl time.Duration) error
	RemoveMember(ctx context.Context, beatmapID, sessionID string) error
	GetBeatmaps(ctx context.Context) ([]string, error)
	GetAliveMembers(ctx context.Context, beatmapID string) ([]PresenceMember, error)
}

type PresenceMember struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username,omitempty"`
}

// 基于 redis 的 PresenceCache，单机和集群都用 UniversalClient
type redisPresence struct {
	rdb redis.UniversalClient
}

func NewRedisPresence(rdb redis.UniversalClient) PresenceCache {
	return &redisPresence{rdb: rdb}
}

// AddMember 也用于心跳续期
func (p *redisPresence) AddMember(ctx context.Context, beatmapID, sessionID, username string, ttl time.Duration) error {
	// score 使用 expireAt（Unix 秒）表达逻辑 TTL
	expireAt := time.Now().Add(ttl).Unix()
	tx := p.rdb.TxPipeline()
	tx.ZAdd(ctx, presenceKey(beatmapID), redis.Z{Score: float64(expireAt), Member: sessionID})
	tx.HSet(ctx, namesKey(beatmapID), sessionID, username)
	_, err := tx.Exec(ctx)
	if err != nil {
		return err
	}
	// 索引集合与房间键不在同一个 slot，单独写
	return p.rdb.SAdd(ctx, beatmapsKey(), beatmapID).Err()
}

func (p *redisPresence) RemoveMember(ctx context.Context, beatmapID, sessionID string) error {
	tx := p.rdb.TxPipeline()
	tx.ZRem(ctx, presenceKey(beatmapID), sessionID)
	tx.HDel(ctx, namesKey(beatmapID), sessionID)
	card := tx.ZCard(ctx, presenceKey(beatmapID))
	if _, err := tx.Exec(ctx); err != nil {
		return err
	}
	if card.Val() == 0 {
		return p.rdb.SRem(ctx, beatmapsKey(), beatmapID).Err()
	}
	return nil
}

func (p *redisPresence) GetBeatmaps(ctx context.Context) ([]string, error) {
	ids, err := p.rdb.SMembers(ctx, beatmapsKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return ids, nil
}

// 清理过期成员，KEYS[1]=presenceKey KEYS[2]=namesKey ARGV[1]=now
var expireScript = redis.NewScript(`
local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if #expired > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	redis.call("HDEL", KEYS[2], unpack(expired))
end
return #expired
`)

func (p *redisPresence) GetAliveMembers(ctx context.Context, beatmapID string) ([]PresenceMember, error) {
	now := time.Now().Unix()
	_, err := expireScript.Run(ctx, p.rdb, []string{presenceKey(beatmapID), namesKey(beatmapID)}, now).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	alive, err := p.rdb.ZRangeByScore(ctx, presenceKey(beatmapID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10), // > now
		Max: "+inf",
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if len(alive) == 0 {
		return nil, nil
	}

	names, err := p.rdb.HMGet(ctx, namesKey(beatmapID), alive...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	members := make([]PresenceMember, 0, len(alive))
	for i, id := range alive {
		name := ""
		if i < len(names) && names[i] != nil {
			name, _ = names[i].(string)
		}
		members = append(members, PresenceMember{SessionID: id, Username: name})
	}
	return members, nil
}
