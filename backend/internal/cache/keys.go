package cache

import "fmt"

// 键语义：
// - presenceKey(beatmapID): 房间在线会话（ZSet<sessionId, expireAtUnix>，score=expireAt）
// - namesKey(beatmapID):    会话 → 用户名（Hash）
// - beatmapsKey():          有人在线的谱面（Set<beatmapId>）
// - relayChannel(beatmapID): 跨节点转发批次的 pub/sub 频道

const (
	keyPresenceFmt  = "presence:beatmap:{id:%s}"
	keyNamesFmt     = "presence:beatmap:names:{id:%s}"
	keyBeatmapsSet  = "presence:beatmaps"
	relayChannelFmt = "relay:beatmap:%s"
)

func presenceKey(beatmapID string) string  { return fmt.Sprintf(keyPresenceFmt, beatmapID) }
func namesKey(beatmapID string) string     { return fmt.Sprintf(keyNamesFmt, beatmapID) }
func beatmapsKey() string                  { return keyBeatmapsSet }
func relayChannel(beatmapID string) string { return fmt.Sprintf(relayChannelFmt, beatmapID) }
