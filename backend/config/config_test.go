package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试在 backend/config 目录下运行，会读到同目录的 yaml
func TestLoadCollab(t *testing.T) {
	t.Setenv("COLLAB_MYSQL_DSN", "user:pw@tcp(db:3306)/x")

	cfg, err := LoadCollab()
	require.NoError(t, err)
	assert.Equal(t, 8082, cfg.Running.Port)
	assert.Equal(t, "user:pw@tcp(db:3306)/x", cfg.Mysql.DSN)
	assert.Equal(t, []string{"127.0.0.1:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, "beatmap-batches", cfg.Kafka.Topic)
	assert.Equal(t, 50*time.Millisecond, cfg.Editor.FlushInterval)
	assert.Equal(t, 0.7, cfg.Editor.StackLeniency)
	assert.Equal(t, 30*time.Second, cfg.Room.SnapshotInterval)
}

func TestLoadAgent(t *testing.T) {
	t.Setenv("AGENT_AUTH_TOKEN", "tok")
	t.Setenv("AGENT_BEATMAP_ID", "m42")

	cfg, err := LoadAgent()
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.Auth.Token)
	assert.Equal(t, "m42", cfg.Beatmap.ID)
	assert.Equal(t, "http://localhost:8082", cfg.Server.URL)
	assert.True(t, cfg.Editor.Strict)
}
