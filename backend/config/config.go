package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type EditorConfig struct {
	FlushInterval time.Duration `mapstructure:"flushInterval"`
	StackLeniency float64       `mapstructure:"stackLeniency"`
	// 未知命令类型时 panic，只在开发环境打开
	Strict bool `mapstructure:"strict"`
}

type CollabConfig struct {
	Running struct {
		Port   int    `mapstructure:"port"`
		NodeID string `mapstructure:"nodeId"`
	} `mapstructure:"running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
	Editor EditorConfig `mapstructure:"editor"`
	Room   struct {
		SnapshotInterval time.Duration `mapstructure:"snapshotInterval"`
		KeepSnapshots    int           `mapstructure:"keepSnapshots"`
		MaxSubmits       int           `mapstructure:"maxSubmits"`
	} `mapstructure:"room"`
}

type AgentConfig struct {
	Server struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"server"`
	Auth struct {
		Token string `mapstructure:"token"`
	} `mapstructure:"auth"`
	Beatmap struct {
		ID string `mapstructure:"id"`
	} `mapstructure:"beatmap"`
	Cache struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"cache"`
	Editor EditorConfig `mapstructure:"editor"`
}

func newViper(name, envPrefix string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("editor.flushInterval", 50*time.Millisecond)
	v.SetDefault("editor.stackLeniency", 0.7)
	return v
}

// read 读取配置文件；找不到文件时只用默认值和环境变量
func read(v *viper.Viper, out any) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	return v.Unmarshal(out)
}

// LoadCollab 读取 collabConfig.yaml，环境变量前缀 COLLAB_（如 COLLAB_MYSQL_DSN）
func LoadCollab() (*CollabConfig, error) {
	v := newViper("collabConfig", "COLLAB")
	v.SetDefault("running.port", 8082)
	v.SetDefault("kafka.topic", "beatmap-batches")
	v.SetDefault("room.snapshotInterval", 30*time.Second)
	v.SetDefault("room.keepSnapshots", 20)
	v.SetDefault("room.maxSubmits", 100)
	// AutomaticEnv 只覆盖已知的键
	for _, k := range []string{"running.nodeId", "mysql.dsn", "redis.password", "auth.secret", "editor.strict"} {
		_ = v.BindEnv(k)
	}

	cfg := &CollabConfig{}
	if err := read(v, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAgent 读取 agentConfig.yaml，环境变量前缀 AGENT_（如 AGENT_AUTH_TOKEN）
func LoadAgent() (*AgentConfig, error) {
	v := newViper("agentConfig", "AGENT")
	v.SetDefault("server.url", "http://localhost:8082")
	v.SetDefault("cache.path", "editor-agent.db")
	for _, k := range []string{"auth.token", "beatmap.id", "editor.strict"} {
		_ = v.BindEnv(k)
	}

	cfg := &AgentConfig{}
	if err := read(v, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
