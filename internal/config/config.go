package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/Alkatripathi-004/chat-fanout/pkg/config"
	"github.com/Alkatripathi-004/chat-fanout/pkg/log"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Rooms     RoomConfig
	Kafka     KafkaConfig
	Dedup     DedupConfig
	Redis     RedisConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type RoomConfig struct {
	Count int
}

type KafkaConfig struct {
	Brokers             string
	WorkTopic           string `mapstructure:"work_topic"`
	BroadcastTopic      string `mapstructure:"broadcast_topic"`
	DeadLetterTopic     string `mapstructure:"dead_letter_topic"`
	Partitions          int
	GroupID             string `mapstructure:"group_id"`
	RetentionMs         int    `mapstructure:"retention_ms"`
	RetentionBytes      int64  `mapstructure:"retention_bytes"`
	MaxPollIntervalMs   int    `mapstructure:"max_poll_interval_ms"`
	SessionTimeoutMs    int    `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMs int    `mapstructure:"heartbeat_interval_ms"`
}

type DedupConfig struct {
	Workers      int
	RedeliverCap int           `mapstructure:"redeliver_cap"`
	LedgerWindow time.Duration `mapstructure:"ledger_window"`
	UseRedis     bool          `mapstructure:"use_redis"`
}

type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	LedgerPrefix string        `mapstructure:"ledger_prefix"`
	LedgerTTL    time.Duration `mapstructure:"ledger_ttl"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8088)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("rooms.count", 20)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.work_topic", "chat.work")
	v.SetDefault("kafka.broadcast_topic", "chat.broadcast")
	v.SetDefault("kafka.dead_letter_topic", "chat.deadletter")
	v.SetDefault("kafka.partitions", 20)
	v.SetDefault("kafka.group_id", "chat-dedup")
	v.SetDefault("kafka.retention_ms", 360000)
	v.SetDefault("kafka.retention_bytes", 1073741824)
	v.SetDefault("kafka.max_poll_interval_ms", 300000)
	v.SetDefault("kafka.session_timeout_ms", 45000)
	v.SetDefault("kafka.heartbeat_interval_ms", 3000)
	v.SetDefault("dedup.workers", 4)
	v.SetDefault("dedup.redeliver_cap", 5)
	v.SetDefault("dedup.ledger_window", "10m")
	v.SetDefault("dedup.use_redis", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ledger_prefix", "chat:dedup")
	v.SetDefault("redis.ledger_ttl", "10m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "chat-fanout")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.work_topic", "KAFKA_WORK_TOPIC")
	v.BindEnv("kafka.broadcast_topic", "KAFKA_BROADCAST_TOPIC")
	v.BindEnv("kafka.group_id", "KAFKA_GROUP_ID")
	v.BindEnv("dedup.use_redis", "DEDUP_USE_REDIS")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Dedup.LedgerWindow = parseDuration(v, "dedup.ledger_window", 10*time.Minute)
	cfg.Redis.LedgerTTL = parseDuration(v, "redis.ledger_ttl", 10*time.Minute)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
