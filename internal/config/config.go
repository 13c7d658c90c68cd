package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	GrantTTL    time.Duration `mapstructure:"grant_ttl" yaml:"grant_ttl"`

	// Fabric selects the pub/sub backend: memory, redis or kafka.
	Fabric       string   `mapstructure:"fabric" yaml:"fabric"`
	RedisAddr    string   `mapstructure:"redis_addr" yaml:"redis_addr"`
	KafkaBrokers []string `mapstructure:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic" yaml:"kafka_topic"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	HeartbeatGrace    time.Duration `mapstructure:"heartbeat_grace" yaml:"heartbeat_grace"`
	SendQueueSize     int           `mapstructure:"send_queue_size" yaml:"send_queue_size"`

	// MaxMessageBody bounds chat message length in bytes.
	MaxMessageBody int `mapstructure:"max_message_body" yaml:"max_message_body"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "relaycast.db",
		JWTSecret:         "change-me",
		JWTIssuer:         "relaycast",
		JWTAudience:       "relaycast",
		JWTTTL:            24 * time.Hour,
		GrantTTL:          2 * time.Minute,
		Fabric:            "memory",
		RedisAddr:         "localhost:6379",
		KafkaBrokers:      []string{"localhost:9092"},
		KafkaTopic:        "relaycast-broadcast",
		HeartbeatInterval: 30 * time.Second,
		HeartbeatGrace:    10 * time.Second,
		SendQueueSize:     64,
		MaxMessageBody:    2000,
	}
}
