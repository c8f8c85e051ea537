package session

import (
	"fmt"
	"time"
)

// Config holds session configuration from YAML.
type Config struct {
	// Store specifies the storage backend type.
	// Options: "memory", "redis"
	// Default: "memory"
	Store string `yaml:"store"`

	// HistorySize is the number of entries kept per user.
	// Default: 8
	HistorySize int `yaml:"history_size"`

	// Redis contains the redis backend settings.
	Redis RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr"`
	// Password is the Redis password (optional).
	Password string `yaml:"password"`
	// DB is the Redis database number.
	DB int `yaml:"db"`
	// Prefix is the key prefix for all session keys (default: "smartmath:").
	// A per-process instance ID is appended to it.
	Prefix string `yaml:"prefix"`
	// PoolSize is the connection pool size (default: 10).
	PoolSize int `yaml:"pool_size"`
	// DialTimeout bounds the initial ping (default: 5s).
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Store:       "memory",
		HistorySize: DefaultHistorySize,
		Redis: RedisConfig{
			Prefix:      "smartmath:",
			PoolSize:    10,
			DialTimeout: 5 * time.Second,
		},
	}
}

// New creates the store selected by cfg.
func New(cfg Config) (Store, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(cfg.HistorySize), nil
	case "redis":
		return NewRedisStore(cfg.Redis, cfg.HistorySize)
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}
