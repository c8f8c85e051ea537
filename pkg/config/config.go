package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aixgo-dev/smartmath/pkg/security"
	"github.com/aixgo-dev/smartmath/pkg/session"
)

// maxConfigSize bounds the config file read.
const maxConfigSize = 1 << 20

// Environment variables that override the file.
const (
	EnvBotToken  = "SMARTMATH_BOT_TOKEN"
	EnvRedisAddr = "SMARTMATH_REDIS_ADDR"
	EnvLogLevel  = "LOG_LEVEL"
)

// ErrMissingToken is returned when no bot token is configured.
var ErrMissingToken = errors.New("bot token is not set (" + EnvBotToken + ")")

// Config represents the application configuration
type Config struct {
	Telegram      TelegramConfig      `yaml:"telegram"`
	Bot           BotConfig           `yaml:"bot"`
	Session       session.Config      `yaml:"session"`
	Observability ObservabilityConfig `yaml:"observability"`
	Log           LogConfig           `yaml:"log"`
}

// TelegramConfig holds the Bot API settings
type TelegramConfig struct {
	Token           string        `yaml:"token"`
	SendRate        float64       `yaml:"send_rate"`
	SendBurst       int           `yaml:"send_burst"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset"`
	QueueBuffer     int           `yaml:"queue_buffer"`
	WorkerIdle      time.Duration `yaml:"worker_idle"`
}

// BotConfig holds dispatcher behavior
type BotConfig struct {
	// RateLimitInterval is the minimum gap between two accepted messages of
	// one user.
	RateLimitInterval  time.Duration `yaml:"rate_limit_interval"`
	QuickEvalMaxLength int           `yaml:"quick_eval_max_length"`
}

// ObservabilityConfig holds metrics and tracing settings
type ObservabilityConfig struct {
	// Addr is the listen address of /health and /metrics; empty disables.
	Addr           string        `yaml:"addr"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	Tracing        TracingConfig `yaml:"tracing"`
}

// TracingConfig selects the span exporter
type TracingConfig struct {
	Exporter string `yaml:"exporter"` // none, stdout, otlp
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file. A missing file yields
// the defaults. Environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

// decodeFile decodes path into cfg. A missing file is not an error.
func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	limits := security.DefaultYAMLLimits()
	limits.MaxSize = maxConfigSize
	if err := security.DecodeYAML(f, cfg, limits); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Telegram.SendRate == 0 {
		c.Telegram.SendRate = 25
	}
	if c.Telegram.SendBurst == 0 {
		c.Telegram.SendBurst = 5
	}
	if c.Telegram.BreakerFailures == 0 {
		c.Telegram.BreakerFailures = 5
	}
	if c.Telegram.BreakerReset == 0 {
		c.Telegram.BreakerReset = 30 * time.Second
	}
	if c.Telegram.QueueBuffer == 0 {
		c.Telegram.QueueBuffer = 16
	}
	if c.Telegram.WorkerIdle == 0 {
		c.Telegram.WorkerIdle = time.Minute
	}

	if c.Bot.RateLimitInterval == 0 {
		c.Bot.RateLimitInterval = 800 * time.Millisecond
	}
	if c.Bot.QuickEvalMaxLength == 0 {
		c.Bot.QuickEvalMaxLength = 200
	}

	def := session.DefaultConfig()
	if c.Session.Store == "" {
		c.Session.Store = def.Store
	}
	if c.Session.HistorySize == 0 {
		c.Session.HistorySize = def.HistorySize
	}
	if c.Session.Redis.Prefix == "" {
		c.Session.Redis.Prefix = def.Redis.Prefix
	}
	if c.Session.Redis.PoolSize == 0 {
		c.Session.Redis.PoolSize = def.Redis.PoolSize
	}
	if c.Session.Redis.DialTimeout == 0 {
		c.Session.Redis.DialTimeout = def.Redis.DialTimeout
	}

	if c.Observability.SampleInterval == 0 {
		c.Observability.SampleInterval = 15 * time.Second
	}
	if c.Observability.Tracing.Exporter == "" {
		c.Observability.Tracing.Exporter = "none"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBotToken); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Session.Redis.Addr = v
		c.Session.Store = "redis"
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// LoadDotEnv loads variables from a .env file without overriding ones
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Telegram.SendRate < 0 || c.Telegram.SendBurst < 0 {
		return fmt.Errorf("telegram send limits must not be negative")
	}
	if c.Bot.RateLimitInterval < 0 {
		return fmt.Errorf("bot.rate_limit_interval must not be negative")
	}
	if c.Bot.QuickEvalMaxLength < 1 {
		return fmt.Errorf("bot.quick_eval_max_length must be positive")
	}
	if c.Session.HistorySize < 1 {
		return fmt.Errorf("session.history_size must be positive")
	}
	switch c.Session.Store {
	case "memory":
	case "redis":
		if c.Session.Redis.Addr == "" {
			return fmt.Errorf("session.redis.addr is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown session store %q", c.Session.Store)
	}
	switch c.Observability.Tracing.Exporter {
	case "none", "stdout":
	case "otlp":
		if c.Observability.Tracing.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("unknown tracing exporter %q", c.Observability.Tracing.Exporter)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// RequireToken returns ErrMissingToken when no bot token is configured.
func (c *Config) RequireToken() error {
	if c.Telegram.Token == "" {
		return ErrMissingToken
	}
	return nil
}
