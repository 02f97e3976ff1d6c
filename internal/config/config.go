// Package config loads SynqX's typed configuration from a YAML file plus
// environment overrides, following the teacher's envdecode/godotenv pattern.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the control-plane HTTP server.
type ServerConfig struct {
	Host string `json:"host" yaml:"host" env:"SERVER_HOST"`
	Port int    `json:"port" yaml:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the Postgres metadata store.
type DatabaseConfig struct {
	DSN             string `json:"dsn" yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// RedisConfig controls the KV cache and pub/sub backend.
type RedisConfig struct {
	URL      string `json:"url" yaml:"url" env:"REDIS_URL"`
	PoolSize int    `json:"pool_size" yaml:"pool_size" env:"REDIS_POOL_SIZE"`
}

// SchedulerConfig controls the cron-tick scheduler and SLA monitor (C5).
type SchedulerConfig struct {
	TickInterval    time.Duration `json:"tick_interval" yaml:"tick_interval" env:"SCHEDULER_TICK_INTERVAL"`
	SLATickInterval time.Duration `json:"sla_tick_interval" yaml:"sla_tick_interval" env:"SCHEDULER_SLA_TICK_INTERVAL"`
}

// AgentConfig controls agent-fleet liveness and auth (C6).
type AgentConfig struct {
	LivenessWindow   time.Duration `json:"liveness_window" yaml:"liveness_window" env:"AGENT_LIVENESS_WINDOW"`
	HeartbeatPeriod  time.Duration `json:"heartbeat_period" yaml:"heartbeat_period" env:"AGENT_HEARTBEAT_PERIOD"`
	JWTSecret        string        `json:"jwt_secret" yaml:"jwt_secret" env:"AGENT_JWT_SECRET"`
	SessionTokenTTL  time.Duration `json:"session_token_ttl" yaml:"session_token_ttl" env:"AGENT_SESSION_TOKEN_TTL"`
}

// ExecutorConfig controls the pipeline executor's worker pool and buffers
// (C4).
type ExecutorConfig struct {
	MaxWorkers      int `json:"max_workers" yaml:"max_workers" env:"ENGINE_MAX_WORKERS"`
	EdgeBufferSize  int `json:"edge_buffer_size" yaml:"edge_buffer_size" env:"ENGINE_EDGE_BUFFER_SIZE"`
	QuarantineBytes int `json:"quarantine_max_bytes" yaml:"quarantine_max_bytes" env:"ENGINE_QUARANTINE_MAX_BYTES"`
}

// CacheConfig controls the result cache (C7).
type CacheConfig struct {
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl" env:"CACHE_DEFAULT_TTL"`
}

// AuthConfig controls HTTP API authentication (control-plane operators,
// distinct from agent auth).
type AuthConfig struct {
	APITokens []string `json:"api_tokens" yaml:"api_tokens"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" yaml:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Redis     RedisConfig     `json:"redis" yaml:"redis"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Agent     AgentConfig     `json:"agent" yaml:"agent"`
	Executor  ExecutorConfig  `json:"executor" yaml:"executor"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
}

// New returns a Config populated with defaults matching spec §6's
// configuration knobs.
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Redis: RedisConfig{URL: "redis://localhost:6379/0", PoolSize: 10},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "synqx",
		},
		Scheduler: SchedulerConfig{
			TickInterval:    60 * time.Second,
			SLATickInterval: 300 * time.Second,
		},
		Agent: AgentConfig{
			LivenessWindow:  2 * time.Minute,
			HeartbeatPeriod: 30 * time.Second,
			SessionTokenTTL: 15 * time.Minute,
		},
		Executor: ExecutorConfig{
			MaxWorkers:      0,
			EdgeBufferSize:  16,
			QuarantineBytes: 4 << 20,
		},
		Cache: CacheConfig{DefaultTTL: 300 * time.Second},
	}
}

// Load loads configuration from an optional file plus environment
// overrides. CONFIG_FILE names the YAML file; absent, configs/config.yaml
// is tried and silently skipped if missing.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors out when no tagged field is present in the
		// environment at all; that's "no overrides", not a failure.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)
	applyRedisURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyDatabaseURLOverride(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}

func applyRedisURLOverride(cfg *Config) {
	if url := strings.TrimSpace(os.Getenv("REDIS_URL")); url != "" {
		cfg.Redis.URL = url
	}
}
