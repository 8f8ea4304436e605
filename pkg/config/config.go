package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for catalog-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Metadata store configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration for job progress pub/sub
	Redis RedisConfig `yaml:"redis"`

	// Analytics engine configuration (embedded SQLite dataset store)
	Analytics AnalyticsConfig `yaml:"analytics"`

	// LLM gateway configuration
	LLM LLMConfig `yaml:"llm"`

	// Pipeline tuning
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatabaseConfig holds PostgreSQL metadata store configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"catalog"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"catalog_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`

	// Pool recycling. Connections older than the lifetime or idle longer
	// than the idle window are closed and replaced.
	ConnLifetimeMinutes int `yaml:"conn_lifetime_minutes" env:"PGCONN_LIFETIME_MINUTES" env-default:"60"`
	ConnIdleMinutes     int `yaml:"conn_idle_minutes" env:"PGCONN_IDLE_MINUTES" env-default:"30"`
}

// ConnLifetime returns the maximum connection lifetime as a duration.
func (c *DatabaseConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnLifetimeMinutes) * time.Minute
}

// ConnIdle returns the maximum connection idle time as a duration.
func (c *DatabaseConfig) ConnIdle() time.Duration {
	return time.Duration(c.ConnIdleMinutes) * time.Minute
}

// URL builds a connection string for pgx and golang-migrate.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds Redis pub/sub configuration.
// An empty host disables Redis; the engine falls back to the in-process bus.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// AnalyticsConfig holds settings for the embedded analytical engine that
// stores the raw dataset being catalogued.
type AnalyticsConfig struct {
	// Path is the SQLite database file holding the dataset.
	Path string `yaml:"path" env:"ANALYTICS_DB_PATH" env-default:"data/dataset.db"`
}

// LLMConfig holds LLM gateway configuration.
type LLMConfig struct {
	// Provider selects the gateway client: "openai" (any OpenAI-compatible
	// endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML

	// MaxTokens is the completion token limit per request.
	MaxTokens int `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"4096"`

	// TokenBudget is the prompt token budget per request. Prompts estimated
	// above 80% of this budget log a warning; prompts above it fail the batch.
	TokenBudget int `yaml:"token_budget" env:"LLM_TOKEN_BUDGET" env-default:"100000"`

	// Circuit breaker settings for the gateway.
	BreakerThreshold    int `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_seconds" env:"LLM_BREAKER_COOLDOWN_SECONDS" env-default:"60"`
	BreakerHalfOpenMax  int `yaml:"breaker_half_open_max_calls" env:"LLM_BREAKER_HALF_OPEN_MAX_CALLS" env-default:"1"`
}

// PipelineConfig holds tuning knobs for the catalog pipeline.
type PipelineConfig struct {
	// BatchSize is the number of tables enriched per LLM call.
	BatchSize int `yaml:"batch_size" env:"PIPELINE_BATCH_SIZE" env-default:"15"`

	// MaxRetries bounds per-batch LLM retries and sync task retries.
	MaxRetries int `yaml:"max_retries" env:"PIPELINE_MAX_RETRIES" env-default:"2"`

	// Workers is the size of the background task worker pool.
	Workers int `yaml:"workers" env:"PIPELINE_WORKERS" env-default:"4"`

	// TaskTimeoutMinutes is the soft timeout for one background task.
	TaskTimeoutMinutes int `yaml:"task_timeout_minutes" env:"PIPELINE_TASK_TIMEOUT_MINUTES" env-default:"30"`

	// HeartbeatSeconds is the SSE idle heartbeat interval.
	HeartbeatSeconds int `yaml:"heartbeat_seconds" env:"PIPELINE_HEARTBEAT_SECONDS" env-default:"30"`
}

// TaskTimeout returns the soft task timeout as a duration.
func (c *PipelineConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutMinutes) * time.Minute
}

// Heartbeat returns the SSE heartbeat interval as a duration.
func (c *PipelineConfig) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// If config.yaml does not exist, configuration comes from the environment alone.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Pipeline.BatchSize < 1 {
		return fmt.Errorf("pipeline batch_size must be at least 1, got %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline workers must be at least 1, got %d", cfg.Pipeline.Workers)
	}
	if cfg.LLM.TokenBudget < 1 {
		return fmt.Errorf("llm token_budget must be positive, got %d", cfg.LLM.TokenBudget)
	}
	return nil
}
