// Package config provides unified configuration loading for the Fernando-X engine.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Fernando-X engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Search        SearchConfig        `yaml:"search"`
	Webhook       WebhookConfig       `yaml:"webhook"`
	Replicate     ReplicateConfig     `yaml:"replicate"`
	Perplexity    PerplexityConfig    `yaml:"perplexity"`
	Import        ImportConfig        `yaml:"import"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	Memory        MemoryConfig        `yaml:"memory"`
	Observability ObservabilityConfig `yaml:"observability"`
	Auth          AuthConfig          `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // hash or openrouter
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
}

// SearchConfig holds semantic search settings.
type SearchConfig struct {
	MinSimilarity float64       `yaml:"min_similarity"`
	DefaultLimit  int           `yaml:"default_limit"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// WebhookConfig holds data-refresh webhook settings.
type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

// ReplicateConfig holds hosted image inference settings.
type ReplicateConfig struct {
	Enabled           bool          `yaml:"enabled"`
	APIToken          string        `yaml:"api_token"`
	BaseURL           string        `yaml:"base_url"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// PerplexityConfig holds market research API settings.
type PerplexityConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ImportConfig holds CSV import locations.
type ImportConfig struct {
	DataProcess3Dir string `yaml:"dataprocess3_dir"`
	HarMlsDir       string `yaml:"har_mls_dir"`
	Concurrency     int    `yaml:"concurrency"`
}

// SchedulerConfig holds refresh scheduling settings.
type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Timezone string `yaml:"timezone"`
}

// AlertsConfig holds market-change alert settings.
type AlertsConfig struct {
	MinSignificance string   `yaml:"min_significance"` // low, medium or high
	Categories      []string `yaml:"categories"`
	WebhookURL      string   `yaml:"webhook_url"`
	SlackWebhookURL string   `yaml:"slack_webhook_url"`
	RedisChannel    string   `yaml:"redis_channel"`
	EmailRecipients []string `yaml:"email_recipients"`
}

// MemoryConfig holds memory retention settings.
type MemoryConfig struct {
	RetentionDays   int    `yaml:"retention_days"`
	TrainingDataSet string `yaml:"training_data_set"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	APIKeys []string `yaml:"api_keys"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// Any .env file found next to the working directory is loaded first.
func Load(path string) (*Config, error) {
	loadDotEnv()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads the first .env file found walking up two levels.
// Existing environment variables are never overwritten.
func loadDotEnv() {
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/fernando-x.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "qwen/qwen3-embedding-8b",
			Dimension: 384,
			BaseURL:   "https://openrouter.ai/api/v1",
		},
		Search: SearchConfig{
			MinSimilarity: 0.3,
			DefaultLimit:  10,
			CacheTTL:      10 * time.Minute,
		},
		Replicate: ReplicateConfig{
			BaseURL:           "https://api.replicate.com",
			PollInterval:      time.Second,
			Timeout:           2 * time.Minute,
			RequestsPerSecond: 5,
		},
		Perplexity: PerplexityConfig{
			BaseURL:     "https://api.perplexity.ai",
			Model:       "pplx-7b-online",
			Temperature: 0.2,
			MaxTokens:   1000,
		},
		Import: ImportConfig{
			DataProcess3Dir: "data/Data process 3",
			HarMlsDir:       "data/HAR MLS",
			Concurrency:     3,
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Timezone: "America/Chicago",
		},
		Alerts: AlertsConfig{
			MinSignificance: "medium",
			RedisChannel:    "market.alerts",
		},
		Memory: MemoryConfig{
			RetentionDays: 90,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "debug",
			LogFormat:   "json",
			ServiceName: "fernando-x",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Embedding.Provider != "hash" && c.Embedding.Provider != "openrouter" {
		return fmt.Errorf("invalid embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	if c.Search.MinSimilarity < 0 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("min_similarity must be between 0 and 1")
	}

	switch c.Alerts.MinSignificance {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("invalid alert significance: %s", c.Alerts.MinSignificance)
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", c.Scheduler.Timezone, err)
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Database.Driver == "sqlite" || !c.Auth.Enabled
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// Location returns the scheduler time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ReplicateActive reports whether hosted image inference should be used.
func (c *Config) ReplicateActive() bool {
	return c.Replicate.Enabled && c.Replicate.APIToken != ""
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}

	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}

	if v := os.Getenv("REPLICATE_API_TOKEN"); v != "" {
		cfg.Replicate.APIToken = v
	}

	if v := os.Getenv("USE_REPLICATE"); v != "" {
		cfg.Replicate.Enabled = v == "true"
	}

	if v := os.Getenv("PERPLEXITY_API_KEY"); v != "" {
		cfg.Perplexity.APIKey = v
	}

	if v := os.Getenv("DATAPROCESS3_DIR"); v != "" {
		cfg.Import.DataProcess3Dir = v
	}

	if v := os.Getenv("HAR_MLS_DIR"); v != "" {
		cfg.Import.HarMlsDir = v
	}

	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		cfg.Alerts.WebhookURL = v
	}

	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.SlackWebhookURL = v
	}

	if v := os.Getenv("SCHEDULER_ENABLED"); v == "true" {
		cfg.Scheduler.Enabled = true
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("AUTH_ENABLED"); v == "true" {
		cfg.Auth.Enabled = true
	}

	if v := os.Getenv("API_KEYS"); v != "" {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		cfg.Auth.APIKeys = keys
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
