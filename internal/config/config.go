package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	SessionIdleTTLSeconds int `env:"SESSION_IDLE_TTL_SECONDS" envDefault:"1800"`
	SessionMaxAgeSeconds  int `env:"SESSION_MAX_AGE_SECONDS" envDefault:"28800"`

	CacheTTLDatabasesSeconds    int `env:"CACHE_TTL_DATABASES" envDefault:"300"`
	CacheTTLSchemasSeconds      int `env:"CACHE_TTL_SCHEMAS" envDefault:"300"`
	CacheTTLTablesSeconds       int `env:"CACHE_TTL_TABLES" envDefault:"120"`
	CacheTTLColumnsSeconds      int `env:"CACHE_TTL_COLUMNS" envDefault:"600"`
	CacheTTLCapabilitiesSeconds int `env:"CACHE_TTL_CAPABILITIES" envDefault:"3600"`

	QueryCacheTTLSeconds int `env:"QUERY_CACHE_TTL_SECONDS" envDefault:"300"`
	QueryCacheMaxEntries int `env:"QUERY_CACHE_MAX_ENTRIES" envDefault:"1000"`
	QueryCacheMaxBytes   int `env:"QUERY_CACHE_MAX_BYTES" envDefault:"5242880"`

	ResultCapPerSession int `env:"RESULT_CAP_PER_SESSION" envDefault:"50"`
	ResultTTLSeconds    int `env:"RESULT_TTL_SECONDS" envDefault:"900"`

	DefaultRowLimit int `env:"DEFAULT_ROW_LIMIT" envDefault:"10000"`
	MaxRowLimit     int `env:"MAX_ROW_LIMIT" envDefault:"100000"`

	QueryRateLimitPerMin int `env:"QUERY_RATE_LIMIT_PER_MIN" envDefault:"60"`
	HistoryRetentionDays int `env:"HISTORY_RETENTION_DAYS" envDefault:"30"`

	// Feedback rows land in this database and schema when set; otherwise the
	// session's current context is used.
	FeedbackDatabase string `env:"FEEDBACK_DATABASE"`
	FeedbackSchema   string `env:"FEEDBACK_SCHEMA"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLSeconds) * time.Second
}

func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.SessionMaxAgeSeconds) * time.Second
}

func (c *Config) QueryCacheTTL() time.Duration {
	return time.Duration(c.QueryCacheTTLSeconds) * time.Second
}

func (c *Config) ResultTTL() time.Duration {
	return time.Duration(c.ResultTTLSeconds) * time.Second
}

func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

func (c *Config) Validate() error {
	if c.DefaultRowLimit <= 0 {
		return fmt.Errorf("DEFAULT_ROW_LIMIT must be positive")
	}
	if c.MaxRowLimit < c.DefaultRowLimit {
		return fmt.Errorf("MAX_ROW_LIMIT must be at least DEFAULT_ROW_LIMIT")
	}
	if c.QueryCacheMaxBytes <= 0 {
		return fmt.Errorf("QUERY_CACHE_MAX_BYTES must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
