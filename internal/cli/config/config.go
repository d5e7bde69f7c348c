// Package config loads metricsd settings from metricsd.yaml and METRICSD_*
// environment variables
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the metricsd configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// ProfilingAddress serves pprof when set; keep it internal
	ProfilingAddress string `mapstructure:"profiling_address"`
}

// DatabaseConfig configures the relational database holding projects,
// incidents, code mappings and the indexer table
type DatabaseConfig struct {
	// Driver is "pgx" or "sqlite3"
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AnalyticsConfig configures the analytical store metrics are queried from
type AnalyticsConfig struct {
	URL                string        `mapstructure:"url"`
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
	// ResultTTL is how long query results are cached
	ResultTTL time.Duration `mapstructure:"result_ttl"`
}

// CacheConfig configures the result and indexer cache
type CacheConfig struct {
	// Backend is "memory" or "redis"
	Backend    string        `mapstructure:"backend"`
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	Prefix     string        `mapstructure:"prefix"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	IndexerTTL time.Duration `mapstructure:"indexer_ttl"`
}

// AuthConfig configures bearer token validation
type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"`
	// Format is "json" or "console"
	Format string `mapstructure:"format"`
}

// GitHubConfig configures the GitHub integration
type GitHubConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig limits requests per organization. The limiter lives in
// the cache backend.
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.profiling_address", "")

	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.url", "postgres://localhost:5432/sentry?sslmode=disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("analytics.url", "postgres://default@localhost:9005/default")
	v.SetDefault("analytics.slow_query_threshold", 5*time.Second)
	v.SetDefault("analytics.result_ttl", time.Minute)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.prefix", "metricsd:")
	v.SetDefault("cache.default_ttl", 5*time.Minute)
	v.SetDefault("cache.indexer_ttl", time.Hour)

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.token", "")
	v.SetDefault("github.timeout", 10*time.Second)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.limit", 40)
	v.SetDefault("rate_limit.window", time.Second)
}

// Load reads the configuration. An explicit path must exist; otherwise
// metricsd.yaml in the working directory is used when present.
// Environment variables such as METRICSD_SERVER_ADDRESS override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("metricsd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("METRICSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks settings that would otherwise fail at first use
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	switch c.Database.Driver {
	case "pgx", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be pgx or sqlite3, got: %s", c.Database.Driver)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got: %s", c.Cache.Backend)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got: %s", c.Log.Format)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit.limit and rate_limit.window must be positive")
	}
	if c.Analytics.SlowQueryThreshold < 0 || c.Analytics.ResultTTL < 0 {
		return fmt.Errorf("analytics durations must not be negative")
	}
	return nil
}

// ValidateServe checks the settings only the server needs
func (c *Config) ValidateServe() error {
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required to serve the API (set METRICSD_AUTH_SECRET)")
	}
	return nil
}
