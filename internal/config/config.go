// Package config loads inspectpack settings from files, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. INSPECTPACK_CACHE_PATH
const EnvPrefix = "INSPECTPACK"

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Debug    bool           `mapstructure:"debug"`
}

// ServerConfig contains HTTP daemon settings
type ServerConfig struct {
	Address         string          `mapstructure:"address"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration   `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	BodyLimit       int             `mapstructure:"body_limit"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds analysis requests per client IP. Max 0 disables limiting.
type RateLimitConfig struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

// CacheConfig contains result cache settings
type CacheConfig struct {
	Driver          string `mapstructure:"driver"` // file, redis or memory
	Path            string `mapstructure:"path"`
	RedisURL        string `mapstructure:"redis_url"`
	RedisPrefix     string `mapstructure:"redis_prefix"`
	MemoryEntries   int    `mapstructure:"memory_entries"` // hot tier size
	SyncWrites      bool   `mapstructure:"sync_writes"`
	CompactSchedule string `mapstructure:"compact_schedule"` // cron expression, empty disables
}

// AnalysisConfig contains engine settings
type AnalysisConfig struct {
	MaxDepth  int `mapstructure:"max_depth"`
	GzipLevel int `mapstructure:"gzip_level"`
	Workers   int `mapstructure:"workers"` // 0 = GOMAXPROCS
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Load reads configuration into v: defaults, then the config file (explicit path or
// inspectpack.yaml in ., ./config and /etc/inspectpack), then INSPECTPACK_* variables.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("inspectpack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/inspectpack")
	}

	SetDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from the first .env file found
func loadEnvFile() error {
	for _, location := range []string{".env", ".env.local"} {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}
	return fmt.Errorf("no .env file found")
}

// DefaultCachePath is the per-user location of the file cache
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "inspectpack", "results.ipkc")
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":7420")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.body_limit", 64*1024*1024) // 64MB
	v.SetDefault("server.rate_limit.max", 0)
	v.SetDefault("server.rate_limit.window", "1m")

	// Cache defaults
	v.SetDefault("cache.driver", "file")
	v.SetDefault("cache.path", DefaultCachePath())
	v.SetDefault("cache.redis_prefix", "inspectpack:result:")
	v.SetDefault("cache.memory_entries", 256)
	v.SetDefault("cache.sync_writes", true)
	v.SetDefault("cache.compact_schedule", "@daily")

	// Analysis defaults
	v.SetDefault("analysis.max_depth", 64)
	v.SetDefault("analysis.gzip_level", 9)
	v.SetDefault("analysis.workers", 0)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "inspectpackd")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache configuration error: %w", err)
	}
	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis configuration error: %w", err)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing configuration error: %w", err)
	}
	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got: %v", sc.ReadTimeout)
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got: %v", sc.WriteTimeout)
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got: %v", sc.IdleTimeout)
	}
	if sc.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout cannot be negative, got: %v", sc.ShutdownTimeout)
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive, got: %d", sc.BodyLimit)
	}
	if sc.RateLimit.Max < 0 {
		return fmt.Errorf("rate_limit.max cannot be negative, got: %d", sc.RateLimit.Max)
	}
	if sc.RateLimit.Max > 0 && sc.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive when rate limiting is enabled, got: %v", sc.RateLimit.Window)
	}
	return nil
}

// Validate validates cache configuration
func (cc *CacheConfig) Validate() error {
	switch cc.Driver {
	case "file":
		if cc.Path == "" {
			return fmt.Errorf("path is required for the file cache driver")
		}
	case "redis":
		if cc.RedisURL == "" {
			return fmt.Errorf("redis_url is required for the redis cache driver")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid cache driver: %q (must be one of: file, redis, memory)", cc.Driver)
	}

	if cc.MemoryEntries < 0 {
		return fmt.Errorf("memory_entries cannot be negative, got: %d", cc.MemoryEntries)
	}
	return nil
}

// Validate validates analysis configuration
func (ac *AnalysisConfig) Validate() error {
	if ac.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be at least 1, got: %d", ac.MaxDepth)
	}
	if ac.GzipLevel < 1 || ac.GzipLevel > 9 {
		return fmt.Errorf("gzip_level must be between 1 and 9, got: %d", ac.GzipLevel)
	}
	if ac.Workers < 0 {
		return fmt.Errorf("workers cannot be negative, got: %d", ac.Workers)
	}
	return nil
}

// Validate validates tracing configuration
func (tc *TracingConfig) Validate() error {
	if !tc.Enabled {
		return nil
	}
	if tc.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0.0 and 1.0, got: %v", tc.SampleRate)
	}
	return nil
}
