package store

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/cranesandcaff/inspectpack/internal/config"
)

// New creates the store selected by the cache configuration.
//
// Drivers:
// - "file": append-only log at cfg.Path (default)
// - "redis": shared store at cfg.RedisURL
// - "memory": no persistence
func New(cfg *config.CacheConfig) (Store, error) {
	switch cfg.Driver {
	case "file", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("cache.path is required for the file cache driver")
		}
		log.Debug().Str("path", cfg.Path).Msg("Using file cache store")
		return OpenFileStore(cfg.Path, FileOptions{SyncWrites: cfg.SyncWrites})

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("cache.redis_url is required for the redis cache driver")
		}
		return NewRedisStore(cfg.RedisURL, cfg.RedisPrefix)

	case "memory":
		log.Debug().Msg("Using in-memory cache store")
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown cache driver: %s (valid options: file, redis, memory)", cfg.Driver)
	}
}
