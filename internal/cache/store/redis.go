package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultRedisPrefix namespaces cache keys in a shared Redis database
const DefaultRedisPrefix = "inspectpack:result:"

// RedisStore implements Store on Redis (or Redis-compatible backends like Dragonfly) so that
// several daemons can share one cache.
type RedisStore struct {
	client *redis.Client
	prefix string
	addr   string
}

// NewRedisStore connects to a Redis-backed cache store.
// url should be in the format: redis://[password@]host:port[/db]
func NewRedisStore(url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &StoreError{Op: "open", Path: url, Err: err}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &StoreError{Op: "open", Path: opts.Addr, Err: err}
	}

	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	log.Info().Str("addr", opts.Addr).Str("prefix", prefix).Msg("Connected to Redis-compatible backend for result cache")

	return &RedisStore{client: client, prefix: prefix, addr: opts.Addr}, nil
}

// Get retrieves the value for key
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &StoreError{Op: "get", Path: s.addr, Err: err}
	}
	return v, true, nil
}

// Put stores value without expiry
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return &StoreError{Op: "put", Path: s.addr, Err: err}
	}
	return nil
}

// Len counts keys under the prefix. Failures are logged and count as zero.
func (s *RedisStore) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		log.Warn().Err(err).Str("addr", s.addr).Msg("Failed to count cache keys in Redis")
		return 0
	}
	return n
}

// Close closes the Redis client connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
