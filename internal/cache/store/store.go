// Package store provides the durable backends behind the result cache.
package store

import (
	"context"
	"fmt"
)

// Store is the interface for cache storage backends:
// - File: single append-only log on local disk (default)
// - Redis: shared between several daemons (works with Dragonfly, Redis, Valkey, KeyDB)
// - Memory: process lifetime only
type Store interface {
	// Get returns the value stored for key and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key. A later Put for the same key wins.
	Put(ctx context.Context, key string, value []byte) error

	// Len returns the number of live keys.
	Len() int

	// Close releases the store's resources.
	Close() error
}

// Compactor is implemented by stores that can reclaim space held by superseded records
type Compactor interface {
	Compact(ctx context.Context) (CompactStats, error)
}

// CompactStats describes one compaction
type CompactStats struct {
	Entries     int   `json:"entries" yaml:"entries"`
	BytesBefore int64 `json:"bytesBefore" yaml:"bytesBefore"`
	BytesAfter  int64 `json:"bytesAfter" yaml:"bytesAfter"`
}

// StoreError reports an unavailable or corrupted store
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("cache store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
