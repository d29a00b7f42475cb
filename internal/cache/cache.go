// Package cache memoizes analysis results by request fingerprint.
//
// Lookups go through an in-memory LRU, then the durable store. Concurrent identical requests
// share one flight, so a cold fingerprint is computed at most once at a time.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/cranesandcaff/inspectpack/internal/cache/store"
	"github.com/cranesandcaff/inspectpack/internal/engine"
	"github.com/cranesandcaff/inspectpack/internal/observability"
)

// DefaultMemoryEntries is the LRU capacity used when none is configured
const DefaultMemoryEntries = 256

// ErrCompactUnsupported is returned by Compact when the store cannot be compacted
var ErrCompactUnsupported = errors.New("cache store does not support compaction")

// Analyzer computes results on a cache miss. *engine.Engine implements it.
type Analyzer interface {
	Analyze(ctx context.Context, kind engine.Kind, req engine.Request) (*engine.Result, error)
}

// Entry is the persisted form of one result
type Entry struct {
	Fingerprint string         `msgpack:"fingerprint"`
	Result      *engine.Result `msgpack:"result"`
	CreatedAt   time.Time      `msgpack:"created_at"`
}

// Options tunes a ResultCache
type Options struct {
	MemoryEntries int
	Metrics       *observability.Metrics
}

// Stats counts cache activity since construction
type Stats struct {
	MemoryHits   uint64 `json:"memoryHits" yaml:"memoryHits"`
	StoreHits    uint64 `json:"storeHits" yaml:"storeHits"`
	Misses       uint64 `json:"misses" yaml:"misses"`
	Computations uint64 `json:"computations" yaml:"computations"`
	Coalesced    uint64 `json:"coalesced" yaml:"coalesced"`
	StoreErrors  uint64 `json:"storeErrors" yaml:"storeErrors"`
	Entries      int    `json:"entries" yaml:"entries"`
	MemoryItems  int    `json:"memoryItems" yaml:"memoryItems"`
}

// ResultCache wraps an Analyzer with memoization. Results it returns are shared and must not be
// modified by callers.
type ResultCache struct {
	analyzer Analyzer
	store    store.Store
	hot      *lru.Cache[string, *engine.Result]
	flight   singleflight.Group
	metrics  *observability.Metrics

	memoryHits   atomic.Uint64
	storeHits    atomic.Uint64
	misses       atomic.Uint64
	computations atomic.Uint64
	coalesced    atomic.Uint64
	storeErrors  atomic.Uint64
}

// New creates a cache in front of analyzer, persisting to st
func New(analyzer Analyzer, st store.Store, opts Options) (*ResultCache, error) {
	if analyzer == nil {
		return nil, errors.New("cache: analyzer is required")
	}
	if st == nil {
		return nil, errors.New("cache: store is required")
	}

	size := opts.MemoryEntries
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	hot, err := lru.New[string, *engine.Result](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory tier: %w", err)
	}

	c := &ResultCache{
		analyzer: analyzer,
		store:    st,
		hot:      hot,
		metrics:  opts.Metrics,
	}
	c.metrics.UpdateCacheEntries(st.Len())
	return c, nil
}

// Analyze returns the cached result for req, computing and storing it on a miss.
// ctx bounds how long the caller waits; an abandoned computation still completes and is stored.
func (c *ResultCache) Analyze(ctx context.Context, kind engine.Kind, req engine.Request) (result *engine.Result, err error) {
	kind, err = engine.ParseKind(string(kind))
	if err != nil {
		return nil, err
	}
	if err := engine.Validate(kind, req.Options); err != nil {
		return nil, err
	}
	if !cacheable(kind) {
		return c.compute(ctx, kind, req)
	}

	fp, err := Fingerprint(kind, req)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartCacheSpan(ctx, "analyze", fp)
	defer func() { observability.EndSpan(span, err) }()

	if res, ok := c.hot.Get(fp); ok {
		c.memoryHits.Add(1)
		c.metrics.RecordCacheHit("memory")
		log.Debug().Str("fingerprint", fp).Msg("Cache hit (memory)")
		return res, nil
	}

	var leader bool
	ch := c.flight.DoChan(fp, func() (any, error) {
		leader = true
		return c.load(context.WithoutCancel(ctx), fp, kind, req)
	})

	select {
	case <-ctx.Done():
		log.Debug().Str("fingerprint", fp).Msg("Caller stopped waiting for cached analysis")
		return nil, ctx.Err()
	case r := <-ch:
		if !leader {
			c.coalesced.Add(1)
			c.metrics.RecordCacheCoalesced()
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*engine.Result), nil
	}
}

// Sizes returns the cached sizes analysis of req
func (c *ResultCache) Sizes(ctx context.Context, req engine.Request) (*engine.Result, error) {
	return c.Analyze(ctx, engine.KindSizes, req)
}

// Duplicates returns the cached duplicates analysis of req
func (c *ResultCache) Duplicates(ctx context.Context, req engine.Request) (*engine.Result, error) {
	return c.Analyze(ctx, engine.KindDuplicates, req)
}

// Combined returns the cached combined analysis of req
func (c *ResultCache) Combined(ctx context.Context, req engine.Request) (*engine.Result, error) {
	return c.Analyze(ctx, engine.KindCombined, req)
}

// load runs inside the flight for fp: store lookup, then computation and write-back
func (c *ResultCache) load(ctx context.Context, fp string, kind engine.Kind, req engine.Request) (*engine.Result, error) {
	if res, ok := c.lookup(ctx, fp); ok {
		c.hot.Add(fp, res)
		return res, nil
	}

	c.misses.Add(1)
	c.metrics.RecordCacheMiss()

	start := time.Now()
	res, err := c.compute(ctx, kind, req)
	if err != nil {
		return nil, err
	}

	data, err := msgpack.Marshal(&Entry{Fingerprint: fp, Result: res, CreatedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}

	if err := c.store.Put(ctx, fp, data); err != nil {
		c.storeErrors.Add(1)
		c.metrics.RecordCacheStoreError("put")
		var serr *store.StoreError
		if !errors.As(err, &serr) {
			err = &store.StoreError{Op: "put", Err: err}
		}
		log.Error().Err(err).Str("fingerprint", fp).Msg("Failed to persist analysis result")
		return nil, err
	}

	c.hot.Add(fp, res)
	c.metrics.UpdateCacheEntries(c.store.Len())

	log.Debug().
		Str("fingerprint", fp).
		Str("kind", string(kind)).
		Dur("duration", time.Since(start)).
		Msg("Cached analysis result")
	return res, nil
}

// cacheable reports whether results of kind depend only on the request.
// A versions analysis reads package.json files below the root, which change without the
// request changing, so it is always recomputed.
func cacheable(kind engine.Kind) bool {
	return kind != engine.KindVersions
}

// compute runs the analyzer and records the computation
func (c *ResultCache) compute(ctx context.Context, kind engine.Kind, req engine.Request) (*engine.Result, error) {
	start := time.Now()
	res, err := c.analyzer.Analyze(ctx, kind, req)
	c.computations.Add(1)
	c.metrics.RecordCacheComputation(string(kind), time.Since(start), err)
	return res, err
}

// lookup reads fp from the durable store. Unreadable entries count as misses and are recomputed.
func (c *ResultCache) lookup(ctx context.Context, fp string) (*engine.Result, bool) {
	data, ok, err := c.store.Get(ctx, fp)
	if err != nil {
		c.storeErrors.Add(1)
		c.metrics.RecordCacheStoreError("get")
		log.Warn().Err(err).Str("fingerprint", fp).Msg("Cache store lookup failed, recomputing")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var entry Entry
	if err := msgpack.Unmarshal(data, &entry); err != nil || entry.Result == nil || entry.Fingerprint != fp {
		c.storeErrors.Add(1)
		c.metrics.RecordCacheStoreError("decode")
		log.Warn().Err(err).Str("fingerprint", fp).Msg("Discarding unreadable cache entry")
		return nil, false
	}

	c.storeHits.Add(1)
	c.metrics.RecordCacheHit("store")
	log.Debug().Str("fingerprint", fp).Time("created_at", entry.CreatedAt).Msg("Cache hit (store)")
	return entry.Result, true
}

// Stats returns a snapshot of the cache counters
func (c *ResultCache) Stats() Stats {
	return Stats{
		MemoryHits:   c.memoryHits.Load(),
		StoreHits:    c.storeHits.Load(),
		Misses:       c.misses.Load(),
		Computations: c.computations.Load(),
		Coalesced:    c.coalesced.Load(),
		StoreErrors:  c.storeErrors.Load(),
		Entries:      c.store.Len(),
		MemoryItems:  c.hot.Len(),
	}
}

// Compact reclaims space in the durable store when it supports compaction
func (c *ResultCache) Compact(ctx context.Context) (store.CompactStats, error) {
	compactor, ok := c.store.(store.Compactor)
	if !ok {
		return store.CompactStats{}, ErrCompactUnsupported
	}
	stats, err := compactor.Compact(ctx)
	c.metrics.RecordCompaction(err)
	if err == nil {
		c.metrics.UpdateCacheEntries(stats.Entries)
	}
	return stats, err
}

// Close closes the durable store
func (c *ResultCache) Close() error {
	c.hot.Purge()
	return c.store.Close()
}
