package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/cranesandcaff/inspectpack/internal/cache/store"
)

// Compactor compacts a store on a cron schedule
type Compactor struct {
	cron     *cron.Cron
	target   store.Compactor
	schedule string
	timeout  time.Duration

	mu      sync.Mutex
	running bool
}

// NewCompactor schedules compaction of target.
// Both 5-field and 6-field (leading seconds) expressions are accepted, as are descriptors like "@daily".
func NewCompactor(target store.Compactor, schedule string) (*Compactor, error) {
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	c := &Compactor{
		cron:     cron.New(cron.WithParser(parser)),
		target:   target,
		schedule: schedule,
		timeout:  10 * time.Minute,
	}

	if _, err := c.cron.AddFunc(schedule, c.run); err != nil {
		return nil, fmt.Errorf("invalid compaction schedule %q: %w", schedule, err)
	}
	return c, nil
}

// Start begins running scheduled compactions
func (c *Compactor) Start() {
	log.Info().Str("schedule", c.schedule).Msg("Starting cache compaction scheduler")
	c.cron.Start()
}

// Stop halts the schedule and waits for a running compaction to finish
func (c *Compactor) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Cache compaction scheduler stopped")
}

// RunOnce compacts immediately. Overlapping runs are skipped.
func (c *Compactor) RunOnce(ctx context.Context) (store.CompactStats, bool, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return store.CompactStats{}, false, nil
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	stats, err := c.target.Compact(ctx)
	return stats, true, err
}

func (c *Compactor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	runID := uuid.NewString()
	start := time.Now()
	stats, ran, err := c.RunOnce(ctx)
	switch {
	case err != nil:
		log.Error().Err(err).Str("run_id", runID).Msg("Scheduled cache compaction failed")
	case !ran:
		log.Debug().Str("run_id", runID).Msg("Skipping cache compaction, previous run still active")
	default:
		log.Info().
			Str("run_id", runID).
			Int("entries", stats.Entries).
			Int64("bytes_before", stats.BytesBefore).
			Int64("bytes_after", stats.BytesAfter).
			Dur("duration", time.Since(start)).
			Msg("Cache compaction completed")
	}
}
