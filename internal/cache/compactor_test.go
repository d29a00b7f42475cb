package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cranesandcaff/inspectpack/internal/cache/store"
)

type fakeCompactor struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (f *fakeCompactor) Compact(ctx context.Context) (store.CompactStats, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return store.CompactStats{Entries: 4, BytesBefore: 400, BytesAfter: 100}, f.err
}

func TestNewCompactor_Schedules(t *testing.T) {
	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{schedule: "@daily"},
		{schedule: "0 3 * * *"},
		{schedule: "30 0 3 * * *"},
		{schedule: "@every 1h"},
		{schedule: "not a schedule", wantErr: true},
		{schedule: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			_, err := NewCompactor(&fakeCompactor{}, tt.schedule)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCompactor_RunOnce(t *testing.T) {
	target := &fakeCompactor{}
	c, err := NewCompactor(target, "@daily")
	require.NoError(t, err)

	stats, ran, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 4, stats.Entries)
	assert.Equal(t, int32(1), target.calls.Load())

	target.err = errors.New("rename failed")
	_, _, err = c.RunOnce(context.Background())
	assert.EqualError(t, err, "rename failed")
}

func TestCompactor_SkipsOverlappingRuns(t *testing.T) {
	target := &fakeCompactor{block: make(chan struct{})}
	c, err := NewCompactor(target, "@daily")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = c.RunOnce(context.Background())
	}()
	require.Eventually(t, func() bool { return target.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, ran, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	close(target.block)
	<-done
}

func TestCompactor_StartStop(t *testing.T) {
	c, err := NewCompactor(&fakeCompactor{}, "@daily")
	require.NoError(t, err)

	c.Start()
	c.Stop()
}
