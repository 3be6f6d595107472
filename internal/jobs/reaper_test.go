package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingReaper struct {
	calls atomic.Int64
}

func (r *countingReaper) ReapIdle(ttl time.Duration) int {
	r.calls.Add(1)
	return 2
}

type countingStore struct {
	calls  atomic.Int64
	cutoff atomic.Value
}

func (s *countingStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.calls.Add(1)
	s.cutoff.Store(cutoff)
	return 1, nil
}

func TestReaperJob(t *testing.T) {
	t.Run("sweeps on every tick", func(t *testing.T) {
		reaper := &countingReaper{}
		store := &countingStore{}
		job := NewReaperJob(reaper, store, time.Minute, time.Hour, 10*time.Millisecond)

		job.Start()
		time.Sleep(50 * time.Millisecond)
		job.Stop()

		assert.GreaterOrEqual(t, reaper.calls.Load(), int64(2))
		assert.GreaterOrEqual(t, store.calls.Load(), int64(2))
	})

	t.Run("passes retention cutoff in the past", func(t *testing.T) {
		reaper := &countingReaper{}
		store := &countingStore{}
		job := NewReaperJob(reaper, store, time.Minute, time.Hour, 10*time.Millisecond)

		job.Start()
		time.Sleep(30 * time.Millisecond)
		job.Stop()

		cutoff, ok := store.cutoff.Load().(time.Time)
		assert.True(t, ok)
		assert.True(t, cutoff.Before(time.Now().Add(-59*time.Minute)))
	})

	t.Run("stop ends the loop", func(t *testing.T) {
		reaper := &countingReaper{}
		store := &countingStore{}
		job := NewReaperJob(reaper, store, time.Minute, time.Hour, 5*time.Millisecond)

		job.Start()
		time.Sleep(20 * time.Millisecond)
		job.Stop()

		settled := reaper.calls.Load()
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, settled, reaper.calls.Load())
	})
}
