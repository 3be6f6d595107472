package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// IdleReaper is the session layer's half of the reaper contract.
type IdleReaper interface {
	ReapIdle(ttl time.Duration) int
}

// RetentionStore deletes completed session records past the retention window.
type RetentionStore interface {
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReaperJob periodically terminates sessions abandoned by every human
// participant and purges completed records past retention.
type ReaperJob struct {
	manager   IdleReaper
	store     RetentionStore
	ttl       time.Duration
	retention time.Duration
	interval  time.Duration
	done      chan struct{}
}

func NewReaperJob(manager IdleReaper, store RetentionStore, ttl, retention, interval time.Duration) *ReaperJob {
	return &ReaperJob{
		manager:   manager,
		store:     store,
		ttl:       ttl,
		retention: retention,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *ReaperJob) Start() {
	go j.run()
	log.Info().
		Dur("interval", j.interval).
		Dur("sessionTtl", j.ttl).
		Msg("reaper job started")
}

func (j *ReaperJob) Stop() {
	close(j.done)
	log.Info().Msg("reaper job stopped")
}

func (j *ReaperJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *ReaperJob) sweep() {
	if reaped := j.manager.ReapIdle(j.ttl); reaped > 0 {
		log.Info().Int("count", reaped).Msg("reaped abandoned sessions and registrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-j.retention)
	count, err := j.store.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to purge completed sessions")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("purged completed sessions past retention")
	}
}
