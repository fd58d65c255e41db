package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/industrialcatalog/catalog-server/internal/metrics"
)

const cleanupTimeout = 30 * time.Second

// StalePurger removes sign-in code rows that can no longer be accepted.
type StalePurger interface {
	DeleteStale(ctx context.Context, now time.Time) (int64, error)
}

// CleanupJob reclaims consumed and expired code rows on a ticker. Expiry is
// already enforced at verification time; this only keeps the table small.
type CleanupJob struct {
	sessions StalePurger
	metrics  *metrics.Registry
	interval time.Duration
	now      func() time.Time
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewCleanupJob(sessions StalePurger, m *metrics.Registry, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		metrics:  m,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

// Stop signals the loop and waits for an in-flight pass to finish.
func (j *CleanupJob) Stop() {
	close(j.done)
	j.wg.Wait()
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	count, err := j.sessions.DeleteStale(ctx, j.now())
	if err != nil {
		log.Error().Err(err).Msg("failed to clean up sign-in codes")
		return
	}
	if count > 0 {
		j.metrics.ObserveSessionsPurged(count)
		log.Info().Int64("count", count).Msg("cleaned up sign-in codes")
	}
}
