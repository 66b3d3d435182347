package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mdlh/query-server-go/internal/repository"
	"github.com/mdlh/query-server-go/internal/session"
)

// CleanupJob periodically sweeps expired sessions and trims old history
// records. Expired sessions are also caught lazily on lookup; the sweep
// exists so abandoned connections are released without anyone asking.
type CleanupJob struct {
	sessions         *session.Manager
	historyRepo      repository.QueryHistoryRepository
	historyRetention time.Duration
	interval         time.Duration
	done             chan struct{}
}

func NewCleanupJob(
	sessions *session.Manager,
	historyRepo repository.QueryHistoryRepository,
	historyRetention time.Duration,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		sessions:         sessions,
		historyRepo:      historyRepo,
		historyRetention: historyRetention,
		interval:         interval,
		done:             make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
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
	if swept := j.sessions.Sweep(); swept > 0 {
		log.Info().Int("count", swept).Msg("cleaned up expired sessions")
	}

	if j.historyRepo == nil || j.historyRetention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-j.historyRetention)
	count, err := j.historyRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to cleanup query history")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("cleaned up query history")
	}
}
