package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/insightq/analysis-jobs/internal/domain"
	"github.com/insightq/analysis-jobs/internal/queue"
	"github.com/insightq/analysis-jobs/internal/store"
)

// SweeperConfig tunes the reconciliation pass. A zero Interval disables it.
type SweeperConfig struct {
	Interval time.Duration
	// After is how long a job may sit in PROCESSING before it is presumed
	// orphaned by a dead dispatcher and re-queued.
	After time.Duration
}

// Sweeper is the background reconciliation pass for jobs orphaned in
// PROCESSING by a dispatcher crash. It re-queues them without touching the
// attempt counter; the store's conditional transition keeps it safe against a
// live retry racing the sweep.
type Sweeper struct {
	store    store.JobStore
	queue    queue.TaskQueue
	logger   *slog.Logger
	cfg      SweeperConfig
	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewSweeper creates a Sweeper.
func NewSweeper(jobStore store.JobStore, taskQueue queue.TaskQueue, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    jobStore,
		queue:    taskQueue,
		logger:   logger,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start launches the ticker loop, or logs and returns if disabled.
func (s *Sweeper) Start(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		s.logger.Info("Reconciliation sweep disabled")
		return
	}

	s.logger.Info("Starting reconciliation sweeper",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("after", s.cfg.After),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep.
func (s *Sweeper) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// Sweep re-queues every job stuck in PROCESSING past the liveness threshold.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.After)

	stuck, err := s.store.ListStuck(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to list stuck jobs", slog.Any("error", err))
		return
	}

	for _, job := range stuck {
		err := s.store.Requeue(ctx, job.ID, "requeued by reconciliation sweep")
		if errors.Is(err, domain.ErrStatusConflict) {
			// The job moved on since we listed it.
			continue
		}
		if err != nil {
			s.logger.Error("Failed to requeue stuck job",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
			continue
		}

		entry := queue.Entry{JobID: job.ID, Category: job.Category}
		if err := s.queue.Enqueue(ctx, entry); err != nil {
			s.logger.Error("Failed to enqueue swept job",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
			continue
		}

		s.logger.Warn("Requeued stuck job",
			slog.String("job_id", job.ID),
			slog.String("category", string(job.Category)),
			slog.Time("last_update", job.UpdatedAt),
		)
	}
}
