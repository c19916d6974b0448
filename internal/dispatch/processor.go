package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/insightq/analysis-jobs/internal/domain"
	"github.com/insightq/analysis-jobs/internal/queue"
	"github.com/insightq/analysis-jobs/internal/status"
	"github.com/insightq/analysis-jobs/internal/store"
)

// WorkerClient invokes the downstream analysis worker.
type WorkerClient interface {
	Analyze(ctx context.Context, job *domain.Job) (json.RawMessage, error)
}

// ProcessorConfig tunes per-entry processing.
type ProcessorConfig struct {
	// MaxAttempts bounds dispatch attempts before a job fails terminally.
	MaxAttempts int
	// BackoffBase and BackoffCap shape the retry delay curve.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// OpenRetryDelay is how long an entry waits before rejoining the queue
	// when its category's breaker is open.
	OpenRetryDelay time.Duration
}

// Processor drives one dequeued entry through the attempt state machine.
// It is stateless between attempts: each retry is a fresh queue delivery, so
// a process restart loses nothing but in-flight calls.
type Processor struct {
	store     store.JobStore
	queue     queue.TaskQueue
	worker    WorkerClient
	breaker   *Breaker
	publisher status.Publisher
	logger    *slog.Logger
	cfg       ProcessorConfig

	schedule func(delay time.Duration, fn func())
}

// NewProcessor creates a Processor.
func NewProcessor(jobStore store.JobStore, taskQueue queue.TaskQueue, worker WorkerClient, breaker *Breaker, publisher status.Publisher, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	return &Processor{
		store:     jobStore,
		queue:     taskQueue,
		worker:    worker,
		breaker:   breaker,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		schedule: func(delay time.Duration, fn func()) {
			time.AfterFunc(delay, fn)
		},
	}
}

// Process handles one dequeued entry end to end.
func (p *Processor) Process(ctx context.Context, entry queue.Entry) error {
	log := p.logger.With(
		slog.String("job_id", entry.JobID),
		slog.String("category", string(entry.Category)),
	)

	// Duplicate-delivery guard: a missing, terminal, or already-running job
	// means this entry has nothing left to do.
	job, err := p.store.Get(ctx, entry.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			log.Warn("queue entry references unknown job, discarding")
			return nil
		}
		return err
	}
	if job.Status != domain.StatusQueued {
		log.Info("discarding duplicate delivery",
			slog.String("status", job.Status),
		)
		return nil
	}

	// Breaker admission happens before the claim: a rejection (open, or the
	// half-open trial slot already taken) defers the entry with the attempt
	// counter untouched.
	release, err := p.breaker.Acquire(entry.Category)
	if err != nil {
		log.Info("circuit breaker rejected dispatch, deferring entry",
			slog.Duration("delay", p.cfg.OpenRetryDelay),
		)
		p.requeueLater(entry, p.cfg.OpenRetryDelay)
		return nil
	}

	job, err = p.store.MarkProcessing(ctx, entry.JobID)
	if err != nil {
		// The admission was never used to reach the worker; report failure
		// so a half-open breaker stays cautious instead of closing untested.
		release(false)
		if errors.Is(err, domain.ErrStatusConflict) {
			log.Info("job claimed elsewhere, discarding duplicate delivery")
			return nil
		}
		return err
	}
	p.publisher.Publish(ctx, job.ID, job.Category, domain.StatusProcessing)

	log.Info("dispatching job to worker",
		slog.Int("attempt", job.Attempt),
	)

	result, err := p.worker.Analyze(ctx, job)
	if err != nil {
		// A permanent rejection proves the worker is alive and answering;
		// only transient failures count against the breaker.
		release(domain.IsPermanent(err))
		return p.handleFailure(ctx, job, entry, err, log)
	}
	release(true)

	if err := p.store.MarkCompleted(ctx, job.ID, result); err != nil {
		return err
	}
	p.publisher.Publish(ctx, job.ID, job.Category, domain.StatusCompleted)

	log.Info("job completed",
		slog.Int("attempt", job.Attempt),
	)

	return nil
}

func (p *Processor) handleFailure(ctx context.Context, job *domain.Job, entry queue.Entry, cause error, log *slog.Logger) error {
	if domain.IsTransient(cause) && job.Attempt < p.cfg.MaxAttempts {
		delay := RetryDelay(p.cfg.BackoffBase, p.cfg.BackoffCap, job.Attempt)

		log.Warn("transient worker failure, scheduling retry",
			slog.Int("attempt", job.Attempt),
			slog.Int("max_attempts", p.cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", cause),
		)

		if err := p.store.Requeue(ctx, job.ID, cause.Error()); err != nil {
			return err
		}
		p.publisher.Publish(ctx, job.ID, job.Category, domain.StatusQueued)
		p.requeueLater(entry, delay)
		return nil
	}

	log.Error("job failed",
		slog.Int("attempt", job.Attempt),
		slog.Bool("permanent", domain.IsPermanent(cause)),
		slog.Any("error", cause),
	)

	if err := p.store.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		return err
	}
	p.publisher.Publish(ctx, job.ID, job.Category, domain.StatusFailed)
	return nil
}

// requeueLater puts the entry back on the queue after the delay without
// holding a dispatcher slot while it waits.
func (p *Processor) requeueLater(entry queue.Entry, delay time.Duration) {
	p.schedule(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.queue.Enqueue(ctx, entry); err != nil {
			p.logger.Error("failed to re-enqueue entry",
				slog.String("job_id", entry.JobID),
				slog.String("category", string(entry.Category)),
				slog.Any("error", err),
			)
		}
	})
}
