package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/insightq/analysis-jobs/internal/domain"
	"github.com/insightq/analysis-jobs/internal/queue"
	"github.com/insightq/analysis-jobs/internal/store"
)

// Submitter is the write path: validate, create the job record, enqueue the
// task. Create-then-enqueue is a single logical step; if the enqueue fails
// the create is rolled back so no orphaned record acknowledges work the
// queue will never deliver.
type Submitter struct {
	store  store.JobStore
	queue  queue.TaskQueue
	logger *slog.Logger
}

// NewSubmitter creates a Submitter.
func NewSubmitter(jobStore store.JobStore, taskQueue queue.TaskQueue, logger *slog.Logger) *Submitter {
	return &Submitter{store: jobStore, queue: taskQueue, logger: logger}
}

// Submit validates the payload for the category, creates a QUEUED job with a
// fresh id and enqueues it. Validation failures wrap domain.ErrValidation
// and leave no trace in the store or queue.
func (s *Submitter) Submit(ctx context.Context, category domain.Category, payload json.RawMessage) (*domain.Job, error) {
	if !category.Known() {
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrValidation, domain.ErrUnknownCategory, string(category))
	}
	if err := category.ValidatePayload(payload); err != nil {
		return nil, err
	}

	job := domain.NewJob(category, payload)
	if err := s.place(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// SubmitWithID is Submit with a caller-chosen id, used by the webhook
// receiver for deterministic event-derived ids. A colliding id is not an
// error: the existing job is returned with created=false.
func (s *Submitter) SubmitWithID(ctx context.Context, category domain.Category, payload json.RawMessage, jobID string) (*domain.Job, bool, error) {
	if !category.Known() {
		return nil, false, fmt.Errorf("%w: %w: %q", domain.ErrValidation, domain.ErrUnknownCategory, string(category))
	}
	if err := category.ValidatePayload(payload); err != nil {
		return nil, false, err
	}

	job := domain.NewJob(category, payload)
	job.ID = jobID

	err := s.place(ctx, job)
	if errors.Is(err, domain.ErrJobExists) {
		existing, getErr := s.store.Get(ctx, jobID)
		if getErr != nil {
			return nil, false, fmt.Errorf("job %s exists but could not be read back: %w", jobID, getErr)
		}
		s.logger.Info("duplicate submission ignored",
			slog.String("job_id", jobID),
			slog.String("category", string(category)),
		)
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (s *Submitter) place(ctx context.Context, job *domain.Job) error {
	if err := s.store.Create(ctx, job); err != nil {
		return err
	}

	entry := queue.Entry{JobID: job.ID, Category: job.Category}
	if err := s.queue.Enqueue(ctx, entry); err != nil {
		if delErr := s.store.Delete(ctx, job.ID); delErr != nil {
			s.logger.Error("failed to roll back job create after enqueue failure",
				slog.String("job_id", job.ID),
				slog.Any("error", delErr),
			)
		}
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}

	s.logger.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("category", string(job.Category)),
	)

	return nil
}
