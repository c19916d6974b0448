package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/insightq/analysis-jobs/internal/domain"
)

// JobStore is the single source of truth for job state. Transitions are
// conditional on the current status so concurrent writers cannot produce a
// lost update or move a terminal job back to a live state: a transition whose
// precondition no longer holds fails with domain.ErrStatusConflict.
type JobStore interface {
	// Create inserts a new job. Fails with domain.ErrJobExists on id collision.
	Create(ctx context.Context, job *domain.Job) error

	// Get returns the job or domain.ErrJobNotFound.
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// MarkProcessing transitions QUEUED -> PROCESSING and increments the
	// attempt counter, returning the updated record.
	MarkProcessing(ctx context.Context, jobID string) (*domain.Job, error)

	// MarkCompleted transitions PROCESSING -> COMPLETED, stores the result
	// reference and clears the last error.
	MarkCompleted(ctx context.Context, jobID string, result json.RawMessage) error

	// MarkFailed transitions PROCESSING -> FAILED with a failure reason.
	MarkFailed(ctx context.Context, jobID string, reason string) error

	// Requeue transitions PROCESSING -> QUEUED recording the failure reason;
	// the attempt counter is left alone.
	Requeue(ctx context.Context, jobID string, reason string) error

	// Delete removes a job record. Used to roll back a create whose enqueue
	// failed, so the store never holds a job the queue will not deliver.
	Delete(ctx context.Context, jobID string) error

	// ListStuck returns PROCESSING jobs not touched since the cutoff.
	ListStuck(ctx context.Context, cutoff time.Time) ([]domain.Job, error)

	// Ping reports backing-service reachability for health checks.
	Ping(ctx context.Context) error
}
