package queue

import (
	"context"
	"time"

	"github.com/insightq/analysis-jobs/internal/domain"
)

// Entry is the lightweight queue reference to a job. The payload stays in
// the store so the queue and store cannot diverge.
type Entry struct {
	JobID    string          `json:"job_id"`
	Category domain.Category `json:"category"`
}

// TaskQueue is a durable FIFO list per category. Each entry is delivered to
// exactly one dequeuer, and is removed from the queue at dequeue time: a
// dispatcher that dies mid-job is compensated by re-enqueue on transient
// failure and the reconciliation sweep, not by broker redelivery.
type TaskQueue interface {
	// Enqueue appends the entry to the tail of its category's list.
	Enqueue(ctx context.Context, entry Entry) error

	// Dequeue removes and returns the oldest entry for the category, waiting
	// up to wait for one to arrive. ok is false when the wait expired empty.
	Dequeue(ctx context.Context, category domain.Category, wait time.Duration) (entry Entry, ok bool, err error)
}
