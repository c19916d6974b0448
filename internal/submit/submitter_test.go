package submit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightq/analysis-jobs/internal/domain"
	"github.com/insightq/analysis-jobs/internal/queue"
	"github.com/insightq/analysis-jobs/internal/store"
)

// failingQueue rejects every enqueue.
type failingQueue struct{}

func (failingQueue) Enqueue(ctx context.Context, entry queue.Entry) error {
	return errors.New("broker unavailable")
}

func (failingQueue) Dequeue(ctx context.Context, category domain.Category, wait time.Duration) (queue.Entry, bool, error) {
	return queue.Entry{}, false, nil
}

func newSubmitter() (*Submitter, *store.MemoryStore, *queue.MemoryQueue) {
	s := store.NewMemoryStore()
	q := queue.NewMemoryQueue()
	return NewSubmitter(s, q, slog.Default()), s, q
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	submitter, jobStore, taskQueue := newSubmitter()

	job, err := submitter.Submit(ctx, domain.CategoryRepositoryAnalysis, json.RawMessage(`{"url": "https://github.com/acme/widgets"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, job.Status)

	stored, err := jobStore.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, stored.Status)

	entry, ok, err := taskQueue.Dequeue(ctx, domain.CategoryRepositoryAnalysis, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, job.ID, entry.JobID)
	assert.Equal(t, domain.CategoryRepositoryAnalysis, entry.Category)
}

func TestSubmitValidationFailure(t *testing.T) {
	ctx := context.Background()
	submitter, _, taskQueue := newSubmitter()

	_, err := submitter.Submit(ctx, domain.CategoryRepositoryAnalysis, json.RawMessage(`{"branch": "main"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Nothing was enqueued.
	_, ok, err := taskQueue.Dequeue(ctx, domain.CategoryRepositoryAnalysis, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubmitUnknownCategory(t *testing.T) {
	submitter, _, _ := newSubmitter()

	_, err := submitter.Submit(context.Background(), domain.Category("image-generation"), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSubmitRollsBackOnEnqueueFailure(t *testing.T) {
	ctx := context.Background()
	jobStore := store.NewMemoryStore()
	broken := NewSubmitter(jobStore, failingQueue{}, slog.Default())

	payload := json.RawMessage(`{"question": "why?"}`)
	jobID := domain.EventJobID(domain.CategoryQuestionAnswering, "evt-rollback")

	_, _, err := broken.SubmitWithID(ctx, domain.CategoryQuestionAnswering, payload, jobID)
	require.Error(t, err)

	// The create was rolled back, so the id is free again.
	_, err = jobStore.Get(ctx, jobID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestSubmitWithIDDuplicate(t *testing.T) {
	ctx := context.Background()
	submitter, _, taskQueue := newSubmitter()

	payload := json.RawMessage(`{"recording_url": "https://cdn.example.com/rec/9.mp4"}`)
	jobID := domain.EventJobID(domain.CategoryMeetingProcessing, "evt-9")

	first, created, err := submitter.SubmitWithID(ctx, domain.CategoryMeetingProcessing, payload, jobID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, jobID, first.ID)

	second, created, err := submitter.SubmitWithID(ctx, domain.CategoryMeetingProcessing, payload, jobID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, jobID, second.ID)

	// Only the first submission put an entry on the queue.
	_, ok, err := taskQueue.Dequeue(ctx, domain.CategoryMeetingProcessing, 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = taskQueue.Dequeue(ctx, domain.CategoryMeetingProcessing, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}
