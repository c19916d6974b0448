package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightq/analysis-jobs/internal/domain"
	"github.com/insightq/analysis-jobs/internal/queue"
	"github.com/insightq/analysis-jobs/internal/store"
)

func TestSweepRequeuesStuckJobs(t *testing.T) {
	ctx := context.Background()
	jobStore := store.NewMemoryStore()
	taskQueue := queue.NewMemoryQueue()

	// One job orphaned in PROCESSING, one still happily queued.
	orphan := domain.NewJob(domain.CategoryQuestionAnswering, json.RawMessage(`{"question": "status?"}`))
	require.NoError(t, jobStore.Create(ctx, orphan))
	_, err := jobStore.MarkProcessing(ctx, orphan.ID)
	require.NoError(t, err)

	queued := domain.NewJob(domain.CategoryQuestionAnswering, json.RawMessage(`{"question": "other?"}`))
	require.NoError(t, jobStore.Create(ctx, queued))

	// After: negative so even a just-claimed job counts as stuck.
	sweeper := NewSweeper(jobStore, taskQueue, SweeperConfig{Interval: time.Minute, After: -time.Minute}, slog.Default())
	sweeper.Sweep(ctx)

	got, err := jobStore.Get(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, got.Status)
	assert.Equal(t, "requeued by reconciliation sweep", got.LastError)
	assert.Equal(t, 1, got.Attempt)

	entry, ok, err := taskQueue.Dequeue(ctx, domain.CategoryQuestionAnswering, 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orphan.ID, entry.JobID)

	// The queued job was not touched.
	_, ok, err = taskQueue.Dequeue(ctx, domain.CategoryQuestionAnswering, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweepRespectsLivenessThreshold(t *testing.T) {
	ctx := context.Background()
	jobStore := store.NewMemoryStore()
	taskQueue := queue.NewMemoryQueue()

	job := domain.NewJob(domain.CategoryMeetingProcessing, json.RawMessage(`{"recording_url": "https://cdn.example.com/rec/1.mp4"}`))
	require.NoError(t, jobStore.Create(ctx, job))
	_, err := jobStore.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)

	// The job was just claimed, so a one-hour threshold leaves it alone.
	sweeper := NewSweeper(jobStore, taskQueue, SweeperConfig{Interval: time.Minute, After: time.Hour}, slog.Default())
	sweeper.Sweep(ctx)

	got, err := jobStore.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)

	_, ok, err := taskQueue.Dequeue(ctx, domain.CategoryMeetingProcessing, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweeperDisabledByZeroInterval(t *testing.T) {
	sweeper := NewSweeper(store.NewMemoryStore(), queue.NewMemoryQueue(), SweeperConfig{Interval: 0, After: time.Minute}, slog.Default())

	// Start returns without launching a loop; Stop must not hang.
	sweeper.Start(context.Background())
	sweeper.Stop()
}
