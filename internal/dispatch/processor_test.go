package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightq/analysis-jobs/internal/domain"
	"github.com/insightq/analysis-jobs/internal/queue"
	"github.com/insightq/analysis-jobs/internal/status"
	"github.com/insightq/analysis-jobs/internal/store"
)

// fakeWorker returns canned responses in order, then repeats the last one.
type fakeWorker struct {
	mu        sync.Mutex
	responses []workerResponse
	calls     int
}

type workerResponse struct {
	result json.RawMessage
	err    error
}

func (w *fakeWorker) Analyze(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := w.calls
	if idx >= len(w.responses) {
		idx = len(w.responses) - 1
	}
	w.calls++
	r := w.responses[idx]
	return r.result, r.err
}

func (w *fakeWorker) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

type processorFixture struct {
	store     *store.MemoryStore
	queue     *queue.MemoryQueue
	worker    *fakeWorker
	breaker   *Breaker
	publisher *status.MemoryPublisher
	processor *Processor
}

func newProcessorFixture(worker *fakeWorker, cfg ProcessorConfig) *processorFixture {
	f := &processorFixture{
		store:     store.NewMemoryStore(),
		queue:     queue.NewMemoryQueue(),
		worker:    worker,
		breaker:   newTestBreaker(5),
		publisher: status.NewMemoryPublisher(),
	}
	f.processor = NewProcessor(f.store, f.queue, worker, f.breaker, f.publisher, cfg, slog.Default())

	// Run deferred re-enqueues inline so tests observe them synchronously.
	f.processor.schedule = func(delay time.Duration, fn func()) { fn() }
	return f
}

func defaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
		BackoffCap:     10 * time.Millisecond,
		OpenRetryDelay: time.Millisecond,
	}
}

func (f *processorFixture) submitJob(t *testing.T) queue.Entry {
	t.Helper()
	job := domain.NewJob(domain.CategoryRepositoryAnalysis, json.RawMessage(`{"url": "https://github.com/acme/widgets"}`))
	require.NoError(t, f.store.Create(context.Background(), job))
	return queue.Entry{JobID: job.ID, Category: job.Category}
}

func (f *processorFixture) statuses() []string {
	var out []string
	for _, tr := range f.publisher.Transitions() {
		out = append(out, tr.Status)
	}
	return out
}

func TestProcessSuccess(t *testing.T) {
	ctx := context.Background()
	worker := &fakeWorker{responses: []workerResponse{
		{result: json.RawMessage(`{"summary": "looks good"}`)},
	}}
	f := newProcessorFixture(worker, defaultProcessorConfig())
	entry := f.submitJob(t)

	require.NoError(t, f.processor.Process(ctx, entry))

	job, err := f.store.Get(ctx, entry.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, 1, job.Attempt)
	assert.JSONEq(t, `{"summary": "looks good"}`, string(job.Result))

	assert.Equal(t, []string{domain.StatusProcessing, domain.StatusCompleted}, f.statuses())
	assert.Equal(t, 1, worker.callCount())
}

func TestProcessRetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	worker := &fakeWorker{responses: []workerResponse{
		{err: domain.NewTransientError(errors.New("worker timeout"))},
		{result: json.RawMessage(`{"summary": "second time lucky"}`)},
	}}
	f := newProcessorFixture(worker, defaultProcessorConfig())
	entry := f.submitJob(t)

	// First delivery fails transiently and re-enqueues the entry.
	require.NoError(t, f.processor.Process(ctx, entry))

	job, err := f.store.Get(ctx, entry.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.Equal(t, 1, job.Attempt)
	assert.Contains(t, job.LastError, "worker timeout")

	redelivered, ok, err := f.queue.Dequeue(ctx, entry.Category, 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.JobID, redelivered.JobID)

	// Second delivery succeeds.
	require.NoError(t, f.processor.Process(ctx, redelivered))

	job, err = f.store.Get(ctx, entry.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, 2, job.Attempt)

	assert.Equal(t, []string{
		domain.StatusProcessing,
		domain.StatusQueued,
		domain.StatusProcessing,
		domain.StatusCompleted,
	}, f.statuses())
}

func TestProcessFailsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	worker := &fakeWorker{responses: []workerResponse{
		{err: domain.NewTransientError(errors.New("worker timeout"))},
	}}
	f := newProcessorFixture(worker, defaultProcessorConfig())
	entry := f.submitJob(t)

	for attempt := 1; attempt <= 3; attempt++ {
		delivered := entry
		if attempt > 1 {
			var ok bool
			var err error
			delivered, ok, err = f.queue.Dequeue(ctx, entry.Category, 20*time.Millisecond)
			require.NoError(t, err)
			require.True(t, ok)
		}
		require.NoError(t, f.processor.Process(ctx, delivered))
	}

	job, err := f.store.Get(ctx, entry.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Equal(t, 3, job.Attempt)
	assert.NotEmpty(t, job.LastError)
	assert.Equal(t, 3, worker.callCount())

	// The final attempt does not re-enqueue.
	_, ok, err := f.queue.Dequeue(ctx, entry.Category, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessPermanentFailureSkipsRetries(t *testing.T) {
	ctx := context.Background()
	worker := &fakeWorker{responses: []workerResponse{
		{err: domain.NewPermanentError(errors.New("worker rejected payload"))},
	}}
	f := newProcessorFixture(worker, defaultProcessorConfig())
	entry := f.submitJob(t)

	require.NoError(t, f.processor.Process(ctx, entry))

	job, err := f.store.Get(ctx, entry.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Equal(t, 1, job.Attempt)
	assert.Equal(t, 1, worker.callCount())

	_, ok, err := f.queue.Dequeue(ctx, entry.Category, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessDiscardsUnknownJob(t *testing.T) {
	worker := &fakeWorker{responses: []workerResponse{{result: json.RawMessage(`{}`)}}}
	f := newProcessorFixture(worker, defaultProcessorConfig())

	err := f.processor.Process(context.Background(), queue.Entry{
		JobID:    "repo_missing",
		Category: domain.CategoryRepositoryAnalysis,
	})
	require.NoError(t, err)
	assert.Zero(t, worker.callCount())
}

func TestProcessDiscardsDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	worker := &fakeWorker{responses: []workerResponse{
		{result: json.RawMessage(`{"summary": "done"}`)},
	}}
	f := newProcessorFixture(worker, defaultProcessorConfig())
	entry := f.submitJob(t)

	require.NoError(t, f.processor.Process(ctx, entry))
	require.NoError(t, f.processor.Process(ctx, entry))

	job, err := f.store.Get(ctx, entry.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, 1, job.Attempt)
	assert.Equal(t, 1, worker.callCount())
}

func TestProcessDefersWhenBreakerOpen(t *testing.T) {
	ctx := context.Background()
	worker := &fakeWorker{responses: []workerResponse{
		{err: domain.NewTransientError(errors.New("connection refused"))},
	}}
	f := newProcessorFixture(worker, ProcessorConfig{
		MaxAttempts:    10,
		BackoffBase:    time.Millisecond,
		BackoffCap:     10 * time.Millisecond,
		OpenRetryDelay: time.Millisecond,
	})

	// Trip the category's breaker directly.
	tripBreaker(t, f.breaker, domain.CategoryRepositoryAnalysis, 5)
	require.True(t, f.breaker.Open(domain.CategoryRepositoryAnalysis))

	entry := f.submitJob(t)
	require.NoError(t, f.processor.Process(ctx, entry))

	// The job was never claimed and the entry went back on the queue.
	job, err := f.store.Get(ctx, entry.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.Equal(t, 0, job.Attempt)
	assert.Zero(t, worker.callCount())

	redelivered, ok, err := f.queue.Dequeue(ctx, entry.Category, 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.JobID, redelivered.JobID)
}

func TestProcessPermanentFailuresDoNotTripBreaker(t *testing.T) {
	ctx := context.Background()
	worker := &fakeWorker{responses: []workerResponse{
		{err: domain.NewPermanentError(errors.New("worker rejected payload"))},
	}}
	f := newProcessorFixture(worker, defaultProcessorConfig())

	// A run of poison jobs proves the worker is alive; the category must
	// stay dispatchable.
	for i := 0; i < 10; i++ {
		entry := f.submitJob(t)
		require.NoError(t, f.processor.Process(ctx, entry))
	}

	assert.False(t, f.breaker.Open(domain.CategoryRepositoryAnalysis))
	assert.Equal(t, 10, worker.callCount())
}

func TestProcessDefersWhenHalfOpenTrialTaken(t *testing.T) {
	ctx := context.Background()
	worker := &fakeWorker{responses: []workerResponse{
		{result: json.RawMessage(`{}`)},
	}}
	f := newProcessorFixture(worker, defaultProcessorConfig())

	breaker := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: 20 * time.Millisecond}, slog.Default())
	f.breaker = breaker
	f.processor.breaker = breaker

	// Trip the breaker and wait out the cooldown so it goes half-open.
	tripBreaker(t, breaker, domain.CategoryRepositoryAnalysis, 1)
	require.True(t, breaker.Open(domain.CategoryRepositoryAnalysis))
	time.Sleep(30 * time.Millisecond)

	// Another dispatcher goroutine holds the single half-open trial slot.
	_, err := breaker.Acquire(domain.CategoryRepositoryAnalysis)
	require.NoError(t, err)

	entry := f.submitJob(t)
	require.NoError(t, f.processor.Process(ctx, entry))

	// The rejected entry was deferred before the claim: no attempt burned,
	// no worker call, and the job is still QUEUED for redelivery.
	job, err := f.store.Get(ctx, entry.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.Equal(t, 0, job.Attempt)
	assert.Empty(t, job.LastError)
	assert.Zero(t, worker.callCount())

	redelivered, ok, err := f.queue.Dequeue(ctx, entry.Category, 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.JobID, redelivered.JobID)
}
