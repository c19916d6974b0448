package webhook

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
	"github.com/insightq/analysis-jobs/internal/submit"
)

const testSecret = "test-webhook-secret"

func newReceiver() (*Receiver, *store.MemoryStore, *queue.MemoryQueue) {
	jobStore := store.NewMemoryStore()
	taskQueue := queue.NewMemoryQueue()
	submitter := submit.NewSubmitter(jobStore, taskQueue, slog.Default())
	return NewReceiver(NewVerifier(testSecret), submitter, slog.Default()), jobStore, taskQueue
}

func signedBody(t *testing.T, v interface{}) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return body, NewVerifier(testSecret).Sign(body)
}

func TestVerifier(t *testing.T) {
	v := NewVerifier(testSecret)
	body := []byte(`{"id": "evt-1"}`)

	assert.NoError(t, v.Verify(body, v.Sign(body)))
	assert.ErrorIs(t, v.Verify(body, "deadbeef"), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify(body, ""), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify([]byte(`{"id": "evt-2"}`), v.Sign(body)), ErrInvalidSignature)
}

func TestHandleInvalidSignature(t *testing.T) {
	receiver, jobStore, _ := newReceiver()

	body := []byte(`{"id": "evt-1", "kind": "repository.push", "data": {"repository_url": "https://github.com/acme/widgets"}}`)

	subs, err := receiver.Handle(context.Background(), body, "not-a-signature")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Empty(t, subs)

	// No job was created off an unauthenticated body.
	_, err = jobStore.Get(context.Background(), domain.EventJobID(domain.CategoryRepositoryAnalysis, "evt-1"))
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestHandlePushEvent(t *testing.T) {
	ctx := context.Background()
	receiver, jobStore, taskQueue := newReceiver()

	body, sig := signedBody(t, map[string]interface{}{
		"id":   "evt-42",
		"kind": "repository.push",
		"data": map[string]string{
			"repository_url": "https://github.com/acme/widgets",
			"branch":         "main",
		},
	})

	subs, err := receiver.Handle(ctx, body, sig)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Created)
	assert.Equal(t, "repo_evt_evt-42", subs[0].JobID)

	job, err := jobStore.Get(ctx, subs[0].JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryRepositoryAnalysis, job.Category)
	assert.JSONEq(t, `{"url": "https://github.com/acme/widgets", "branch": "main"}`, string(job.Payload))

	entry, ok, err := taskQueue.Dequeue(ctx, domain.CategoryRepositoryAnalysis, 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, subs[0].JobID, entry.JobID)
}

func TestHandleMeetingEvent(t *testing.T) {
	ctx := context.Background()
	receiver, jobStore, _ := newReceiver()

	body, sig := signedBody(t, map[string]interface{}{
		"id":   "evt-77",
		"kind": "meeting.recorded",
		"data": map[string]string{
			"recording_url": "https://cdn.example.com/rec/77.mp4",
			"language":      "en",
		},
	})

	subs, err := receiver.Handle(ctx, body, sig)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "meet_evt_evt-77", subs[0].JobID)

	job, err := jobStore.Get(ctx, subs[0].JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryMeetingProcessing, job.Category)
	assert.JSONEq(t, `{"recording_url": "https://cdn.example.com/rec/77.mp4", "language": "en"}`, string(job.Payload))
}

func TestHandleReplayedEvent(t *testing.T) {
	ctx := context.Background()
	receiver, _, taskQueue := newReceiver()

	body, sig := signedBody(t, map[string]interface{}{
		"id":   "evt-replay",
		"kind": "repository.push",
		"data": map[string]string{"repository_url": "https://github.com/acme/widgets"},
	})

	first, err := receiver.Handle(ctx, body, sig)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.True(t, first[0].Created)

	second, err := receiver.Handle(ctx, body, sig)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.False(t, second[0].Created)
	assert.Equal(t, first[0].JobID, second[0].JobID)

	// A replay enqueues nothing new.
	_, ok, err := taskQueue.Dequeue(ctx, domain.CategoryRepositoryAnalysis, 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = taskQueue.Dequeue(ctx, domain.CategoryRepositoryAnalysis, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandleUnknownKind(t *testing.T) {
	receiver, _, _ := newReceiver()

	body, sig := signedBody(t, map[string]interface{}{
		"id":   "evt-101",
		"kind": "issue.opened",
		"data": map[string]string{"issue_url": "https://github.com/acme/widgets/issues/1"},
	})

	subs, err := receiver.Handle(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestHandleBadPayload(t *testing.T) {
	receiver, _, _ := newReceiver()
	v := NewVerifier(testSecret)

	tests := []struct {
		name string
		body []byte
	}{
		{name: "not json", body: []byte(`not json at all`)},
		{name: "missing id", body: []byte(`{"kind": "repository.push", "data": {}}`)},
		{name: "missing kind", body: []byte(`{"id": "evt-1", "data": {}}`)},
		{name: "push without repository_url", body: []byte(`{"id": "evt-1", "kind": "repository.push", "data": {"branch": "main"}}`)},
		{name: "push with unparseable repository_url", body: []byte(`{"id": "evt-1", "kind": "repository.push", "data": {"repository_url": "not a url"}}`)},
		{name: "meeting without recording_url", body: []byte(`{"id": "evt-1", "kind": "meeting.recorded", "data": {"language": "en"}}`)},
		{name: "meeting with relative recording_url", body: []byte(`{"id": "evt-1", "kind": "meeting.recorded", "data": {"recording_url": "rec/1.mp4"}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs, err := receiver.Handle(context.Background(), tt.body, v.Sign(tt.body))
			assert.ErrorIs(t, err, ErrBadPayload)
			assert.Empty(t, subs)
		})
	}
}

func TestSanitizeEventID(t *testing.T) {
	assert.Equal(t, "evt-42", sanitizeEventID("evt-42"))
	assert.Equal(t, "evt-4-2", sanitizeEventID("evt:4/2"))
	assert.Equal(t, "a_b-c", sanitizeEventID("a_b-c"))
}
