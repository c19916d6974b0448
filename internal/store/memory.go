package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/insightq/analysis-jobs/internal/domain"
)

// MemoryStore is a mutex-guarded in-memory JobStore with the same transition
// preconditions as the Postgres implementation. It backs tests and single
// node development.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*domain.Job)}
}

func (s *MemoryStore) Create(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return domain.ErrJobExists
	}

	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	clone := *job
	return &clone, nil
}

func (s *MemoryStore) MarkProcessing(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.StatusQueued {
		return nil, domain.ErrStatusConflict
	}

	job.Status = domain.StatusProcessing
	job.Attempt++
	job.UpdatedAt = time.Now().UTC()

	clone := *job
	return &clone, nil
}

func (s *MemoryStore) MarkCompleted(ctx context.Context, jobID string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.StatusProcessing {
		return domain.ErrStatusConflict
	}

	job.Status = domain.StatusCompleted
	job.Result = result
	job.LastError = ""
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, jobID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.StatusProcessing {
		return domain.ErrStatusConflict
	}

	job.Status = domain.StatusFailed
	job.LastError = reason
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Requeue(ctx context.Context, jobID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.StatusProcessing {
		return domain.ErrStatusConflict
	}

	job.Status = domain.StatusQueued
	job.LastError = reason
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, jobID)
	return nil
}

func (s *MemoryStore) ListStuck(ctx context.Context, cutoff time.Time) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stuck []domain.Job
	for _, job := range s.jobs {
		if job.Status == domain.StatusProcessing && job.UpdatedAt.Before(cutoff) {
			stuck = append(stuck, *job)
		}
	}
	return stuck, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
