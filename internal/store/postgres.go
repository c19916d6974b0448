package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/insightq/analysis-jobs/internal/domain"
)

const pgUniqueViolation = "23505"

// PostgresStore implements JobStore on PostgreSQL. Status transitions use
// conditional UPDATEs (WHERE status = ...) so two dispatchers racing on the
// same job id resolve to exactly one winner.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates a PostgresStore on an established connection.
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (job_id, category, payload, status, attempt, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Category,
		[]byte(job.Payload),
		job.Status,
		job.Attempt,
		job.LastError,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return domain.ErrJobExists
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		SELECT job_id, category, payload, status, attempt, result, last_error, created_at, updated_at
		FROM jobs
		WHERE job_id = $1
	`

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toJob(), nil
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    attempt = attempt + 1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
		RETURNING job_id, category, payload, status, attempt, result, last_error, created_at, updated_at
	`

	var row jobRow
	err := s.db.GetContext(ctx, &row, query, domain.StatusProcessing, jobID, domain.StatusQueued)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrStatusConflict
		}
		return nil, fmt.Errorf("failed to mark job processing: %w", err)
	}

	s.logger.Debug("job claimed",
		slog.String("job_id", jobID),
		slog.Int("attempt", row.Attempt),
	)

	return row.toJob(), nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, jobID string, result json.RawMessage) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    result = $2,
		    last_error = '',
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	return s.transition(ctx, query, domain.StatusCompleted, []byte(result), jobID, domain.StatusProcessing)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, jobID string, reason string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    last_error = $2,
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	return s.transition(ctx, query, domain.StatusFailed, reason, jobID, domain.StatusProcessing)
}

func (s *PostgresStore) Requeue(ctx context.Context, jobID string, reason string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    last_error = $2,
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	return s.transition(ctx, query, domain.StatusQueued, reason, jobID, domain.StatusProcessing)
}

func (s *PostgresStore) transition(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrStatusConflict
	}

	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStuck(ctx context.Context, cutoff time.Time) ([]domain.Job, error) {
	query := `
		SELECT job_id, category, payload, status, attempt, result, last_error, created_at, updated_at
		FROM jobs
		WHERE status = $1
		  AND updated_at < $2
		ORDER BY updated_at ASC
	`

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, domain.StatusProcessing, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list stuck jobs: %w", err)
	}

	jobs := make([]domain.Job, len(rows))
	for i, row := range rows {
		jobs[i] = *row.toJob()
	}
	return jobs, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// jobRow maps the jobs table; payload and result come back as raw bytes.
type jobRow struct {
	JobID     string          `db:"job_id"`
	Category  domain.Category `db:"category"`
	Payload   []byte          `db:"payload"`
	Status    string          `db:"status"`
	Attempt   int             `db:"attempt"`
	Result    []byte          `db:"result"`
	LastError string          `db:"last_error"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (r *jobRow) toJob() *domain.Job {
	return &domain.Job{
		ID:        r.JobID,
		Category:  r.Category,
		Payload:   json.RawMessage(r.Payload),
		Status:    r.Status,
		Attempt:   r.Attempt,
		Result:    json.RawMessage(r.Result),
		LastError: r.LastError,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
