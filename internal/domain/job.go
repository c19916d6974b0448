package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job status values. QUEUED and PROCESSING are live states; COMPLETED and
// FAILED are terminal and immutable.
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// IsTerminal reports whether a job in this status may never transition again.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Job is the unit of work tracked end-to-end by the store.
type Job struct {
	ID        string          `db:"job_id" json:"job_id"`
	Category  Category        `db:"category" json:"category"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	Status    string          `db:"status" json:"status"`
	Attempt   int             `db:"attempt" json:"attempt"`
	Result    json.RawMessage `db:"result" json:"result,omitempty"`
	LastError string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// NewJob builds a QUEUED job with a fresh category-prefixed id.
func NewJob(category Category, payload json.RawMessage) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        NewJobID(category),
		Category:  category,
		Payload:   payload,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewJobID generates a unique job id embedding the category prefix,
// e.g. "repo_7f9c2d...".
func NewJobID(category Category) string {
	return category.Prefix() + "_" + uuid.NewString()
}

// EventJobID derives a deterministic job id from an external event id so a
// replayed webhook maps to the same job.
func EventJobID(category Category, eventID string) string {
	return category.Prefix() + "_evt_" + eventID
}
