package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job id is unknown to the store.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when a create collides with an existing id.
	ErrJobExists = errors.New("job already exists")

	// ErrStatusConflict is returned when a conditional status transition
	// matches no row, i.e. another writer got there first or the job is
	// already terminal.
	ErrStatusConflict = errors.New("job not in expected status")

	// ErrUnknownCategory is returned for a category outside the closed set.
	ErrUnknownCategory = errors.New("unknown job category")

	// ErrValidation is returned for malformed submission input. Never retried.
	ErrValidation = errors.New("validation failed")
)

// TransientError wraps a downstream-worker failure worth retrying: timeouts,
// connection errors, 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient worker error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable.
func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// IsTransient reports whether err should trigger a retry.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// PermanentError wraps an explicit downstream rejection: the worker is
// healthy but will never accept this job.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent worker error: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err as non-retryable.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is a definitive downstream rejection.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
