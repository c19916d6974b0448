package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/insightq/analysis-jobs/internal/domain"
	"github.com/insightq/analysis-jobs/internal/submit"
)

// event is the normalized inbound shape. Only the envelope is fixed; data is
// interpreted per kind.
type event struct {
	ID   string          `json:"id"`
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type pushEventData struct {
	RepositoryURL string `json:"repository_url"`
	Branch        string `json:"branch"`
}

// Submission reports one job produced from an event.
type Submission struct {
	JobID   string `json:"job_id"`
	Created bool   `json:"created"`
}

// Receiver verifies and normalizes third-party events into job submissions.
// Job ids are derived from the event id, so a replayed event resolves to the
// job it already created instead of a duplicate.
type Receiver struct {
	verifier  *Verifier
	submitter *submit.Submitter
	logger    *slog.Logger
}

// NewReceiver creates a Receiver.
func NewReceiver(verifier *Verifier, submitter *submit.Submitter, logger *slog.Logger) *Receiver {
	return &Receiver{verifier: verifier, submitter: submitter, logger: logger}
}

// Handle verifies the signature over the raw body, then maps the event to
// zero or more job submissions. Signature mismatches fail closed with
// ErrInvalidSignature and produce no side effects; malformed bodies fail
// with ErrBadPayload after verification.
func (r *Receiver) Handle(ctx context.Context, rawBody []byte, signature string) ([]Submission, error) {
	if err := r.verifier.Verify(rawBody, signature); err != nil {
		return nil, err
	}

	var evt event
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if evt.ID == "" || evt.Kind == "" {
		return nil, fmt.Errorf("%w: id and kind are required", ErrBadPayload)
	}

	switch evt.Kind {
	case "repository.push":
		return r.submitOne(ctx, evt, domain.CategoryRepositoryAnalysis, mapPushEvent)
	case "meeting.recorded":
		return r.submitOne(ctx, evt, domain.CategoryMeetingProcessing, mapMeetingEvent)
	default:
		r.logger.Info("ignoring webhook event of unknown kind",
			slog.String("event_id", evt.ID),
			slog.String("kind", evt.Kind),
		)
		return nil, nil
	}
}

func (r *Receiver) submitOne(ctx context.Context, evt event, category domain.Category, mapData func(json.RawMessage) (json.RawMessage, error)) ([]Submission, error) {
	payload, err := mapData(evt.Data)
	if err != nil {
		return nil, err
	}

	jobID := domain.EventJobID(category, sanitizeEventID(evt.ID))
	job, created, err := r.submitter.SubmitWithID(ctx, category, payload, jobID)
	if err != nil {
		// A payload that fails category validation is a malformed event, not
		// a systemic failure; the boundary resolves it as such.
		if errors.Is(err, domain.ErrValidation) {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return nil, err
	}

	r.logger.Info("webhook event accepted",
		slog.String("event_id", evt.ID),
		slog.String("kind", evt.Kind),
		slog.String("job_id", job.ID),
		slog.Bool("created", created),
	)

	return []Submission{{JobID: job.ID, Created: created}}, nil
}

func mapPushEvent(data json.RawMessage) (json.RawMessage, error) {
	var d pushEventData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if d.RepositoryURL == "" {
		return nil, fmt.Errorf("%w: repository_url is required", ErrBadPayload)
	}

	payload, err := json.Marshal(map[string]string{
		"url":    d.RepositoryURL,
		"branch": d.Branch,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return payload, nil
}

func mapMeetingEvent(data json.RawMessage) (json.RawMessage, error) {
	var d struct {
		RecordingURL string `json:"recording_url"`
		Language     string `json:"language"`
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if d.RecordingURL == "" {
		return nil, fmt.Errorf("%w: recording_url is required", ErrBadPayload)
	}

	// Meeting event data already matches the meeting-processing payload.
	return data, nil
}

// sanitizeEventID keeps event-derived ids free of characters that would be
// awkward in URLs and routing keys.
func sanitizeEventID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, id)
}
