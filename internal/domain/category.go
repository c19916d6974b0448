package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Category is the closed set of job kinds the system accepts. Adding a
// category means adding a constant and a definition below; nothing dispatches
// on raw strings outside this package.
type Category string

const (
	CategoryRepositoryAnalysis Category = "repository-analysis"
	CategoryQuestionAnswering  Category = "question-answering"
	CategoryMeetingProcessing  Category = "meeting-processing"
)

type categoryDef struct {
	prefix   string
	endpoint string
	validate func(payload json.RawMessage) error
}

var categoryDefs = map[Category]categoryDef{
	CategoryRepositoryAnalysis: {
		prefix:   "repo",
		endpoint: "repository",
		validate: validateRepositoryPayload,
	},
	CategoryQuestionAnswering: {
		prefix:   "qa",
		endpoint: "question",
		validate: validateQuestionPayload,
	},
	CategoryMeetingProcessing: {
		prefix:   "meet",
		endpoint: "meeting",
		validate: validateMeetingPayload,
	},
}

// Categories returns every known category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryRepositoryAnalysis,
		CategoryQuestionAnswering,
		CategoryMeetingProcessing,
	}
}

// Known reports whether c is one of the closed set of categories.
func (c Category) Known() bool {
	_, ok := categoryDefs[c]
	return ok
}

// Prefix is the short tag embedded in job ids for this category.
func (c Category) Prefix() string {
	return categoryDefs[c].prefix
}

// Endpoint is the URL slug for this category, used by the submission route
// (/process-<endpoint>) and the downstream worker path.
func (c Category) Endpoint() string {
	return categoryDefs[c].endpoint
}

// ValidatePayload checks that payload is well-formed for this category.
// Schema checks happen here at the submission boundary, not downstream.
func (c Category) ValidatePayload(payload json.RawMessage) error {
	def, ok := categoryDefs[c]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
	}
	return def.validate(payload)
}

type repositoryPayload struct {
	URL    string `json:"url"`
	Branch string `json:"branch"`
}

func validateRepositoryPayload(payload json.RawMessage) error {
	var p repositoryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := requireHTTPURL("url", p.URL); err != nil {
		return err
	}
	return nil
}

type questionPayload struct {
	Question  string `json:"question"`
	ContextID string `json:"context_id"`
}

func validateQuestionPayload(payload json.RawMessage) error {
	var p questionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if strings.TrimSpace(p.Question) == "" {
		return fmt.Errorf("%w: question is required", ErrValidation)
	}
	return nil
}

type meetingPayload struct {
	RecordingURL string `json:"recording_url"`
	Language     string `json:"language"`
}

func validateMeetingPayload(payload json.RawMessage) error {
	var p meetingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := requireHTTPURL("recording_url", p.RecordingURL); err != nil {
		return err
	}
	return nil
}

func requireHTTPURL(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	u, err := url.Parse(value)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %s must be an absolute http(s) URL", ErrValidation, field)
	}
	return nil
}
