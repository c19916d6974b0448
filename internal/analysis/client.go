package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/insightq/analysis-jobs/internal/domain"
)

// Client calls the downstream analysis worker over HTTP. The worker's
// internals are opaque; this client only moves the payload across and
// classifies the outcome as success, transient failure, or permanent
// rejection.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client with a bounded per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	JobID    string          `json:"job_id"`
	Category domain.Category `json:"category"`
	Payload  json.RawMessage `json:"payload"`
}

type analyzeResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// Analyze submits the job to the worker and returns the result reference.
// Transport errors, timeouts, 5xx, 408 and 429 come back as transient;
// any other non-2xx is a permanent rejection.
func (c *Client) Analyze(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	body, err := json.Marshal(analyzeRequest{
		JobID:    job.ID,
		Category: job.Category,
		Payload:  job.Payload,
	})
	if err != nil {
		return nil, domain.NewPermanentError(fmt.Errorf("failed to marshal request: %w", err))
	}

	url := c.baseURL + "/v1/analyze/" + job.Category.Endpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewPermanentError(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.NewTransientError(fmt.Errorf("worker call failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.NewTransientError(fmt.Errorf("failed to read worker response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed analyzeResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, domain.NewTransientError(fmt.Errorf("unparseable worker response: %w", err))
		}
		return parsed.Result, nil

	case isTransientStatus(resp.StatusCode):
		return nil, domain.NewTransientError(fmt.Errorf("worker returned %d: %s", resp.StatusCode, workerError(respBody)))

	default:
		return nil, domain.NewPermanentError(fmt.Errorf("worker rejected job: %d: %s", resp.StatusCode, workerError(respBody)))
	}
}

func isTransientStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

func workerError(body []byte) string {
	var parsed analyzeResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return string(body)
}
