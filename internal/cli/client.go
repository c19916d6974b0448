package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIClient is a thin HTTP client for the api-service.
type APIClient struct {
	baseURL *string
	client  *http.Client
}

// NewAPIClient creates an APIClient. baseURL is a pointer so the root
// command's flag can be bound before commands run.
func NewAPIClient(baseURL *string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *APIClient) postJSON(path string, body []byte) (int, map[string]any, error) {
	resp, err := c.client.Post(*c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	return parseResponse(resp)
}

func (c *APIClient) get(path string) (int, map[string]any, error) {
	resp, err := c.client.Get(*c.baseURL + path)
	if err != nil {
		return 0, nil, err
	}
	return parseResponse(resp)
}

func parseResponse(resp *http.Response) (int, map[string]any, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("unparseable response: %s", raw)
	}
	return resp.StatusCode, parsed, nil
}
