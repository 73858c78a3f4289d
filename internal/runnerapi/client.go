// Package runnerapi is the REST client for the backend job runner's
// control endpoints: starting and stopping executions and fetching
// execution plans. The runner itself is a black box.
package runnerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stackmesh/runboard/internal/domain"
)

// Client talks to the runner's REST API
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the given base URL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// StreamURL returns the WebSocket endpoint for a run's event stream
func (c *Client) StreamURL(runID string) string {
	ws := c.baseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return ws + "/api/runs/" + url.PathEscape(runID) + "/stream"
}

type startRequest struct {
	Spec   string `json:"spec"`
	RunID  string `json:"run_id"`
	DryRun bool   `json:"dry_run"`
}

type controlResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// StartExecution asks the runner to start executing a spec
func (c *Client) StartExecution(ctx context.Context, spec, runID string, dryRun bool) error {
	var resp controlResponse
	err := c.post(ctx, "/api/executions", startRequest{Spec: spec, RunID: runID, DryRun: dryRun}, &resp)
	if err != nil {
		return err
	}
	if !resp.Success {
		if resp.Message != "" {
			return fmt.Errorf("runner rejected execution: %s", resp.Message)
		}
		return fmt.Errorf("runner rejected execution")
	}
	return nil
}

// StopExecution asks the runner to stop a run
func (c *Client) StopExecution(ctx context.Context, runID string) error {
	var resp controlResponse
	err := c.post(ctx, "/api/executions/"+url.PathEscape(runID)+"/stop", nil, &resp)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("runner refused to stop run %s", runID)
	}
	return nil
}

// FetchPlan retrieves the execution plan for a spec
func (c *Client) FetchPlan(ctx context.Context, spec string) (*domain.Plan, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/specs/"+url.PathEscape(spec)+"/plan", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching plan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching plan: runner returned %d", resp.StatusCode)
	}

	var plan domain.Plan
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	if plan.Spec == "" {
		plan.Spec = spec
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: runner returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
