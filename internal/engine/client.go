// Package engine is the thin client for the external execution engine.
// Loom only authors definitions; running them, scheduling them, and
// retrying their steps all happen on the other side of this client.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/loomworks/loom/pkg/schema"
)

// ExecutionStatus is the engine's acknowledgement of an execution request.
type ExecutionStatus struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// Runner is the interface the composer uses to hand a workflow to the
// engine.
type Runner interface {
	Execute(ctx context.Context, workflowID string, input map[string]any) (*ExecutionStatus, error)
}

// Client implements Runner over HTTP. Requests are one-shot: no retry loop
// lives here, and an abandoned in-flight request is harmless because the
// engine treats execution submission as idempotent per request.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates an engine client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Execute submits a saved workflow for execution with the given input.
func (c *Client) Execute(ctx context.Context, workflowID string, input map[string]any) (*ExecutionStatus, error) {
	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeEngine, "marshal execution input").WithCause(err)
	}

	url := c.baseURL + "/workflows/" + workflowID + "/executions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeEngine, "build execution request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeEngine, "execution request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, schema.NewErrorf(schema.ErrCodeEngine,
			"engine rejected execution of %q: status %d", workflowID, resp.StatusCode)
	}

	var status ExecutionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, schema.NewError(schema.ErrCodeEngine, "decode execution status").WithCause(err)
	}

	c.logger.Info("execution submitted", "workflow_id", workflowID, "execution_id", status.ExecutionID)
	return &status, nil
}
