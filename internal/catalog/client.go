// Package catalog reads the environment and agent catalogs used to populate
// step configuration choices. Catalog failures degrade to the last good
// snapshot (or an empty one) and never block graph editing.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Environment is one entry of the environment catalog.
type Environment struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Kind     string         `json:"kind,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Agent is one entry of the agent catalog.
type Agent struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Skills      []string `json:"skills,omitempty"`
}

// Client fetches catalogs from the backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	mu         sync.RWMutex
	lastEnvs   []Environment
	lastAgents []Agent
}

// NewClient creates a catalog client for the given backend base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// ListEnvironments returns the environment catalog. On failure it logs and
// returns the last successfully fetched catalog, which may be empty.
func (c *Client) ListEnvironments(ctx context.Context) []Environment {
	var envs []Environment
	if err := c.getJSON(ctx, "/environments", &envs); err != nil {
		c.logger.Warn("environment catalog unavailable, using last snapshot", "error", err)
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.lastEnvs
	}
	c.mu.Lock()
	c.lastEnvs = envs
	c.mu.Unlock()
	return envs
}

// ListAgents returns the agent catalog with the same degradation policy.
func (c *Client) ListAgents(ctx context.Context) []Agent {
	var agents []Agent
	if err := c.getJSON(ctx, "/agents", &agents); err != nil {
		c.logger.Warn("agent catalog unavailable, using last snapshot", "error", err)
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.lastAgents
	}
	c.mu.Lock()
	c.lastAgents = agents
	c.mu.Unlock()
	return agents
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
