// Package adaptive implements a thin, bounded HTTP client that asks an
// external optimization service for per-task
// recommendations, falling back to fixed defaults whenever that service is
// slow, unreachable, or returns a malformed response.
package adaptive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

// Client queries the adaptive-optimization service for task recommendations.
// It never returns an error to its caller: on any failure it logs and
// returns models.DefaultRecommendations(), since adaptive tuning is an
// enhancement, never a dependency the critical path can block on.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *slog.Logger
}

// Config configures a new Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New builds a Client. Timeout defaults to 5 seconds, the hard cap on how
// long the coordinator will wait for adaptive input.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		log:        slog.With("component", "adaptive"),
	}
}

type recommendRequest struct {
	TaskID       string `json:"task_id"`
	Query        string `json:"query"`
	TemplateName string `json:"template_name"`
}

// Recommend asks the adaptive service for recommendations for a task about
// to execute. ctx's deadline is honored but never extended past the
// client's own timeout.
func (c *Client) Recommend(ctx context.Context, taskID, query, templateName string) models.Recommendations {
	if c.baseURL == "" {
		return models.DefaultRecommendations()
	}

	body, err := json.Marshal(recommendRequest{TaskID: taskID, Query: query, TemplateName: templateName})
	if err != nil {
		c.log.Warn("failed to marshal recommend request, using defaults", "task_id", taskID, "error", err)
		return models.DefaultRecommendations()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/recommendations", bytes.NewReader(body))
	if err != nil {
		c.log.Warn("failed to build recommend request, using defaults", "task_id", taskID, "error", err)
		return models.DefaultRecommendations()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("adaptive service unreachable, using defaults", "task_id", taskID, "error", err)
		return models.DefaultRecommendations()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("adaptive service returned non-200, using defaults",
			"task_id", taskID, "status", resp.StatusCode)
		return models.DefaultRecommendations()
	}

	var rec models.Recommendations
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		c.log.Warn("adaptive service returned malformed body, using defaults", "task_id", taskID, "error", err)
		return models.DefaultRecommendations()
	}

	return rec
}

// ReportOutcome sends the realized stage performance back to the adaptive
// service after a task completes, for future recommendation tuning. Failures
// are logged and otherwise swallowed — this is fire-and-forget telemetry,
// never load-bearing for task completion.
func (c *Client) ReportOutcome(ctx context.Context, taskID string, outcome map[string]any) {
	if c.baseURL == "" {
		return
	}

	body, err := json.Marshal(outcome)
	if err != nil {
		c.log.Warn("failed to marshal outcome report", "task_id", taskID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/tasks/%s/outcome", c.baseURL, taskID), bytes.NewReader(body))
	if err != nil {
		c.log.Warn("failed to build outcome report request", "task_id", taskID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("failed to report outcome", "task_id", taskID, "error", err)
		return
	}
	_ = resp.Body.Close()
}
