package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Dashboard is the subset of dashboard metadata the plugin consumes
type Dashboard struct {
	UID    string          `json:"uid"`
	Title  string          `json:"title"`
	Panels json.RawMessage `json:"panels"`
}

// Client fetches dashboard metadata from the Grafana HTTP API
type Client struct {
	baseURL    string
	httpClient *resty.Client
}

// NewClient creates a dashboard metadata client for the given Grafana
// instance. The token is sent as a Bearer authorization header.
func NewClient(baseURL, apiToken string) *Client {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	if apiToken != "" {
		client.SetAuthToken(apiToken)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: client,
	}
}

// Dashboard retrieves full dashboard metadata by UID
func (c *Client) Dashboard(ctx context.Context, uid string) (*Dashboard, error) {
	if uid == "" {
		return nil, fmt.Errorf("dashboard UID is required")
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		Get(c.baseURL + "/api/dashboards/uid/" + uid)

	if err != nil {
		return nil, fmt.Errorf("failed to fetch dashboard %s: %w", uid, err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("dashboard fetch for %s failed with status: %d", uid, resp.StatusCode())
	}

	var result struct {
		Dashboard Dashboard `json:"dashboard"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse dashboard response: %w", err)
	}

	return &result.Dashboard, nil
}

// Health checks Grafana API connectivity
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(c.baseURL + "/api/health")

	if err != nil {
		return fmt.Errorf("failed to reach Grafana: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Grafana health check failed with status: %d", resp.StatusCode())
	}

	return nil
}
