package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/benchscale/benchscale/internal/api"
	"github.com/benchscale/benchscale/internal/database"
	"github.com/benchscale/benchscale/internal/report"
)

// Client wraps HTTP calls to the benchscale API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given base URL (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
}

// ListWorkloads fetches GET /api/v1/workloads.
func (c *Client) ListWorkloads(ctx context.Context) ([]api.WorkloadInfo, error) {
	var out []api.WorkloadInfo
	if err := c.doGet(ctx, c.baseURL+"/api/v1/workloads", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRuns queries GET /api/v1/runs with optional filters.
func (c *Client) ListRuns(ctx context.Context, f database.RunFilter) ([]database.DataItem, error) {
	params := url.Values{}
	if f.Workload != "" {
		params.Set("workload", f.Workload)
	}
	if f.Mode != "" {
		params.Set("mode", string(f.Mode))
	}
	if f.Revision != "" {
		params.Set("revision", f.Revision)
	}
	if f.HardwareID != "" {
		params.Set("hardware", f.HardwareID)
	}

	u := c.baseURL + "/api/v1/runs"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var items []database.DataItem
	if err := c.doGet(ctx, u, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// AppendRun submits POST /api/v1/runs.
func (c *Client) AppendRun(ctx context.Context, mode database.Mode, item database.DataItem) error {
	return c.doPost(ctx, "/api/v1/runs", api.AppendRunRequest{Mode: mode, Item: item}, nil)
}

// Normalized fetches GET /api/v1/workloads/{name}/normalized.
func (c *Client) Normalized(ctx context.Context, name string) (*api.NormalizedResponse, error) {
	var resp api.NormalizedResponse
	if err := c.doGet(ctx, c.baseURL+"/api/v1/workloads/"+url.PathEscape(name)+"/normalized", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WorkloadReport fetches GET /api/v1/workloads/{name}/report.
func (c *Client) WorkloadReport(ctx context.Context, name string) ([]report.Row, error) {
	var rows []report.Row
	if err := c.doGet(ctx, c.baseURL+"/api/v1/workloads/"+url.PathEscape(name)+"/report", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListScaling fetches GET /api/v1/scaling. An empty workload lists all items.
func (c *Client) ListScaling(ctx context.Context, workload string) ([]database.ScalingItem, error) {
	u := c.baseURL + "/api/v1/scaling"
	if workload != "" {
		u += "?" + url.Values{"workload": {workload}}.Encode()
	}
	var items []database.ScalingItem
	if err := c.doGet(ctx, u, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// AppendScaling submits POST /api/v1/scaling and returns how many items
// were appended.
func (c *Client) AppendScaling(ctx context.Context, items []database.ScalingItem) (int, error) {
	var result struct {
		Appended int `json:"appended"`
	}
	if err := c.doPost(ctx, "/api/v1/scaling", items, &result); err != nil {
		return 0, err
	}
	return result.Appended, nil
}

func (c *Client) doGet(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.readError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) doPost(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return c.readError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) readError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("API error %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
}
