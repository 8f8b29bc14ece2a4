package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 120 * time.Second

// HTTPClient talks to the superglue REST API with bearer-token auth.
type HTTPClient struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
	logger   *zap.Logger
}

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// NewHTTPClient creates a client for the given endpoint.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpc:    &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("do: marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("do: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("do: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("do: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var parsed struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(data, &parsed); err == nil {
			if parsed.Message != "" {
				apiErr.Message = parsed.Message
			} else if parsed.Error != "" {
				apiErr.Message = parsed.Error
			}
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("do: decode response: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) BuildTool(ctx context.Context, instruction string, systemIDs []string, payload map[string]any) (*ToolConfig, error) {
	body := map[string]any{
		"instruction": instruction,
		"systemIds":   systemIDs,
	}
	if payload != nil {
		body["payload"] = payload
	}
	var cfg ToolConfig
	if err := c.do(ctx, http.MethodPost, "/tools/build", nil, body, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *HTTPClient) FixTool(ctx context.Context, config *ToolConfig, failure string) (*ToolConfig, error) {
	body := map[string]any{
		"tool":  config,
		"error": failure,
	}
	var cfg ToolConfig
	if err := c.do(ctx, http.MethodPost, "/tools/fix", nil, body, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *HTTPClient) RunTool(ctx context.Context, config *ToolConfig, payload map[string]any) (*Run, error) {
	body := map[string]any{
		"tool":   config,
		"inputs": payload,
	}
	var run Run
	if err := c.do(ctx, http.MethodPost, "/tools/run", nil, body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *HTTPClient) UpsertTool(ctx context.Context, config *ToolConfig) (*ToolConfig, error) {
	var cfg ToolConfig
	if err := c.do(ctx, http.MethodPut, "/tools/"+url.PathEscape(config.ID), nil, config, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *HTTPClient) GetTool(ctx context.Context, id string) (*ToolConfig, error) {
	var cfg ToolConfig
	if err := c.do(ctx, http.MethodGet, "/tools/"+url.PathEscape(id), nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *HTTPClient) DeleteTool(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tools/"+url.PathEscape(id), nil, nil, nil)
}

func (c *HTTPClient) ListTools(ctx context.Context, query string, limit int) ([]ToolConfig, error) {
	q := url.Values{}
	if query != "" {
		q.Set("query", query)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var page struct {
		Items []ToolConfig `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/tools", q, nil, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (c *HTTPClient) UpsertSystem(ctx context.Context, system *System) (*System, error) {
	var sys System
	if err := c.do(ctx, http.MethodPut, "/systems/"+url.PathEscape(system.ID), nil, system, &sys); err != nil {
		return nil, err
	}
	return &sys, nil
}

func (c *HTTPClient) GetSystem(ctx context.Context, id string) (*System, error) {
	var sys System
	if err := c.do(ctx, http.MethodGet, "/systems/"+url.PathEscape(id), nil, nil, &sys); err != nil {
		return nil, err
	}
	return &sys, nil
}

func (c *HTTPClient) DeleteSystem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/systems/"+url.PathEscape(id), nil, nil, nil)
}

func (c *HTTPClient) ListSystems(ctx context.Context, query string, limit int) ([]System, error) {
	q := url.Values{}
	if query != "" {
		q.Set("query", query)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var page struct {
		Items []System `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/systems", q, nil, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (c *HTTPClient) CallEndpoint(ctx context.Context, req *EndpointRequest) (*EndpointResponse, error) {
	var resp EndpointResponse
	if err := c.do(ctx, http.MethodPost, "/systems/"+url.PathEscape(req.SystemID)+"/call", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) ExecuteStep(ctx context.Context, step *ToolStep, payload map[string]any) (*StepResult, error) {
	body := map[string]any{
		"step":   step,
		"inputs": payload,
	}
	var result StepResult
	if err := c.do(ctx, http.MethodPost, "/steps/execute", nil, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) ListRuns(ctx context.Context, toolID string, status RunStatus, limit int, cursor string) (*RunPage, error) {
	q := url.Values{}
	if toolID != "" {
		q.Set("toolId", toolID)
	}
	if status != "" {
		q.Set("status", string(status))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var page RunPage
	if err := c.do(ctx, http.MethodGet, "/runs", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *HTTPClient) CancelRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodPost, "/runs/"+url.PathEscape(runID)+"/cancel", nil, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *HTTPClient) SearchDocumentation(ctx context.Context, systemID, query string) ([]DocHit, error) {
	q := url.Values{}
	q.Set("query", query)
	var out struct {
		Items []DocHit `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/systems/"+url.PathEscape(systemID)+"/documentation", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}
