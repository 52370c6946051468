package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wonny/cbquant/internal/api/handlers"
	"github.com/wonny/cbquant/internal/strategyconfig"
	"github.com/wonny/cbquant/pkg/httputil"
)

// Client calls a remote cbquant API
type Client struct {
	baseURL string
	http    *httputil.Client
}

// NewClient creates a client for baseURL (e.g. http://backtest-host:8089)
func NewClient(baseURL string, httpClient *httputil.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Backtest runs one strategy remotely
func (c *Client) Backtest(ctx context.Context, req strategyconfig.BacktestRequest) (*handlers.BacktestResponse, error) {
	var out handlers.BacktestResponse
	if err := c.post(ctx, "/api/backtest", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Batch runs a batch remotely
func (c *Client) Batch(ctx context.Context, cfg strategyconfig.BatchConfig) (*handlers.BatchResponse, error) {
	var out handlers.BatchResponse
	if err := c.post(ctx, "/api/backtest/batch", cfg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the remote API answers
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.Get(ctx, c.baseURL+"/health")
	if err != nil {
		return fmt.Errorf("remote health check: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote health check: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, dest interface{}) error {
	resp, err := c.http.PostJSON(ctx, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("remote %s: %w", path, err)
	}

	err = httputil.DecodeJSON(resp, dest)
	var se *httputil.StatusError
	if errors.As(err, &se) {
		// 핸들러 오류 본문 {"error": "..."}
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal([]byte(se.Body), &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("remote %s: status %d: %s", path, se.StatusCode, apiErr.Error)
		}
	}
	if err != nil {
		return fmt.Errorf("remote %s: %w", path, err)
	}
	return nil
}
