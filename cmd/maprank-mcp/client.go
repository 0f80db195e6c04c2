package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/use-agent/maprank/models"
)

// apiClient calls the maprank HTTP API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client

	// pollInterval is the wait between batch status checks.
	pollInterval time.Duration
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL:      baseURL,
		apiKey:       apiKey,
		http:         &http.Client{Timeout: 10 * time.Minute},
		pollInterval: 2 * time.Second,
	}
}

// post sends payload as JSON and returns the response body.
func (c *apiClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// get fetches path and returns the response body.
func (c *apiClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *apiClient) do(req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var e models.ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != nil {
			return nil, fmt.Errorf("[%s] %s", e.Error.Code, e.Error.Message)
		}
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	return body, nil
}

// waitForBatch polls the batch until it leaves the processing state or ctx
// is canceled.
func (c *apiClient) waitForBatch(ctx context.Context, id string) (*models.BatchStatusResponse, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := c.get(ctx, "/api/v1/batch/"+id)
			if err != nil {
				return nil, fmt.Errorf("poll batch: %w", err)
			}
			var st models.BatchStatusResponse
			if err := json.Unmarshal(body, &st); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if st.Status != models.StatusProcessing {
				return &st, nil
			}
		}
	}
}
