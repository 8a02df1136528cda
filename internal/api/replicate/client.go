// Package replicate is a minimal HTTP client for the Replicate predictions
// API. Replicate has no incremental token streaming; callers create a
// prediction and poll it to a terminal status.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL      = "https://api.replicate.com"
	defaultPollInterval = 500 * time.Millisecond
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithPollInterval sets the polling cadence for Wait.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// Client is an HTTP client for the Replicate API.
type Client struct {
	apiToken     string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewClient creates a new client.
func NewClient(apiToken string, opts ...ClientOption) *Client {
	c := &Client{
		apiToken:     apiToken,
		baseURL:      defaultBaseURL,
		httpClient:   http.DefaultClient,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PredictionInput is the model input for a chat-style prediction.
type PredictionInput struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// Prediction is the prediction resource.
type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
	Metrics *struct {
		InputTokenCount  int `json:"input_token_count,omitempty"`
		OutputTokenCount int `json:"output_token_count,omitempty"`
	} `json:"metrics,omitempty"`
}

// Terminal reports whether the prediction reached a final status.
func (p *Prediction) Terminal() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// OutputText joins the prediction output into one string. Language models
// return either a string or an array of string fragments.
func (p *Prediction) OutputText() string {
	if len(p.Output) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		return single
	}
	var parts []string
	if err := json.Unmarshal(p.Output, &parts); err == nil {
		return strings.Join(parts, "")
	}
	return ""
}

// CreatePrediction starts a prediction against a model identified as
// "owner/name".
func (c *Client) CreatePrediction(ctx context.Context, model string, input PredictionInput) (*Prediction, error) {
	url := fmt.Sprintf("%s/v1/models/%s/predictions", c.baseURL, model)

	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	return c.do(httpReq)
}

// GetPrediction fetches the current state of a prediction.
func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	url := fmt.Sprintf("%s/v1/predictions/%s", c.baseURL, id)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	return c.do(httpReq)
}

// Wait polls the prediction until it reaches a terminal status or the
// context is canceled.
func (c *Client) Wait(ctx context.Context, id string) (*Prediction, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		pred, err := c.GetPrediction(ctx, id)
		if err != nil {
			return nil, err
		}
		if pred.Terminal() {
			return pred, nil
		}
	}
}

func (c *Client) do(httpReq *http.Request) (*Prediction, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errResp struct {
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Detail != "" {
			return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, errResp.Detail)
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var pred Prediction
	if err := json.Unmarshal(respBody, &pred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &pred, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("User-Agent", "chatrelay/1.0")
}
