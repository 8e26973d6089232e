// Package provider is the HTTP client for the AI prediction service.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	httpclient "avatar-transformer/internal/common/http"
	"avatar-transformer/internal/common/logger"
	"avatar-transformer/internal/common/metrics"
	"avatar-transformer/internal/models"
)

const (
	OperationRun    = "run"
	OperationStatus = "status"
)

// Inputs are the model inputs for a face-to-model prediction.
type Inputs struct {
	FaceImage   string `json:"face_image"`
	Seed        uint32 `json:"seed"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

type RunRequest struct {
	ModelName string `json:"model_name"`
	Inputs    Inputs `json:"inputs"`
}

// RunResponse is the provider's reply to a submission. Output is only set
// when the provider answers with a finished prediction.
type RunResponse struct {
	ID     string                  `json:"id"`
	Status models.PredictionStatus `json:"status,omitempty"`
	Output []string                `json:"output,omitempty"`
	Error  *models.PredictionError `json:"error,omitempty"`
}

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// API is what the transformation and polling layers consume.
type API interface {
	Run(ctx context.Context, req RunRequest) (*RunResponse, error)
	Status(ctx context.Context, id string) (*models.PredictionJob, error)
}

type ClientDependencies struct {
	Logger     logger.Logger
	HTTPClient *httpclient.Client
}

type Client struct {
	config *Config
	logger logger.Logger
	client *httpclient.Client
}

func NewClient(deps ClientDependencies, config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("provider config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = httpclient.NewClient(config.Timeout)
	}
	return &Client{
		config: config,
		logger: deps.Logger.WithFields(map[string]interface{}{"component": "provider"}),
		client: deps.HTTPClient,
	}, nil
}

// Run submits a prediction.
func (c *Client) Run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode run request: %w", err)
	}

	var out RunResponse
	if err := c.do(ctx, OperationRun, http.MethodPost, "/run", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	c.logger.Debug("prediction submitted", map[string]interface{}{"jobId": out.ID, "model": req.ModelName})
	return &out, nil
}

// Status fetches the current state of a prediction.
func (c *Client) Status(ctx context.Context, id string) (*models.PredictionJob, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("prediction id is required")
	}

	var out models.PredictionJob
	if err := c.do(ctx, OperationStatus, http.MethodGet, "/status/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(operation, "error").Inc()
		return fmt.Errorf("provider %s: %w", operation, err)
	}
	defer resp.Body.Close()
	metrics.ProviderRequests.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("provider %s: read body: %w", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("provider rejected request", map[string]interface{}{
			"operation": operation,
			"status":    resp.StatusCode,
			"body":      string(raw),
		})
		return &HTTPError{Operation: operation, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("provider %s: decode response: %w", operation, err)
	}
	return nil
}
