package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// ParameterScore is a single health parameter returned by the model service.
type ParameterScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Result is the prediction payload returned by the model service.
type Result struct {
	HealthIndex    float64          `json:"healthIndex"`
	AllParameters  []ParameterScore `json:"allParameters"`
	ProvidedImages json.RawMessage  `json:"providedImages"`
	GradcamImages  json.RawMessage  `json:"gradcamImages"`
}

// Client submits prediction requests to the model service.
type Client interface {
	Predict(ctx context.Context, contentType string, body io.Reader) (*Result, error)
}

// Config holds the model service connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient is the production Client backed by net/http.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient constructs a Client for the model service at cfg.BaseURL.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("inference: base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPClient{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Predict forwards a multipart payload to the model service and decodes the
// prediction response. The body is streamed through unmodified.
func (c *HTTPClient) Predict(ctx context.Context, contentType string, body io.Reader) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("inference: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference: model service returned %d: %s", resp.StatusCode, readErrorDetail(resp.Body))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("inference: decode response: %w", err)
	}

	return &result, nil
}

func readErrorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "no detail"
	}

	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}

	return strings.TrimSpace(string(raw))
}
