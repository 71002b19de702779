// Package client is a Go client for the wayfinder HTTP API.
//
//	c := client.New("http://localhost:8080", "")
//	resp, err := c.Plan(ctx, types.PlanRequest{Message: "3 days in Tokyo"})
//
// Requests that fail with a network error or a 5xx status are retried with
// a fixed delay. 4xx responses are returned immediately as *APIError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// Client talks to a wayfinder server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	userAgent  string
}

// Config tunes retries and timeouts.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	RetryDelay time.Duration
	// Timeout bounds a single attempt.
	Timeout   time.Duration
	UserAgent string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// New creates a client with the default configuration.
func New(baseURL, apiKey string) *Client {
	return NewWithConfig(baseURL, apiKey, DefaultConfig())
}

// NewWithConfig creates a client. A nil cfg uses DefaultConfig.
func NewWithConfig(baseURL, apiKey string, cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		userAgent:  cfg.UserAgent,
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode  int
	Code        string
	Message     string
	Suggestions []string
	RequestID   string
}

func (e *APIError) Error() string {
	prefix := fmt.Sprintf("wayfinder API error (status %d", e.StatusCode)
	if e.RequestID != "" {
		prefix += ", request_id " + e.RequestID
	}
	if e.Code != "" {
		return fmt.Sprintf("%s): %s: %s", prefix, e.Code, e.Message)
	}
	return fmt.Sprintf("%s): %s", prefix, e.Message)
}

// NotFound reports whether the server answered 404.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err is a 404 APIError.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

// HealthResponse is the body of the readiness probe.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Health fails unless the server reports itself healthy or degraded.
func (c *Client) Health(ctx context.Context) error {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health/ready", nil, &resp); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.Status != "healthy" && resp.Status != "degraded" {
		return fmt.Errorf("server reported unhealthy status: %s", resp.Status)
	}
	return nil
}

// Plan submits a planning request.
func (c *Client) Plan(ctx context.Context, req types.PlanRequest) (*types.PlanResponse, error) {
	var resp types.PlanResponse
	if err := c.do(ctx, http.MethodPost, "/plan", req, &resp); err != nil {
		return nil, fmt.Errorf("plan failed: %w", err)
	}
	return &resp, nil
}

// Task polls an enrichment task.
func (c *Client) Task(ctx context.Context, id string) (types.TaskView, error) {
	var view types.TaskView
	if err := c.do(ctx, http.MethodGet, "/task/"+url.PathEscape(id), nil, &view); err != nil {
		return types.TaskView{}, fmt.Errorf("task status failed: %w", err)
	}
	return view, nil
}

// WaitTask polls id every interval until it reaches a terminal status or
// ctx ends.
func (c *Client) WaitTask(ctx context.Context, id string, interval time.Duration, onPoll func(types.TaskView)) (types.TaskView, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		view, err := c.Task(ctx, id)
		if err != nil {
			return view, err
		}
		if onPoll != nil {
			onPoll(view)
		}
		if view.Status.Terminal() {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SaveItinerary stores a plan remotely. Saving the same LocalID twice
// returns the same remote id.
func (c *Client) SaveItinerary(ctx context.Context, req types.SaveItineraryRequest) (string, error) {
	var resp types.SaveItineraryResponse
	if err := c.do(ctx, http.MethodPost, "/itinerary", req, &resp); err != nil {
		return "", fmt.Errorf("save itinerary failed: %w", err)
	}
	return resp.RemoteID, nil
}

// ListItineraries returns saved plans, newest first.
func (c *Client) ListItineraries(ctx context.Context) ([]types.Itinerary, error) {
	var resp types.ItineraryList
	if err := c.do(ctx, http.MethodGet, "/itinerary", nil, &resp); err != nil {
		return nil, fmt.Errorf("list itineraries failed: %w", err)
	}
	return resp.Items, nil
}

func (c *Client) DeleteItinerary(ctx context.Context, remoteID string) error {
	if err := c.do(ctx, http.MethodDelete, "/itinerary/"+url.PathEscape(remoteID), nil, nil); err != nil {
		return fmt.Errorf("delete itinerary failed: %w", err)
	}
	return nil
}

// do performs a request with retries. out may be nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		err := c.attempt(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("request cancelled: %w", err)
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError understands the server's error envelope and falls back to a
// plain {"error": "..."} body or the raw text.
func decodeError(resp *http.Response, raw []byte) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-ID"),
	}
	var envelope types.ErrorBody
	var flat struct {
		Error string `json:"error"`
	}
	switch {
	case json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "":
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Suggestions = envelope.Error.Suggestions
	case json.Unmarshal(raw, &flat) == nil && flat.Error != "":
		apiErr.Message = flat.Error
	default:
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}
