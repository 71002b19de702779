package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

func fastConfig(retries int) *Config {
	return &Config{
		MaxRetries: retries,
		RetryDelay: 10 * time.Millisecond,
		Timeout:    5 * time.Second,
	}
}

func TestNew(t *testing.T) {
	client := New("http://localhost:8080/", "test-key")

	if client.baseURL != "http://localhost:8080" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.baseURL)
	}
	if client.apiKey != "test-key" {
		t.Errorf("Expected apiKey test-key, got %s", client.apiKey)
	}
	if client.maxRetries != 3 {
		t.Errorf("Expected maxRetries 3, got %d", client.maxRetries)
	}
	if client.httpClient == nil {
		t.Error("Expected httpClient to be initialized")
	}
}

func TestNewWithConfig_NilConfig(t *testing.T) {
	client := NewWithConfig("http://localhost:8080", "", nil)

	if client.maxRetries != 3 {
		t.Errorf("Expected default maxRetries 3, got %d", client.maxRetries)
	}
	if client.retryDelay != time.Second {
		t.Errorf("Expected default retryDelay 1s, got %v", client.retryDelay)
	}
}

func TestAPIError_Error(t *testing.T) {
	t.Run("with request ID and code", func(t *testing.T) {
		err := &APIError{StatusCode: 404, Code: "STORE-003", Message: "itinerary not found", RequestID: "req-123"}

		expected := "wayfinder API error (status 404, request_id req-123): STORE-003: itinerary not found"
		if err.Error() != expected {
			t.Errorf("Expected error message %q, got %q", expected, err.Error())
		}
	})

	t.Run("plain", func(t *testing.T) {
		err := &APIError{StatusCode: 500, Message: "boom"}

		expected := "wayfinder API error (status 500): boom"
		if err.Error() != expected {
			t.Errorf("Expected error message %q, got %q", expected, err.Error())
		}
	})
}

func TestHealth_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET request, got %s", r.Method)
		}
		if r.URL.Path != "/health/ready" {
			t.Errorf("Expected path /health/ready, got %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("Expected X-API-Key header 'test-key', got %s", r.Header.Get("X-API-Key"))
		}
		if r.Header.Get("User-Agent") != "wayfinder-cli/test" {
			t.Errorf("Expected User-Agent wayfinder-cli/test, got %s", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(HealthResponse{Status: "healthy", Version: "1.0.0"})
	}))
	defer server.Close()

	cfg := fastConfig(0)
	cfg.UserAgent = "wayfinder-cli/test"
	if err := NewWithConfig(server.URL, "test-key", cfg).Health(context.Background()); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestHealth_Unhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthResponse{Status: "starting"})
	}))
	defer server.Close()

	err := New(server.URL, "").Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unhealthy status") {
		t.Errorf("Expected 'unhealthy status' error, got %v", err)
	}
}

func TestPlan_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/plan" {
			t.Errorf("Expected POST /plan, got %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-API-Key") != "" {
			t.Errorf("Expected no X-API-Key header without a key")
		}

		var req types.PlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Message != "3 days in Tokyo" {
			t.Errorf("Expected message to round-trip, got %q", req.Message)
		}

		json.NewEncoder(w).Encode(types.PlanResponse{
			Status:     types.PlanStatusOK,
			Plan:       &types.Plan{Destination: "Tokyo"},
			TaskHandle: "task-1",
		})
	}))
	defer server.Close()

	resp, err := New(server.URL, "").Plan(context.Background(), types.PlanRequest{Message: "3 days in Tokyo"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.Plan == nil || resp.Plan.Destination != "Tokyo" {
		t.Errorf("Expected plan for Tokyo, got %+v", resp.Plan)
	}
	if resp.TaskHandle != "task-1" {
		t.Errorf("Expected task handle task-1, got %s", resp.TaskHandle)
	}
}

func TestPlan_ErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", "req-9")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(types.ErrorBody{Error: types.ErrorDetail{
			Code:        "VALIDATION-002",
			Message:     "message is required",
			Suggestions: []string{"describe your trip"},
		}})
	}))
	defer server.Close()

	_, err := NewWithConfig(server.URL, "", fastConfig(3)).Plan(context.Background(), types.PlanRequest{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.Code != "VALIDATION-002" || apiErr.RequestID != "req-9" {
		t.Errorf("Unexpected error fields: %+v", apiErr)
	}
	if len(apiErr.Suggestions) != 1 {
		t.Errorf("Expected suggestions to be decoded, got %v", apiErr.Suggestions)
	}
}

func TestTaskAndWait(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/task/abc" {
			t.Errorf("Expected path /task/abc, got %s", r.URL.Path)
		}
		view := types.TaskView{ID: "abc", Status: types.TaskGenerating}
		if polls.Add(1) >= 3 {
			view.Status = types.TaskCompleted
			view.AssetRefs = &types.AssetRefs{PosterURL: "https://cdn/poster.png"}
		}
		json.NewEncoder(w).Encode(view)
	}))
	defer server.Close()

	var seen []types.TaskStatus
	view, err := New(server.URL, "").WaitTask(context.Background(), "abc", 5*time.Millisecond, func(v types.TaskView) {
		seen = append(seen, v.Status)
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if view.Status != types.TaskCompleted || view.AssetRefs == nil {
		t.Errorf("Expected completed task with assets, got %+v", view)
	}
	if len(seen) != 3 {
		t.Errorf("Expected 3 polls, got %v", seen)
	}
}

func TestItineraries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /itinerary", func(w http.ResponseWriter, r *http.Request) {
		var req types.SaveItineraryRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(types.SaveItineraryResponse{RemoteID: "remote-" + req.LocalID})
	})
	mux.HandleFunc("GET /itinerary", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.ItineraryList{Items: []types.Itinerary{{RemoteID: "remote-1", Destination: "Kyoto"}}})
	})
	mux.HandleFunc("DELETE /itinerary/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "remote-1" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(types.ErrorBody{Error: types.ErrorDetail{Code: "STORE-003", Message: "not found"}})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewWithConfig(server.URL, "", fastConfig(1))
	ctx := context.Background()

	id, err := client.SaveItinerary(ctx, types.SaveItineraryRequest{LocalID: "1", Destination: "Kyoto"})
	if err != nil || id != "remote-1" {
		t.Fatalf("SaveItinerary = %q, %v", id, err)
	}

	items, err := client.ListItineraries(ctx)
	if err != nil || len(items) != 1 || items[0].Destination != "Kyoto" {
		t.Fatalf("ListItineraries = %+v, %v", items, err)
	}

	if err := client.DeleteItinerary(ctx, "remote-1"); err != nil {
		t.Errorf("DeleteItinerary: %v", err)
	}
	if err := client.DeleteItinerary(ctx, "missing"); !IsNotFound(err) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestRetryLogic_Success(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": "Service temporarily unavailable"})
			return
		}
		json.NewEncoder(w).Encode(HealthResponse{Status: "healthy"})
	}))
	defer server.Close()

	err := NewWithConfig(server.URL, "test-key", fastConfig(3)).Health(context.Background())
	if err != nil {
		t.Errorf("Expected success after retries, got error: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestRetryLogic_ExhaustedRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "Service unavailable"})
	}))
	defer server.Close()

	err := NewWithConfig(server.URL, "test-key", fastConfig(2)).Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
		t.Errorf("Expected 'max retries exceeded' error, got %v", err)
	}
	if !strings.Contains(err.Error(), "status 503") {
		t.Errorf("Expected last status in error, got %v", err)
	}
	// initial + 2 retries
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestRetryLogic_NoRetryOn4xx(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid request"})
	}))
	defer server.Close()

	err := NewWithConfig(server.URL, "test-key", fastConfig(3)).Health(context.Background())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "status 400") || !strings.Contains(err.Error(), "Invalid request") {
		t.Errorf("Expected 400 with message, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 attempt (no retries on 4xx), got %d", attempts.Load())
	}
}

func TestRetryLogic_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewWithConfig(url, "", fastConfig(1)).Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
		t.Errorf("Expected network failure to be retried, got %v", err)
	}
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		json.NewEncoder(w).Encode(HealthResponse{Status: "healthy"})
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := New(server.URL, "test-key").Health(ctx)
	if err == nil || !strings.Contains(err.Error(), "context deadline exceeded") {
		t.Errorf("Expected error to contain 'context deadline exceeded', got %v", err)
	}
}
