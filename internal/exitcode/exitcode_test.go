package exitcode

import (
	"context"
	"errors"
	"fmt"
	"testing"

	wferrors "github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/client"
)

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected int
	}{
		{"Success", Success, 0},
		{"GeneralError", GeneralError, 1},
		{"UsageError", UsageError, 2},
		{"NotFound", NotFound, 3},
		{"ServerError", ServerError, 4},
		{"AuthError", AuthError, 5},
		{"NetworkError", NetworkError, 6},
		{"Interrupted", Interrupted, 130},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.expected {
				t.Errorf("Exit code %s = %d, want %d", tt.name, tt.code, tt.expected)
			}
		})
	}
}

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error returns success", nil, Success},
		{"cancelled context", fmt.Errorf("plan failed: %w", context.Canceled), Interrupted},
		{"api 404", fmt.Errorf("task status failed: %w", &client.APIError{StatusCode: 404}), NotFound},
		{"api 400", &client.APIError{StatusCode: 400, Code: "VALIDATION-002"}, UsageError},
		{"api 422", &client.APIError{StatusCode: 422, Code: "PROFILE-001"}, UsageError},
		{"api 401", &client.APIError{StatusCode: 401}, AuthError},
		{"api 503", &client.APIError{StatusCode: 503}, ServerError},
		{"local not found", wferrors.NewNotFoundError("record", "abc"), NotFound},
		{"validation", wferrors.NewValidationError("destination", "must not be empty"), UsageError},
		{"sync", wferrors.ErrRemoteUnavailable, NetworkError},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8080: connect: connection refused"), NetworkError},
		{"no such host", errors.New("lookup planner: no such host"), NetworkError},
		{"unknown flag", errors.New("unknown flag: --dayz"), UsageError},
		{"arg count", errors.New("accepts 1 arg(s), received 0"), UsageError},
		{"generic", errors.New("something went wrong"), GeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineExitCode(tt.err); got != tt.expected {
				t.Errorf("DetermineExitCode(%v) = %d, want %d", tt.err, got, tt.expected)
			}
		})
	}
}

func TestGetExitCodeDescription(t *testing.T) {
	for _, code := range []int{Success, GeneralError, UsageError, NotFound, ServerError, AuthError, NetworkError, Interrupted} {
		if desc := GetExitCodeDescription(code); desc == "" || desc == "Unknown error" {
			t.Errorf("missing description for code %d", code)
		}
	}
	if GetExitCodeDescription(99) != "Unknown error" {
		t.Error("expected unknown description for 99")
	}
}
