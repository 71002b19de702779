package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeTaskNotFound, "task abc not found")

	if err.Code != ErrCodeTaskNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeTaskNotFound, err.Code)
	}
	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeProviderUnavailable, "provider route unavailable", cause)

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is on the cause")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("load task: %w", NewNotFoundError("task", "t-1"))

	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected wrapped not-found error to match ErrNotFound")
	}
	if errors.Is(err, ErrTaskNotFound) {
		t.Errorf("different codes must not match")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *WayfinderError
		want []string
	}{
		{
			name: "code and message",
			err:  New(ErrCodeStorageFull, "local store full"),
			want: []string{"[STORE-001]", "local store full"},
		},
		{
			name: "cause",
			err:  Wrap(ErrCodeStorageFailure, "insert record", fmt.Errorf("disk I/O error")),
			want: []string{"[STORE-002]", "insert record: disk I/O error"},
		},
		{
			name: "suggestion",
			err:  NewProfileError("no destination", nil),
			want: []string{"[PROFILE-001]", "no destination", "3 days in Tokyo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Error() = %q, missing %q", got, w)
				}
			}
		})
	}
}

func TestWithSuggestionDoesNotMutateSentinel(t *testing.T) {
	_ = ErrValidation.WithSuggestion("extra")
	if len(ErrValidation.Suggestions) != 0 {
		t.Errorf("sentinel was mutated: %v", ErrValidation.Suggestions)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("x: %w", NewTaskTransitionError("completed", "generating"))); got != ErrCodeTaskTransition {
		t.Errorf("CodeOf = %s", got)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("CodeOf plain error = %q, want empty", got)
	}
	if ErrCodeTaskTransition.Area() != "TASK" {
		t.Errorf("Area = %s", ErrCodeTaskTransition.Area())
	}
}

func TestPartialResearchMessage(t *testing.T) {
	err := NewPartialResearchError([]string{"trend", "venue"})
	if !strings.Contains(err.Error(), "trend, venue") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
