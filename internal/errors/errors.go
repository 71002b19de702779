// Package errors defines the coded error type shared by every wayfinder
// component and the taxonomy of failures the planner can surface.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode is a stable, machine readable identifier of the form AREA-NNN.
type ErrorCode string

const (
	// Request validation (VALIDATION-001 to VALIDATION-099)
	ErrCodeValidation     ErrorCode = "VALIDATION-001"
	ErrCodeMissingMessage ErrorCode = "VALIDATION-002"
	ErrCodeBadIdentifier  ErrorCode = "VALIDATION-003"

	// Tool adapter failures (PROVIDER-001 to PROVIDER-099)
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER-001"
	ErrCodeProviderTimeout     ErrorCode = "PROVIDER-002"

	// Pipeline stages
	ErrCodePartialResearch ErrorCode = "RESEARCH-001"
	ErrCodeProfileFailed   ErrorCode = "PROFILE-001"

	// Background tasks (TASK-001 to TASK-099)
	ErrCodeTaskFailed     ErrorCode = "TASK-001"
	ErrCodeTaskNotFound   ErrorCode = "TASK-002"
	ErrCodeTaskTransition ErrorCode = "TASK-003"
	ErrCodeTaskDispatch   ErrorCode = "TASK-004"

	// Client synchronisation (SYNC-001 to SYNC-099)
	ErrCodeSyncConflict      ErrorCode = "SYNC-001"
	ErrCodeRemoteUnavailable ErrorCode = "SYNC-002"

	// Storage (STORE-001 to STORE-099)
	ErrCodeStorageFull    ErrorCode = "STORE-001"
	ErrCodeStorageFailure ErrorCode = "STORE-002"
	ErrCodeNotFound       ErrorCode = "STORE-003"
)

// Sentinels for errors.Is matching. Any WayfinderError with the same code
// matches the sentinel regardless of message.
var (
	ErrValidation          = New(ErrCodeValidation, "invalid request")
	ErrProviderUnavailable = New(ErrCodeProviderUnavailable, "provider unavailable")
	ErrProviderTimeout     = New(ErrCodeProviderTimeout, "provider timed out")
	ErrProfileFailed       = New(ErrCodeProfileFailed, "profile stage failed")
	ErrTaskNotFound        = New(ErrCodeTaskNotFound, "task not found")
	ErrTaskTransition      = New(ErrCodeTaskTransition, "illegal task transition")
	ErrRemoteUnavailable   = New(ErrCodeRemoteUnavailable, "remote store unavailable")
	ErrNotFound            = New(ErrCodeNotFound, "record not found")
)

// WayfinderError carries a code, a human message, optional remediation
// suggestions and the underlying cause.
type WayfinderError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *WayfinderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if len(e.Suggestions) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Suggestions, "; "))
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *WayfinderError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a WayfinderError with the same code.
func (e *WayfinderError) Is(target error) bool {
	t, ok := target.(*WayfinderError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Area returns the prefix of the code ("TASK" for "TASK-002").
func (c ErrorCode) Area() string {
	area, _, _ := strings.Cut(string(c), "-")
	return area
}

// New creates a new WayfinderError
func New(code ErrorCode, message string) *WayfinderError {
	return &WayfinderError{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *WayfinderError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new WayfinderError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *WayfinderError {
	return &WayfinderError{Code: code, Message: message, Cause: cause}
}

// WithSuggestion adds a suggestion to the error. It returns a copy so that
// package level sentinels are never mutated.
func (e *WayfinderError) WithSuggestion(suggestion string) *WayfinderError {
	cp := *e
	cp.Suggestions = append(append([]string(nil), e.Suggestions...), suggestion)
	return &cp
}

// As extracts the first WayfinderError in err's chain.
func As(err error) (*WayfinderError, bool) {
	var we *WayfinderError
	if stderrors.As(err, &we) {
		return we, true
	}
	return nil, false
}

// CodeOf returns the code of the first WayfinderError in err's chain, or an
// empty code.
func CodeOf(err error) ErrorCode {
	if we, ok := As(err); ok {
		return we.Code
	}
	return ""
}

// Is is a convenience re-export of the standard library function.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// NewValidationError reports a malformed request field.
func NewValidationError(field, reason string) *WayfinderError {
	return Newf(ErrCodeValidation, "invalid %s: %s", field, reason).
		WithSuggestion("check the request body against the API reference")
}

// NewProviderUnavailableError reports a tool adapter failure.
func NewProviderUnavailableError(tool string, cause error) *WayfinderError {
	return Wrap(ErrCodeProviderUnavailable, fmt.Sprintf("provider %s unavailable", tool), cause)
}

// NewProviderTimeoutError reports a tool adapter exceeding its deadline.
func NewProviderTimeoutError(tool string, cause error) *WayfinderError {
	return Wrap(ErrCodeProviderTimeout, fmt.Sprintf("provider %s timed out", tool), cause)
}

// NewPartialResearchError lists the branches that degraded to placeholders.
func NewPartialResearchError(branches []string) *WayfinderError {
	return Newf(ErrCodePartialResearch, "research degraded for: %s", strings.Join(branches, ", "))
}

// NewProfileError reports a failure of the profile stage.
func NewProfileError(reason string, cause error) *WayfinderError {
	return Wrap(ErrCodeProfileFailed, "planning request failed: "+reason, cause).
		WithSuggestion("mention a destination, for example \"3 days in Tokyo\"")
}

// NewTaskFailedError summarises failed creative sub-jobs.
func NewTaskFailedError(summary string) *WayfinderError {
	return New(ErrCodeTaskFailed, summary)
}

// NewTaskTransitionError reports an attempt to move a task backwards.
func NewTaskTransitionError(from, to string) *WayfinderError {
	return Newf(ErrCodeTaskTransition, "cannot move task from %s to %s", from, to)
}

// NewNotFoundError reports a missing stored record.
func NewNotFoundError(kind, id string) *WayfinderError {
	return Newf(ErrCodeNotFound, "%s %s not found", kind, id)
}

// NewStorageError wraps a persistence failure.
func NewStorageError(op string, cause error) *WayfinderError {
	return Wrap(ErrCodeStorageFailure, op, cause)
}

// NewTaskNotFoundError reports an unknown or expired task.
func NewTaskNotFoundError(id string) *WayfinderError {
	return Newf(ErrCodeTaskNotFound, "task %s not found", id)
}

// NewTaskDispatchError reports a task that could not be handed to a worker.
func NewTaskDispatchError(id string, cause error) *WayfinderError {
	return Wrap(ErrCodeTaskDispatch, "dispatch task "+id, cause)
}
