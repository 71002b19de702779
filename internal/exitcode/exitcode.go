package exitcode

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"strings"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/client"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage or a request the server
	// rejected as invalid
	UsageError = 2

	// NotFound indicates an unknown task or itinerary
	NotFound = 3

	// ServerError indicates the server failed to handle a valid request
	ServerError = 4

	// AuthError indicates an authentication or authorization failure
	AuthError = 5

	// NetworkError indicates the server could not be reached
	NetworkError = 6

	// Interrupted indicates the user cancelled the command
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error to an exit code. Typed errors are
// checked first; the message is only inspected as a last resort.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}
	if stderrors.Is(err, context.Canceled) {
		return Interrupted
	}

	var apiErr *client.APIError
	if stderrors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
			return AuthError
		case apiErr.StatusCode == http.StatusNotFound:
			return NotFound
		case apiErr.StatusCode >= 500:
			return ServerError
		case apiErr.StatusCode >= 400:
			return UsageError
		}
	}

	code := errors.CodeOf(err)
	switch {
	case code == errors.ErrCodeNotFound, code == errors.ErrCodeTaskNotFound:
		return NotFound
	case code.Area() == "VALIDATION", code.Area() == "PROFILE":
		return UsageError
	case code.Area() == "SYNC":
		return NetworkError
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "unauthorized") || strings.Contains(errMsg, "api key") {
		return AuthError
	}
	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "unreachable") || strings.Contains(errMsg, "no such host") ||
		strings.Contains(errMsg, "deadline exceeded") {
		return NetworkError
	}
	if strings.Contains(errMsg, "unknown command") || strings.Contains(errMsg, "unknown flag") ||
		strings.Contains(errMsg, "invalid argument") || strings.Contains(errMsg, "required flag") ||
		strings.Contains(errMsg, "accepts ") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags, arguments or request)"
	case NotFound:
		return "Task or itinerary not found"
	case ServerError:
		return "Server error"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
