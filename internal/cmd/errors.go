package cmd

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/client"
)

// ErrorWithSuggestion wraps an error with actionable recovery suggestions
type ErrorWithSuggestion struct {
	Message     string
	Suggestions []string
	err         error
}

func (e *ErrorWithSuggestion) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, s := range e.Suggestions {
			b.WriteString("\n  • ")
			b.WriteString(s)
		}
	}

	if e.err != nil {
		b.WriteString("\n\nDetails: ")
		b.WriteString(e.err.Error())
	}

	return b.String()
}

func (e *ErrorWithSuggestion) Unwrap() error {
	return e.err
}

// NewErrorWithSuggestions creates an error with recovery suggestions
func NewErrorWithSuggestions(msg string, err error, suggestions ...string) error {
	return &ErrorWithSuggestion{
		Message:     msg,
		Suggestions: suggestions,
		err:         err,
	}
}

// ServerUnreachableError explains what to do when the planner cannot be
// contacted.
func ServerUnreachableError(url string, err error) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("Cannot reach the wayfinder server at %s", url),
		err,
		"Start a local server: wayfinder serve",
		"Point at another server: --server https://planner.example.com",
		"Saved itineraries still work offline: wayfinder itinerary list",
	)
}

// ConfigExistsError is returned by config init when a file is in the way.
func ConfigExistsError(path string) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("Config file already exists: %s", path),
		nil,
		"Overwrite it: wayfinder config init --force",
		"Inspect the effective configuration: wayfinder config show",
	)
}

// explain surfaces the suggestions carried by server and local coded
// errors. Other errors are returned unchanged.
func explain(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *client.APIError
	if stderrors.As(err, &apiErr) && len(apiErr.Suggestions) > 0 {
		return NewErrorWithSuggestions(apiErr.Message, err, apiErr.Suggestions...)
	}
	if we, ok := errors.As(err); ok && len(we.Suggestions) > 0 {
		return NewErrorWithSuggestions(we.Message, err, we.Suggestions...)
	}
	return err
}
