// Package tui holds the interactive prompts the CLI shows when it runs on
// a terminal.
package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
)

// ciEnvVars are set by common CI systems, where prompting would hang.
var ciEnvVars = []string{
	"CI",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"JENKINS_URL",
	"BUILDKITE",
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// ShouldPrompt returns true when stdin is a terminal outside CI.
func ShouldPrompt() bool {
	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return false
		}
	}
	return IsInteractive()
}

// validateTrip rejects blank requests.
func validateTrip(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("tell wayfinder where you want to go")
	}
	return nil
}

// AskTrip asks for a free-form travel request.
func AskTrip() (string, error) {
	var message string

	input := huh.NewText().
		Title("Where would you like to go?").
		Placeholder("3 days in Lisbon in May, vegetarian, love museums").
		CharLimit(2000).
		Validate(validateTrip).
		Value(&message)

	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return strings.TrimSpace(message), nil
}

// Confirm displays a yes/no prompt.
func Confirm(message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue

	confirm := huh.NewConfirm().
		Title(message).
		Affirmative("Yes").
		Negative("No").
		Value(&confirmed)

	if err := huh.NewForm(huh.NewGroup(confirm)).Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}
