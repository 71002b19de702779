package tui

import (
	"testing"
)

func TestValidateTrip(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"", true},
		{"   \n", true},
		{"Tokyo", false},
		{"2 days in Rome", false},
	}
	for _, tt := range tests {
		if err := validateTrip(tt.input); (err != nil) != tt.wantErr {
			t.Errorf("validateTrip(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestShouldPromptDisabledInCI(t *testing.T) {
	t.Setenv("CI", "true")
	if ShouldPrompt() {
		t.Error("ShouldPrompt() = true in CI")
	}
}
