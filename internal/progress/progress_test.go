package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

func TestNewIndicator(t *testing.T) {
	t.Setenv("CI", "")
	t.Setenv("GITHUB_ACTIONS", "")
	buf := &bytes.Buffer{}
	ind := NewIndicator(Config{Writer: buf, ShowSpinner: true})

	if ind.writer != buf {
		t.Error("Writer not set correctly")
	}
	if !ind.showSpinner {
		t.Error("Spinner should be enabled")
	}
	if ind.label != "Generating media" {
		t.Errorf("label = %q", ind.label)
	}
}

func TestNewIndicatorCIMode(t *testing.T) {
	ind := NewIndicator(Config{Writer: &bytes.Buffer{}, ShowSpinner: true, IsCI: true})

	if ind.showSpinner {
		t.Error("Spinner should be disabled in CI mode")
	}
	if !ind.isCI {
		t.Error("IsCI should be true")
	}
}

func TestNewIndicatorDetectsCI(t *testing.T) {
	t.Setenv("CI", "true")
	ind := NewIndicator(Config{Writer: &bytes.Buffer{}, ShowSpinner: true})
	if !ind.isCI || ind.showSpinner {
		t.Error("CI env var should disable the spinner")
	}
}

func TestUpdatePrintsStatusChangesInCI(t *testing.T) {
	buf := &bytes.Buffer{}
	ind := NewIndicator(Config{Writer: buf, IsCI: true})

	ind.Update(types.TaskView{ID: "t1", Status: types.TaskQueued})
	ind.Update(types.TaskView{ID: "t1", Status: types.TaskGenerating})
	ind.Update(types.TaskView{ID: "t1", Status: types.TaskGenerating})
	ind.Update(types.TaskView{ID: "t1", Status: types.TaskFailed, Error: "poster day 2: timeout"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected one line per status change, got %d: %q", len(lines), buf.String())
	}
	if lines[0] != "⟲ t1 [queued]" {
		t.Errorf("line 0 = %q", lines[0])
	}
	if lines[1] != "▶ t1 [generating]" {
		t.Errorf("line 1 = %q", lines[1])
	}
	if lines[2] != "✗ t1 [failed] - poster day 2: timeout" {
		t.Errorf("line 2 = %q", lines[2])
	}
}

func TestPrintSummary(t *testing.T) {
	buf := &bytes.Buffer{}
	ind := NewIndicator(Config{Writer: buf, IsCI: true})
	start := ind.startTime
	ind.now = func() time.Time { return start.Add(75 * time.Second) }

	ind.PrintSummary()
	if buf.Len() != 0 {
		t.Error("no summary expected before the first poll")
	}

	ind.Update(types.TaskView{ID: "t1", Status: types.TaskCompleted, AssetRefs: &types.AssetRefs{
		PosterURL:    "https://cdn/p.png",
		DailyPosters: []string{"a", "b"},
		VideoURL:     "https://cdn/v.mp4",
	}})
	buf.Reset()
	ind.PrintSummary()

	want := "Generating media finished in 1m15s (cover poster, 2 daily posters, video)\n"
	if buf.String() != want {
		t.Errorf("summary = %q, want %q", buf.String(), want)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	buf := &bytes.Buffer{}
	ind := NewIndicator(Config{Writer: buf, ShowSpinner: true, IsCI: false})
	ind.showSpinner = true
	ind.Start()
	ind.Stop()
	ind.Stop()
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h2m3s"},
		{1400 * time.Millisecond, "1s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
