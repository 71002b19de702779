// Package progress shows the state of a media task while the CLI waits
// for it.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// Indicator renders task polls. On a terminal it animates a spinner line;
// in CI it prints one line per status change.
type Indicator struct {
	writer      io.Writer
	label       string
	startTime   time.Time
	mu          sync.Mutex
	view        *types.TaskView
	showSpinner bool
	spinnerIdx  int
	stopChan    chan struct{}
	stopOnce    sync.Once
	isCI        bool
	now         func() time.Time
}

// Config holds configuration for progress indicator
type Config struct {
	Writer      io.Writer
	Label       string
	ShowSpinner bool
	IsCI        bool // disables the spinner and prints plain lines
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewIndicator creates a new progress indicator
func NewIndicator(cfg Config) *Indicator {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.Label == "" {
		cfg.Label = "Generating media"
	}
	if !cfg.IsCI {
		cfg.IsCI = os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
	}

	return &Indicator{
		writer:      cfg.Writer,
		label:       cfg.Label,
		startTime:   time.Now(),
		showSpinner: cfg.ShowSpinner && !cfg.IsCI,
		stopChan:    make(chan struct{}),
		isCI:        cfg.IsCI,
		now:         time.Now,
	}
}

// Start begins the spinner animation, if enabled.
func (p *Indicator) Start() {
	if p.showSpinner {
		go p.spinnerLoop()
	}
}

// Stop ends the animation and clears the spinner line. It is safe to call
// more than once.
func (p *Indicator) Stop() {
	p.stopOnce.Do(func() {
		if p.showSpinner {
			close(p.stopChan)
			p.mu.Lock()
			fmt.Fprintf(p.writer, "\r%s\r", strings.Repeat(" ", 80))
			p.mu.Unlock()
		}
	})
}

func (p *Indicator) spinnerLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.mu.Lock()
			p.render()
			p.spinnerIdx = (p.spinnerIdx + 1) % len(spinnerFrames)
			p.mu.Unlock()
		}
	}
}

func (p *Indicator) render() {
	status := "waiting"
	if p.view != nil {
		status = string(p.view.Status)
	}
	fmt.Fprintf(p.writer, "\r%s %s | %s | %s",
		spinnerFrames[p.spinnerIdx],
		p.label,
		status,
		formatDuration(p.now().Sub(p.startTime)),
	)
}

// Update records a poll result. It matches the onPoll callback of
// client.WaitTask.
func (p *Indicator) Update(view types.TaskView) {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := p.view == nil || p.view.Status != view.Status
	p.view = &view
	if p.isCI && changed {
		p.printStatus(view)
	}
}

func (p *Indicator) printStatus(view types.TaskView) {
	symbol := "⟲"
	switch view.Status {
	case types.TaskGenerating:
		symbol = "▶"
	case types.TaskCompleted:
		symbol = "✓"
	case types.TaskFailed:
		symbol = "✗"
	case types.TaskExpired:
		symbol = "⊘"
	}

	msg := fmt.Sprintf("%s %s [%s]", symbol, view.ID, view.Status)
	if view.Error != "" {
		msg += " - " + view.Error
	}
	fmt.Fprintln(p.writer, msg)
}

// PrintSummary prints one line about the last seen state.
func (p *Indicator) PrintSummary() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.view == nil {
		return
	}
	elapsed := formatDuration(p.now().Sub(p.startTime))
	switch p.view.Status {
	case types.TaskCompleted:
		fmt.Fprintf(p.writer, "%s finished in %s (%s)\n", p.label, elapsed, assetSummary(p.view.AssetRefs))
	case types.TaskFailed:
		fmt.Fprintf(p.writer, "%s failed after %s\n", p.label, elapsed)
	default:
		fmt.Fprintf(p.writer, "%s %s after %s\n", p.label, p.view.Status, elapsed)
	}
}

func assetSummary(a *types.AssetRefs) string {
	if a == nil || a.Empty() {
		return "no assets"
	}
	var parts []string
	if a.PosterURL != "" {
		parts = append(parts, "cover poster")
	}
	if n := len(a.DailyPosters); n > 0 {
		parts = append(parts, fmt.Sprintf("%d daily posters", n))
	}
	if a.VideoURL != "" {
		parts = append(parts, "video")
	}
	return strings.Join(parts, ", ")
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
