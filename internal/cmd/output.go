package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/wayfinder/internal/offline"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	dayStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")).
		Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderPlan(w io.Writer, resp *types.PlanResponse) {
	p := resp.Plan
	if p == nil {
		fmt.Fprintln(w, warnStyle.Render("No plan returned."))
		return
	}

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s · %d days", p.Destination, len(p.Days))))
	if p.Summary.Text != "" {
		fmt.Fprintln(w, p.Summary.Text)
	}
	if resp.Partial {
		fmt.Fprintln(w, warnStyle.Render("Some research was unavailable; parts of this plan use placeholder data."))
	}
	for _, warning := range p.Warnings {
		fmt.Fprintln(w, warnStyle.Render("! "+warning))
	}

	for _, day := range p.Days {
		fmt.Fprintln(w)
		header := fmt.Sprintf("Day %d", day.Day)
		if day.Theme != "" {
			header += " · " + day.Theme
		}
		if day.Weather != "" {
			header += " (" + day.Weather + ")"
		}
		fmt.Fprintln(w, dayStyle.Render(header))
		for _, slot := range day.Slots {
			line := fmt.Sprintf("  %s  %s", timeStyle.Render(slot.Start+"-"+slot.End), slot.Activity)
			if slot.Location != "" {
				line += mutedStyle.Render(" @ " + slot.Location)
			}
			fmt.Fprintln(w, line)
		}
	}

	if len(p.Tips) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, dayStyle.Render("Tips"))
		for _, tip := range p.Tips {
			fmt.Fprintln(w, "  • "+tip)
		}
	}
	if len(p.FollowUps) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, mutedStyle.Render("Try next: "+strings.Join(p.FollowUps, " | ")))
	}
	if resp.TaskHandle != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, mutedStyle.Render("Media task: "+resp.TaskHandle))
	}
}

func statusBadge(s types.TaskStatus) string {
	switch s {
	case types.TaskCompleted:
		return okStyle.Render(string(s))
	case types.TaskFailed, types.TaskExpired:
		return failStyle.Render(string(s))
	default:
		return warnStyle.Render(string(s))
	}
}

func renderTask(w io.Writer, v types.TaskView) {
	fmt.Fprintf(w, "%s  %s\n", v.ID, statusBadge(v.Status))
	if v.Error != "" {
		fmt.Fprintln(w, failStyle.Render("  "+v.Error))
	}
	renderAssets(w, v.AssetRefs)
}

func renderAssets(w io.Writer, a *types.AssetRefs) {
	if a == nil || a.Empty() {
		return
	}
	if a.PosterURL != "" {
		fmt.Fprintln(w, "  poster: "+a.PosterURL)
	}
	for i, u := range a.DailyPosters {
		if u != "" {
			fmt.Fprintf(w, "  day %d: %s\n", i+1, u)
		}
	}
	if a.VideoURL != "" {
		fmt.Fprintln(w, "  video:  "+a.VideoURL)
	}
}

func renderRecords(w io.Writer, records []offline.Record, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No saved itineraries."))
		return
	}
	for _, r := range records {
		state := okStyle.Render("synced")
		if !r.Synced() {
			state = warnStyle.Render("local only")
		}
		fmt.Fprintf(w, "%s  %-20s %s  %s\n",
			r.LocalID[:min(8, len(r.LocalID))], r.Destination, state,
			mutedStyle.Render(humanAge(now.Sub(r.SavedAt))+" ago"))
		if r.Summary != "" {
			fmt.Fprintln(w, "  "+r.Summary)
		}
		if r.MediaStatus != "" {
			fmt.Fprintf(w, "  media: %s\n", statusBadge(r.MediaStatus))
		}
	}
}

func renderReport(w io.Writer, r offline.ReconcileReport) {
	if r.Skipped {
		fmt.Fprintln(w, mutedStyle.Render("A sync is already running."))
		return
	}
	if r.Attempted == 0 {
		fmt.Fprintln(w, okStyle.Render("Nothing to sync."))
		return
	}
	style := okStyle
	if r.Failed > 0 {
		style = warnStyle
	}
	fmt.Fprintln(w, style.Render(fmt.Sprintf("Synced %d of %d pending writes (%d failed, %d dropped).",
		r.Synced, r.Attempted, r.Failed, r.Dropped)))
}

func humanAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "moments"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
