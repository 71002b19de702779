package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/wayfinder/internal/offline"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, local storage and server connectivity",
	Long: `Run diagnostics for the CLI side of wayfinder.

Checks include:
  • Configuration file in use
  • Offline database: records and queued writes
  • Planner server reachability

Examples:
  wayfinder doctor
  wayfinder doctor --json
`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var doctorJSON bool

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(doctorCmd)
}

// DoctorReport is the complete diagnostics report.
type DoctorReport struct {
	Config  *DoctorCheck `json:"config"`
	Storage *DoctorCheck `json:"storage"`
	Server  *DoctorCheck `json:"server"`
	Healthy bool         `json:"healthy"`
}

// DoctorCheck is a single diagnostic result.
type DoctorCheck struct {
	Name    string         `json:"name"`
	Status  string         `json:"status"` // "ok", "warning", "error"
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	report := DoctorReport{
		Config:  checkConfigFile(),
		Storage: checkLocalStore(ctx),
		Server:  checkServer(ctx),
	}
	report.Healthy = report.Config.Status != "error" && report.Storage.Status != "error"

	if doctorJSON {
		return printJSON(cmd.OutOrStdout(), report)
	}
	for _, c := range []*DoctorCheck{report.Config, report.Storage, report.Server} {
		printCheck(cmd.OutOrStdout(), c)
	}
	if !report.Healthy {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}

func checkConfigFile() *DoctorCheck {
	path := configPath()
	if _, err := os.Stat(path); err != nil {
		return &DoctorCheck{
			Name:    "config",
			Status:  "warning",
			Message: "no config file, using defaults (wayfinder config init)",
			Details: map[string]any{"path": path},
		}
	}
	return &DoctorCheck{Name: "config", Status: "ok", Message: path}
}

func checkLocalStore(ctx context.Context) *DoctorCheck {
	store, err := offline.OpenLocal(ctx, cfg.Client.DBPath)
	if err != nil {
		return &DoctorCheck{Name: "storage", Status: "error", Message: err.Error()}
	}
	defer store.Close()

	records, err := store.Records(ctx)
	if err != nil {
		return &DoctorCheck{Name: "storage", Status: "error", Message: err.Error()}
	}
	pending, err := store.PendingCount(ctx)
	if err != nil {
		return &DoctorCheck{Name: "storage", Status: "error", Message: err.Error()}
	}

	check := &DoctorCheck{
		Name:    "storage",
		Status:  "ok",
		Message: fmt.Sprintf("%d itineraries, %d queued writes", len(records), pending),
		Details: map[string]any{"path": cfg.Client.DBPath, "records": len(records), "pending": pending},
	}
	if pending >= cfg.Client.PendingCapacity {
		check.Status = "warning"
		check.Message += "; the queue is full and the oldest writes are being dropped"
	}
	return check
}

func checkServer(ctx context.Context) *DoctorCheck {
	if err := newProber().Health(ctx); err != nil {
		return &DoctorCheck{
			Name:    "server",
			Status:  "warning",
			Message: "unreachable, itinerary writes will be queued",
			Details: map[string]any{"url": cfg.Client.ServerURL, "error": err.Error()},
		}
	}
	return &DoctorCheck{Name: "server", Status: "ok", Message: cfg.Client.ServerURL}
}

func printCheck(w io.Writer, c *DoctorCheck) {
	var badge string
	switch c.Status {
	case "ok":
		badge = okStyle.Render("✓")
	case "warning":
		badge = warnStyle.Render("!")
	default:
		badge = failStyle.Render("✗")
	}
	fmt.Fprintf(w, "%s %-8s %s\n", badge, c.Name, c.Message)
}
