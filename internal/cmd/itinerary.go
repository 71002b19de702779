package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/internal/offline"
	"github.com/felixgeelhaar/wayfinder/internal/tui"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

var itineraryCmd = &cobra.Command{
	Use:     "itinerary",
	Aliases: []string{"it"},
	Short:   "Manage saved itineraries, online or offline",
	Long: `Saved itineraries live in a local database first and are synced to
the server whenever it is reachable. Writes made offline are queued and
replayed in order by "wayfinder itinerary sync" or by the next command
that finds the server online.`,
}

var itineraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved itineraries",
	Args:  cobra.NoArgs,
	RunE:  runItineraryList,
}

var itineraryShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved itinerary",
	Args:  cobra.ExactArgs(1),
	RunE:  runItineraryShow,
}

var itineraryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved itinerary",
	Args:  cobra.ExactArgs(1),
	RunE:  runItineraryDelete,
}

var itinerarySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued writes to the server",
	Long: `Replay queued saves and deletes to the server, oldest first. With
--watch the command keeps running, probing the server every
client.reconcile_interval and syncing whenever it is reachable.`,
	Args: cobra.NoArgs,
	RunE: runItinerarySync,
}

var itineraryPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show writes waiting to be synced",
	Args:  cobra.NoArgs,
	RunE:  runItineraryPending,
}

var (
	itineraryJSON  bool
	itineraryYes   bool
	itineraryWatch bool
)

func init() {
	itineraryCmd.PersistentFlags().BoolVar(&itineraryJSON, "json", false, "print results as JSON")
	itineraryDeleteCmd.Flags().BoolVarP(&itineraryYes, "yes", "y", false, "delete without asking")
	itinerarySyncCmd.Flags().BoolVar(&itineraryWatch, "watch", false, "keep syncing until interrupted")

	itineraryCmd.AddCommand(itineraryListCmd, itineraryShowCmd, itineraryDeleteCmd, itinerarySyncCmd, itineraryPendingCmd)
	rootCmd.AddCommand(itineraryCmd)
}

func runItineraryList(cmd *cobra.Command, args []string) error {
	engine, closeEngine, err := openEngine(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer closeEngine()

	records, err := engine.List(cmd.Context())
	if err != nil {
		return err
	}
	if itineraryJSON {
		return printJSON(cmd.OutOrStdout(), records)
	}
	if !engine.Online() {
		fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("Offline: showing local itineraries."))
	}
	renderRecords(cmd.OutOrStdout(), records, time.Now())
	return nil
}

func runItineraryShow(cmd *cobra.Command, args []string) error {
	engine, closeEngine, err := openEngine(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer closeEngine()

	rec, err := resolveRecord(cmd.Context(), engine, args[0])
	if err != nil {
		return err
	}
	if itineraryJSON {
		return printJSON(cmd.OutOrStdout(), rec)
	}

	var plan types.Plan
	if err := json.Unmarshal(rec.PlanData, &plan); err != nil || len(plan.Days) == 0 {
		renderRecords(cmd.OutOrStdout(), []offline.Record{rec}, time.Now())
		return nil
	}
	renderPlan(cmd.OutOrStdout(), &types.PlanResponse{Plan: &plan, Partial: plan.Partial})
	renderAssets(cmd.OutOrStdout(), rec.CreativeAssets)
	return nil
}

func runItineraryDelete(cmd *cobra.Command, args []string) error {
	engine, closeEngine, err := openEngine(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer closeEngine()

	rec, err := resolveRecord(cmd.Context(), engine, args[0])
	if err != nil {
		return err
	}
	if !itineraryYes && tui.ShouldPrompt() {
		ok, err := tui.Confirm(fmt.Sprintf("Delete the %s itinerary?", rec.Destination), false)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	if err := engine.Delete(cmd.Context(), rec.LocalID); err != nil {
		return err
	}
	msg := "Deleted " + rec.LocalID
	if rec.Synced() && !engine.Online() {
		msg += " (server copy will be removed on next sync)"
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(msg))
	return nil
}

func runItinerarySync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, closeEngine, err := openEngine(ctx, false)
	if err != nil {
		return err
	}
	defer closeEngine()

	if itineraryWatch {
		engine.Start(ctx)
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render(
			fmt.Sprintf("Syncing every %s, press Ctrl+C to stop", cfg.Client.ReconcileInterval)))
		<-ctx.Done()
		return nil
	}

	if err := newProber().Health(ctx); err != nil {
		pending, _ := engine.Pending(ctx)
		return NewErrorWithSuggestions(
			fmt.Sprintf("Server unreachable; %d writes stay queued", len(pending)),
			errors.Wrap(errors.ErrCodeRemoteUnavailable, "health check failed", err),
			"Retry later: wayfinder itinerary sync",
			"Keep syncing in the background: wayfinder itinerary sync --watch",
		)
	}
	report, err := engine.Reconcile(ctx)
	if err != nil {
		return err
	}
	if itineraryJSON {
		return printJSON(cmd.OutOrStdout(), report)
	}
	renderReport(cmd.OutOrStdout(), report)
	return nil
}

func runItineraryPending(cmd *cobra.Command, args []string) error {
	engine, closeEngine, err := openEngine(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer closeEngine()

	pending, err := engine.Pending(cmd.Context())
	if err != nil {
		return err
	}
	if itineraryJSON {
		return printJSON(cmd.OutOrStdout(), pending)
	}
	if len(pending) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Nothing queued."))
		return nil
	}
	for _, w := range pending {
		target := w.Request.Destination
		if w.Op == offline.OpDelete {
			target = w.RemoteID
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s  %s  %s\n", w.Op, w.RecordLocalID, target,
			mutedStyle.Render("queued "+humanAge(time.Since(w.EnqueuedAt))+" ago"))
	}
	return nil
}

// resolveRecord finds a local record by its id or a unique id prefix.
func resolveRecord(ctx context.Context, engine *offline.Engine, id string) (offline.Record, error) {
	rec, err := engine.Get(ctx, id)
	if err == nil {
		return rec, nil
	}
	if errors.CodeOf(err) != errors.ErrCodeNotFound {
		return offline.Record{}, err
	}

	records, err := engine.List(ctx)
	if err != nil {
		return offline.Record{}, err
	}
	var matches []offline.Record
	for _, r := range records {
		if strings.HasPrefix(r.LocalID, id) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return offline.Record{}, errors.NewNotFoundError("itinerary", id).
			WithSuggestion("list saved itineraries: wayfinder itinerary list")
	case 1:
		return engine.Get(ctx, matches[0].LocalID)
	default:
		return offline.Record{}, errors.NewValidationError("id", fmt.Sprintf("%q matches %d itineraries", id, len(matches))).
			WithSuggestion("use more characters of the id")
	}
}
