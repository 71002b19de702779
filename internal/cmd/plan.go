package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/wayfinder/internal/offline"
	"github.com/felixgeelhaar/wayfinder/internal/tui"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

var planCmd = &cobra.Command{
	Use:   "plan [request...]",
	Short: "Plan a trip from a free-form request",
	Long: `Send a travel request to the planner and print the itinerary.

Explicit flags take precedence over what the request text says. Reuse
--conversation to refine the previous answer ("make day 2 more relaxed").

Example:
  wayfinder plan "4 days in Kyoto, vegetarian, love temples"
  wayfinder plan --days 3 --budget luxury Paris
  wayfinder plan --conversation trip-1 "add a food tour" --wait --save`,
	RunE: runPlan,
}

var (
	planConversation string
	planDestination  string
	planOrigin       string
	planDays         int
	planStartDate    string
	planInterests    []string
	planDiet         []string
	planBudget       string
	planWait         bool
	planSave         bool
	planJSON         bool
)

func init() {
	planCmd.Flags().StringVarP(&planConversation, "conversation", "c", "", "conversation key; follow-up requests refine the last plan")
	planCmd.Flags().StringVar(&planDestination, "destination", "", "destination (overrides the request text)")
	planCmd.Flags().StringVar(&planOrigin, "origin", "", "departure city, enables flight suggestions")
	planCmd.Flags().IntVar(&planDays, "days", 0, "trip length in days (1-14)")
	planCmd.Flags().StringVar(&planStartDate, "start", "", "start date, YYYY-MM-DD")
	planCmd.Flags().StringSliceVar(&planInterests, "interests", nil, "interests, e.g. food,museums")
	planCmd.Flags().StringSliceVar(&planDiet, "diet", nil, "dietary restrictions, e.g. vegetarian,halal")
	planCmd.Flags().StringVar(&planBudget, "budget", "", "budget level: budget, moderate or luxury")
	planCmd.Flags().BoolVar(&planWait, "wait", false, "wait for poster and video generation to finish")
	planCmd.Flags().BoolVar(&planSave, "save", false, "save the itinerary locally and sync it when online")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print the raw response as JSON")

	rootCmd.AddCommand(planCmd)
}

func buildPlanRequest(args []string) types.PlanRequest {
	return types.PlanRequest{
		Message:         strings.TrimSpace(strings.Join(args, " ")),
		ConversationKey: planConversation,
		Preferences: types.Preferences{
			Destination:         planDestination,
			Origin:              planOrigin,
			Days:                planDays,
			StartDate:           planStartDate,
			Interests:           planInterests,
			DietaryRestrictions: planDiet,
			BudgetLevel:         planBudget,
		},
	}
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	req := buildPlanRequest(args)
	if req.Message == "" && req.Preferences.Destination == "" {
		if !tui.ShouldPrompt() {
			return NewErrorWithSuggestions("No travel request given", nil,
				`Describe the trip: wayfinder plan "3 days in Tokyo"`,
				"Or name a destination: wayfinder plan --destination Tokyo --days 3",
			)
		}
		message, err := tui.AskTrip()
		if err != nil {
			return err
		}
		req.Message = message
	}

	c := newClient()
	resp, err := c.Plan(ctx, req)
	if err != nil {
		if unreachable(ctx, err) {
			return ServerUnreachableError(cfg.Client.ServerURL, err)
		}
		return explain(err)
	}

	var media *types.TaskView
	if planWait && resp.TaskHandle != "" {
		view, err := waitTask(cmd, c, resp.TaskHandle)
		if err != nil {
			return fmt.Errorf("waiting for media: %w", err)
		}
		media = &view
	}

	var saved *offline.Record
	if planSave {
		rec, err := savePlan(cmd, resp, media)
		if err != nil {
			return err
		}
		saved = &rec
	}

	if planJSON {
		return printJSON(out, resp)
	}
	renderPlan(out, resp)
	if media != nil {
		fmt.Fprintln(out)
		renderTask(out, *media)
	}
	if saved != nil {
		fmt.Fprintln(out, mutedStyle.Render("Saved as "+saved.LocalID))
	}
	return nil
}

func savePlan(cmd *cobra.Command, resp *types.PlanResponse, media *types.TaskView) (offline.Record, error) {
	if resp.Plan == nil {
		return offline.Record{}, fmt.Errorf("nothing to save: the planner returned no plan")
	}
	data, err := json.Marshal(resp.Plan)
	if err != nil {
		return offline.Record{}, fmt.Errorf("failed to encode plan: %w", err)
	}

	engine, closeEngine, err := openEngine(cmd.Context(), true)
	if err != nil {
		return offline.Record{}, err
	}
	defer closeEngine()

	rec := offline.Record{
		Destination: resp.Plan.Destination,
		Summary:     resp.Plan.Summary.Text,
		PlanData:    data,
		TaskID:      resp.TaskHandle,
	}
	if media != nil {
		rec.MediaStatus = media.Status
		rec.CreativeAssets = media.AssetRefs
	}
	return engine.Save(cmd.Context(), rec)
}
