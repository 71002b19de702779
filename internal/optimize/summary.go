package optimize

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/felixgeelhaar/wayfinder/internal/profile"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

func summarize(plan *types.Plan) types.TripSummary {
	s := types.TripSummary{
		TotalDays:   len(plan.Days),
		BudgetLevel: plan.Traveler.BudgetLevel,
	}
	for _, d := range plan.Days {
		for _, slot := range d.Slots {
			if slot.Category != "meal" {
				s.TotalActivities++
			}
		}
		s.EstimatedTotalCost += d.EstimatedCost
		s.DayThemes = append(s.DayThemes, d.Theme)
	}

	style := plan.Traveler.TravelStyle
	if style == "" || style == profile.DefaultStyle {
		style = "balanced"
	}
	s.Text = fmt.Sprintf("%d-day %s trip to %s with %d activities (about $%.0f per person, %s budget)",
		s.TotalDays, strings.ReplaceAll(style, "_", " "), plan.Destination,
		s.TotalActivities, s.EstimatedTotalCost, s.BudgetLevel)
	if plan.Partial {
		s.Text += "; some sections use suggested data"
	}
	return s
}

func tips(t types.Traveler, days []types.DayPlan, hashtags []string) []string {
	var out []string
	if len(t.DietaryRestrictions) > 0 || len(t.ReligiousRequirements) > 0 {
		needs := append(slices.Clone(t.DietaryRestrictions), t.ReligiousRequirements...)
		out = append(out, fmt.Sprintf("Restaurants were chosen for %s diets; confirm with staff when ordering.",
			strings.ReplaceAll(strings.Join(needs, ", "), "_", " ")))
	}
	if len(t.Allergies) > 0 {
		out = append(out, fmt.Sprintf("Carry an allergy card listing: %s.", strings.Join(t.Allergies, ", ")))
	}
	switch t.BudgetLevel {
	case "budget":
		out = append(out, "Look for city passes and free museum days to stretch the budget.")
	case "luxury":
		out = append(out, "Book signature restaurants and guided tours well in advance.")
	}
	if t.GroupSize > 4 {
		out = append(out, "Reserve tables and tickets ahead; larger groups fill up fast.")
	}
	for _, need := range t.AccessibilityNeeds {
		out = append(out, fmt.Sprintf("Check %s before visiting each venue.", strings.ReplaceAll(need, "_", " ")))
	}
	for _, d := range days {
		if d.Weather == "rain" {
			out = append(out, fmt.Sprintf("Rain is likely on day %d; the schedule favours indoor stops.", d.Day))
		}
	}
	if len(hashtags) > 0 {
		out = append(out, fmt.Sprintf("Follow %s for live recommendations.", hashtags[0]))
	}
	if len(out) == 0 {
		out = append(out, "Keep the afternoons flexible to follow local recommendations.")
	}
	return out
}

// Refine adjusts a cached plan to the latest profile without new research:
// the traveler, costs, summary and tips are recomputed while the scheduled
// days and trend hashtags are kept. The cached plan is not modified.
func (o Optimizer) Refine(cached *types.Plan, p profile.Profile) *types.Plan {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}

	plan := *cached
	plan.Days = slices.Clone(cached.Days)
	plan.Warnings = slices.Clone(cached.Warnings)
	plan.Hashtags = slices.Clone(cached.Hashtags)
	plan.Traveler = p.Traveler
	plan.FollowUps = p.FollowUps
	for i := range plan.Days {
		plan.Days[i].EstimatedCost = costFor(p.Traveler.BudgetLevel)
	}
	plan.Summary = summarize(&plan)
	plan.Tips = tips(p.Traveler, plan.Days, plan.Hashtags)
	plan.GeneratedAt = now().UTC()
	return &plan
}
