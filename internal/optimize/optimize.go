// Package optimize synthesizes research results into a day-by-day
// itinerary. It always produces a plan: with no usable research it falls
// back to generic exploration days and marks the plan partial.
package optimize

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/felixgeelhaar/wayfinder/internal/profile"
	"github.com/felixgeelhaar/wayfinder/internal/tool"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// Branch names of the research stage.
const (
	BranchRoute = "route"
	BranchTrend = "trend"
	BranchVenue = "venue"
)

// Research carries the settled result of each parallel branch.
type Research struct {
	Route tool.Result[tool.RouteData] `json:"route"`
	Trend tool.Result[tool.TrendData] `json:"trend"`
	Venue tool.Result[tool.VenueData] `json:"venue"`
}

// Degraded lists the branches that did not return real data, in a fixed
// order.
func (r Research) Degraded() []string {
	var out []string
	if r.Route.Degraded() {
		out = append(out, BranchRoute)
	}
	if r.Trend.Degraded() {
		out = append(out, BranchTrend)
	}
	if r.Venue.Degraded() {
		out = append(out, BranchVenue)
	}
	return out
}

// Durations in minutes by category.
var Durations = map[string]int{
	tool.CategoryMuseum:     120,
	tool.CategoryAttraction: 90,
	tool.CategoryLandmark:   45,
	tool.CategoryRestaurant: 90,
	tool.CategoryCafe:       45,
	tool.CategoryShopping:   60,
	tool.CategoryPark:       60,
	tool.CategoryBeach:      180,
	tool.CategoryNightlife:  180,
	"transport":             30,
	"rest":                  30,
}

const (
	breakfastAt   = 8 * 60
	dayStart      = 9 * 60
	lunchAt       = 12*60 + 30
	lunchEnd      = 14 * 60
	dinnerAt      = 19 * 60
	dinnerEnd     = 20*60 + 30
	eveningStart  = 21 * 60
	dayEnd        = 24 * 60
	bufferMinutes = 30

	maxActivitiesPerDay = 5
	maxMinutesPerDay    = 8 * 60
)

var dailyCost = map[string]float64{"budget": 50, "moderate": 100, "luxury": 200}

var interestCategories = map[string][]string{
	"cultural":        {tool.CategoryMuseum, tool.CategoryLandmark},
	"nature":          {tool.CategoryPark, tool.CategoryBeach},
	"adventure":       {tool.CategoryPark, tool.CategoryAttraction},
	"culinary":        {tool.CategoryRestaurant, tool.CategoryCafe},
	"beach":           {tool.CategoryBeach},
	"relaxation":      {tool.CategoryPark, tool.CategoryBeach, tool.CategoryCafe},
	"nightlife":       {tool.CategoryNightlife},
	"shopping":        {tool.CategoryShopping},
	"family_friendly": {tool.CategoryPark, tool.CategoryAttraction},
	"romantic":        {tool.CategoryLandmark, tool.CategoryRestaurant},
}

var indoor = map[string]bool{
	tool.CategoryMuseum:     true,
	tool.CategoryShopping:   true,
	tool.CategoryCafe:       true,
	tool.CategoryRestaurant: true,
	tool.CategoryNightlife:  true,
}

type activity struct {
	name     string
	category string
	priority float64
	minutes  int
	trending bool
}

// Optimizer builds plans. The zero value is usable.
type Optimizer struct {
	Now func() time.Time
}

// Optimize builds the itinerary for p from whatever research is available.
// The returned plan is never nil.
func (o Optimizer) Optimize(p profile.Profile, r Research) *types.Plan {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}

	days := max(p.Days, 1)
	pool := activities(p.Traveler.Interests, r)
	restaurants := restaurantsFor(r.Venue.Data, p.Restrictions())
	var forecast tool.Forecast
	if r.Venue.Data != nil && r.Venue.Data.Weather != nil {
		forecast = *r.Venue.Data.Weather
	}

	plan := &types.Plan{
		Destination: p.Destination,
		Origin:      p.Origin,
		StartDate:   p.StartDate.Format(time.DateOnly),
		Traveler:    p.Traveler,
		Sources:     sources(r),
		FollowUps:   p.FollowUps,
		GeneratedAt: now().UTC(),
	}
	if r.Venue.Data != nil {
		for i, h := range r.Venue.Data.Hotels {
			if i == 3 {
				break
			}
			plan.Hotels = append(plan.Hotels, h.Name)
		}
	}

	used := make([]bool, len(pool))
	for day := 1; day <= days; day++ {
		picked := pick(pool, used, forecast.Rainy(day))
		dp := schedule(day, p.StartDate.AddDate(0, 0, day-1), pool, picked, used, restaurants, plan.Hotels)
		dp.EstimatedCost = costFor(p.Traveler.BudgetLevel)
		for _, f := range forecast.Days {
			if f.Day == day {
				dp.Weather = f.Condition
			}
		}
		plan.Days = append(plan.Days, dp)
	}

	if degraded := r.Degraded(); len(degraded) > 0 {
		plan.Partial = true
		for _, b := range degraded {
			plan.Warnings = append(plan.Warnings, warningFor(b))
		}
	}
	if d := r.Trend.Data; d != nil && len(d.Trends) > 0 {
		plan.Hashtags = slices.Clone(d.Trends[0].Hashtags)
	}
	plan.Summary = summarize(plan)
	plan.Tips = tips(p.Traveler, plan.Days, plan.Hashtags)
	return plan
}

func activities(interests []string, r Research) []activity {
	var out []activity
	if d := r.Route.Data; d != nil {
		for _, pl := range d.Places {
			out = append(out, activity{
				name:     pl.Name,
				category: pl.Category,
				priority: score(pl.Rating, pl.Category, interests),
				minutes:  durationOf(pl.Category),
			})
		}
	}
	if d := r.Venue.Data; d != nil {
		for _, v := range d.Attractions {
			if v.Category == tool.CategoryRestaurant {
				continue
			}
			out = append(out, activity{
				name:     v.Name,
				category: v.Category,
				priority: score(v.Rating, v.Category, interests),
				minutes:  durationOf(v.Category),
			})
		}
	}
	if d := r.Trend.Data; d != nil {
		for _, t := range d.Trends {
			out = append(out, activity{
				name:     t.Title,
				category: cmp.Or(t.Category, tool.CategoryAttraction),
				priority: min(t.Score, 100),
				minutes:  90,
				trending: true,
			})
		}
	}

	seen := make(map[string]bool, len(out))
	out = slices.DeleteFunc(out, func(a activity) bool {
		k := strings.ToLower(a.name)
		if seen[k] {
			return true
		}
		seen[k] = true
		return false
	})
	slices.SortStableFunc(out, func(a, b activity) int {
		if c := cmp.Compare(b.priority, a.priority); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})
	return out
}

func score(rating float64, category string, interests []string) float64 {
	if rating == 0 {
		rating = 3
	}
	s := rating * 10
	for _, in := range interests {
		if slices.Contains(interestCategories[in], category) {
			s += 15
		}
	}
	return min(s, 100)
}

func durationOf(category string) int {
	if d, ok := Durations[category]; ok {
		return d
	}
	return 60
}

// pick chooses up to five unused activities totalling at most eight hours.
// On rainy days indoor activities are considered first.
func pick(pool []activity, used []bool, rainy bool) []int {
	var picked []int
	total := 0
	consider := func(filter func(activity) bool) {
		for i, a := range pool {
			if len(picked) == maxActivitiesPerDay {
				return
			}
			if used[i] || slices.Contains(picked, i) || !filter(a) {
				continue
			}
			if total+a.minutes > maxMinutesPerDay {
				continue
			}
			picked = append(picked, i)
			total += a.minutes
		}
	}
	if rainy {
		consider(func(a activity) bool { return indoor[a.category] })
	}
	consider(func(activity) bool { return true })
	return picked
}

// schedule lays picked activities into the morning, afternoon and evening
// windows around fixed meals. Activities that do not fit stay unused for
// later days.
func schedule(day int, date time.Time, pool []activity, picked []int, used []bool, restaurants []tool.Venue, hotels []string) types.DayPlan {
	dp := types.DayPlan{Day: day, Date: date.Format(time.DateOnly)}

	breakfast := "Hotel or nearby cafe"
	if len(hotels) > 0 {
		breakfast = hotels[0]
	}
	dp.Slots = append(dp.Slots, meal("Breakfast", breakfastAt, breakfastAt+45, breakfast, ""))

	var morning, afternoon, evening []types.TimeSlot
	var placed []activity
	mClock, aClock, eClock := dayStart, lunchEnd, eveningStart
	for _, i := range picked {
		a := pool[i]
		slot := types.TimeSlot{Activity: a.name, Category: a.category, Location: a.name}
		if a.trending {
			slot.Notes = "Trending right now"
		}
		switch {
		case a.category == tool.CategoryNightlife && eClock+a.minutes <= dayEnd:
			slot.Start, slot.End = clock(eClock), clock(eClock+a.minutes)
			eClock += a.minutes + bufferMinutes
			evening = append(evening, slot)
		case mClock+a.minutes <= lunchAt:
			slot.Start, slot.End = clock(mClock), clock(mClock+a.minutes)
			mClock += a.minutes + bufferMinutes
			morning = append(morning, slot)
		case aClock+a.minutes <= dinnerAt:
			slot.Start, slot.End = clock(aClock), clock(aClock+a.minutes)
			aClock += a.minutes + bufferMinutes
			afternoon = append(afternoon, slot)
		default:
			continue
		}
		used[i] = true
		placed = append(placed, a)
	}

	if len(placed) == 0 {
		morning = append(morning, types.TimeSlot{
			Start: clock(dayStart + 60), End: clock(dayStart + 180),
			Activity: "Free exploration", Category: "rest",
			Notes: "Wander the neighbourhood at your own pace",
		})
	}

	lunch, dinner := restaurantPair(restaurants, day)
	dp.Slots = append(dp.Slots, morning...)
	dp.Slots = append(dp.Slots, meal("Lunch", lunchAt, lunchEnd, lunch.Name, lunch.note))
	dp.Slots = append(dp.Slots, afternoon...)
	dp.Slots = append(dp.Slots, meal("Dinner", dinnerAt, dinnerEnd, dinner.Name, dinner.note))
	dp.Slots = append(dp.Slots, evening...)
	dp.Theme = theme(placed)
	return dp
}

func meal(name string, start, end int, location, notes string) types.TimeSlot {
	return types.TimeSlot{
		Start: clock(start), End: clock(end),
		Activity: name, Category: "meal",
		Location: location, Notes: notes,
	}
}

func clock(minutes int) string {
	if minutes >= dayEnd {
		minutes = dayEnd - 1
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

type restaurantChoice struct {
	Name string
	note string
}

// restaurantsFor keeps restaurants tagged with every restriction. With no
// restrictions all restaurants qualify.
func restaurantsFor(v *tool.VenueData, restrictions []string) []tool.Venue {
	if v == nil {
		return nil
	}
	var out []tool.Venue
	for _, r := range v.Restaurants {
		ok := true
		for _, need := range restrictions {
			if !slices.Contains(r.Tags, need) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out
}

func restaurantPair(rs []tool.Venue, day int) (restaurantChoice, restaurantChoice) {
	if len(rs) == 0 {
		local := restaurantChoice{Name: "Local restaurant", note: "Try local cuisine"}
		return local, local
	}
	l := rs[(2*(day-1))%len(rs)]
	d := rs[(2*(day-1)+1)%len(rs)]
	return restaurantChoice{Name: l.Name, note: strings.Join(l.Tags, ", ")},
		restaurantChoice{Name: d.Name, note: strings.Join(d.Tags, ", ")}
}

func theme(placed []activity) string {
	if len(placed) == 0 {
		return "Exploration Day"
	}
	count := func(cat string) int {
		n := 0
		for _, a := range placed {
			if a.category == cat {
				n++
			}
		}
		return n
	}
	trending := slices.ContainsFunc(placed, func(a activity) bool { return a.trending })
	switch {
	case count(tool.CategoryMuseum) >= 2:
		return "Culture & History Day"
	case count(tool.CategoryPark) >= 2 || count(tool.CategoryBeach) >= 1:
		return "Nature & Relaxation Day"
	case count(tool.CategoryShopping) >= 2:
		return "Shopping & Markets Day"
	case trending:
		return "Local Discoveries Day"
	}
	return "Mixed Adventure Day"
}

func costFor(budget string) float64 {
	if c, ok := dailyCost[budget]; ok {
		return c
	}
	return dailyCost[profile.DefaultBudget]
}

func sources(r Research) map[string]string {
	src := func(s tool.Source, hasData bool) string {
		if !hasData {
			return "missing"
		}
		return string(s)
	}
	return map[string]string{
		BranchRoute: src(r.Route.Source, r.Route.Data != nil),
		BranchTrend: src(r.Trend.Source, r.Trend.Data != nil),
		BranchVenue: src(r.Venue.Source, r.Venue.Data != nil),
	}
}

func warningFor(branch string) string {
	switch branch {
	case BranchRoute:
		return "Live points of interest were unavailable; sights are suggestions."
	case BranchTrend:
		return "Live trends were unavailable; trending picks are suggestions."
	case BranchVenue:
		return "Live hotel and restaurant data was unavailable; venues are suggestions."
	}
	return branch + " data unavailable"
}
