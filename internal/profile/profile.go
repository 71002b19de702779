// Package profile turns a free-text planning message plus explicit
// preferences into a structured traveler profile. It is the first,
// sequential stage of the planning pipeline.
package profile

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

const (
	DefaultBudget = "moderate"
	DefaultStyle  = "balanced"
	DefaultDays   = 3
	MaxDays       = 14
)

// Profile is the output of the profile stage.
type Profile struct {
	Traveler    types.Traveler `json:"traveler"`
	Destination string         `json:"destination"`
	Origin      string         `json:"origin,omitempty"`
	Days        int            `json:"days"`
	StartDate   time.Time      `json:"startDate"`
	FollowUps   []string       `json:"followUps,omitempty"`
}

// Restrictions returns dietary and religious requirements together, which
// is what venue filtering cares about.
func (p Profile) Restrictions() []string {
	return append(slices.Clone(p.Traveler.DietaryRestrictions), p.Traveler.ReligiousRequirements...)
}

type keyword struct{ word, value string }

var (
	dietaryKeywords = []keyword{
		{"vegetarian", "vegetarian"}, {"vegan", "vegan"}, {"pescatarian", "pescatarian"},
		{"gluten-free", "gluten_free"}, {"gluten free", "gluten_free"},
		{"dairy-free", "dairy_free"}, {"dairy free", "dairy_free"}, {"lactose", "dairy_free"},
		{"no meat", "vegetarian"}, {"plant-based", "vegan"}, {"plant based", "vegan"},
	}
	religiousKeywords = []keyword{
		{"halal", "halal"}, {"kosher", "kosher"}, {"hindu", "hindu_dietary"},
		{"buddhist", "buddhist_dietary"}, {"jain", "jain_dietary"},
	}
	budgetKeywords = []keyword{
		{"budget", "budget"}, {"cheap", "budget"}, {"affordable", "budget"}, {"backpack", "budget"},
		{"moderate", "moderate"}, {"mid-range", "moderate"},
		{"luxury", "luxury"}, {"premium", "luxury"}, {"high-end", "luxury"},
		{"expensive", "luxury"}, {"splurge", "luxury"},
	}
	styleKeywords = []keyword{
		{"adventure", "adventure"}, {"adventurous", "adventure"},
		{"relaxation", "relaxation"}, {"relaxing", "relaxation"}, {"peaceful", "relaxation"},
		{"cultural", "cultural"}, {"culture", "cultural"}, {"historical", "cultural"}, {"museum", "cultural"},
		{"foodie", "culinary"}, {"culinary", "culinary"}, {"food tour", "culinary"}, {"food", "culinary"},
		{"nature", "nature"}, {"outdoor", "nature"}, {"hiking", "nature"},
		{"beach", "beach"}, {"coastal", "beach"},
		{"nightlife", "nightlife"}, {"party", "nightlife"},
		{"family", "family_friendly"}, {"kid", "family_friendly"},
		{"romantic", "romantic"}, {"honeymoon", "romantic"},
		{"shopping", "shopping"},
	}
	allergyTriggers = []string{"allergy", "allergic", "can't eat", "cannot eat", "intolerant", "intolerance"}
	allergens       = []string{"peanut", "shellfish", "seafood", "egg", "soy", "wheat", "milk", "fish", "sesame", "nut"}
	accessibility   = []keyword{
		{"wheelchair", "wheelchair_access"}, {"mobility", "limited_mobility"},
		{"stroller", "stroller_friendly"}, {"step-free", "step_free"},
	}

	soloPhrases   = []string{"solo", "alone", "by myself", "just me"}
	couplePhrases = []string{"couple", "two of us", "partner and i", "my partner", "honeymoon"}

	groupPattern       = regexp.MustCompile(`(\d+)\s*(?:people|persons|travelers|travellers|adults|of us|friends)`)
	familyOfPattern    = regexp.MustCompile(`family of (\d+)`)
	daysPattern        = regexp.MustCompile(`(\d+)\s*-?\s*(?:days?|nights?)`)
	destinationPattern = regexp.MustCompile(`\b(?:to|in|visit|visiting|around|explore)\s+((?:[\p{Lu}][\p{L}'.-]*)(?:\s+[\p{Lu}][\p{L}'.-]*){0,3})`)
	originPattern      = regexp.MustCompile(`\bfrom\s+((?:[\p{Lu}][\p{L}'.-]*)(?:\s+[\p{Lu}][\p{L}'.-]*){0,2})`)
)

// Extractor builds profiles. The zero value is usable.
type Extractor struct {
	// Now is used to default the start date to tomorrow.
	Now func() time.Time
}

// Extract builds a profile from message and prefs. It fails only when no
// destination can be determined, which aborts the planning request.
func (e Extractor) Extract(message string, prefs types.Preferences) (Profile, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	lower := strings.ToLower(message)

	t := types.Traveler{
		BudgetLevel: DefaultBudget,
		TravelStyle: DefaultStyle,
		GroupSize:   1,
		Languages:   []string{"English"},
	}
	t.DietaryRestrictions = matchAll(lower, dietaryKeywords)
	t.ReligiousRequirements = matchAll(lower, religiousKeywords)
	t.Interests = matchAll(lower, styleKeywords)
	t.AccessibilityNeeds = matchAll(lower, accessibility)
	if v, ok := matchFirst(lower, budgetKeywords); ok {
		t.BudgetLevel = v
	}
	if len(t.Interests) > 0 {
		t.TravelStyle = t.Interests[0]
	}
	if containsAny(lower, allergyTriggers) {
		words := strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) })
		for _, a := range allergens {
			for _, w := range words {
				if w == a || w == a+"s" {
					t.Allergies = appendUnique(t.Allergies, a)
				}
			}
		}
	}
	t.GroupSize = groupSize(lower)

	p := Profile{
		Destination: destination(message),
		Origin:      origin(message),
		Days:        tripDays(lower),
	}

	applyPreferences(&t, &p, prefs)
	p.Traveler = t

	if strings.TrimSpace(p.Destination) == "" {
		if strings.TrimSpace(message) == "" {
			return Profile{}, errors.NewProfileError("empty message", nil)
		}
		return Profile{}, errors.NewProfileError("no destination found in message", nil)
	}

	p.StartDate = startDate(prefs.StartDate, now())
	p.FollowUps = followUps(t)
	return p, nil
}

func applyPreferences(t *types.Traveler, p *Profile, prefs types.Preferences) {
	if prefs.Destination != "" {
		p.Destination = strings.TrimSpace(prefs.Destination)
	}
	if prefs.Origin != "" {
		p.Origin = strings.TrimSpace(prefs.Origin)
	}
	if prefs.Days > 0 {
		p.Days = min(prefs.Days, MaxDays)
	}
	if prefs.BudgetLevel != "" {
		t.BudgetLevel = strings.ToLower(prefs.BudgetLevel)
	}
	if prefs.TravelStyle != "" {
		t.TravelStyle = strings.ToLower(prefs.TravelStyle)
	}
	if prefs.GroupSize > 0 {
		t.GroupSize = prefs.GroupSize
	}
	for _, v := range prefs.Interests {
		t.Interests = appendUnique(t.Interests, strings.ToLower(v))
	}
	for _, v := range prefs.DietaryRestrictions {
		t.DietaryRestrictions = appendUnique(t.DietaryRestrictions, strings.ToLower(v))
	}
	for _, v := range prefs.Allergies {
		t.Allergies = appendUnique(t.Allergies, strings.ToLower(v))
	}
	for _, v := range prefs.AccessibilityNeeds {
		t.AccessibilityNeeds = appendUnique(t.AccessibilityNeeds, v)
	}
	if len(prefs.Languages) > 0 {
		t.Languages = slices.Clone(prefs.Languages)
	}
}

func matchAll(s string, kws []keyword) []string {
	var out []string
	for _, kw := range kws {
		if strings.Contains(s, kw.word) {
			out = appendUnique(out, kw.value)
		}
	}
	return out
}

func matchFirst(s string, kws []keyword) (string, bool) {
	for _, kw := range kws {
		if strings.Contains(s, kw.word) {
			return kw.value, true
		}
	}
	return "", false
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	if v == "" || slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

func groupSize(lower string) int {
	if m := familyOfPattern.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	if m := groupPattern.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	if containsAny(lower, couplePhrases) {
		return 2
	}
	return 1
}

func tripDays(lower string) int {
	if m := daysPattern.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return min(n, MaxDays)
		}
	}
	switch {
	case strings.Contains(lower, "weekend"):
		return 2
	case strings.Contains(lower, "week"):
		return 7
	}
	return DefaultDays
}

var notPlaces = map[string]bool{
	"I": true, "The": true, "A": true, "My": true, "We": true, "June": true, "July": true,
	"May": true, "April": true, "March": true, "August": true, "September": true,
	"October": true, "November": true, "December": true, "January": true, "February": true,
	"Spring": true, "Summer": true, "Autumn": true, "Fall": true, "Winter": true,
}

func destination(message string) string {
	for _, m := range destinationPattern.FindAllStringSubmatch(message, -1) {
		place := strings.TrimRight(m[1], ".,'")
		if first, _, _ := strings.Cut(place, " "); notPlaces[first] {
			continue
		}
		return place
	}
	return ""
}

func origin(message string) string {
	if m := originPattern.FindStringSubmatch(message); m != nil {
		return strings.TrimRight(m[1], ".,'")
	}
	return ""
}

func startDate(explicit string, now time.Time) time.Time {
	if explicit != "" {
		if d, err := time.Parse(time.DateOnly, explicit); err == nil {
			return d
		}
	}
	y, m, d := now.AddDate(0, 0, 1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func followUps(t types.Traveler) []string {
	var qs []string
	if len(t.DietaryRestrictions) == 0 && len(t.ReligiousRequirements) == 0 {
		qs = append(qs, "Do you have any dietary restrictions or food preferences?")
	}
	if len(t.Interests) == 0 {
		qs = append(qs, "What kind of trip are you after: adventure, relaxation or culture?")
	}
	if t.GroupSize == 1 {
		qs = append(qs, "Are you travelling solo or with others?")
	}
	return qs
}

// Normalize returns a canonical lower-case destination used in cache keys.
func Normalize(destination string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(destination), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}
