// Package types holds the wire types of the wayfinder HTTP API. They are
// shared by the server, the Go client and the offline sync engine.
package types

import "time"

// Preferences are explicit traveler choices sent with a planning request.
type Preferences struct {
	Destination         string   `json:"destination,omitempty" yaml:"destination,omitempty"`
	Origin              string   `json:"origin,omitempty" yaml:"origin,omitempty"`
	Days                int      `json:"days,omitempty" yaml:"days,omitempty"`
	StartDate           string   `json:"startDate,omitempty" yaml:"startDate,omitempty"`
	Interests           []string `json:"interests,omitempty" yaml:"interests,omitempty"`
	DietaryRestrictions []string `json:"dietaryRestrictions,omitempty" yaml:"dietaryRestrictions,omitempty"`
	Allergies           []string `json:"allergies,omitempty" yaml:"allergies,omitempty"`
	BudgetLevel         string   `json:"budgetLevel,omitempty" yaml:"budgetLevel,omitempty"`
	TravelStyle         string   `json:"travelStyle,omitempty" yaml:"travelStyle,omitempty"`
	GroupSize           int      `json:"groupSize,omitempty" yaml:"groupSize,omitempty"`
	AccessibilityNeeds  []string `json:"accessibilityNeeds,omitempty" yaml:"accessibilityNeeds,omitempty"`
	Languages           []string `json:"languages,omitempty" yaml:"languages,omitempty"`
}

// Traveler is the structured profile a plan was personalised for.
type Traveler struct {
	DietaryRestrictions   []string `json:"dietaryRestrictions" yaml:"dietaryRestrictions"`
	ReligiousRequirements []string `json:"religiousRequirements" yaml:"religiousRequirements"`
	Allergies             []string `json:"allergies" yaml:"allergies"`
	BudgetLevel           string   `json:"budgetLevel" yaml:"budgetLevel"`
	TravelStyle           string   `json:"travelStyle" yaml:"travelStyle"`
	AccessibilityNeeds    []string `json:"accessibilityNeeds" yaml:"accessibilityNeeds"`
	GroupSize             int      `json:"groupSize" yaml:"groupSize"`
	Interests             []string `json:"interests" yaml:"interests"`
	Languages             []string `json:"languages" yaml:"languages"`
}

// TimeSlot is one scheduled block within a day.
type TimeSlot struct {
	Start    string `json:"start" yaml:"start"`
	End      string `json:"end" yaml:"end"`
	Activity string `json:"activity" yaml:"activity"`
	Category string `json:"category" yaml:"category"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	Notes    string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// DayPlan is one day of the itinerary.
type DayPlan struct {
	Day           int        `json:"day" yaml:"day"`
	Date          string     `json:"date" yaml:"date"`
	Theme         string     `json:"theme" yaml:"theme"`
	Slots         []TimeSlot `json:"slots" yaml:"slots"`
	EstimatedCost float64    `json:"estimatedCost" yaml:"estimatedCost"`
	Weather       string     `json:"weather,omitempty" yaml:"weather,omitempty"`
}

// TripSummary aggregates the itinerary.
type TripSummary struct {
	Text               string   `json:"text" yaml:"text"`
	TotalDays          int      `json:"totalDays" yaml:"totalDays"`
	TotalActivities    int      `json:"totalActivities" yaml:"totalActivities"`
	EstimatedTotalCost float64  `json:"estimatedTotalCost" yaml:"estimatedTotalCost"`
	BudgetLevel        string   `json:"budgetLevel" yaml:"budgetLevel"`
	DayThemes          []string `json:"dayThemes" yaml:"dayThemes"`
}

// Plan is the synthesized itinerary. Partial is set when any research
// branch fell back to placeholder data; Warnings then name the missing
// sections and Sources records the origin of each branch.
type Plan struct {
	Destination string            `json:"destination" yaml:"destination"`
	Origin      string            `json:"origin,omitempty" yaml:"origin,omitempty"`
	StartDate   string            `json:"startDate" yaml:"startDate"`
	Traveler    Traveler          `json:"traveler" yaml:"traveler"`
	Days        []DayPlan         `json:"days" yaml:"days"`
	Hotels      []string          `json:"hotels,omitempty" yaml:"hotels,omitempty"`
	Summary     TripSummary       `json:"summary" yaml:"summary"`
	Tips        []string          `json:"tips" yaml:"tips"`
	Partial     bool              `json:"partial" yaml:"partial"`
	Warnings    []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Sources     map[string]string `json:"sources" yaml:"sources"`
	Hashtags    []string          `json:"hashtags,omitempty" yaml:"hashtags,omitempty"`
	FollowUps   []string          `json:"followUps,omitempty" yaml:"followUps,omitempty"`
	GeneratedAt time.Time         `json:"generatedAt" yaml:"generatedAt"`
}
