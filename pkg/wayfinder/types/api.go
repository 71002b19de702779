package types

import (
	"encoding/json"
	"time"
)

// PlanRequest is the body of POST /plan.
type PlanRequest struct {
	Message         string      `json:"message"`
	ConversationKey string      `json:"conversationKey,omitempty"`
	Preferences     Preferences `json:"preferences"`
	ExistingPlan    *Plan       `json:"existingPlan,omitempty"`
}

// Plan response statuses.
const (
	PlanStatusOK      = "ok"
	PlanStatusPartial = "partial"
	PlanStatusCached  = "cached"
)

// PlanResponse is returned by POST /plan.
type PlanResponse struct {
	Status     string `json:"status"`
	Plan       *Plan  `json:"plan,omitempty"`
	Partial    bool   `json:"partial"`
	TaskHandle string `json:"taskHandle,omitempty"`
}

// TaskStatus is the externally visible state of a background task.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskGenerating TaskStatus = "generating"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	// TaskExpired is reported for unknown or aged-out tasks. Callers treat
	// it as "plan complete without enrichment".
	TaskExpired TaskStatus = "expired"
)

// Terminal reports whether no further transitions can happen.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskExpired
}

// AssetRefs references generated media. Any field may be empty when its
// sub-job failed; a completed task can carry a subset of assets.
type AssetRefs struct {
	PosterURL    string   `json:"posterUrl,omitempty" yaml:"posterUrl,omitempty"`
	VideoURL     string   `json:"videoUrl,omitempty" yaml:"videoUrl,omitempty"`
	DailyPosters []string `json:"dailyPosters,omitempty" yaml:"dailyPosters,omitempty"`
}

// Empty reports whether no asset was produced.
func (a AssetRefs) Empty() bool {
	return a.PosterURL == "" && a.VideoURL == "" && len(a.DailyPosters) == 0
}

// TaskView is returned by GET /task/{id}.
type TaskView struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	AssetRefs *AssetRefs `json:"assetRefs,omitempty"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// SaveItineraryRequest is the body of POST /itinerary. LocalID is the
// client's idempotency key.
type SaveItineraryRequest struct {
	LocalID        string          `json:"localId"`
	Destination    string          `json:"destination"`
	Summary        string          `json:"summary"`
	PlanData       json.RawMessage `json:"planData"`
	CreativeAssets *AssetRefs      `json:"creativeAssets,omitempty"`
	TaskID         string          `json:"taskId,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt,omitempty"`
}

// SaveItineraryResponse is returned by POST /itinerary.
type SaveItineraryResponse struct {
	RemoteID string `json:"remoteId"`
}

// Itinerary is a saved plan as stored by the server.
type Itinerary struct {
	RemoteID       string          `json:"remoteId"`
	LocalID        string          `json:"localId"`
	Destination    string          `json:"destination"`
	Summary        string          `json:"summary"`
	PlanData       json.RawMessage `json:"planData"`
	CreativeAssets *AssetRefs      `json:"creativeAssets,omitempty"`
	MediaStatus    TaskStatus      `json:"mediaStatus,omitempty"`
	MediaTaskID    string          `json:"mediaTaskId,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ItineraryList is returned by GET /itinerary, newest first.
type ItineraryList struct {
	Items []Itinerary `json:"items"`
}

// ErrorBody is the error envelope of every non-2xx response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}
