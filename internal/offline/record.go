package offline

import (
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// Record is a saved plan as the client keeps it. RemoteID is set only
// after the server confirmed the write.
type Record struct {
	LocalID        string           `json:"localId"`
	RemoteID       string           `json:"remoteId,omitempty"`
	Destination    string           `json:"destination"`
	Summary        string           `json:"summary"`
	PlanData       json.RawMessage  `json:"planData,omitempty"`
	CreativeAssets *types.AssetRefs `json:"creativeAssets,omitempty"`
	TaskID         string           `json:"taskId,omitempty"`
	MediaStatus    types.TaskStatus `json:"mediaStatus,omitempty"`
	SavedAt        time.Time        `json:"savedAt"`
	LastAccessedAt time.Time        `json:"lastAccessedAt"`
}

// Synced reports whether the server has acknowledged the record.
func (r Record) Synced() bool {
	return r.RemoteID != ""
}

func (r Record) request() types.SaveItineraryRequest {
	return types.SaveItineraryRequest{
		LocalID:        r.LocalID,
		Destination:    r.Destination,
		Summary:        r.Summary,
		PlanData:       r.PlanData,
		CreativeAssets: r.CreativeAssets,
		TaskID:         r.TaskID,
		UpdatedAt:      r.SavedAt,
	}
}

// fromRemote overlays the server's copy onto r. Local timestamps are kept.
func (r Record) fromRemote(it types.Itinerary) Record {
	r.RemoteID = it.RemoteID
	r.Destination = it.Destination
	r.Summary = it.Summary
	if len(it.PlanData) > 0 {
		r.PlanData = it.PlanData
	}
	if it.CreativeAssets != nil {
		r.CreativeAssets = it.CreativeAssets
	}
	if it.MediaTaskID != "" {
		r.TaskID = it.MediaTaskID
	}
	r.MediaStatus = it.MediaStatus
	return r
}

// Pending write operations.
const (
	OpSave   = "save"
	OpDelete = "delete"
)

// PendingWrite is a mutation the server has not confirmed yet. There is at
// most one per record; Revision increases each time it is replaced.
type PendingWrite struct {
	RecordLocalID string
	Op            string
	Request       types.SaveItineraryRequest
	// RemoteID is the target of a delete.
	RemoteID   string
	Revision   int64
	EnqueuedAt time.Time
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Attempted int  `json:"attempted"`
	Synced    int  `json:"synced"`
	Failed    int  `json:"failed"`
	// Dropped counts entries whose record no longer exists locally.
	Dropped int  `json:"dropped"`
	Skipped bool `json:"skipped"`
}

func (r ReconcileReport) outcome() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Failed == 0:
		return "ok"
	case r.Synced > 0:
		return "partial"
	default:
		return "failed"
	}
}
