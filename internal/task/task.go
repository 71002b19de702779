// Package task tracks media enrichment jobs that run after a plan has been
// returned. A task moves forward only: queued, generating, then completed
// or failed. Tasks that age out are reported as expired.
package task

import (
	"time"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/internal/tool"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// DefaultTTL is how long a task record stays visible after creation.
const DefaultTTL = time.Hour

// Task is the stored record of one enrichment job.
type Task struct {
	ID        string             `json:"id"`
	Status    types.TaskStatus   `json:"status"`
	Brief     tool.CreativeBrief `json:"brief"`
	Assets    types.AssetRefs    `json:"assets"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// New creates a queued task.
func New(id string, brief tool.CreativeBrief, now time.Time, ttl time.Duration) *Task {
	return &Task{
		ID:        id,
		Status:    types.TaskQueued,
		Brief:     brief,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func rank(s types.TaskStatus) int {
	switch s {
	case types.TaskQueued:
		return 0
	case types.TaskGenerating:
		return 1
	case types.TaskCompleted, types.TaskFailed:
		return 2
	}
	return -1
}

// CanTransition reports whether a task in status from may move to to.
// Transitions only go forward and terminal states are final.
func CanTransition(from, to types.TaskStatus) bool {
	if from.Terminal() || to == types.TaskExpired {
		return false
	}
	rf, rt := rank(from), rank(to)
	return rf >= 0 && rt > rf
}

// Transition moves the task to status to.
func (t *Task) Transition(to types.TaskStatus, now time.Time) error {
	if !CanTransition(t.Status, to) {
		return errors.NewTaskTransitionError(string(t.Status), string(to))
	}
	t.Status = to
	t.UpdatedAt = now
	return nil
}

// Expired reports whether the task has aged out at now.
func (t *Task) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// View is the externally visible status of the task.
func (t *Task) View() types.TaskView {
	v := types.TaskView{
		ID:        t.ID,
		Status:    t.Status,
		Error:     t.Error,
		UpdatedAt: t.UpdatedAt,
	}
	if !t.Assets.Empty() {
		assets := t.Assets
		v.AssetRefs = &assets
	}
	return v
}
