package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/internal/metrics"
	"github.com/felixgeelhaar/wayfinder/internal/tool"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// Manager creates tasks and answers status queries.
type Manager struct {
	store      Store
	dispatcher Dispatcher
	ttl        time.Duration
	now        func() time.Time
	newID      func() string
	logger     *log.Logger
	metrics    *metrics.Metrics
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL sets how long task records stay visible.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithManagerLogger(l *log.Logger) ManagerOption      { return func(m *Manager) { m.logger = l } }
func WithManagerMetrics(x *metrics.Metrics) ManagerOption { return func(m *Manager) { m.metrics = x } }

// NewManager creates a manager over store. dispatcher may be set later with
// SetDispatcher when it depends on a worker that needs the same store.
func NewManager(store Store, dispatcher Dispatcher, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		dispatcher: dispatcher,
		ttl:        DefaultTTL,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = log.OrDefault(m.logger).Component("task-manager")
	return m
}

// SetDispatcher replaces the dispatcher.
func (m *Manager) SetDispatcher(d Dispatcher) { m.dispatcher = d }

// Store returns the underlying task store.
func (m *Manager) Store() Store { return m.store }

// Create records a queued task for brief and dispatches it. If dispatch
// fails the task is marked failed and the error returned.
func (m *Manager) Create(ctx context.Context, brief tool.CreativeBrief) (string, error) {
	t := New(m.newID(), brief, m.now(), m.ttl)
	if err := m.store.Put(ctx, t); err != nil {
		return "", err
	}
	m.metrics.RecordTask(string(types.TaskQueued))

	if m.dispatcher == nil {
		err := errors.NewTaskDispatchError(t.ID, fmt.Errorf("no dispatcher configured"))
		m.markFailed(ctx, t.ID, err)
		return "", err
	}
	if err := m.dispatcher.Dispatch(ctx, t); err != nil {
		m.markFailed(ctx, t.ID, err)
		return "", err
	}
	m.logger.DebugContext(ctx, "task queued", "task_id", t.ID, "destination", brief.Destination)
	return t.ID, nil
}

func (m *Manager) markFailed(ctx context.Context, id string, cause error) {
	_, err := m.store.Update(ctx, id, func(t *Task) error {
		t.Error = cause.Error()
		return t.Transition(types.TaskFailed, m.now())
	})
	if err != nil {
		m.logger.WithError(err).Warn("could not mark task failed", "task_id", id)
		return
	}
	m.metrics.RecordTask(string(types.TaskFailed))
}

// Status returns the current view of task id. Unknown, malformed and aged
// out ids report expired; only store failures return an error.
func (m *Manager) Status(ctx context.Context, id string) (types.TaskView, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.TaskView{ID: id, Status: types.TaskExpired}, nil
	}
	t, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeTaskNotFound {
			return types.TaskView{ID: id, Status: types.TaskExpired}, nil
		}
		return types.TaskView{}, err
	}
	return t.View(), nil
}
