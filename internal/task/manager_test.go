package task

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/internal/tool"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

type failingDispatcher struct{}

func (failingDispatcher) Dispatch(_ context.Context, t *Task) error {
	return errors.NewTaskDispatchError(t.ID, fmt.Errorf("broker down"))
}

func TestManager_CreateAndComplete(t *testing.T) {
	store := NewMemoryStore()
	worker := NewWorker(store, tool.PlaceholderCreative{}, WithWorkerLogger(log.Discard()))
	pool := NewPoolDispatcher(worker, 2, 8, log.Discard())
	pool.Start(context.Background())
	defer pool.Close()
	m := NewManager(store, pool, WithManagerLogger(log.Discard()))

	id, err := m.Create(context.Background(), tool.CreativeBrief{Destination: "Lisbon", DayThemes: []string{"Old town"}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		v, err := m.Status(context.Background(), id)
		return err == nil && v.Status == types.TaskCompleted
	}, 2*time.Second, 10*time.Millisecond)

	v, err := m.Status(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, v.AssetRefs)
	assert.Contains(t, v.AssetRefs.PosterURL, "lisbon")
	assert.Len(t, v.AssetRefs.DailyPosters, 1)
}

func TestManager_UnknownIsExpired(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil, WithManagerLogger(log.Discard()))

	for _, id := range []string{"not-a-uuid", "9b2f6c1e-8f3a-4d3e-9a53-0c2f1c6d7e11"} {
		v, err := m.Status(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, types.TaskExpired, v.Status)
		assert.Equal(t, id, v.ID)
	}
}

func TestManager_AgedOutIsExpired(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	m := NewManager(store, NewPoolDispatcher(nil, 1, 1, log.Discard()), WithManagerLogger(log.Discard()), WithTTL(time.Minute))
	m.now = store.now

	id, err := m.Create(context.Background(), tool.CreativeBrief{Destination: "Oslo"})
	require.NoError(t, err)

	v, err := m.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskQueued, v.Status)

	now = now.Add(2 * time.Minute)
	v, err = m.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskExpired, v.Status)
}

func TestManager_DispatchFailureMarksFailed(t *testing.T) {
	store := NewMemoryStore()
	ids := []string{"5f0c8c8e-2d4b-4b7e-8a59-1f7d2c3b4a10"}
	m := NewManager(store, failingDispatcher{}, WithManagerLogger(log.Discard()))
	m.newID = func() string { return ids[0] }

	_, err := m.Create(context.Background(), tool.CreativeBrief{Destination: "Rome"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTaskDispatch, errors.CodeOf(err))

	v, err := m.Status(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, v.Status)
	assert.Contains(t, v.Error, "broker down")
}

func TestPoolDispatcher_QueueFull(t *testing.T) {
	p := NewPoolDispatcher(NewWorker(NewMemoryStore(), tool.PlaceholderCreative{}), 1, 1, log.Discard())
	require.NoError(t, p.Dispatch(context.Background(), &Task{ID: "a"}))

	err := p.Dispatch(context.Background(), &Task{ID: "b"})
	assert.Equal(t, errors.ErrCodeTaskDispatch, errors.CodeOf(err))

	p.Close()
	err = p.Dispatch(context.Background(), &Task{ID: "c"})
	assert.Error(t, err)
}
