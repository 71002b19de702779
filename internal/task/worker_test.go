package task

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/internal/tool"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

type fakeCreative struct {
	mu          sync.Mutex
	posterErr   error
	videoErr    error
	dayErr      error
	hang        string
	anchors     []string
	dayRequests []int
}

func (f *fakeCreative) wait(ctx context.Context, job string) {
	if f.hang == job {
		<-ctx.Done()
	}
}

func (f *fakeCreative) Poster(ctx context.Context, b tool.CreativeBrief) (string, error) {
	f.wait(ctx, JobPoster)
	if f.posterErr != nil {
		return "", f.posterErr
	}
	return "poster://" + b.Destination, nil
}

func (f *fakeCreative) DayPoster(ctx context.Context, b tool.CreativeBrief, day int, anchor string) (string, error) {
	f.wait(ctx, JobDailyPoster)
	f.mu.Lock()
	f.anchors = append(f.anchors, anchor)
	f.dayRequests = append(f.dayRequests, day)
	f.mu.Unlock()
	if f.dayErr != nil {
		return "", f.dayErr
	}
	return fmt.Sprintf("day://%s/%d", b.Destination, day), nil
}

func (f *fakeCreative) Video(ctx context.Context, b tool.CreativeBrief, anchor string) (string, error) {
	f.wait(ctx, JobVideo)
	f.mu.Lock()
	f.anchors = append(f.anchors, anchor)
	f.mu.Unlock()
	if f.videoErr != nil {
		return "", f.videoErr
	}
	return "video://" + b.Destination, nil
}

func seedTask(t *testing.T, s Store, id string) {
	t.Helper()
	brief := tool.CreativeBrief{Destination: "Tokyo", DayThemes: []string{"Culture", "Food", "Parks"}}
	require.NoError(t, s.Put(context.Background(), New(id, brief, time.Now(), time.Hour)))
}

func TestWorker_AllAssets(t *testing.T) {
	store := NewMemoryStore()
	seedTask(t, store, "t1")
	creative := &fakeCreative{}
	var hooked *Task
	w := NewWorker(store, creative, WithWorkerLogger(log.Discard()),
		WithCompletionHook(func(_ context.Context, t *Task) { hooked = t }))

	require.NoError(t, w.Execute(context.Background(), "t1"))

	got, err := store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, got.Status)
	assert.Equal(t, "poster://Tokyo", got.Assets.PosterURL)
	assert.Equal(t, "video://Tokyo", got.Assets.VideoURL)
	assert.Equal(t, []string{"day://Tokyo/1", "day://Tokyo/2", "day://Tokyo/3"}, got.Assets.DailyPosters)
	assert.Empty(t, got.Error)

	for _, a := range creative.anchors {
		assert.Equal(t, "poster://Tokyo", a)
	}
	assert.ElementsMatch(t, []int{1, 2, 3}, creative.dayRequests)

	require.NotNil(t, hooked)
	assert.Equal(t, types.TaskCompleted, hooked.Status)
}

func TestWorker_PartialSuccessCompletes(t *testing.T) {
	store := NewMemoryStore()
	seedTask(t, store, "t1")
	w := NewWorker(store, &fakeCreative{videoErr: fmt.Errorf("render farm busy")}, WithWorkerLogger(log.Discard()))

	require.NoError(t, w.Execute(context.Background(), "t1"))

	got, err := store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, got.Status)
	assert.Empty(t, got.Assets.VideoURL)
	assert.NotEmpty(t, got.Assets.PosterURL)
	assert.Contains(t, got.Error, "render farm busy")
}

func TestWorker_PosterFailureRunsUnanchored(t *testing.T) {
	store := NewMemoryStore()
	seedTask(t, store, "t1")
	creative := &fakeCreative{posterErr: fmt.Errorf("boom")}
	w := NewWorker(store, creative, WithWorkerLogger(log.Discard()))

	require.NoError(t, w.Execute(context.Background(), "t1"))

	got, err := store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, got.Status)
	assert.Empty(t, got.Assets.PosterURL)
	assert.Len(t, got.Assets.DailyPosters, 3)
	for _, a := range creative.anchors {
		assert.Empty(t, a)
	}
}

func TestWorker_AllFailed(t *testing.T) {
	store := NewMemoryStore()
	seedTask(t, store, "t1")
	fail := fmt.Errorf("unavailable")
	w := NewWorker(store, &fakeCreative{posterErr: fail, videoErr: fail, dayErr: fail}, WithWorkerLogger(log.Discard()))

	require.NoError(t, w.Execute(context.Background(), "t1"))

	got, err := store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, got.Status)
	assert.True(t, got.Assets.Empty())
	assert.Contains(t, got.Error, "poster: unavailable")
}

func TestWorker_WatchdogTimeout(t *testing.T) {
	store := NewMemoryStore()
	seedTask(t, store, "t1")
	w := NewWorker(store, &fakeCreative{hang: JobVideo},
		WithWorkerLogger(log.Discard()), WithSubjobTimeout(50*time.Millisecond))

	start := time.Now()
	require.NoError(t, w.Execute(context.Background(), "t1"))
	assert.Less(t, time.Since(start), 2*time.Second)

	got, err := store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, got.Status)
	assert.Empty(t, got.Assets.VideoURL)
	assert.Contains(t, got.Error, "watchdog")
}

func TestWorker_RejectsFinishedTask(t *testing.T) {
	store := NewMemoryStore()
	seedTask(t, store, "t1")
	w := NewWorker(store, &fakeCreative{}, WithWorkerLogger(log.Discard()))
	require.NoError(t, w.Execute(context.Background(), "t1"))

	// A second delivery of the same task must not regress its status.
	err := w.Execute(context.Background(), "t1")
	require.Error(t, err)
	got, _ := store.Get(context.Background(), "t1")
	assert.Equal(t, types.TaskCompleted, got.Status)
}

func TestWorker_FailStale(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	w := NewWorker(store, &fakeCreative{}, WithWorkerLogger(log.Discard()))

	startAt := func(id string, at time.Time) {
		seedTask(t, store, id)
		_, err := store.Update(ctx, id, func(t *Task) error { return t.Transition(types.TaskGenerating, at) })
		require.NoError(t, err)
	}
	startAt("stale", time.Now().Add(-10*time.Minute))
	startAt("running", time.Now().Add(-time.Minute))
	seedTask(t, store, "queued")

	moved, err := w.FailStale(ctx, "stale", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, moved)
	got, err := store.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, got.Status)
	assert.Contains(t, got.Error, "abandoned")

	for _, id := range []string{"running", "queued"} {
		moved, err := w.FailStale(ctx, id, 5*time.Minute)
		require.NoError(t, err)
		assert.False(t, moved, id)
	}
	got, err = store.Get(ctx, "running")
	require.NoError(t, err)
	assert.Equal(t, types.TaskGenerating, got.Status)

	moved, err = w.FailStale(ctx, "stale", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, moved, "terminal tasks stay put")
}
