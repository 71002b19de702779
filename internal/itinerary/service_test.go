package itinerary

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

type fakeStatuses map[string]types.TaskView

func (f fakeStatuses) Status(_ context.Context, id string) (types.TaskView, error) {
	if v, ok := f[id]; ok {
		return v, nil
	}
	return types.TaskView{ID: id, Status: types.TaskExpired}, nil
}

func TestService_ListJoinsTaskStatus(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	svc := NewService(store, fakeStatuses{
		"t-running": {Status: types.TaskGenerating},
		"t-done":    {Status: types.TaskCompleted, AssetRefs: &types.AssetRefs{PosterURL: "poster.png"}},
	}, log.Discard())

	_, err := svc.Save(ctx, types.SaveItineraryRequest{LocalID: "a", Destination: "Tokyo", TaskID: "t-running"})
	require.NoError(t, err)
	doneID, err := svc.Save(ctx, types.SaveItineraryRequest{LocalID: "b", Destination: "Kyoto", TaskID: "t-done"})
	require.NoError(t, err)
	_, err = svc.Save(ctx, types.SaveItineraryRequest{LocalID: "c", Destination: "Osaka"})
	require.NoError(t, err)

	items, err := svc.List(ctx)
	require.NoError(t, err)
	byLocal := map[string]types.Itinerary{}
	for _, it := range items {
		byLocal[it.LocalID] = it
	}

	assert.Equal(t, types.TaskGenerating, byLocal["a"].MediaStatus)
	assert.Equal(t, types.TaskCompleted, byLocal["b"].MediaStatus)
	require.NotNil(t, byLocal["b"].CreativeAssets)
	assert.Equal(t, "poster.png", byLocal["b"].CreativeAssets.PosterURL)
	assert.Empty(t, byLocal["c"].MediaStatus)

	// The finished status was persisted.
	stored, err := store.Get(ctx, doneID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, stored.MediaStatus)
}

func TestService_ApplyMediaHook(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	svc := NewService(store, nil, log.Discard())

	id, err := svc.Save(ctx, types.SaveItineraryRequest{LocalID: "a", Destination: "Tokyo", TaskID: "t1"})
	require.NoError(t, err)
	svc.ApplyMedia(ctx, "t1", types.TaskFailed, types.AssetRefs{})

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, got.MediaStatus)
	assert.Nil(t, got.CreativeAssets)
}
