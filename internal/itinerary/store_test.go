package itinerary

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "wayfinder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SaveIsIdempotentByLocalID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	req := types.SaveItineraryRequest{
		LocalID:     "local-1",
		Destination: "Tokyo",
		Summary:     "3 days",
		PlanData:    json.RawMessage(`{"destination":"Tokyo"}`),
		UpdatedAt:   base,
	}
	first, err := s.Save(ctx, req)
	require.NoError(t, err)

	req.Summary = "3 days, revised"
	req.UpdatedAt = base.Add(time.Minute)
	second, err := s.Save(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "3 days, revised", items[0].Summary)
	assert.JSONEq(t, `{"destination":"Tokyo"}`, string(items[0].PlanData))
}

func TestStore_StaleSaveIgnored(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	_, err := s.Save(ctx, types.SaveItineraryRequest{LocalID: "l", Destination: "Rome", Summary: "new", UpdatedAt: base})
	require.NoError(t, err)
	_, err = s.Save(ctx, types.SaveItineraryRequest{LocalID: "l", Destination: "Rome", Summary: "old", UpdatedAt: base.Add(-time.Hour)})
	require.NoError(t, err)

	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "new", items[0].Summary)
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for _, dest := range []string{"Paris", "Berlin", "Madrid"} {
		_, err := s.Save(ctx, types.SaveItineraryRequest{LocalID: dest, Destination: dest})
		require.NoError(t, err)
		now = now.Add(time.Second)
	}

	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "Madrid", items[0].Destination)
	assert.Equal(t, "Paris", items[2].Destination)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Save(ctx, types.SaveItineraryRequest{LocalID: "l", Destination: "Oslo"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, id))

	err = s.Delete(ctx, id)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
	_, err = s.Get(ctx, id)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
}

func TestStore_Validation(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Save(context.Background(), types.SaveItineraryRequest{Destination: "Oslo"})
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
	_, err = s.Save(context.Background(), types.SaveItineraryRequest{LocalID: "l"})
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
}

func TestStore_ApplyMedia(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Save(ctx, types.SaveItineraryRequest{LocalID: "l", Destination: "Kyoto", TaskID: "task-1"})
	require.NoError(t, err)
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskQueued, got.MediaStatus)
	assert.Nil(t, got.CreativeAssets)

	n, err := s.ApplyMedia(ctx, "task-1", types.TaskCompleted, types.AssetRefs{PosterURL: "p.png", VideoURL: "v.mp4"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, got.MediaStatus)
	require.NotNil(t, got.CreativeAssets)
	assert.Equal(t, "v.mp4", got.CreativeAssets.VideoURL)
}

func TestStore_Rebind(t *testing.T) {
	s := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", s.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	s.driver = DriverSQLite
	assert.Equal(t, "x = ?", s.rebind("x = ?"))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
}
