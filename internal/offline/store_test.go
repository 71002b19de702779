package offline

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

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func openLocal(t *testing.T) *LocalStore {
	t.Helper()
	s, err := OpenLocal(context.Background(), filepath.Join(t.TempDir(), "nested", "offline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id string, at time.Time) Record {
	return Record{
		LocalID:        id,
		Destination:    "Lisbon",
		Summary:        "trip " + id,
		PlanData:       json.RawMessage(`{"destination":"Lisbon","days":[]}`),
		SavedAt:        at,
		LastAccessedAt: at,
	}
}

func TestLocalStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	s := openLocal(t)

	rec := record("a", t0)
	rec.CreativeAssets = &types.AssetRefs{PosterURL: "https://cdn/p.png"}
	rec.TaskID = "task-1"
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, rec.Destination, got.Destination)
	assert.JSONEq(t, string(rec.PlanData), string(got.PlanData))
	assert.Equal(t, rec.CreativeAssets, got.CreativeAssets)
	assert.True(t, got.SavedAt.Equal(t0))

	_, err = s.Get(ctx, "missing")
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
}

func TestLocalStore_PutKeepsKnownRemoteID(t *testing.T) {
	ctx := context.Background()
	s := openLocal(t)

	require.NoError(t, s.Put(ctx, record("a", t0)))
	require.NoError(t, s.MarkSynced(ctx, "a", "remote-a", -1))

	edited := record("a", t0.Add(time.Minute))
	edited.Summary = "edited"
	require.NoError(t, s.Put(ctx, edited))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "remote-a", got.RemoteID)
	assert.Equal(t, "edited", got.Summary)
}

func TestLocalStore_EnqueueReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	s := openLocal(t)

	for i, id := range []string{"a", "b"} {
		_, err := s.Enqueue(ctx, PendingWrite{RecordLocalID: id, Op: OpSave, Request: types.SaveItineraryRequest{LocalID: id, Summary: "v1"}, EnqueuedAt: t0.Add(time.Duration(i) * time.Minute)}, 10)
		require.NoError(t, err)
	}
	_, err := s.Enqueue(ctx, PendingWrite{RecordLocalID: "a", Op: OpSave, Request: types.SaveItineraryRequest{LocalID: "a", Summary: "v2"}, EnqueuedAt: t0.Add(time.Hour)}, 10)
	require.NoError(t, err)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].RecordLocalID)
	assert.Equal(t, "v2", pending[0].Request.Summary)
	assert.Equal(t, int64(2), pending[0].Revision)
	assert.True(t, pending[0].EnqueuedAt.Equal(t0))

	// A stale revision must not remove the replaced entry.
	require.NoError(t, s.RemovePending(ctx, "a", 1))
	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLocalStore_EnqueueEvictsOldestPastCapacity(t *testing.T) {
	ctx := context.Background()
	s := openLocal(t)

	var evicted int
	for i, id := range []string{"a", "b", "c", "d"} {
		n, err := s.Enqueue(ctx, PendingWrite{RecordLocalID: id, Op: OpSave, EnqueuedAt: t0.Add(time.Duration(i) * time.Second)}, 3)
		require.NoError(t, err)
		evicted += n
	}
	assert.Equal(t, 1, evicted)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "b", pending[0].RecordLocalID)
}

func TestLocalStore_SaveWithPendingWritesBoth(t *testing.T) {
	ctx := context.Background()
	s := openLocal(t)

	rev, err := s.SaveWithPending(ctx, record("a", t0), PendingWrite{RecordLocalID: "a", Op: OpSave, Request: types.SaveItineraryRequest{LocalID: "a", Summary: "v1"}, EnqueuedAt: t0})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)

	_, err = s.Get(ctx, "a")
	require.NoError(t, err)
	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].RecordLocalID)

	edited := record("a", t0.Add(time.Minute))
	edited.Summary = "v2"
	rev2, err := s.SaveWithPending(ctx, edited, PendingWrite{RecordLocalID: "a", Op: OpSave, Request: types.SaveItineraryRequest{LocalID: "a", Summary: "v2"}, EnqueuedAt: t0.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev2)

	// Confirming the first revision must not clear the newer save.
	require.NoError(t, s.MarkSynced(ctx, "a", "remote-a", rev))
	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.MarkSynced(ctx, "a", "remote-a", rev2))
	n, err = s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLocalStore_SaveWithPendingRollsBackTogether(t *testing.T) {
	ctx := context.Background()
	s := openLocal(t)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := s.SaveWithPending(canceled, record("a", t0), PendingWrite{RecordLocalID: "a", Op: OpSave, EnqueuedAt: t0})
	require.Error(t, err)

	_, err = s.Get(ctx, "a")
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLocalStore_Trim(t *testing.T) {
	ctx := context.Background()
	s := openLocal(t)

	for i, id := range []string{"a", "b", "c"} {
		_, err := s.Enqueue(ctx, PendingWrite{RecordLocalID: id, Op: OpSave, EnqueuedAt: t0.Add(time.Duration(i) * time.Second)}, 0)
		require.NoError(t, err)
	}
	n, err := s.Trim(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].RecordLocalID)
}

func TestLocalStore_DeleteWithTombstoneIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := openLocal(t)

	require.NoError(t, s.Put(ctx, record("a", t0)))
	_, err := s.Enqueue(ctx, PendingWrite{RecordLocalID: "a", Op: OpSave, EnqueuedAt: t0}, 10)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "a", &PendingWrite{RecordLocalID: "a", Op: OpDelete, RemoteID: "remote-a", EnqueuedAt: t0.Add(time.Minute)}))

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, OpDelete, pending[0].Op)
	assert.Equal(t, "remote-a", pending[0].RemoteID)

	err = s.Delete(ctx, "a", nil)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
}

func TestLocalStore_EvictByAgeThenCount(t *testing.T) {
	ctx := context.Background()
	s := openLocal(t)

	require.NoError(t, s.Put(ctx, record("old", t0.Add(-40*24*time.Hour))))
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(ctx, record(id, t0.Add(time.Duration(i)*time.Minute))))
	}
	_, err := s.Enqueue(ctx, PendingWrite{RecordLocalID: "a", Op: OpSave, EnqueuedAt: t0}, 10)
	require.NoError(t, err)

	byAge, byCount, err := s.Evict(ctx, 2, t0.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, byAge)
	assert.Equal(t, 1, byCount)

	records, err := s.Records(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.LocalID)
	}
	assert.Equal(t, []string{"c", "b"}, ids)

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "pending save of an evicted record is dropped")
}
