package task

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
)

// DefaultBucket is the JetStream KV bucket holding task records.
const DefaultBucket = "WAYFINDER_TASKS"

const maxCASAttempts = 5

// KVStore stores tasks in a JetStream key-value bucket so every server
// instance sees the same task states. The bucket TTL ages records out.
type KVStore struct {
	kv  jetstream.KeyValue
	now func() time.Time
}

// NewKVStore opens or creates bucket with the given TTL.
func NewKVStore(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*KVStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "wayfinder enrichment task states",
		TTL:         ttl,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("create task bucket %s: %w", bucket, err)
	}
	return &KVStore{kv: kv, now: time.Now}, nil
}

func (s *KVStore) Put(ctx context.Context, t *Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if _, err := s.kv.Put(ctx, t.ID, data); err != nil {
		return errors.NewStorageError("put task "+t.ID, err)
	}
	return nil
}

func (s *KVStore) Get(ctx context.Context, id string) (*Task, error) {
	t, _, err := s.get(ctx, id)
	return t, err
}

func (s *KVStore) get(ctx context.Context, id string) (*Task, uint64, error) {
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) || stderrors.Is(err, jetstream.ErrInvalidKey) {
			return nil, 0, errors.NewTaskNotFoundError(id)
		}
		return nil, 0, errors.NewStorageError("get task "+id, err)
	}
	var t Task
	if err := json.Unmarshal(entry.Value(), &t); err != nil {
		return nil, 0, fmt.Errorf("unmarshal task %s: %w", id, err)
	}
	if t.Expired(s.now()) {
		return nil, 0, errors.NewTaskNotFoundError(id)
	}
	return &t, entry.Revision(), nil
}

// Update is a compare-and-set on the entry revision, retried when another
// instance wrote the record in between.
func (s *KVStore) Update(ctx context.Context, id string, fn func(*Task) error) (*Task, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		t, rev, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(t); err != nil {
			return nil, err
		}
		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("marshal task: %w", err)
		}
		if _, err := s.kv.Update(ctx, id, data, rev); err != nil {
			if stderrors.Is(err, jetstream.ErrKeyExists) {
				continue
			}
			var apiErr *jetstream.APIError
			if stderrors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
				continue
			}
			return nil, errors.NewStorageError("update task "+id, err)
		}
		return t, nil
	}
	return nil, errors.NewStorageError("update task "+id, fmt.Errorf("revision conflict after %d attempts", maxCASAttempts))
}

func (s *KVStore) Delete(ctx context.Context, id string) error {
	if err := s.kv.Delete(ctx, id); err != nil && !stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return errors.NewStorageError("delete task "+id, err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *KVStore) Ping(ctx context.Context) error {
	if _, err := s.kv.Status(ctx); err != nil {
		return fmt.Errorf("task bucket status: %w", err)
	}
	return nil
}
