package task

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
)

// Store persists task records. Get and Update report TASK-002 for unknown
// or expired tasks.
type Store interface {
	Put(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// Update applies fn to the current record and stores the result. If fn
	// returns an error nothing is written.
	Update(ctx context.Context, id string, fn func(*Task) error) (*Task, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps tasks in process memory. Expiry is enforced on read; a
// janitor started with Run removes expired records in the background.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task), now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, t *Task) error {
	cp := *t
	s.mu.Lock()
	s.tasks[t.ID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	t, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok || t.Expired(s.now()) {
		return nil, errors.NewTaskNotFoundError(id)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Task) error) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Expired(s.now()) {
		return nil, errors.NewTaskNotFoundError(id)
	}
	cp := *t
	if err := fn(&cp); err != nil {
		return nil, err
	}
	s.tasks[id] = &cp
	out := cp
	return &out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
	return nil
}

// Sweep removes expired records and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, t := range s.tasks {
		if t.Expired(now) {
			delete(s.tasks, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx ends.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
