package itinerary

import (
	"context"

	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// TaskStatuser reports enrichment task status.
type TaskStatuser interface {
	Status(ctx context.Context, id string) (types.TaskView, error)
}

// Service is the itinerary API: the store plus the media status of each
// entry's enrichment task.
type Service struct {
	store  *Store
	tasks  TaskStatuser
	logger *log.Logger
}

// NewService creates a service. tasks may be nil, in which case stored
// media status is returned as is.
func NewService(store *Store, tasks TaskStatuser, logger *log.Logger) *Service {
	return &Service{store: store, tasks: tasks, logger: log.OrDefault(logger).Component("itinerary")}
}

func (s *Service) Save(ctx context.Context, req types.SaveItineraryRequest) (string, error) {
	id, err := s.store.Save(ctx, req)
	if err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "itinerary saved", "remote_id", id, "local_id", req.LocalID)
	return id, nil
}

// List returns saved itineraries newest first. Entries whose media is
// still being generated get the live task status, and finished assets are
// copied in and persisted.
func (s *Service) List(ctx context.Context) ([]types.Itinerary, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.tasks == nil {
		return items, nil
	}
	for i := range items {
		it := &items[i]
		if it.MediaTaskID == "" || it.MediaStatus.Terminal() {
			continue
		}
		view, err := s.tasks.Status(ctx, it.MediaTaskID)
		if err != nil {
			s.logger.WithError(err).Warn("task status unavailable", "task_id", it.MediaTaskID)
			continue
		}
		it.MediaStatus = view.Status
		if view.AssetRefs != nil {
			assets := *view.AssetRefs
			it.CreativeAssets = &assets
		}
		if view.Status.Terminal() {
			var assets types.AssetRefs
			if view.AssetRefs != nil {
				assets = *view.AssetRefs
			}
			if _, err := s.store.ApplyMedia(ctx, it.MediaTaskID, view.Status, assets); err != nil {
				s.logger.WithError(err).Warn("could not persist media status", "task_id", it.MediaTaskID)
			}
		}
	}
	return items, nil
}

func (s *Service) Delete(ctx context.Context, remoteID string) error {
	if err := s.store.Delete(ctx, remoteID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "itinerary deleted", "remote_id", remoteID)
	return nil
}

// ApplyMedia records a finished enrichment task on the itineraries saved
// with it. It is registered as a task completion hook.
func (s *Service) ApplyMedia(ctx context.Context, taskID string, status types.TaskStatus, assets types.AssetRefs) {
	n, err := s.store.ApplyMedia(ctx, taskID, status, assets)
	if err != nil {
		s.logger.WithError(err).Warn("could not apply media", "task_id", taskID)
		return
	}
	if n > 0 {
		s.logger.Info("media applied to saved itineraries", "task_id", taskID, "count", n)
	}
}

// Ping checks the backing database.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
