package task

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/internal/metrics"
	"github.com/felixgeelhaar/wayfinder/internal/telemetry"
	"github.com/felixgeelhaar/wayfinder/internal/tool"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// DefaultSubjobTimeout bounds each creative sub-job.
const DefaultSubjobTimeout = 2 * time.Minute

// Sub-job names used in logs and metrics.
const (
	JobPoster      = "poster"
	JobVideo       = "video"
	JobDailyPoster = "daily_poster"
)

// CompletionHook is called after a task reaches a terminal state.
type CompletionHook func(ctx context.Context, t *Task)

// Worker executes enrichment tasks.
type Worker struct {
	store    Store
	creative tool.Creative
	timeout  time.Duration
	hooks    []CompletionHook
	now      func() time.Time
	logger   *log.Logger
	metrics  *metrics.Metrics
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithSubjobTimeout sets the watchdog applied to each sub-job.
func WithSubjobTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithCompletionHook registers fn to run when a task finishes.
func WithCompletionHook(fn CompletionHook) WorkerOption {
	return func(w *Worker) { w.hooks = append(w.hooks, fn) }
}

func WithWorkerLogger(l *log.Logger) WorkerOption      { return func(w *Worker) { w.logger = l } }
func WithWorkerMetrics(m *metrics.Metrics) WorkerOption { return func(w *Worker) { w.metrics = m } }

// NewWorker creates a worker that records progress in store.
func NewWorker(store Store, creative tool.Creative, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:    store,
		creative: creative,
		timeout:  DefaultSubjobTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = log.OrDefault(w.logger).Component("task-worker")
	return w
}

// Execute runs the creative sub-jobs for task id and records the outcome.
// The poster runs first; the video and one poster per day then run in
// parallel, anchored on the poster when it exists. The task completes if any
// asset was produced and fails otherwise.
func (w *Worker) Execute(ctx context.Context, id string) error {
	ctx, span := telemetry.StartTaskSpan(ctx, id)
	defer span.End()
	start := w.now()

	t, err := w.store.Update(ctx, id, func(t *Task) error {
		return t.Transition(types.TaskGenerating, w.now())
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("start task %s: %w", id, err)
	}
	w.metrics.RecordTask(string(types.TaskGenerating))
	logger := w.logger.With("task_id", id, "destination", t.Brief.Destination)
	logger.InfoContext(ctx, "media generation started")

	assets, failures := w.generate(ctx, t.Brief)

	final, err := w.store.Update(ctx, id, func(t *Task) error {
		t.Assets = assets
		if assets.Empty() {
			t.Error = errors.NewTaskFailedError(strings.Join(failures, "; ")).Message
			return t.Transition(types.TaskFailed, w.now())
		}
		if len(failures) > 0 {
			t.Error = "partial: " + strings.Join(failures, "; ")
		}
		return t.Transition(types.TaskCompleted, w.now())
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("finish task %s: %w", id, err)
	}

	w.metrics.RecordTask(string(final.Status))
	w.metrics.RecordTaskDuration(w.now().Sub(start))
	if final.Status == types.TaskFailed {
		logger.WarnContext(ctx, "media generation failed", "error", final.Error)
		telemetry.RecordError(span, errors.NewTaskFailedError(final.Error))
	} else {
		logger.InfoContext(ctx, "media generation completed",
			"daily_posters", len(final.Assets.DailyPosters), "partial", len(failures) > 0)
		telemetry.RecordSuccess(span)
	}

	for _, hook := range w.hooks {
		hook(ctx, final)
	}
	return nil
}

var errNotStale = fmt.Errorf("task is not stale")

// FailStale marks task id failed when it has been generating for at least
// olderThan without progress, which happens when the executor that started
// it stopped mid-run. It reports whether the task was moved.
func (w *Worker) FailStale(ctx context.Context, id string, olderThan time.Duration) (bool, error) {
	_, err := w.store.Update(ctx, id, func(t *Task) error {
		if t.Status != types.TaskGenerating || w.now().Sub(t.UpdatedAt) < olderThan {
			return errNotStale
		}
		t.Error = errors.NewTaskFailedError("generation abandoned after " + olderThan.String()).Message
		return t.Transition(types.TaskFailed, w.now())
	})
	if err == errNotStale {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	w.metrics.RecordTask(string(types.TaskFailed))
	w.logger.WarnContext(ctx, "stale task failed", "task_id", id, "idle_for", olderThan)
	return true, nil
}

func (w *Worker) generate(ctx context.Context, brief tool.CreativeBrief) (types.AssetRefs, []string) {
	var (
		assets   types.AssetRefs
		failures []string
		mu       sync.Mutex
	)
	fail := func(job string, err error) {
		mu.Lock()
		failures = append(failures, fmt.Sprintf("%s: %v", job, err))
		mu.Unlock()
	}

	poster, err := w.subjob(ctx, JobPoster, func(ctx context.Context) (string, error) {
		return w.creative.Poster(ctx, brief)
	})
	if err != nil {
		fail(JobPoster, err)
	}
	assets.PosterURL = poster

	daily := make([]string, len(brief.DayThemes))
	var g errgroup.Group
	g.Go(func() error {
		url, err := w.subjob(ctx, JobVideo, func(ctx context.Context) (string, error) {
			return w.creative.Video(ctx, brief, poster)
		})
		if err != nil {
			fail(JobVideo, err)
			return nil
		}
		assets.VideoURL = url
		return nil
	})
	for i := range brief.DayThemes {
		g.Go(func() error {
			url, err := w.subjob(ctx, JobDailyPoster, func(ctx context.Context) (string, error) {
				return w.creative.DayPoster(ctx, brief, i+1, poster)
			})
			if err != nil {
				fail(fmt.Sprintf("%s %d", JobDailyPoster, i+1), err)
				return nil
			}
			daily[i] = url
			return nil
		})
	}
	_ = g.Wait()

	for _, url := range daily {
		if url != "" {
			assets.DailyPosters = append(assets.DailyPosters, url)
		}
	}
	return assets, failures
}

// subjob runs fn under the watchdog timeout. It returns when the timeout
// fires even if fn ignores cancellation.
func (w *Worker) subjob(ctx context.Context, job string, fn func(context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	type result struct {
		url string
		err error
	}
	done := make(chan result, 1)
	go func() {
		url, err := fn(ctx)
		done <- result{url, err}
	}()

	select {
	case r := <-done:
		if r.err == nil && r.url == "" {
			r.err = fmt.Errorf("no asset returned")
		}
		outcome := "ok"
		if r.err != nil {
			outcome = "error"
		}
		w.metrics.RecordSubjob(job, outcome)
		return r.url, r.err
	case <-ctx.Done():
		w.metrics.RecordSubjob(job, "timeout")
		return "", fmt.Errorf("watchdog: %w", ctx.Err())
	}
}
