package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/internal/log"
)

// Executor runs a stored task to completion.
type Executor interface {
	Execute(ctx context.Context, id string) error
}

// StaleFailer is implemented by executors that can fail a task left in
// generating by a delivery that never finished.
type StaleFailer interface {
	FailStale(ctx context.Context, id string, olderThan time.Duration) (bool, error)
}

// Dispatcher hands queued tasks to executors. Dispatch must not block on
// task execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, t *Task) error
}

// PoolDispatcher runs tasks on a fixed set of in-process goroutines fed by
// a bounded queue.
type PoolDispatcher struct {
	exec    Executor
	queue   chan string
	workers int
	logger  *log.Logger

	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
	closed  bool
}

// NewPoolDispatcher creates a pool of workers goroutines with room for
// queueSize waiting tasks.
func NewPoolDispatcher(exec Executor, workers, queueSize int, logger *log.Logger) *PoolDispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &PoolDispatcher{
		exec:    exec,
		queue:   make(chan string, queueSize),
		workers: workers,
		logger:  log.OrDefault(logger).Component("task-pool"),
	}
}

// Start launches the workers. Tasks run under ctx, not the context of the
// request that dispatched them.
func (p *PoolDispatcher) Start(ctx context.Context) {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for id := range p.queue {
				if err := p.exec.Execute(ctx, id); err != nil {
					p.logger.WithError(err).Error("task execution failed", "task_id", id)
				}
			}
		}()
	}
}

func (p *PoolDispatcher) Dispatch(_ context.Context, t *Task) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if p.closed {
		return errors.NewTaskDispatchError(t.ID, fmt.Errorf("dispatcher closed"))
	}
	select {
	case p.queue <- t.ID:
		return nil
	default:
		return errors.NewTaskDispatchError(t.ID, fmt.Errorf("queue full (%d)", cap(p.queue)))
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *PoolDispatcher) Close() {
	p.startMu.Lock()
	if p.closed {
		p.startMu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.startMu.Unlock()
	p.wg.Wait()
}

// JetStream defaults for the shared work queue.
const (
	DefaultStream   = "WAYFINDER_ENRICH"
	DefaultSubject  = "wayfinder.tasks.enrich"
	DefaultConsumer = "wayfinder-enrich"
	DefaultAckWait  = 5 * time.Minute
)

type dispatchMessage struct {
	TaskID      string `json:"task_id"`
	Destination string `json:"destination"`
}

// NATSDispatcher publishes tasks to a JetStream work-queue stream. Every
// server instance runs a consumer, so any instance may execute a task that
// another one created.
type NATSDispatcher struct {
	js       jetstream.JetStream
	stream   jetstream.Stream
	consumer jetstream.Consumer
	exec     Executor
	subject  string
	ackWait  time.Duration
	logger   *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNATSDispatcher creates or updates the work-queue stream.
func NewNATSDispatcher(ctx context.Context, js jetstream.JetStream, exec Executor, logger *log.Logger) (*NATSDispatcher, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        DefaultStream,
		Description: "wayfinder media enrichment tasks",
		Subjects:    []string{DefaultSubject},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      DefaultTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", DefaultStream, err)
	}
	return &NATSDispatcher{
		js:      js,
		stream:  stream,
		exec:    exec,
		subject: DefaultSubject,
		ackWait: DefaultAckWait,
		logger:  log.OrDefault(logger).Component("task-nats"),
	}, nil
}

func (d *NATSDispatcher) Dispatch(ctx context.Context, t *Task) error {
	data, err := json.Marshal(dispatchMessage{TaskID: t.ID, Destination: t.Brief.Destination})
	if err != nil {
		return fmt.Errorf("marshal dispatch message: %w", err)
	}
	if _, err := d.js.Publish(ctx, d.subject, data); err != nil {
		return errors.NewTaskDispatchError(t.ID, err)
	}
	return nil
}

// Start creates the durable consumer and begins pulling tasks.
func (d *NATSDispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return nil
	}

	consumer, err := d.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       DefaultConsumer,
		FilterSubject: d.subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       d.ackWait,
		MaxDeliver:    3,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	d.consumer = consumer

	subCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.consumeLoop(subCtx)

	d.logger.Info("task consumer started", "stream", DefaultStream, "consumer", DefaultConsumer)
	return nil
}

// Stop ends the consume loop and waits for the in-flight task.
func (d *NATSDispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *NATSDispatcher) consumeLoop(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := d.consumer.Fetch(1, jetstream.FetchMaxWait(time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Debug("fetch failed", "error", err)
			continue
		}
		for msg := range msgs.Messages() {
			d.handle(ctx, msg)
		}
	}
}

func (d *NATSDispatcher) handle(ctx context.Context, msg jetstream.Msg) {
	var m dispatchMessage
	if err := json.Unmarshal(msg.Data(), &m); err != nil {
		d.logger.Error("dropping malformed task message", "error", err)
		if err := msg.Term(); err != nil {
			d.logger.Warn("failed to terminate message", "error", err)
		}
		return
	}

	err := d.exec.Execute(ctx, m.TaskID)
	switch code := errors.CodeOf(err); {
	case err == nil:
	case code == errors.ErrCodeTaskNotFound:
		d.logger.Warn("skipping expired task", "task_id", m.TaskID)
	case code == errors.ErrCodeTaskTransition:
		// Already picked up by an earlier delivery. A redelivery only
		// happens once that delivery went unacknowledged for ackWait.
		d.failStale(ctx, m.TaskID, err)
	default:
		d.logger.WithError(err).Error("task execution failed", "task_id", m.TaskID)
		if nakErr := msg.Nak(); nakErr != nil {
			d.logger.Warn("failed to NAK message", "error", nakErr)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		d.logger.Warn("failed to ACK message", "task_id", m.TaskID, "error", err)
	}
}

func (d *NATSDispatcher) failStale(ctx context.Context, id string, cause error) {
	sf, ok := d.exec.(StaleFailer)
	if !ok {
		d.logger.Warn("skipping task", "task_id", id, "error", cause)
		return
	}
	failed, err := sf.FailStale(ctx, id, d.ackWait)
	switch {
	case err != nil:
		d.logger.WithError(err).Warn("could not fail stale task", "task_id", id)
	case failed:
		d.logger.Warn("failed task abandoned by an earlier delivery", "task_id", id)
	default:
		d.logger.Warn("skipping task", "task_id", id, "error", cause)
	}
}
