// Package offline keeps a client's saved plans usable without a network
// connection and replays them to the server once it is reachable again.
//
// Every save lands in a local SQLite store first. While online the engine
// also writes through to the server; while offline, or when that write
// fails, the mutation is queued and replayed by Reconcile.
package offline

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/internal/metrics"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/client"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// Defaults for retention and the pending queue.
const (
	DefaultMaxRecords      = 50
	DefaultMaxAge          = 30 * 24 * time.Hour
	DefaultPendingCapacity = 100
)

// Engine states.
const (
	StateIdle        = "idle"
	StateReconciling = "reconciling"
)

// Remote is the server side of the itinerary API. *client.Client
// satisfies it.
type Remote interface {
	SaveItinerary(ctx context.Context, req types.SaveItineraryRequest) (string, error)
	ListItineraries(ctx context.Context) ([]types.Itinerary, error)
	DeleteItinerary(ctx context.Context, remoteID string) error
}

// Prober checks whether the server is reachable.
type Prober interface {
	Health(ctx context.Context) error
}

// Engine is the client sync engine.
type Engine struct {
	store    *LocalStore
	remote   Remote
	prober   Prober
	capacity int
	maxCount int
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *log.Logger
	metrics  *metrics.Metrics

	online      atomic.Bool
	reconciling atomic.Bool

	mu     sync.Mutex
	bgCtx  context.Context
	stopBg context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithPendingCapacity bounds the pending queue.
func WithPendingCapacity(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.capacity = n
		}
	}
}

// WithRetention sets the maximum record count and age. Zero disables the
// respective limit.
func WithRetention(maxRecords int, maxAge time.Duration) Option {
	return func(e *Engine) {
		e.maxCount = maxRecords
		e.maxAge = maxAge
	}
}

// WithReconcileInterval enables periodic probing and reconciliation in
// Start.
func WithReconcileInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

func WithProber(p Prober) Option            { return func(e *Engine) { e.prober = p } }
func WithLogger(l *log.Logger) Option       { return func(e *Engine) { e.logger = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine creates an engine over store that syncs to remote. The engine
// starts offline; call SetOnline or Probe once connectivity is known.
func NewEngine(store *LocalStore, remote Remote, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		remote:   remote,
		capacity: DefaultPendingCapacity,
		maxCount: DefaultMaxRecords,
		maxAge:   DefaultMaxAge,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = log.OrDefault(e.logger).Component("offline")
	e.bgCtx, e.stopBg = context.WithCancel(context.Background())
	return e
}

// Online reports the last known connectivity.
func (e *Engine) Online() bool {
	return e.online.Load()
}

// State returns StateIdle or StateReconciling.
func (e *Engine) State() string {
	if e.reconciling.Load() {
		return StateReconciling
	}
	return StateIdle
}

// SetOnline records connectivity. Going from offline to online starts a
// reconciliation pass in the background.
func (e *Engine) SetOnline(online bool) {
	was := e.online.Swap(online)
	if was == online {
		return
	}
	e.logger.Info("connectivity changed", "online", online)
	if online {
		e.background(func(ctx context.Context) {
			if _, err := e.Reconcile(ctx); err != nil {
				e.logger.WithError(err).Warn("reconcile after reconnect failed")
			}
		})
	}
}

// Probe checks the server with the configured Prober and updates
// connectivity. Without a prober the current state is returned.
func (e *Engine) Probe(ctx context.Context) bool {
	if e.prober == nil {
		return e.Online()
	}
	err := e.prober.Health(ctx)
	if err != nil {
		e.logger.WithError(err).Debug("server unreachable")
	}
	e.SetOnline(err == nil)
	return err == nil
}

// Start launches the periodic probe and reconcile loop when an interval is
// configured. It returns immediately; Close stops the loop.
func (e *Engine) Start(ctx context.Context) {
	if e.interval <= 0 {
		return
	}
	e.background(func(bg context.Context) {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-bg.Done():
				return
			case <-ticker.C:
				if !e.Probe(ctx) {
					continue
				}
				if _, err := e.Reconcile(ctx); err != nil {
					e.logger.WithError(err).Warn("periodic reconcile failed")
				}
			}
		}
	})
}

// Close stops background work and waits for it to finish. The local store
// stays open.
func (e *Engine) Close() {
	e.mu.Lock()
	e.stopBg()
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) background(fn func(ctx context.Context)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bgCtx.Err() != nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.bgCtx)
	}()
}

// Save stores rec locally and, when online, on the server. The record is
// written together with its pending save, which is cleared only once the
// server confirms the write. It fails only when the local write fails. An
// empty LocalID is assigned.
func (e *Engine) Save(ctx context.Context, rec Record) (Record, error) {
	if strings.TrimSpace(rec.Destination) == "" {
		return Record{}, errors.NewValidationError("destination", "must not be empty")
	}
	if rec.LocalID == "" {
		rec.LocalID = uuid.NewString()
	}
	now := e.now()
	rec.SavedAt = now
	rec.LastAccessedAt = now

	revision, err := e.store.SaveWithPending(ctx, rec,
		PendingWrite{RecordLocalID: rec.LocalID, Op: OpSave, Request: rec.request(), EnqueuedAt: now})
	if err != nil {
		return Record{}, err
	}
	logger := e.logger.With("local_id", rec.LocalID)

	synced := false
	if e.Online() {
		remoteID, err := e.remote.SaveItinerary(ctx, rec.request())
		if err == nil {
			if err := e.store.MarkSynced(ctx, rec.LocalID, remoteID, revision); err != nil {
				return Record{}, err
			}
			rec.RemoteID = remoteID
			synced = true
		} else {
			logger.WithError(err).Warn("remote save failed, queued for sync")
		}
	}
	if !synced {
		if err := e.trim(ctx); err != nil {
			return Record{}, err
		}
		if existing, err := e.store.Get(ctx, rec.LocalID); err == nil {
			rec.RemoteID = existing.RemoteID
		}
	}

	e.retain(ctx)
	e.reportPending(ctx)
	logger.Debug("record saved", "synced", synced)
	return rec, nil
}

// Get returns a local record and marks it accessed.
func (e *Engine) Get(ctx context.Context, localID string) (Record, error) {
	rec, err := e.store.Get(ctx, localID)
	if err != nil {
		return Record{}, err
	}
	rec.LastAccessedAt = e.now()
	if err := e.store.Touch(ctx, localID, rec.LastAccessedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns local records merged with the server's list when online.
// A server entry replaces the local entry with the same remote or local
// id unless that entry has an unsynced save; entries only the server knows
// are appended. Remote failures fall back to the local list.
func (e *Engine) List(ctx context.Context) ([]Record, error) {
	local, err := e.store.Records(ctx)
	if err != nil {
		return nil, err
	}
	if !e.Online() {
		return local, nil
	}
	remote, err := e.remote.ListItineraries(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("remote list failed, showing local records")
		return local, nil
	}

	byRemote := make(map[string]int, len(local))
	byLocal := make(map[string]int, len(local))
	for i, r := range local {
		if r.RemoteID != "" {
			byRemote[r.RemoteID] = i
		}
		byLocal[r.LocalID] = i
	}

	out := local
	for _, it := range remote {
		i, ok := byRemote[it.RemoteID]
		if !ok {
			i, ok = byLocal[it.LocalID]
		}
		if !ok {
			out = append(out, Record{
				LocalID:        it.LocalID,
				SavedAt:        it.UpdatedAt,
				LastAccessedAt: it.UpdatedAt,
			}.fromRemote(it))
			continue
		}
		pending, err := e.store.HasPendingSave(ctx, out[i].LocalID)
		if err != nil {
			return nil, err
		}
		if pending {
			continue
		}
		merged := out[i].fromRemote(it)
		if err := e.store.Put(ctx, merged); err != nil {
			return nil, err
		}
		out[i] = merged
	}
	return out, nil
}

// Delete removes a record locally. A synced record is also deleted on the
// server, immediately when online or by the next reconcile otherwise.
func (e *Engine) Delete(ctx context.Context, localID string) error {
	rec, err := e.store.Get(ctx, localID)
	if err != nil {
		return err
	}

	var tombstone *PendingWrite
	if rec.Synced() {
		queue := !e.Online()
		if !queue {
			if err := e.remote.DeleteItinerary(ctx, rec.RemoteID); err != nil && !client.IsNotFound(err) {
				e.logger.WithError(err).Warn("remote delete failed, queued for sync", "local_id", localID)
				queue = true
			}
		}
		if queue {
			tombstone = &PendingWrite{RecordLocalID: localID, Op: OpDelete, RemoteID: rec.RemoteID, EnqueuedAt: e.now()}
		}
	}
	if err := e.store.Delete(ctx, localID, tombstone); err != nil {
		return err
	}
	e.reportPending(ctx)
	return nil
}

// Pending returns the queued writes in replay order.
func (e *Engine) Pending(ctx context.Context) ([]PendingWrite, error) {
	return e.store.Pending(ctx)
}

// Reconcile replays the pending queue once, oldest first. Entries that
// fail stay queued for the next pass. Only one pass runs at a time; a call
// made while another pass is running returns a report with Skipped set.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileReport, error) {
	if !e.reconciling.CompareAndSwap(false, true) {
		report := ReconcileReport{Skipped: true}
		e.metrics.RecordReconcile(report.outcome())
		return report, nil
	}
	defer e.reconciling.Store(false)

	var report ReconcileReport
	pending, err := e.store.Pending(ctx)
	if err != nil {
		return report, err
	}

	for _, w := range pending {
		if ctx.Err() != nil {
			break
		}
		report.Attempted++
		logger := e.logger.With("local_id", w.RecordLocalID, "op", w.Op)

		switch w.Op {
		case OpDelete:
			if err := e.remote.DeleteItinerary(ctx, w.RemoteID); err != nil && !client.IsNotFound(err) {
				logger.WithError(err).Debug("replay failed")
				report.Failed++
				continue
			}
			if err := e.store.RemovePending(ctx, w.RecordLocalID, w.Revision); err != nil {
				return report, err
			}
			report.Synced++

		default:
			rec, err := e.store.Get(ctx, w.RecordLocalID)
			if errors.CodeOf(err) == errors.ErrCodeNotFound {
				if err := e.store.RemovePending(ctx, w.RecordLocalID, w.Revision); err != nil {
					return report, err
				}
				report.Dropped++
				continue
			}
			if err != nil {
				return report, err
			}

			req := w.Request
			if rec.SavedAt.After(w.EnqueuedAt) {
				req = rec.request()
			}
			remoteID, err := e.remote.SaveItinerary(ctx, req)
			if err != nil {
				logger.WithError(err).Debug("replay failed")
				report.Failed++
				continue
			}
			if err := e.store.MarkSynced(ctx, w.RecordLocalID, remoteID, w.Revision); err != nil {
				return report, err
			}
			report.Synced++
		}
	}

	e.reportPending(ctx)
	e.metrics.RecordReconcile(report.outcome())
	if report.Attempted > 0 {
		e.logger.Info("reconcile finished",
			"attempted", report.Attempted,
			"synced", report.Synced,
			"failed", report.Failed,
			"dropped", report.Dropped)
	}
	return report, nil
}

func (e *Engine) trim(ctx context.Context) error {
	evicted, err := e.store.Trim(ctx, e.capacity)
	if err != nil {
		return err
	}
	if evicted > 0 {
		e.metrics.RecordEviction("pending_capacity", evicted)
		e.logger.Warn("pending queue full, dropped oldest writes", "dropped", evicted)
	}
	return nil
}

// retain applies the retention policy. Failures are logged; they never
// fail the save that triggered them.
func (e *Engine) retain(ctx context.Context) {
	var cutoff time.Time
	if e.maxAge > 0 {
		cutoff = e.now().Add(-e.maxAge)
	}
	byAge, byCount, err := e.store.Evict(ctx, e.maxCount, cutoff)
	if err != nil {
		e.logger.WithError(err).Warn("retention pass failed")
		return
	}
	if byAge > 0 {
		e.metrics.RecordEviction("max_age", byAge)
	}
	if byCount > 0 {
		e.metrics.RecordEviction("max_records", byCount)
	}
	if byAge+byCount > 0 {
		e.logger.Debug("evicted local records", "by_age", byAge, "by_count", byCount)
	}
}

func (e *Engine) reportPending(ctx context.Context) {
	if n, err := e.store.PendingCount(ctx); err == nil {
		e.metrics.SetPending(n)
	}
}
