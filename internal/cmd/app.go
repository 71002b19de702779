package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/wayfinder/internal/cache"
	"github.com/felixgeelhaar/wayfinder/internal/config"
	"github.com/felixgeelhaar/wayfinder/internal/health"
	"github.com/felixgeelhaar/wayfinder/internal/itinerary"
	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/internal/metrics"
	"github.com/felixgeelhaar/wayfinder/internal/optimize"
	"github.com/felixgeelhaar/wayfinder/internal/profile"
	"github.com/felixgeelhaar/wayfinder/internal/server"
	"github.com/felixgeelhaar/wayfinder/internal/task"
	"github.com/felixgeelhaar/wayfinder/internal/telemetry"
	"github.com/felixgeelhaar/wayfinder/internal/tool"
	"github.com/felixgeelhaar/wayfinder/internal/version"
	"github.com/felixgeelhaar/wayfinder/internal/workflow"
)

// janitorInterval is how often the in-memory task store drops expired
// records.
const janitorInterval = time.Minute

// App wires the planning server together: task backend, itinerary
// storage, tool adapters, pipeline and HTTP surface.
type App struct {
	cfg    *config.Config
	logger *log.Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	probes   *health.ProbeManager

	// NATS
	embeddedServer *natsserver.Server
	natsConn       *nats.Conn
	js             jetstream.JetStream

	tasks        *task.Manager
	pool         *task.PoolDispatcher
	natsConsumer *task.NATSDispatcher
	itineraries  *itinerary.Store
	server       *server.Server

	stopBackground context.CancelFunc
	stopTracer     func(context.Context) error
}

// NewApp creates an application for cfg. Nothing is started until Start.
func NewApp(cfg *config.Config, logger *log.Logger) *App {
	return &App{cfg: cfg, logger: log.OrDefault(logger).Component("app")}
}

// Start builds every component. On error, whatever was already started
// is released again.
func (a *App) Start(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	info := version.GetInfo()
	a.stopTracer, err = telemetry.InitProvider(ctx, a.cfg.TracerConfig(info.Version))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	a.registry, a.metrics = metrics.NewRegistry()
	a.probes = health.NewProbeManager(info.Version)

	bgCtx, cancel := context.WithCancel(context.Background())
	a.stopBackground = cancel

	a.itineraries, err = itinerary.Open(ctx, a.cfg.Storage.Driver, a.cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open itinerary store: %w", err)
	}
	a.probes.AddChecker(health.NewPingChecker("itinerary-db", a.itineraries.Ping))

	store, err := a.taskStore(ctx, bgCtx)
	if err != nil {
		return err
	}
	a.tasks = task.NewManager(store, nil,
		task.WithTTL(a.cfg.Tasks.TTL),
		task.WithManagerLogger(a.logger),
		task.WithManagerMetrics(a.metrics),
	)
	itineraries := itinerary.NewService(a.itineraries, a.tasks, a.logger)

	worker := task.NewWorker(store, a.creative(),
		task.WithSubjobTimeout(a.cfg.Tasks.SubjobTimeout),
		task.WithCompletionHook(func(ctx context.Context, t *task.Task) {
			itineraries.ApplyMedia(ctx, t.ID, t.Status, t.Assets)
		}),
		task.WithWorkerLogger(a.logger),
		task.WithWorkerMetrics(a.metrics),
	)
	if err := a.startDispatcher(ctx, bgCtx, worker); err != nil {
		return err
	}

	toolkit, configured := a.toolkit()
	a.probes.AddChecker(health.NewProviderChecker(configured))

	coordinator := workflow.New(
		workflow.WithProfiler(profile.Extractor{}),
		workflow.WithResearcher(workflow.NewParallelResearcher(toolkit,
			a.cfg.Workflow.BranchTimeout, a.cfg.Workflow.BranchAttempts, a.logger, a.metrics)),
		workflow.WithPlanner(optimize.Optimizer{}),
		workflow.WithTasks(a.tasks),
		workflow.WithLogger(a.logger),
		workflow.WithMetrics(a.metrics),
		workflow.WithPlanCache(
			cache.New[workflow.CachedPlan]("plan", a.cfg.Workflow.CacheMaxEntries, cache.WithMetrics[workflow.CachedPlan](a.metrics)),
			a.cfg.Workflow.PlanCacheTTL,
		),
	)

	doc, err := server.LoadOpenAPI(ctx)
	if err != nil {
		return err
	}

	api := server.NewAPI(coordinator, a.tasks, itineraries, a.logger, a.metrics)
	a.server = server.NewServer(a.probes, api, server.Config{
		Address:         a.cfg.Server.Address,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		IdleTimeout:     a.cfg.Server.IdleTimeout,
		RequestTimeout:  a.cfg.Server.RequestTimeout,
		Gatherer:        a.registry,
		OpenAPI:         doc,
	}, a.logger)

	a.logger.Info("components initialized",
		"task_backend", a.cfg.Tasks.Backend,
		"storage_driver", a.cfg.Storage.Driver,
		"providers", configured,
	)
	return nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Serve blocks serving HTTP until Shutdown.
func (a *App) Serve() error {
	return a.server.Start()
}

// Shutdown stops accepting requests, drains in-flight work and releases
// every resource.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}
	a.release()
	if a.stopTracer != nil {
		if terr := a.stopTracer(ctx); terr != nil {
			a.logger.WithError(terr).Warn("tracer shutdown failed")
		}
	}
	return err
}

func (a *App) release() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.natsConsumer != nil {
		a.natsConsumer.Stop()
	}
	if a.stopBackground != nil {
		a.stopBackground()
	}
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
		a.natsConn.Close()
	}
	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}
	if a.itineraries != nil {
		if err := a.itineraries.Close(); err != nil {
			a.logger.WithError(err).Warn("closing itinerary store")
		}
	}
}

func (a *App) taskStore(ctx, bgCtx context.Context) (task.Store, error) {
	if a.cfg.Tasks.Backend != config.BackendNATS {
		store := task.NewMemoryStore()
		go store.Run(bgCtx, janitorInterval)
		return store, nil
	}

	if err := a.startNATS(); err != nil {
		return nil, fmt.Errorf("start NATS: %w", err)
	}
	a.probes.AddChecker(health.NewNATSChecker(a.natsConn))

	store, err := task.NewKVStore(ctx, a.js, a.cfg.Tasks.Bucket, a.cfg.Tasks.TTL)
	if err != nil {
		return nil, fmt.Errorf("open task bucket: %w", err)
	}
	return store, nil
}

func (a *App) startDispatcher(ctx, bgCtx context.Context, worker *task.Worker) error {
	if a.js == nil {
		a.pool = task.NewPoolDispatcher(worker, a.cfg.Tasks.Workers, a.cfg.Tasks.QueueSize, a.logger)
		a.pool.Start(bgCtx)
		a.tasks.SetDispatcher(a.pool)
		return nil
	}

	consumer, err := task.NewNATSDispatcher(ctx, a.js, worker, a.logger)
	if err != nil {
		return fmt.Errorf("create task stream: %w", err)
	}
	if err := consumer.Start(bgCtx); err != nil {
		return err
	}
	a.natsConsumer = consumer
	a.tasks.SetDispatcher(consumer)
	return nil
}

func (a *App) startNATS() error {
	if !a.cfg.Tasks.EmbeddedNATS {
		a.logger.Info("connecting to NATS", "url", a.cfg.Tasks.NATSURL)
		conn, err := nats.Connect(a.cfg.Tasks.NATSURL, nats.Name("wayfinder"))
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = conn
	} else {
		storeDir := a.cfg.Tasks.NATSStoreDir
		if storeDir == "" {
			storeDir = filepath.Join(os.TempDir(), "wayfinder-jetstream")
		}
		a.logger.Info("starting embedded NATS server", "store_dir", storeDir)
		ns, err := natsserver.NewServer(&natsserver.Options{
			Port:      -1,
			JetStream: true,
			StoreDir:  storeDir,
			NoLog:     true,
			NoSigs:    true,
		})
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}
		go ns.Start()
		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}
		a.embeddedServer = ns

		conn, err := nats.Connect(ns.ClientURL())
		if err != nil {
			return fmt.Errorf("connect to embedded NATS: %w", err)
		}
		a.natsConn = conn
	}

	js, err := jetstream.New(a.natsConn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js
	return nil
}

func (a *App) creative() tool.Creative {
	if a.cfg.Providers.Creative == "" {
		return tool.PlaceholderCreative{}
	}
	return tool.NewHTTPCreative(a.cfg.Providers.Creative, a.cfg.Providers.Timeout)
}

// toolkit builds the research adapters. Branches without a URL are left
// nil so the researcher falls back to placeholder data.
func (a *App) toolkit() (tool.Toolkit, map[string]bool) {
	p := a.cfg.Providers
	w := a.cfg.Workflow
	tk := tool.Toolkit{
		Route:   cachedAdapter[tool.RouteData]("route", p.Route, p.Timeout, w, a.metrics),
		Trend:   cachedAdapter[tool.TrendData]("trend", p.Trend, p.Timeout, w, a.metrics),
		Venue:   cachedAdapter[tool.VenueData]("venue", p.Venue, p.Timeout, w, a.metrics),
		Weather: cachedAdapter[tool.Forecast]("weather", p.Weather, p.Timeout, w, a.metrics),
	}
	return tk, map[string]bool{
		"route":    p.Route != "",
		"trend":    p.Trend != "",
		"venue":    p.Venue != "",
		"weather":  p.Weather != "",
		"creative": p.Creative != "",
	}
}

func cachedAdapter[T any](name, baseURL string, timeout time.Duration, w config.WorkflowConfig, m *metrics.Metrics) tool.Adapter[T] {
	if baseURL == "" {
		return nil
	}
	return tool.Cached[T](
		tool.NewHTTPAdapter[T](name, baseURL, timeout),
		cache.New[T](name, w.CacheMaxEntries, cache.WithMetrics[T](m)),
		w.ProviderCacheTTL,
	)
}
