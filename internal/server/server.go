// Package server exposes the planning API over HTTP together with health
// probes and Prometheus metrics, and shuts down gracefully by failing
// readiness first and then draining connections.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/wayfinder/internal/health"
	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/internal/metrics"
)

// Server is the wayfinder HTTP server.
type Server struct {
	httpServer      *http.Server
	router          chi.Router
	probeManager    *health.ProbeManager
	inShutdown      atomic.Bool
	shutdownTimeout time.Duration
	logger          *log.Logger
}

// Config holds server configuration. Zero durations use the defaults.
type Config struct {
	// Address is the listen address, e.g. ":8080".
	Address string

	// ShutdownTimeout bounds connection draining. Default 30s.
	ShutdownTimeout time.Duration

	// ReadTimeout defaults to 10s.
	ReadTimeout time.Duration

	// WriteTimeout must exceed RequestTimeout. Default 60s.
	WriteTimeout time.Duration

	// IdleTimeout defaults to 60s.
	IdleTimeout time.Duration

	// RequestTimeout bounds each API request. Default 30s, which leaves
	// room for research branches that time out at 8s.
	RequestTimeout time.Duration

	// Gatherer serves /metrics. Nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer

	// OpenAPI, when set, is served at /openapi.json.
	OpenAPI *openapi3.T
}

func (c *Config) applyDefaults() {
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// NewServer builds the router: probes and metrics at the root, the API
// behind request id, recovery, logging and timeout middleware.
func NewServer(probeManager *health.ProbeManager, api *API, cfg Config, logger *log.Logger) *Server {
	cfg.applyDefaults()
	s := &Server{
		probeManager:    probeManager,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          log.OrDefault(logger).Component("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/startup", s.handleStartup)
	r.Get("/healthz", s.handleReadiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.HandlerFor(cfg.Gatherer))
	} else {
		r.Handle("/metrics", metrics.Handler())
	}

	if cfg.OpenAPI != nil {
		if h, err := openAPIHandler(cfg.OpenAPI); err == nil {
			r.Get("/openapi.json", h)
		} else {
			s.logger.WithError(err).Warn("openapi document not served")
		}
	}

	if api != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
			api.Routes(r)
		})
	}

	s.router = r
	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and blocks until the server
// stops. It returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.probeManager.MarkInitialized()
	s.logger.Info("listening", "address", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown fails readiness, stops keep-alives and drains in-flight
// requests for up to the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.probeManager.MarkShutdown()
	s.httpServer.SetKeepAlivesEnabled(false)

	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) IsShuttingDown() bool {
	return s.inShutdown.Load()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			}
			switch {
			case ww.Status() >= 500:
				s.logger.ErrorContext(r.Context(), "request failed", args...)
			case r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/health"):
				s.logger.Debug("request", args...)
			default:
				s.logger.InfoContext(r.Context(), "request", args...)
			}
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) writeProbeResponse(w http.ResponseWriter, result *health.ProbeResult, unhealthyStatus int) {
	w.Header().Set("Content-Type", "application/json")
	if result.Status == health.StatusUnhealthy {
		w.WriteHeader(unhealthyStatus)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.WithError(err).Warn("encode probe response")
	}
}

// handleLiveness always answers 200; liveness is degraded during shutdown.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeProbeResponse(w, s.probeManager.CheckLiveness(r.Context()), http.StatusOK)
}

// handleReadiness answers 503 while shutting down or when a dependency is
// unhealthy.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.writeProbeResponse(w, s.probeManager.CheckReadiness(r.Context()), http.StatusServiceUnavailable)
}

// handleStartup answers 503 until the server starts serving.
func (s *Server) handleStartup(w http.ResponseWriter, r *http.Request) {
	s.writeProbeResponse(w, s.probeManager.CheckStartup(r.Context()), http.StatusServiceUnavailable)
}
