// Package telemetry configures OpenTelemetry tracing for wayfinder and offers
// span helpers for the planning pipeline and background tasks.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	globalProvider trace.TracerProvider
	globalShutdown func(context.Context) error
	providerMu     sync.RWMutex
)

// exportBreaker stops hammering an unreachable collector. After threshold
// consecutive failures exports are refused until cooldown has passed.
type exportBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openedAt  time.Time
}

func (b *exportBreaker) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.threshold {
		return true
	}
	return now.Sub(b.openedAt) > b.cooldown
}

func (b *exportBreaker) report(err error, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.openedAt = now
	}
}

// resilientExporter retries failed exports with a short backoff schedule and
// gives up early while the breaker is open.
type resilientExporter struct {
	sdktrace.SpanExporter
	breaker *exportBreaker
	backoff []time.Duration
}

func newResilientExporter(exp sdktrace.SpanExporter) *resilientExporter {
	return &resilientExporter{
		SpanExporter: exp,
		breaker:      &exportBreaker{threshold: 5, cooldown: 30 * time.Second},
		backoff:      []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond},
	}
}

func (e *resilientExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if !e.breaker.allow(time.Now()) {
		return fmt.Errorf("span export suspended after repeated failures")
	}

	err := e.SpanExporter.ExportSpans(ctx, spans)
	for _, wait := range e.backoff {
		if err == nil {
			break
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			e.breaker.report(ctx.Err(), time.Now())
			return ctx.Err()
		}
		err = e.SpanExporter.ExportSpans(ctx, spans)
	}
	e.breaker.report(err, time.Now())
	if err != nil {
		return fmt.Errorf("export spans: %w", err)
	}
	return nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
}

// InitProvider installs the global tracer provider and returns its shutdown
// function.
func InitProvider(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	providerMu.Lock()
	defer providerMu.Unlock()

	if !cfg.Enabled {
		globalProvider = noop.NewTracerProvider()
		globalShutdown = func(context.Context) error { return nil }
		otel.SetTracerProvider(globalProvider)
		return globalShutdown, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}

	if cfg.Endpoint != "" {
		exporter, err := otlptracehttp.New(
			ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		)
		if err != nil {
			return nil, fmt.Errorf("create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(
			newResilientExporter(exporter),
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	globalProvider = tp
	globalShutdown = tp.Shutdown
	otel.SetTracerProvider(tp)
	return globalShutdown, nil
}

// SetTracerProvider replaces the provider used by the span helpers.
func SetTracerProvider(tp trace.TracerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	globalProvider = tp
}

// Shutdown flushes and stops the global provider.
func Shutdown(ctx context.Context) error {
	providerMu.RLock()
	shutdown := globalShutdown
	providerMu.RUnlock()

	if shutdown != nil {
		return shutdown(ctx)
	}
	return nil
}

// GetTracerProvider returns the current global tracer provider
func GetTracerProvider() trace.TracerProvider {
	providerMu.RLock()
	defer providerMu.RUnlock()

	if globalProvider != nil {
		return globalProvider
	}
	return noop.NewTracerProvider()
}
