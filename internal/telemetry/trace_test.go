package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		SetTracerProvider(nil)
	})
	return exporter
}

func TestStageSpansNestUnderPlan(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, root := StartPlanSpan(context.Background(), "plan:tokyo:3")
	_, stage := StartStageSpan(ctx, "research")
	stage.End()
	root.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "plan.stage.research", spans[0].Name)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	assert.Contains(t, spans[1].Attributes, attribute.String("plan.cache_key", "plan:tokyo:3"))
}

func TestTaskSpanIsNewRoot(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, parent := StartPlanSpan(context.Background(), "k")
	_, task := StartTaskSpan(ctx, "t-1")
	task.End()
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.False(t, spans[0].Parent.IsValid())
}

func TestRecordError(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartBranchSpan(context.Background(), "trend")
	RecordError(span, errors.New("timeout"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	require.Len(t, spans[0].Events, 1)
}

func TestRecordSuccess(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartStageSpan(context.Background(), "optimize")
	RecordSuccess(span, attribute.Int("plan.days", 3))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

func TestInitProviderDisabled(t *testing.T) {
	shutdown, err := InitProvider(context.Background(), DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	t.Cleanup(func() { SetTracerProvider(nil) })

	_, span := StartPlanSpan(context.Background(), "k")
	assert.False(t, span.SpanContext().IsValid())
}

func TestExportBreaker(t *testing.T) {
	b := &exportBreaker{threshold: 2, cooldown: time.Minute}
	now := time.Now()

	b.report(errors.New("x"), now)
	assert.True(t, b.allow(now))
	b.report(errors.New("x"), now)
	assert.False(t, b.allow(now.Add(time.Second)))
	assert.True(t, b.allow(now.Add(2*time.Minute)))

	b.report(nil, now)
	assert.True(t, b.allow(now))
}
