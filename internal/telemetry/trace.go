package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/felixgeelhaar/wayfinder"

func tracer() trace.Tracer {
	return GetTracerProvider().Tracer(instrumentation)
}

// StartPlanSpan starts the root span of a planning request.
func StartPlanSpan(ctx context.Context, cacheKey string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "plan.run",
		trace.WithAttributes(attribute.String("plan.cache_key", cacheKey)))
}

// StartStageSpan starts a span for one pipeline stage (profile, research,
// optimize, enrich, refine).
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "plan.stage."+stage,
		trace.WithAttributes(attribute.String("plan.stage", stage)))
}

// StartBranchSpan starts a span for one parallel research branch.
func StartBranchSpan(ctx context.Context, branch string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "plan.research."+branch,
		trace.WithAttributes(attribute.String("research.branch", branch)))
}

// StartTaskSpan starts a span for background task execution. Tasks run
// detached from the request, so the span is a new root.
func StartTaskSpan(ctx context.Context, taskID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "task.execute",
		trace.WithNewRoot(),
		trace.WithAttributes(attribute.String("task.id", taskID)))
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records err on span and marks it failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// DegradedAttr marks a span whose work fell back to placeholder data.
func DegradedAttr(degraded bool) attribute.KeyValue {
	return attribute.Bool("wayfinder.degraded", degraded)
}
