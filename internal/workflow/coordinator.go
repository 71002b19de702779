// Package workflow runs the planning pipeline: profile, parallel research,
// optimize, and the hand-off of media enrichment to a background task.
package workflow

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/wayfinder/internal/cache"
	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/internal/metrics"
	"github.com/felixgeelhaar/wayfinder/internal/optimize"
	"github.com/felixgeelhaar/wayfinder/internal/profile"
	"github.com/felixgeelhaar/wayfinder/internal/telemetry"
	"github.com/felixgeelhaar/wayfinder/internal/tool"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// DefaultPlanTTL is how long a finished plan is reused for refinement.
const DefaultPlanTTL = 10 * time.Minute

// Profiler extracts a traveler profile from a request.
type Profiler interface {
	Extract(message string, prefs types.Preferences) (profile.Profile, error)
}

// Planner builds a plan from research and adjusts cached plans.
type Planner interface {
	Optimize(p profile.Profile, r optimize.Research) *types.Plan
	Refine(cached *types.Plan, p profile.Profile) *types.Plan
}

// TaskCreator hands media enrichment to the background task system and
// returns the handle clients poll.
type TaskCreator interface {
	Create(ctx context.Context, brief tool.CreativeBrief) (string, error)
}

// CachedPlan is what the plan cache stores: the plan and the handle of the
// enrichment task started for it.
type CachedPlan struct {
	Plan       *types.Plan
	TaskHandle string
}

// Coordinator runs planning requests end to end.
type Coordinator struct {
	profiler   Profiler
	researcher Researcher
	planner    Planner
	tasks      TaskCreator
	plans      *cache.Cache[CachedPlan]
	planTTL    time.Duration
	logger     *log.Logger
	metrics    *metrics.Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithProfiler(p Profiler) Option     { return func(c *Coordinator) { c.profiler = p } }
func WithResearcher(r Researcher) Option { return func(c *Coordinator) { c.researcher = r } }
func WithPlanner(p Planner) Option       { return func(c *Coordinator) { c.planner = p } }
func WithTasks(t TaskCreator) Option     { return func(c *Coordinator) { c.tasks = t } }
func WithLogger(l *log.Logger) Option    { return func(c *Coordinator) { c.logger = l } }
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithPlanCache replaces the plan cache and its TTL.
func WithPlanCache(pc *cache.Cache[CachedPlan], ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.plans = pc
		if ttl > 0 {
			c.planTTL = ttl
		}
	}
}

// New creates a coordinator. Without options it profiles with the keyword
// extractor, researches against placeholders only and skips enrichment.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		profiler: profile.Extractor{},
		planner:  optimize.Optimizer{},
		planTTL:  DefaultPlanTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrDefault(c.logger).Component("workflow")
	if c.researcher == nil {
		c.researcher = NewParallelResearcher(tool.Toolkit{}, 0, 0, c.logger, c.metrics)
	}
	if c.plans == nil {
		c.plans = cache.New("plan", 0, cache.WithMetrics[CachedPlan](c.metrics))
	}
	return c
}

// Run plans one request. It fails only when the request is malformed or no
// profile can be extracted; provider problems degrade the plan instead.
func (c *Coordinator) Run(ctx context.Context, req types.PlanRequest) (*types.PlanResponse, error) {
	start := time.Now()
	resp, path, err := c.run(ctx, req)
	outcome := "error"
	if err == nil {
		outcome = resp.Status
	} else {
		c.metrics.RecordError(string(errors.CodeOf(err)), "workflow")
	}
	c.metrics.RecordPlan(outcome, path, time.Since(start))
	return resp, err
}

func (c *Coordinator) run(ctx context.Context, req types.PlanRequest) (*types.PlanResponse, string, error) {
	if req.Message == "" && req.Preferences.Destination == "" && req.ExistingPlan == nil {
		return nil, "none", errors.New(errors.ErrCodeMissingMessage, "a message or destination is required").
			WithSuggestion("describe the trip, for example \"3 days in Tokyo\"")
	}

	var (
		base       *types.Plan
		baseHandle string
		convKey    string
	)
	if req.ConversationKey != "" {
		convKey = "plan:" + cache.NormalizeKey(req.ConversationKey)
		if cp, ok := c.plans.Get(convKey); ok {
			base, baseHandle = cp.Plan, cp.TaskHandle
		}
	}
	if base == nil && req.ExistingPlan != nil {
		base = req.ExistingPlan
	}

	p, err := c.profile(ctx, req, base)
	if err != nil {
		return nil, "none", err
	}

	if base != nil && profile.Normalize(base.Destination) == profile.Normalize(p.Destination) {
		return c.refine(ctx, base, baseHandle, p), "refine", nil
	}

	key := convKey
	if key == "" {
		key = planKey(p)
	} else if base != nil {
		// Same conversation, new destination: the old plan no longer applies.
		c.plans.Delete(key)
	}

	ctx, span := telemetry.StartPlanSpan(ctx, key)
	defer span.End()

	cp, hit, err := c.plans.GetOrCompute(ctx, key, c.planTTL, func(ctx context.Context) (CachedPlan, error) {
		return c.compute(ctx, p), nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return nil, "full", err
		}
		return nil, "full", fmt.Errorf("plan %s: %w", p.Destination, err)
	}
	if hit {
		return c.refine(ctx, cp.Plan, cp.TaskHandle, p), "refine", nil
	}

	status := types.PlanStatusOK
	if cp.Plan.Partial {
		status = types.PlanStatusPartial
	}
	telemetry.RecordSuccess(span, telemetry.DegradedAttr(cp.Plan.Partial))
	return &types.PlanResponse{
		Status:     status,
		Plan:       cp.Plan,
		Partial:    cp.Plan.Partial,
		TaskHandle: cp.TaskHandle,
	}, "full", nil
}

// profile runs the profile stage. A follow-up message in an existing
// conversation may not repeat the destination; it then inherits the base
// plan's destination and length.
func (c *Coordinator) profile(ctx context.Context, req types.PlanRequest, base *types.Plan) (profile.Profile, error) {
	ctx, span := telemetry.StartStageSpan(ctx, "profile")
	defer span.End()
	start := time.Now()
	defer func() { c.metrics.RecordStage("profile", time.Since(start)) }()

	p, err := c.profiler.Extract(req.Message, req.Preferences)
	if err != nil && base != nil && errors.CodeOf(err) == errors.ErrCodeProfileFailed {
		prefs := req.Preferences
		prefs.Destination = base.Destination
		if prefs.Days == 0 {
			prefs.Days = len(base.Days)
		}
		p, err = c.profiler.Extract(req.Message, prefs)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		c.logger.WithError(err).WarnContext(ctx, "profile extraction failed")
		return profile.Profile{}, err
	}
	telemetry.RecordSuccess(span)
	return p, nil
}

// compute runs research and optimization for a cache miss, then starts
// enrichment. ctx is detached from the requesting caller.
func (c *Coordinator) compute(ctx context.Context, p profile.Profile) CachedPlan {
	rctx, span := telemetry.StartStageSpan(ctx, "research")
	start := time.Now()
	research := c.researcher.Research(rctx, p)
	c.metrics.RecordStage("research", time.Since(start))
	if degraded := research.Degraded(); len(degraded) > 0 {
		span.SetAttributes(telemetry.DegradedAttr(true))
		c.logger.WithError(errors.NewPartialResearchError(degraded)).
			WarnContext(ctx, "research partially degraded", "destination", p.Destination)
	}
	span.End()

	_, span = telemetry.StartStageSpan(ctx, "optimize")
	start = time.Now()
	plan := c.planner.Optimize(p, research)
	c.metrics.RecordStage("optimize", time.Since(start))
	span.End()

	return CachedPlan{Plan: plan, TaskHandle: c.enrich(ctx, plan)}
}

// enrich dispatches media generation. Failure to dispatch is logged and
// never fails the plan.
func (c *Coordinator) enrich(ctx context.Context, plan *types.Plan) string {
	if c.tasks == nil {
		return ""
	}
	ctx, span := telemetry.StartStageSpan(ctx, "enrich")
	defer span.End()
	start := time.Now()
	defer func() { c.metrics.RecordStage("enrich", time.Since(start)) }()

	handle, err := c.tasks.Create(ctx, tool.CreativeBrief{
		Destination: plan.Destination,
		Summary:     plan.Summary.Text,
		DayThemes:   plan.Summary.DayThemes,
		Style:       plan.Traveler.TravelStyle,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		c.metrics.RecordError(string(errors.CodeOf(err)), "enrich")
		c.logger.WithError(err).ErrorContext(ctx, "enrichment dispatch failed",
			"destination", plan.Destination)
		return ""
	}
	telemetry.RecordSuccess(span)
	c.logger.InfoContext(ctx, "enrichment dispatched", "task_id", handle, "destination", plan.Destination)
	return handle
}

func (c *Coordinator) refine(ctx context.Context, base *types.Plan, handle string, p profile.Profile) *types.PlanResponse {
	_, span := telemetry.StartStageSpan(ctx, "refine")
	defer span.End()
	start := time.Now()
	plan := c.planner.Refine(base, p)
	c.metrics.RecordStage("refine", time.Since(start))
	telemetry.RecordSuccess(span)
	return &types.PlanResponse{
		Status:     types.PlanStatusCached,
		Plan:       plan,
		Partial:    plan.Partial,
		TaskHandle: handle,
	}
}

// planKey derives the cache key for requests without a conversation key,
// e.g. "plan:tokyo:3days".
func planKey(p profile.Profile) string {
	return "plan:" + cache.NormalizeKey(profile.Normalize(p.Destination), fmt.Sprintf("%ddays", p.Days))
}

// Cached returns the cached plan for key, if fresh.
func (c *Coordinator) Cached(key string) (CachedPlan, bool) {
	return c.plans.Get(key)
}
