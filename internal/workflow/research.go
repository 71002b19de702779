package workflow

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/internal/metrics"
	"github.com/felixgeelhaar/wayfinder/internal/optimize"
	"github.com/felixgeelhaar/wayfinder/internal/profile"
	"github.com/felixgeelhaar/wayfinder/internal/telemetry"
	"github.com/felixgeelhaar/wayfinder/internal/tool"
)

// Defaults for the research fan-out.
const (
	DefaultBranchTimeout  = 8 * time.Second
	DefaultBranchAttempts = 1
)

// Researcher runs the research stage. Implementations must always return,
// degrading failed lookups instead of reporting errors.
type Researcher interface {
	Research(ctx context.Context, p profile.Profile) optimize.Research
}

// ParallelResearcher fans out to the route, trend and venue tools at once.
// Each branch has its own deadline; a branch that fails or runs out of time
// settles with placeholder data and never holds up the others.
type ParallelResearcher struct {
	tools    tool.Toolkit
	fallback tool.Toolkit
	timeout  time.Duration
	attempts int
	logger   *log.Logger
	metrics  *metrics.Metrics
}

// NewParallelResearcher creates a researcher over tools. Nil adapters in
// tools are served by placeholders. A zero timeout or attempts uses the
// defaults.
func NewParallelResearcher(tools tool.Toolkit, timeout time.Duration, attempts int, logger *log.Logger, m *metrics.Metrics) *ParallelResearcher {
	if timeout <= 0 {
		timeout = DefaultBranchTimeout
	}
	if attempts <= 0 {
		attempts = DefaultBranchAttempts
	}
	return &ParallelResearcher{
		tools:    tools,
		fallback: tool.Placeholders(),
		timeout:  timeout,
		attempts: attempts,
		logger:   log.OrDefault(logger).Component("research"),
		metrics:  m,
	}
}

// Research runs the three branches concurrently and waits for all of them
// to settle. Total latency is bounded by the branch timeout; lookups made
// inside a branch share its deadline.
func (r *ParallelResearcher) Research(ctx context.Context, p profile.Profile) optimize.Research {
	q := tool.Query{
		Destination:         p.Destination,
		Origin:              p.Origin,
		Days:                p.Days,
		Interests:           p.Traveler.Interests,
		DietaryRestrictions: p.Restrictions(),
		BudgetLevel:         p.Traveler.BudgetLevel,
	}

	var out optimize.Research
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.Route = branch(gctx, r, optimize.BranchRoute, r.tools.Route, r.fallback.Route, q)
		return nil
	})
	g.Go(func() error {
		out.Trend = branch(gctx, r, optimize.BranchTrend, r.tools.Trend, r.fallback.Trend, q)
		return nil
	})
	g.Go(func() error {
		out.Venue = r.venueBranch(gctx, q)
		return nil
	})
	_ = g.Wait()
	return out
}

// venueBranch resolves venues and, within the same deadline, the weather
// used for indoor/outdoor choices. Weather never degrades the branch.
func (r *ParallelResearcher) venueBranch(ctx context.Context, q tool.Query) tool.Result[tool.VenueData] {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := branch(ctx, r, optimize.BranchVenue, r.tools.Venue, r.fallback.Venue, q)
	if res.Data == nil {
		return res
	}

	weather := tool.Resolve(ctx, r.tools.Weather, r.fallback.Weather, q)
	if weather.Data != nil {
		data := *res.Data
		data.Weather = weather.Data
		res.Data = &data
	}
	return res
}

func branch[T any](ctx context.Context, r *ParallelResearcher, name string, primary, fallback tool.Adapter[T], q tool.Query) tool.Result[T] {
	ctx, span := telemetry.StartBranchSpan(ctx, name)
	defer span.End()

	bctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var res tool.Result[T]
	for attempt := 1; attempt <= r.attempts; attempt++ {
		res = tool.Resolve(bctx, primary, fallback, q)
		if !res.Degraded() || primary == nil || bctx.Err() != nil {
			break
		}
	}
	res.Tool = name

	r.metrics.RecordBranch(name, string(res.Source))
	if res.Degraded() {
		r.logger.WarnContext(ctx, "research branch degraded",
			"branch", name, "source", res.Source, "error", res.Error)
		span.SetAttributes(telemetry.DegradedAttr(true))
	} else {
		telemetry.RecordSuccess(span)
	}
	return res
}
