// Package tool defines the contract between the planner and its external
// data providers. Every lookup settles into a Result tagged with its Source,
// so callers branch on the tag and never inspect payloads to tell real data
// from stand-ins.
package tool

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
)

// Source tags where a result's data came from.
type Source string

const (
	SourceReal        Source = "real"
	SourcePlaceholder Source = "placeholder"
)

// Query is the structured input every adapter receives.
type Query struct {
	Destination         string   `json:"destination"`
	Origin              string   `json:"origin,omitempty"`
	Days                int      `json:"days"`
	Interests           []string `json:"interests,omitempty"`
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty"`
	BudgetLevel         string   `json:"budget_level,omitempty"`
}

// Adapter looks up one category of data for a query.
type Adapter[T any] interface {
	Name() string
	Lookup(ctx context.Context, q Query) (T, error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc[T any] struct {
	ToolName string
	Fn       func(ctx context.Context, q Query) (T, error)
}

func (a AdapterFunc[T]) Name() string { return a.ToolName }

func (a AdapterFunc[T]) Lookup(ctx context.Context, q Query) (T, error) {
	return a.Fn(ctx, q)
}

// Result is the settled outcome of a lookup. Real and placeholder results
// share this shape; Error is set whenever the real provider did not answer.
type Result[T any] struct {
	Tool   string `json:"tool"`
	Source Source `json:"source"`
	Data   *T     `json:"data"`
	Error  string `json:"error,omitempty"`
}

// Degraded reports whether the result is not real data.
func (r Result[T]) Degraded() bool {
	return r.Source != SourceReal
}

// Real wraps data from a live provider.
func Real[T any](tool string, data T) Result[T] {
	return Result[T]{Tool: tool, Source: SourceReal, Data: &data}
}

// Placeholder wraps stand-in data along with the reason the real provider
// was not used. data may be nil when no stand-in exists.
func Placeholder[T any](tool string, data *T, cause error) Result[T] {
	r := Result[T]{Tool: tool, Source: SourcePlaceholder, Data: data}
	if cause != nil {
		r.Error = cause.Error()
	}
	return r
}

// ErrNotConfigured is reported when no real provider is wired for a tool.
var ErrNotConfigured = stderrors.New("no provider configured")

// Resolve calls primary and settles into a Result. If primary is nil, fails,
// or does not answer before ctx ends, the deterministic fallback supplies
// the data and the result is tagged placeholder. Resolve returns promptly
// when ctx ends even if primary ignores cancellation.
func Resolve[T any](ctx context.Context, primary, fallback Adapter[T], q Query) Result[T] {
	name := ""
	switch {
	case primary != nil:
		name = primary.Name()
	case fallback != nil:
		name = fallback.Name()
	}

	if primary == nil {
		return placeholderFor(ctx, name, fallback, q, ErrNotConfigured)
	}

	type outcome struct {
		data T
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		d, err := primary.Lookup(ctx, q)
		done <- outcome{d, err}
	}()

	select {
	case o := <-done:
		if o.err == nil {
			return Real(name, o.data)
		}
		return placeholderFor(ctx, name, fallback, q, classify(name, o.err))
	case <-ctx.Done():
		return placeholderFor(ctx, name, fallback, q, classify(name, ctx.Err()))
	}
}

func placeholderFor[T any](ctx context.Context, name string, fallback Adapter[T], q Query, cause error) Result[T] {
	if fallback == nil {
		return Placeholder[T](name, nil, cause)
	}
	// The fallback is local and deterministic; it must still run after the
	// caller's deadline has passed.
	d, err := fallback.Lookup(context.WithoutCancel(ctx), q)
	if err != nil {
		return Placeholder[T](name, nil, fmt.Errorf("%w (fallback: %v)", cause, err))
	}
	return Placeholder(name, &d, cause)
}

func classify(tool string, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewProviderTimeoutError(tool, err)
	}
	return errors.NewProviderUnavailableError(tool, err)
}
