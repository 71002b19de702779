// Package health reports whether the server and the dependencies it needs
// to serve plans are working.
//
//	probes := health.NewProbeManager(version.GetInfo().Version)
//	probes.AddChecker(health.NewPingChecker("database", store.Ping))
//	probes.AddChecker(health.NewNATSChecker(conn))
//
// Readiness aggregates every registered checker; liveness and startup only
// look at process state.
package health

import (
	"context"
	"time"
)

// Checker verifies one dependency.
type Checker interface {
	// Name is lowercase with hyphens, e.g. "itinerary-db".
	Name() string

	// Check must respect ctx's deadline.
	Check(ctx context.Context) *Result
}

// Status is the health of one dependency or of the whole server.
type Status string

const (
	StatusHealthy Status = "healthy"
	// StatusDegraded means plans are still served, with reduced quality
	// (for example placeholder research data).
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) String() string {
	return string(s)
}

// Result is the outcome of one check.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency"`
}

// NewResult creates a result with the given status and message.
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]any),
	}
}

// WithDetail adds a detail and returns r for chaining.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

// WithLatency sets the latency and returns r for chaining.
func (r *Result) WithLatency(latency time.Duration) *Result {
	r.Latency = latency
	return r
}

func Healthy(message string) *Result   { return NewResult(StatusHealthy, message) }
func Degraded(message string) *Result  { return NewResult(StatusDegraded, message) }
func Unhealthy(message string) *Result { return NewResult(StatusUnhealthy, message) }
