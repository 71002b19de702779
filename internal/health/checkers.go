package health

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// PingFunc checks a dependency by round-tripping to it.
type PingFunc func(ctx context.Context) error

// PingChecker wraps a ping function, such as sql.DB.PingContext.
type PingChecker struct {
	name string
	ping PingFunc
	// failure is the status reported when the ping fails.
	failure Status
}

// NewPingChecker reports unhealthy when ping fails.
func NewPingChecker(name string, ping PingFunc) *PingChecker {
	return &PingChecker{name: name, ping: ping, failure: StatusUnhealthy}
}

// NewOptionalPingChecker reports degraded when ping fails, for dependencies
// the server can work without.
func NewOptionalPingChecker(name string, ping PingFunc) *PingChecker {
	return &PingChecker{name: name, ping: ping, failure: StatusDegraded}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) *Result {
	if err := c.ping(ctx); err != nil {
		return NewResult(c.failure, c.name+" unreachable").WithDetail("error", err.Error())
	}
	return Healthy(c.name + " reachable")
}

// NATSChecker reports the state of the NATS connection backing the task
// queue and task store.
type NATSChecker struct {
	conn *nats.Conn
}

func NewNATSChecker(conn *nats.Conn) *NATSChecker {
	return &NATSChecker{conn: conn}
}

func (c *NATSChecker) Name() string { return "nats" }

func (c *NATSChecker) Check(ctx context.Context) *Result {
	if c.conn == nil {
		return Unhealthy("nats connection not configured")
	}
	status := c.conn.Status()
	switch status {
	case nats.CONNECTED:
		rtt, err := c.conn.RTT()
		if err != nil {
			return Degraded("nats connected but not responding").WithDetail("error", err.Error())
		}
		return Healthy("nats connected").
			WithDetail("url", c.conn.ConnectedUrlRedacted()).
			WithDetail("rtt", rtt.String())
	case nats.RECONNECTING, nats.CONNECTING:
		return Degraded("nats " + status.String())
	default:
		return Unhealthy("nats " + status.String())
	}
}

// ProviderChecker reports which research tools have a real provider
// configured. Missing providers degrade plans to placeholder data but never
// make the server unready.
type ProviderChecker struct {
	configured map[string]bool
}

// NewProviderChecker takes the configured state of each tool by name.
func NewProviderChecker(configured map[string]bool) *ProviderChecker {
	return &ProviderChecker{configured: configured}
}

func (c *ProviderChecker) Name() string { return "providers" }

func (c *ProviderChecker) Check(ctx context.Context) *Result {
	total := len(c.configured)
	real := 0
	details := make(map[string]any, total)
	for name, ok := range c.configured {
		source := "placeholder"
		if ok {
			source = "real"
			real++
		}
		details[name] = source
	}

	var r *Result
	if real == total {
		r = Healthy(fmt.Sprintf("all providers configured (%d/%d)", real, total))
	} else {
		r = Degraded(fmt.Sprintf("using placeholders for %d of %d providers", total-real, total))
	}
	return r.WithDetail("providers", details)
}
