package health

import (
	"context"
	"slices"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds each individual check.
const DefaultCheckTimeout = 5 * time.Second

// Manager runs registered checks in parallel, each under its own timeout.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

func NewManager() *Manager {
	return &Manager{timeout: DefaultCheckTimeout}
}

// WithTimeout sets the per-check timeout.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return m
}

func (m *Manager) AddChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// RemoveChecker removes the checker called name and reports whether one
// was registered.
func (m *Manager) RemoveChecker(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.checkers, func(c Checker) bool { return c.Name() == name })
	if i < 0 {
		return false
	}
	m.checkers = slices.Delete(m.checkers, i, i+1)
	return true
}

// Check runs every checker and returns results by name. A checker that
// does not return before its timeout is reported unhealthy.
func (m *Manager) Check(ctx context.Context) map[string]*Result {
	m.mu.RLock()
	checkers := slices.Clone(m.checkers)
	timeout := m.timeout
	m.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]*Result, len(checkers))
	)
	for _, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := run(ctx, c, timeout)
			mu.Lock()
			results[c.Name()] = result
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func run(ctx context.Context, c Checker, timeout time.Duration) *Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan *Result, 1)
	go func() { done <- c.Check(ctx) }()

	var result *Result
	select {
	case result = <-done:
	case <-ctx.Done():
		result = Unhealthy("check timed out").WithDetail("error", ctx.Err().Error())
	}
	if result == nil {
		result = Unhealthy("check returned no result")
	}
	if result.Latency == 0 {
		result.Latency = time.Since(start)
	}
	return result
}

// OverallStatus is unhealthy if any check is unhealthy, degraded if any is
// degraded, and healthy otherwise.
func (m *Manager) OverallStatus(results map[string]*Result) Status {
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// CheckNames returns the registered checker names in registration order.
func (m *Manager) CheckNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.checkers))
	for i, c := range m.checkers {
		names[i] = c.Name()
	}
	return names
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.checkers)
}
