package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HealthStatus represents the health status of the node.
type HealthStatus struct {
	Healthy   bool             `json:"healthy"`
	Ready     bool             `json:"ready"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Uptime    string           `json:"uptime"`
}

// Check is the result of one named health check.
type Check struct {
	Healthy bool          `json:"healthy"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency"`
}

// HealthCheckFunc reports a problem as an error.
type HealthCheckFunc func(ctx context.Context) error

// HealthChecker runs registered checks on demand.
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheckFunc
	ready     atomic.Bool
	startTime time.Time
}

// NewHealthChecker creates a health checker with no checks. It reports not
// ready until SetReady is called.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:    make(map[string]HealthCheckFunc),
		startTime: time.Now(),
	}
}

// RegisterCheck registers a health check under name, replacing any previous one.
func (h *HealthChecker) RegisterCheck(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// SetReady marks the node as ready to serve.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether SetReady(true) was called.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// Check runs every registered check in name order.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheckFunc, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	status := HealthStatus{
		Healthy:   true,
		Ready:     h.IsReady(),
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]Check, len(names)),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	for _, name := range names {
		start := time.Now()
		err := checks[name](ctx)
		c := Check{Healthy: err == nil, Latency: time.Since(start)}
		if err != nil {
			c.Message = err.Error()
			status.Healthy = false
		}
		status.Checks[name] = c
	}
	return status
}
