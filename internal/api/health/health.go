// Package health reports the readiness of the server's dependencies over HTTP
// and to the gRPC health service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentStatus represents the health status of a single component.
type ComponentStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response represents the health check response.
type Response struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
}

// Pinger is an interface for components that can be pinged.
type Pinger interface {
	Ping(ctx context.Context) error
}

type component struct {
	name     string
	pinger   Pinger
	critical bool
}

// Checker aggregates the health of registered components. The store is
// registered as "database" by NewChecker; more can be added with Register.
type Checker struct {
	mu         sync.RWMutex
	components []component
	startTime  time.Time
	version    string
	timeout    time.Duration
}

// NewChecker creates a health checker whose critical "database" component
// pings st.
func NewChecker(st Pinger, version string) *Checker {
	c := &Checker{
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
	c.components = append(c.components, component{name: "database", pinger: st, critical: true})
	return c
}

// Register adds a component. A failing non-critical component degrades the
// overall status instead of making it unhealthy.
func (c *Checker) Register(name string, pinger Pinger, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components = append(c.components, component{name: name, pinger: pinger, critical: critical})
}

// SetTimeout sets the timeout for health checks.
func (c *Checker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Check pings every component and returns the aggregated response.
func (c *Checker) Check(ctx context.Context) *Response {
	c.mu.RLock()
	timeout := c.timeout
	components := append([]component(nil), c.components...)
	c.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statuses := make(map[string]ComponentStatus, len(components))
	overall := StatusHealthy
	sort.SliceStable(components, func(i, j int) bool { return components[i].name < components[j].name })
	for _, comp := range components {
		st := ping(checkCtx, comp)
		statuses[comp.name] = st
		switch {
		case st.Status == StatusUnhealthy && comp.critical:
			overall = StatusUnhealthy
		case st.Status != StatusHealthy && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return &Response{
		Status:     overall,
		Components: statuses,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
	}
}

func ping(ctx context.Context, comp component) ComponentStatus {
	if comp.pinger == nil {
		return ComponentStatus{Status: StatusUnhealthy, Message: comp.name + " not configured"}
	}
	if err := comp.pinger.Ping(ctx); err != nil {
		return ComponentStatus{Status: StatusUnhealthy, Message: comp.name + " ping failed: " + err.Error()}
	}
	return ComponentStatus{Status: StatusHealthy, Message: "connected"}
}

// Serving reports whether the server can take traffic.
func (c *Checker) Serving(ctx context.Context) bool {
	return c.Check(ctx).Status != StatusUnhealthy
}

// Handler returns an HTTP handler for health checks.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := c.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if response.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(response)
	}
}
