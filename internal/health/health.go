// Package health serves liveness and readiness probes for the forwarder.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the health of the process or one of its components.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Check reports one component's health. A nil return means healthy.
type Check func() error

// Component is the per-component entry in a probe response.
type Component struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Report is the JSON body returned by both probes.
type Report struct {
	Status     Status               `json:"status"`
	Components map[string]Component `json:"components,omitempty"`
	Timestamp  string               `json:"timestamp"`
}

// Checker aggregates named component checks into liveness and readiness
// probes. Components register once at startup; checks run on every /ready
// request.
type Checker struct {
	mu       sync.RWMutex
	checks   map[string]Check
	draining atomic.Bool
}

// New creates an empty Checker.
func New() *Checker {
	return &Checker{checks: make(map[string]Check)}
}

// Register adds a named readiness check. Registering the same name again
// replaces the previous check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// SetDraining marks the process as draining. Both probes answer 503 from
// here on, so load balancers stop routing before the listener closes.
func (c *Checker) SetDraining() {
	c.draining.Store(true)
}

// LiveHandler serves the liveness probe: the process is up and not
// draining.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if c.draining.Load() {
			writeReport(w, http.StatusServiceUnavailable, drainingReport())
			return
		}
		writeReport(w, http.StatusOK, Report{
			Status:    StatusUp,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadyHandler serves the readiness probe: every registered component check
// must pass.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if c.draining.Load() {
			writeReport(w, http.StatusServiceUnavailable, drainingReport())
			return
		}

		c.mu.RLock()
		checks := make(map[string]Check, len(c.checks))
		for name, check := range c.checks {
			checks[name] = check
		}
		c.mu.RUnlock()

		overall := StatusUp
		components := make(map[string]Component, len(checks))
		for name, check := range checks {
			if err := check(); err != nil {
				overall = StatusDown
				components[name] = Component{Status: StatusDown, Message: err.Error()}
			} else {
				components[name] = Component{Status: StatusUp}
			}
		}

		code := http.StatusOK
		if overall == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeReport(w, code, Report{
			Status:     overall,
			Components: components,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func drainingReport() Report {
	return Report{
		Status:    StatusDown,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Components: map[string]Component{
			"process": {Status: StatusDown, Message: "draining"},
		},
	}
}

func writeReport(w http.ResponseWriter, code int, r Report) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(r)
}
