// Package health runs named component checks and serves the combined result
// as JSON.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"renter-registry/pkg/logging"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    string         `json:"duration"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// SystemHealth represents the overall system health
type SystemHealth struct {
	Status     Status                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
	Summary    Summary                    `json:"summary"`
}

// Summary provides aggregated health information
type Summary struct {
	TotalComponents int `json:"total_components"`
	HealthyCount    int `json:"healthy_count"`
	DegradedCount   int `json:"degraded_count"`
	UnhealthyCount  int `json:"unhealthy_count"`
	UnknownCount    int `json:"unknown_count"`
}

// Checker defines the interface for health check functions
type Checker interface {
	Check(ctx context.Context) ComponentHealth
	Name() string
}

// CheckFunc adapts a function to Checker.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) ComponentHealth
}

func (c CheckFunc) Check(ctx context.Context) ComponentHealth { return c.fn(ctx) }
func (c CheckFunc) Name() string                              { return c.name }

func NewCheckFunc(name string, fn func(ctx context.Context) ComponentHealth) Checker {
	return CheckFunc{name: name, fn: fn}
}

// Config holds configuration for the manager
type Config struct {
	Timeout time.Duration
	Version string
}

func DefaultConfig() Config {
	return Config{Timeout: 5 * time.Second, Version: "dev"}
}

// Manager runs every registered checker concurrently and caches the last result.
type Manager struct {
	checkers  map[string]Checker
	results   map[string]ComponentHealth
	startTime time.Time
	version   string
	timeout   time.Duration
	logger    *logging.ComponentLogger
	mu        sync.RWMutex
}

func NewManager(cfg Config, logger *logging.Logger) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		checkers:  make(map[string]Checker),
		results:   make(map[string]ComponentHealth),
		startTime: time.Now(),
		version:   cfg.Version,
		timeout:   cfg.Timeout,
		logger:    logger.WithComponent("health"),
	}
}

func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := c.Name()
	m.checkers[name] = c
	m.results[name] = ComponentHealth{Name: name, Status: StatusUnknown}
	m.logger.Info("registered health checker", logging.String("checker", name))
}

// CheckAll runs all health checks, each under the manager timeout.
func (m *Manager) CheckAll(ctx context.Context) SystemHealth {
	start := time.Now()

	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make([]ComponentHealth, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			r := c.Check(cctx)
			r.Name = c.Name()
			results[i] = r
		}(i, c)
	}
	wg.Wait()

	components := make(map[string]ComponentHealth, len(results))
	m.mu.Lock()
	for _, r := range results {
		components[r.Name] = r
		m.results[r.Name] = r
	}
	m.mu.Unlock()

	sys := m.build(components)
	m.logger.Debug("completed health check",
		logging.String("status", string(sys.Status)),
		logging.Duration("duration", time.Since(start)),
		logging.Int("components", len(components)))
	return sys
}

// Cached returns the last known health status
func (m *Manager) Cached() SystemHealth {
	m.mu.RLock()
	components := make(map[string]ComponentHealth, len(m.results))
	for name, r := range m.results {
		components[name] = r
	}
	m.mu.RUnlock()
	return m.build(components)
}

func (m *Manager) build(components map[string]ComponentHealth) SystemHealth {
	summary := Summarize(components)
	return SystemHealth{
		Status:     overall(summary),
		Timestamp:  time.Now(),
		Version:    m.version,
		Uptime:     time.Since(m.startTime).Round(time.Second).String(),
		Components: components,
		Summary:    summary,
	}
}

// Summarize counts components per status.
func Summarize(components map[string]ComponentHealth) Summary {
	s := Summary{TotalComponents: len(components)}
	for _, c := range components {
		switch c.Status {
		case StatusHealthy:
			s.HealthyCount++
		case StatusDegraded:
			s.DegradedCount++
		case StatusUnhealthy:
			s.UnhealthyCount++
		default:
			s.UnknownCount++
		}
	}
	return s
}

// overall: any unhealthy wins, then degraded; all healthy is healthy.
func overall(s Summary) Status {
	switch {
	case s.TotalComponents == 0:
		return StatusUnknown
	case s.UnhealthyCount > 0:
		return StatusUnhealthy
	case s.DegradedCount > 0:
		return StatusDegraded
	case s.HealthyCount == s.TotalComponents:
		return StatusHealthy
	}
	return StatusUnknown
}

// Pinger is satisfied by the stores and *database.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingChecker reports unhealthy when Ping fails.
func NewPingChecker(name string, p Pinger) Checker {
	return NewCheckFunc(name, func(ctx context.Context) ComponentHealth {
		start := time.Now()
		r := ComponentHealth{Name: name, LastChecked: start}
		if err := p.Ping(ctx); err != nil {
			r.Status = StatusUnhealthy
			r.Message = "ping failed"
			r.Error = err.Error()
		} else {
			r.Status = StatusHealthy
			r.Message = "ping ok"
		}
		r.Duration = time.Since(start).String()
		return r
	})
}

// NewStatsChecker reports stats as metadata. degraded, when set, decides
// whether the component is degraded.
func NewStatsChecker[T any](name string, stats func() T, degraded func(T) bool) Checker {
	return NewCheckFunc(name, func(ctx context.Context) ComponentHealth {
		start := time.Now()
		st := stats()
		r := ComponentHealth{
			Name:        name,
			Status:      StatusHealthy,
			Message:     "running",
			LastChecked: start,
			Metadata:    map[string]any{"stats": st},
		}
		if degraded != nil && degraded(st) {
			r.Status = StatusDegraded
			r.Message = "degraded"
		}
		r.Duration = time.Since(start).String()
		return r
	})
}

// Routes mounts /health, /health/live, /health/ready and /health/components
// under prefix.
func (m *Manager) Routes(r *mux.Router, prefix string) {
	r.HandleFunc(prefix, m.handleHealth).Methods(http.MethodGet)
	r.HandleFunc(prefix+"/live", m.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc(prefix+"/ready", m.handleReadiness).Methods(http.MethodGet)
	r.HandleFunc(prefix+"/components", m.handleComponents).Methods(http.MethodGet)
}

func (m *Manager) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := m.CheckAll(r.Context())
	code := http.StatusOK
	if h.Status == StatusUnhealthy || h.Status == StatusUnknown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func (m *Manager) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": time.Now(),
		"uptime":    time.Since(m.startTime).Round(time.Second).String(),
	})
}

// handleReadiness is ready unless some component is unhealthy.
func (m *Manager) handleReadiness(w http.ResponseWriter, r *http.Request) {
	h := m.CheckAll(r.Context())
	ready := h.Status != StatusUnhealthy
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     h.Status,
		"ready":      ready,
		"timestamp":  h.Timestamp,
		"components": len(h.Components),
	})
}

func (m *Manager) handleComponents(w http.ResponseWriter, r *http.Request) {
	var h SystemHealth
	if r.URL.Query().Get("cached") == "true" {
		h = m.Cached()
	} else {
		h = m.CheckAll(r.Context())
	}
	names := make([]string, 0, len(h.Components))
	for n := range h.Components {
		names = append(names, n)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]any{
		"names":      names,
		"components": h.Components,
		"summary":    h.Summary,
		"timestamp":  h.Timestamp,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
