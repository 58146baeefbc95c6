package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/vyrodovalexey/avaegress/internal/observability"
)

// Status represents the health status.
type Status string

const (
	// StatusHealthy indicates the service is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the service is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates the service is degraded but operational.
	StatusDegraded Status = "degraded"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the readiness check response.
type ReadinessResponse struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Check represents an individual health check result.
type Check struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// CheckFunc is a function that performs a health check.
type CheckFunc func() Check

// Checker provides health and readiness checking functionality.
type Checker struct {
	version   string
	startTime time.Time
	logger    observability.Logger
	checks    map[string]CheckFunc
	mu        sync.RWMutex
}

// NewChecker creates a new health checker.
func NewChecker(version string, logger observability.Logger) *Checker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Checker{
		version:   version,
		startTime: time.Now(),
		logger:    logger,
		checks:    make(map[string]CheckFunc),
	}
}

// RegisterCheck registers a readiness check.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// UnregisterCheck removes a readiness check.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Health returns the health status.
func (c *Checker) Health() HealthResponse {
	return HealthResponse{
		Status:    StatusHealthy,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
}

// Readiness runs every registered check. The worst check status wins.
func (c *Checker) Readiness() ReadinessResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()

	response := ReadinessResponse{
		Status:    StatusHealthy,
		Checks:    make(map[string]Check, len(c.checks)),
		Timestamp: time.Now(),
	}

	for name, checkFunc := range c.checks {
		check := checkFunc()
		response.Checks[name] = check

		switch {
		case check.Status == StatusUnhealthy:
			response.Status = StatusUnhealthy
		case check.Status == StatusDegraded && response.Status != StatusUnhealthy:
			response.Status = StatusDegraded
		}
	}

	return response
}

// HealthHandler returns an HTTP handler for the health endpoint.
func (c *Checker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		c.writeJSON(w, http.StatusOK, c.Health())
	}
}

// ReadinessHandler returns an HTTP handler for the readiness endpoint.
// Unhealthy readiness is reported with 503.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response := c.Readiness()

		statusCode := http.StatusOK
		if response.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.writeJSON(w, statusCode, response)
	}
}

// LivenessHandler returns an HTTP handler for the liveness endpoint.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(HeaderContentType, ContentTypeJSON)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

func (c *Checker) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Error("failed to encode health response", observability.Error(err))
	}
}
