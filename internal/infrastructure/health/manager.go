// Package health aggregates component liveness checks for the /healthz
// endpoint.
package health

import (
	"sync"

	"dex_trader/internal/core"
)

type checkFunc func() error

// HealthManager polls registered component checks on demand. A check returns
// nil when the component is operating; any error marks the process unhealthy.
type HealthManager struct {
	logger core.ILogger
	mu     sync.RWMutex
	checks map[string]checkFunc
}

// NewHealthManager creates an empty manager.
func NewHealthManager(logger core.ILogger) *HealthManager {
	hm := &HealthManager{checks: make(map[string]checkFunc)}
	if logger != nil {
		hm.logger = logger.WithField("component", "health_manager")
	}
	return hm
}

// Register adds a component check. Re-registering a name replaces the check.
func (hm *HealthManager) Register(component string, check func() error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[component] = check
}

// GetStatus runs every check and reports a per-component verdict.
func (hm *HealthManager) GetStatus() map[string]string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := make(map[string]string, len(hm.checks))
	for component, check := range hm.checks {
		if err := check(); err != nil {
			status[component] = "Unhealthy: " + err.Error()
		} else {
			status[component] = "Healthy"
		}
	}
	return status
}

// IsHealthy reports whether every registered check passes.
func (hm *HealthManager) IsHealthy() bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	for _, check := range hm.checks {
		if err := check(); err != nil {
			if hm.logger != nil {
				hm.logger.Warn("Health check failed", "error", err.Error())
			}
			return false
		}
	}
	return true
}
