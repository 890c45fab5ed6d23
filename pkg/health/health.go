package health

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"lighttavern/backend/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Component is the last observed state of one health-checked dependency
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check probes one dependency and reports its status
type Check func() (Status, string, error)

type probe struct {
	check    Check
	critical bool
	last     Component
}

// Checker runs registered health checks on a fixed period and keeps the
// latest result per component. Only critical components being down makes
// the system unhealthy; degraded dependencies (redis, upstream providers)
// do not.
type Checker struct {
	mu     sync.RWMutex
	probes map[string]*probe
	period time.Duration
	log    *logger.Logger
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger, period time.Duration) *Checker {
	c := &Checker{
		probes: make(map[string]*probe),
		period: period,
		log:    log,
	}

	c.RegisterCheck("self", func() (Status, string, error) {
		return StatusUp, "Health checker is running", nil
	})

	return c
}

// RegisterCheck registers a non-critical health check
func (c *Checker) RegisterCheck(name string, check Check) {
	c.register(name, check, false)
}

func (c *Checker) register(name string, check Check, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.probes[name] = &probe{
		check:    check,
		critical: critical,
		last: Component{
			Name:        name,
			Status:      StatusDown,
			Description: "Not checked yet",
		},
	}
}

// RegisterDatabaseCheck registers the database ping as a critical check
func (c *Checker) RegisterDatabaseCheck(ping func() error) {
	c.register("database", func() (Status, string, error) {
		if err := ping(); err != nil {
			return StatusDown, "Database connection failed", err
		}
		return StatusUp, "Database connection is established", nil
	}, true)
}

// RegisterAPICheck registers a reachability check for an upstream HTTP API.
// A non-2xx response degrades the component rather than marking it down.
func (c *Checker) RegisterAPICheck(name, endpoint string, client *http.Client) {
	if client == nil {
		client = http.DefaultClient
	}

	c.register("api-"+name, func() (Status, string, error) {
		start := time.Now()
		resp, err := client.Get(endpoint)
		if err != nil {
			return StatusDown, "API request failed", err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return StatusDegraded, fmt.Sprintf("API returned status %d", resp.StatusCode),
				fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return StatusUp, fmt.Sprintf("API is responding (latency: %s)", time.Since(start)), nil
	}, false)
}

// RunChecks executes every registered check once
func (c *Checker) RunChecks() {
	c.mu.RLock()
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	c.mu.RUnlock()

	for _, name := range names {
		c.runOne(name)
	}
}

func (c *Checker) runOne(name string) {
	c.mu.RLock()
	p, ok := c.probes[name]
	c.mu.RUnlock()
	if !ok {
		return
	}

	status, description, err := p.check()

	result := Component{
		Name:        name,
		Status:      status,
		Description: description,
		LastChecked: time.Now(),
	}
	if err != nil {
		result.Error = err.Error()
		c.log.Error("Health check failed",
			"component", name,
			"status", string(status),
			"error", err.Error(),
		)
	} else {
		c.log.Debug("Health check completed",
			"component", name,
			"status", string(status),
		)
	}

	c.mu.Lock()
	p.last = result
	c.mu.Unlock()
}

// Start begins periodic health checks
func (c *Checker) Start() {
	go func() {
		c.RunChecks()

		ticker := time.NewTicker(c.period)
		defer ticker.Stop()

		for range ticker.C {
			c.RunChecks()
		}
	}()
}

// GetStatus returns a snapshot of every component's last check result
func (c *Checker) GetStatus() map[string]*Component {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]*Component, len(c.probes))
	for name, p := range c.probes {
		last := p.last
		result[name] = &last
	}
	return result
}

// IsSystemHealthy returns true if no critical component is down
func (c *Checker) IsSystemHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.probes {
		if p.critical && p.last.Status == StatusDown {
			return false
		}
	}
	return true
}
