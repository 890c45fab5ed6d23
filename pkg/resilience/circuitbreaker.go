package resilience

import (
	"errors"
	"sync"
	"time"

	"lighttavern/backend/pkg/logger"
)

// ErrCircuitOpen is returned when the breaker is short-circuiting requests
var ErrCircuitOpen = errors.New("circuit open")

// CircuitBreakerState represents the current state of a circuit breaker
type CircuitBreakerState string

const (
	// StateClosed means requests pass through normally
	StateClosed CircuitBreakerState = "closed"
	// StateOpen means requests are rejected until the retry timeout expires
	StateOpen CircuitBreakerState = "open"
	// StateHalfOpen means a limited number of probe requests are allowed
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold uint
	SuccessThreshold uint
	RetryTimeout     time.Duration
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RetryTimeout:     60 * time.Second,
	}
}

// CircuitBreaker guards an unreliable dependency. Consecutive failures trip
// it open; after the retry timeout it admits probes, and enough successful
// probes close it again.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	log *logger.Logger

	mu        sync.Mutex
	state     CircuitBreakerState
	failures  uint
	successes uint
	reopenAt  time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg CircuitBreakerConfig, log *logger.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:   cfg,
		log:   log,
		state: StateClosed,
	}
}

// Execute runs fn through the breaker, returning ErrCircuitOpen without
// invoking fn when the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.admit() {
		cb.log.Warn("Circuit breaker preventing request",
			"name", cb.cfg.Name,
			"state", string(cb.State()),
		)
		return ErrCircuitOpen
	}

	started := time.Now()
	if err := fn(); err != nil {
		cb.onFailure()
		cb.log.Warn("Circuit breaker recorded failure",
			"name", cb.cfg.Name,
			"error", err.Error(),
			"duration", time.Since(started).String(),
		)
		return err
	}

	cb.onSuccess()
	return nil
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Now().After(cb.reopenAt) {
			cb.state = StateHalfOpen
			cb.successes = 0
			cb.log.Info("Circuit breaker half-open", "name", cb.cfg.Name)
			return true
		}
		return false
	default: // half-open
		return cb.successes < cb.cfg.SuccessThreshold
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.successes = 0
			cb.log.Info("Circuit breaker closed", "name", cb.cfg.Name)
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.trip()
		}
	case StateHalfOpen:
		cb.trip()
	}
}

// trip opens the circuit. Caller holds the lock.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.reopenAt = time.Now().Add(cb.cfg.RetryTimeout)

	cb.log.Info("Circuit breaker opened",
		"name", cb.cfg.Name,
		"failures", cb.failures,
		"nextAttempt", cb.reopenAt.Format(time.RFC3339),
	)
}
