// Package circuitbreaker fails calls fast while a downstream dependency is
// down.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State of a breaker.
//
//	Closed -> Open      consecutive failures reach MaxFailures
//	Open -> HalfOpen    RecoveryTimeout elapsed since the last failure
//	HalfOpen -> Closed  a probe succeeds
//	HalfOpen -> Open    a probe fails
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

type Config struct {
	Name                string
	MaxFailures         int
	RecoveryTimeout     time.Duration
	HalfOpenMaxRequests int

	// OnStateChange, when set, runs after every transition with the lock
	// released.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig opens after 5 consecutive failures and probes after 30s.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxFailures:         5,
		RecoveryTimeout:     30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

type CircuitBreaker struct {
	mu     sync.Mutex
	config Config
	logger *zap.Logger
	now    func() time.Time

	state            State
	failureCount     int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	halfOpenRequests int

	totalRequests  int64
	totalFailures  int64
	totalSuccesses int64
	totalRejected  int64
}

func New(cfg Config, logger *zap.Logger) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}

	cb := &CircuitBreaker{
		config:          cfg,
		logger:          logger,
		now:             time.Now,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}

	logger.Info("circuit breaker created",
		zap.String("name", cfg.Name),
		zap.Int("max_failures", cfg.MaxFailures),
		zap.Duration("recovery_timeout", cfg.RecoveryTimeout),
	)

	return cb
}

// Name returns the configured breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Allow reports whether a call may proceed. A true result in half-open state
// reserves one of the probe slots.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	cb.totalRequests++

	var (
		allowed bool
		change  *transition
	)

	switch cb.state {
	case StateClosed:
		allowed = true

	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) >= cb.config.RecoveryTimeout {
			change = cb.transitionTo(StateHalfOpen)
			cb.halfOpenRequests = 1
			allowed = true
		}

	case StateHalfOpen:
		if cb.halfOpenRequests < cb.config.HalfOpenMaxRequests {
			cb.halfOpenRequests++
			allowed = true
		}
	}

	if !allowed {
		cb.totalRejected++
	}
	cb.mu.Unlock()

	cb.notify(change)
	return allowed
}

// RecordSuccess resets the failure streak and closes a half-open breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.totalSuccesses++
	cb.failureCount = 0

	var change *transition
	if cb.state == StateHalfOpen {
		change = cb.transitionTo(StateClosed)
	}
	cb.mu.Unlock()

	cb.notify(change)
}

// RecordFailure extends the failure streak. A failed probe reopens at once.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	cb.totalFailures++
	cb.failureCount++
	cb.lastFailureTime = cb.now()

	var change *transition
	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.config.MaxFailures {
			change = cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		change = cb.transitionTo(StateOpen)
	}
	cb.mu.Unlock()

	cb.notify(change)
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats is a point-in-time snapshot for the health endpoint.
type Stats struct {
	Name            string `json:"name"`
	State           string `json:"state"`
	FailureCount    int    `json:"failure_count"`
	TotalRequests   int64  `json:"total_requests"`
	TotalFailures   int64  `json:"total_failures"`
	TotalSuccesses  int64  `json:"total_successes"`
	TotalRejected   int64  `json:"total_rejected"`
	LastFailure     string `json:"last_failure,omitempty"`
	LastStateChange string `json:"last_state_change"`
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := Stats{
		Name:            cb.config.Name,
		State:           cb.state.String(),
		FailureCount:    cb.failureCount,
		TotalRequests:   cb.totalRequests,
		TotalFailures:   cb.totalFailures,
		TotalSuccesses:  cb.totalSuccesses,
		TotalRejected:   cb.totalRejected,
		LastStateChange: cb.lastStateChange.Format(time.RFC3339),
	}

	if !cb.lastFailureTime.IsZero() {
		s.LastFailure = cb.lastFailureTime.Format(time.RFC3339)
	}

	return s
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	change := cb.transitionTo(StateClosed)
	cb.failureCount = 0
	cb.mu.Unlock()

	cb.notify(change)
}

type transition struct {
	from, to State
}

// transitionTo must be called with the lock held.
func (cb *CircuitBreaker) transitionTo(next State) *transition {
	if cb.state == next {
		return nil
	}

	prev := cb.state
	cb.state = next
	cb.lastStateChange = cb.now()
	cb.halfOpenRequests = 0

	return &transition{from: prev, to: next}
}

func (cb *CircuitBreaker) notify(change *transition) {
	if change == nil {
		return
	}

	log := cb.logger.Info
	if change.to == StateOpen {
		log = cb.logger.Warn
	}
	log("circuit breaker state changed",
		zap.String("name", cb.config.Name),
		zap.String("from", change.from.String()),
		zap.String("to", change.to.String()),
	)

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, change.from, change.to)
	}
}

func (cb *CircuitBreaker) String() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return fmt.Sprintf("CircuitBreaker[%s] state=%s failures=%d/%d",
		cb.config.Name, cb.state, cb.failureCount, cb.config.MaxFailures)
}
