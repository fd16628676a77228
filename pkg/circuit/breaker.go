// Package circuit provides the circuit breaker guarding vertad's external
// dependencies. The node RPC client, the Kafka client, and the database
// manager each own a breaker, so a dead node or broker fails calls fast
// instead of stacking retries during an outage.
package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/vertachain/vertad/pkg/errors"
)

// State is the breaker's position in the closed/open/half-open cycle.
type State int

const (
	// StateClosed passes calls through and counts failures.
	StateClosed State = iota
	// StateOpen rejects calls until the open timeout elapses.
	StateOpen
	// StateHalfOpen passes probe calls to test whether the dependency
	// recovered.
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

// Config tunes the breaker's trip and recovery behavior.
type Config struct {
	// MaxFailures opens the breaker once reached while closed.
	MaxFailures int
	// SuccessRequired closes the breaker after this many consecutive
	// half-open successes.
	SuccessRequired int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// ResetTimeout clears the failure count of a quiet closed breaker.
	ResetTimeout time.Duration
}

// DefaultConfig returns the tuning used when callers pass nil.
func DefaultConfig() *Config {
	return &Config{
		MaxFailures:     5,
		SuccessRequired: 3,
		Timeout:         30 * time.Second,
		ResetTimeout:    60 * time.Second,
	}
}

// Breaker is a mutex-guarded circuit breaker. Safe for concurrent use.
type Breaker struct {
	config *Config
	mutex  sync.RWMutex

	state         State
	failures      int
	successes     int
	lastFailTime  time.Time
	lastResetTime time.Time
}

// New creates a closed breaker.
func New(config *Config) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Breaker{
		config:        config,
		state:         StateClosed,
		lastResetTime: time.Now(),
	}
}

// Execute runs fn under the breaker. An open breaker rejects the call
// with a non-retryable internal error carrying the breaker state.
func (cb *Breaker) Execute(_ context.Context, fn func() error) error {
	if !cb.allowRequest() {
		return cb.openErr()
	}
	err := fn()
	cb.recordResult(err)
	return err
}

// ExecuteWithResult is Execute for operations that produce a value.
func ExecuteWithResult[T any](_ context.Context, cb *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if !cb.allowRequest() {
		return zero, cb.openErr()
	}
	result, err := fn()
	cb.recordResult(err)
	return result, err
}

func (cb *Breaker) openErr() *errors.ServiceError {
	return errors.New(errors.ErrorTypeInternal, "circuit_breaker",
		"circuit breaker is open").
		WithContext("state", cb.GetState().String())
}

// allowRequest decides whether a call may proceed and advances the state
// machine on the timeouts.
func (cb *Breaker) allowRequest() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	switch cb.state {
	case StateClosed:
		if now.Sub(cb.lastResetTime) > cb.config.ResetTimeout {
			cb.failures = 0
			cb.lastResetTime = now
		}
		return true

	case StateOpen:
		if now.Sub(cb.lastFailTime) > cb.config.Timeout {
			cb.state = StateHalfOpen
			cb.successes = 0
			return true
		}
		return false

	case StateHalfOpen:
		return true

	default:
		return false
	}
}

// recordResult feeds a call outcome into the state machine. Any half-open
// failure reopens immediately; half-open successes accumulate toward
// closing.
func (cb *Breaker) recordResult(err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailTime = time.Now()

		if cb.state == StateHalfOpen ||
			(cb.state == StateClosed && cb.failures >= cb.config.MaxFailures) {
			cb.state = StateOpen
			cb.successes = 0
		}
		return
	}

	cb.successes++
	if cb.state == StateHalfOpen && cb.successes >= cb.config.SuccessRequired {
		cb.state = StateClosed
		cb.failures = 0
		cb.successes = 0
		cb.lastResetTime = time.Now()
	}
}

// GetState returns the breaker's current state.
func (cb *Breaker) GetState() State {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

// Stats is a point-in-time snapshot of the breaker's counters.
type Stats struct {
	State        State
	Failures     int
	Successes    int
	LastFailTime time.Time
}

// GetStats snapshots the breaker's counters for diagnostics.
func (cb *Breaker) GetStats() Stats {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return Stats{
		State:        cb.state,
		Failures:     cb.failures,
		Successes:    cb.successes,
		LastFailTime: cb.lastFailTime,
	}
}

// Reset forces the breaker closed and clears its counters.
func (cb *Breaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.lastResetTime = time.Now()
}
