package relay

import (
	"errors"
	"sync"
	"time"
)

// CircuitState is the state of the completion-endpoint circuit breaker.
type CircuitState int

const (
	// CircuitClosed is normal operation.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects rounds until the cool-down elapses.
	CircuitOpen
	// CircuitHalfOpen lets probe rounds through to check recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the completion endpoint is being shed.
var ErrCircuitOpen = errors.New("completion endpoint circuit is open")

// CircuitConfig configures the breaker guarding the completion endpoint.
type CircuitConfig struct {
	FailureThreshold int           // consecutive failures before opening, default 5
	SuccessThreshold int           // probe successes to close again, default 2
	CoolDown         time.Duration // open duration before probing, default 30s
}

// CircuitBreaker sheds completion rounds while the endpoint is failing, so
// a dead upstream does not burn the retry budget of every incoming message.
type CircuitBreaker struct {
	mu sync.Mutex

	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time

	failureThreshold int
	successThreshold int
	coolDown         time.Duration
	now              func() time.Time
}

// NewCircuitBreaker creates a breaker, applying defaults for zero values.
func NewCircuitBreaker(cfg CircuitConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}

	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		coolDown:         cfg.CoolDown,
		now:              time.Now,
	}
}

// Allow reports whether a completion round may proceed. While open it
// returns ErrCircuitOpen until the cool-down elapses, at which point it
// transitions to half-open and admits a probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.lastFailure) <= cb.coolDown {
			return ErrCircuitOpen
		}
		cb.state = CircuitHalfOpen
		cb.successes = 0
	}
	return nil
}

// Success records a completed round.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.successes = 0
		}
	case CircuitClosed:
		cb.failures = 0
	}
}

// Failure records a failed round. A failure during a half-open probe
// reopens immediately.
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.failureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.successes = 0
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
