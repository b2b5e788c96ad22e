package llm

import (
	"errors"
	"log"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitState represents the state of the circuit breaker
type CircuitState string

const (
	StateClosed   CircuitState = "closed"    // Normal operation
	StateOpen     CircuitState = "open"      // Failing, reject requests
	StateHalfOpen CircuitState = "half-open" // One trial call allowed through
)

// CircuitBreaker stops calls to the completion endpoint after repeated failures,
// then lets a single trial call through once the cool-down has passed.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	lastFailureTime time.Time
	probing         bool

	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time
}

// NewCircuitBreaker creates a breaker. A threshold below 1 returns nil, which
// callers treat as "no breaker".
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold < 1 {
		return nil
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	log.Printf("[CircuitBreaker] Initialized: threshold=%d failures, cooldown=%s", failureThreshold, cooldown)
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() error {
	if cb == nil {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		return nil
	case StateHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

// Record updates the breaker with the outcome of an allowed call.
func (cb *CircuitBreaker) Record(failed bool) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	if !failed {
		if cb.state != StateClosed || cb.failureCount > 0 {
			log.Printf("[CircuitBreaker] Success after %d failures, closing", cb.failureCount)
		}
		cb.failureCount = 0
		cb.setState(StateClosed)
		return
	}

	cb.failureCount++
	cb.lastFailureTime = cb.now()
	if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
		cb.setState(StateOpen)
	}
}

// Release ends an allowed call that never produced an outcome, such as one
// cancelled by its caller. The state is left as it was, so a half-open breaker
// lets the next trial call through.
func (cb *CircuitBreaker) Release() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	if cb == nil {
		return StateClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) setState(newState CircuitState) {
	if cb.state != newState {
		log.Printf("[CircuitBreaker] State transition: %s → %s", cb.state, newState)
	}
	cb.state = newState
}
