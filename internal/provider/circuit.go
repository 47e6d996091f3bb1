package provider

import (
	"sync"
	"time"
)

// CircuitState is one of the three states in spec.md §4.2.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// CircuitConfig configures one provider's breaker.
type CircuitConfig struct {
	FailureThreshold int
	Window           time.Duration
	Cooldown         time.Duration
	MaxCooldown      time.Duration
}

// DefaultCircuitConfig returns the defaults from spec.md §4.2.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{FailureThreshold: 5, Window: 60 * time.Second, Cooldown: 30 * time.Second, MaxCooldown: 5 * time.Minute}
}

// CircuitBreaker is a per-provider state machine guarded by one short
// mutex critical section, per the DESIGN NOTES §9 guidance ("prefer a
// per-provider small-critical-section mutex over lock-free constructs").
// Grounded on the teacher's ProviderConfigStore, which applies the same
// "lock, mutate, copy out" shape to its own shared map.
type CircuitBreaker struct {
	cfg CircuitConfig

	mu             sync.Mutex
	state          CircuitState
	failures       []time.Time // consecutive-failure timestamps within cfg.Window
	openedAt       time.Time
	currentCooldown time.Duration
	halfOpenInFlight bool
	onTransition   func(from, to CircuitState)
}

// NewCircuitBreaker builds a closed breaker.
func NewCircuitBreaker(cfg CircuitConfig, onTransition func(from, to CircuitState)) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed, onTransition: onTransition}
}

// Allow reports whether a call may currently be attempted, and if the
// breaker is half-open, reserves the single trial call (subsequent
// concurrent callers are refused until that trial resolves).
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		cooldown := cb.currentCooldown
		if cooldown == 0 {
			cooldown = cb.cfg.Cooldown
		}
		if time.Since(cb.openedAt) < cooldown {
			return false
		}
		cb.transitionLocked(CircuitHalfOpen)
		cb.halfOpenInFlight = true
		return true
	case CircuitHalfOpen:
		if cb.halfOpenInFlight {
			return false
		}
		cb.halfOpenInFlight = true
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker (from half-open) or simply clears the
// failure window (from closed).
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.halfOpenInFlight = false
	cb.failures = nil
	cb.currentCooldown = 0
	if cb.state != CircuitClosed {
		cb.transitionLocked(CircuitClosed)
	}
}

// RecordFailure registers a failure. From half-open it re-opens with
// exponential backoff capped at cfg.MaxCooldown; from closed it trips open
// once cfg.FailureThreshold failures have landed within cfg.Window.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.halfOpenInFlight = false

	if cb.state == CircuitHalfOpen {
		cb.backoffLocked()
		cb.transitionLocked(CircuitOpen)
		return
	}

	cutoff := now.Add(-cb.cfg.Window)
	kept := cb.failures[:0]
	for _, t := range cb.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.failures = append(kept, now)

	if len(cb.failures) >= cb.cfg.FailureThreshold {
		cb.currentCooldown = cb.cfg.Cooldown
		cb.transitionLocked(CircuitOpen)
	}
}

func (cb *CircuitBreaker) backoffLocked() {
	if cb.currentCooldown == 0 {
		cb.currentCooldown = cb.cfg.Cooldown
	} else {
		cb.currentCooldown *= 2
	}
	if cb.currentCooldown > cb.cfg.MaxCooldown {
		cb.currentCooldown = cb.cfg.MaxCooldown
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.openedAt = time.Now()
	cb.failures = nil
	if to == CircuitOpen && cb.currentCooldown == 0 {
		cb.currentCooldown = cb.cfg.Cooldown
	}
	if cb.onTransition != nil && from != to {
		cb.onTransition(from, to)
	}
}

// State returns the current state for observability/tests.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
