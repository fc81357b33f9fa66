package scheduler

import (
	"sync"
	"time"
)

// CircuitState represents the circuit breaker state.
type CircuitState int

const (
	// CircuitClosed means phases are executing normally.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the breaker has tripped and the Scheduler should
	// stop issuing phases.
	CircuitOpen
	// CircuitHalfOpen means the breaker is testing recovery.
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

// CircuitBreakerConfig configures the Scheduler's safeguard circuit breaker.
type CircuitBreakerConfig struct {
	// NoProgressThreshold is the number of consecutive audits with no
	// progress (compliance score not strictly increasing and
	// implementation-issue count not strictly decreasing) before tripping.
	NoProgressThreshold int

	// SameErrorThreshold is the number of consecutive phase failures with an
	// identical error message before tripping.
	SameErrorThreshold int

	// RecoveryTimeout is how long the breaker stays open before allowing one
	// trial phase through in the half-open state.
	RecoveryTimeout time.Duration
}

// CircuitBreaker protects the Scheduler from looping forever against a
// stalled or misbehaving agent: it trips when audits stop making progress
// or the same error repeats, and tripping yields reason=circuit_open.
type CircuitBreaker struct {
	mu     sync.Mutex
	config CircuitBreakerConfig

	state        CircuitState
	lastError    string
	errorStreak  int
	noProgress   int
	lastOpenTime time.Time

	lastScore  float64
	lastIssues int
	haveLast   bool
}

// NewCircuitBreaker creates a circuit breaker, applying defaults for any
// zero-valued config field.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.NoProgressThreshold == 0 {
		config.NoProgressThreshold = 3
	}
	if config.SameErrorThreshold == 0 {
		config.SameErrorThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 5 * time.Minute
	}
	return &CircuitBreaker{config: config, state: CircuitClosed}
}

// Allow reports whether a phase may proceed, transitioning Open -> HalfOpen
// once the recovery timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.lastOpenTime) >= cb.config.RecoveryTimeout {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	default: // CircuitHalfOpen
		return true
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// RecordAudit records a completed audit's compliance score and implementation
// issue count, tracking whether this audit made progress over the last one.
func (cb *CircuitBreaker) RecordAudit(complianceScore float64, issueCount int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.errorStreak = 0
		cb.lastError = ""
	}

	progressed := !cb.haveLast || complianceScore > cb.lastScore || issueCount < cb.lastIssues
	if progressed {
		cb.noProgress = 0
	} else {
		cb.noProgress++
		if cb.noProgress >= cb.config.NoProgressThreshold {
			cb.tripOpen()
		}
	}
	cb.lastScore = complianceScore
	cb.lastIssues = issueCount
	cb.haveLast = true
}

// RecordError records a phase failure, tripping the breaker if the same
// error message repeats enough times in a row.
func (cb *CircuitBreaker) RecordError(message string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.tripOpen()
		return
	}

	if message != "" && message == cb.lastError {
		cb.errorStreak++
		if cb.errorStreak >= cb.config.SameErrorThreshold {
			cb.tripOpen()
		}
	} else {
		cb.errorStreak = 1
	}
	cb.lastError = message
}

func (cb *CircuitBreaker) tripOpen() {
	cb.state = CircuitOpen
	cb.lastOpenTime = time.Now()
}

// Reset restores the breaker to its closed, zeroed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.errorStreak = 0
	cb.noProgress = 0
	cb.lastError = ""
	cb.haveLast = false
}
