// Package resilience provides circuit breaking and provider failover for the
// speech, language, and synthesis backends.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open) that
// stops hammering a backend once it fails repeatedly. [Chain] composes several
// instances of the same provider type, each behind its own breaker, so a dead
// primary is bypassed in favour of the next healthy entry. Typed wrappers
// ([STTFallback], [LLMFallback], [TTSFallback]) adapt a [Chain] to the
// provider interfaces used by the engine.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a breaker rejects a call because it is open
// and its cooldown has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call. This is the normal state.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cooldown
	// elapses.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
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

// BreakerConfig holds the tuning knobs for a [CircuitBreaker]. Zero values
// fall back to the defaults documented per field.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// FailureThreshold is how many consecutive failures trip the breaker
	// while closed. Default: 5.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before probing again.
	// Default: 30s.
	Cooldown time.Duration

	// ProbeQuota bounds concurrent probe calls in the half-open state and is
	// also the number of successful probes needed to close. Default: 3.
	ProbeQuota int
}

// CircuitBreaker implements the three-state circuit breaker pattern.
//
// Most callers go through [CircuitBreaker.Execute]. Streaming callers that
// only learn about failure after the call returns (a synthesis stream that
// dies mid-utterance, an LLM stream that ends with an error chunk) use the
// split [CircuitBreaker.Allow] / [CircuitBreaker.Record] form instead, so the
// outcome can be reported once the stream has actually finished.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	quota     int

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int
	probeFails  int
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = 3
	}
	return &CircuitBreaker{
		name:      cfg.Name,
		threshold: cfg.FailureThreshold,
		cooldown:  cfg.Cooldown,
		quota:     cfg.ProbeQuota,
	}
}

// Allow reports whether a call may proceed, reserving a probe slot when the
// breaker is half-open. Every Allow that returns true must be matched by
// exactly one [CircuitBreaker.Record].
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.cooldown {
			return false
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeFails = 0
		slog.Info("circuit breaker half-open", "name", cb.name)

	case StateHalfOpen:
		if cb.probes >= cb.quota {
			return false
		}
	}

	if cb.state == StateHalfOpen {
		cb.probes++
	}
	return true
}

// Record reports the outcome of a call previously admitted by
// [CircuitBreaker.Allow]. A nil err counts as success.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.lastFailure = time.Now()
		if cb.state == StateHalfOpen {
			// One failed probe is enough to re-open.
			cb.probeFails++
			cb.state = StateOpen
			cb.failures = cb.threshold
			slog.Warn("circuit breaker re-opened", "name", cb.name)
			return
		}
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.threshold {
			cb.state = StateOpen
			slog.Warn("circuit breaker opened",
				"name", cb.name, "consecutive_failures", cb.failures)
		}
		return
	}

	if cb.state == StateHalfOpen {
		if cb.probes-cb.probeFails >= cb.quota {
			cb.state = StateClosed
			cb.failures = 0
			cb.probes = 0
			cb.probeFails = 0
			slog.Info("circuit breaker closed", "name", cb.name)
		}
		return
	}
	cb.failures = 0
}

// Execute runs fn if the breaker admits the call, recording its outcome.
// Returns [ErrCircuitOpen] without calling fn when the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.Record(err)
	return err
}

// State returns the breaker's current state. An open breaker whose cooldown
// has elapsed reports [StateHalfOpen]; the transition itself happens on the
// next admitted call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeFails = 0
	slog.Info("circuit breaker reset", "name", cb.name)
}
