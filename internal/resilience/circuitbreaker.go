// Package resilience provides failure-containment patterns for the order
// submission path.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // normal operation
	CircuitOpen     CircuitState = "OPEN"      // failing, rejecting requests
	CircuitHalfOpen CircuitState = "HALF_OPEN" // testing if the gateway recovered
)

// ErrCircuitOpen is returned when the circuit rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens.
	FailureThreshold int
	// SuccessThreshold is the number of successes in half-open state
	// required to close the circuit again.
	SuccessThreshold int
	// CoolDown is how long the circuit stays open before probing.
	CoolDown time.Duration
}

// DefaultBreakerConfig returns sensible defaults for order submission.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		CoolDown:         30 * time.Second,
	}
}

// Breaker guards broker order submissions: a run of submission failures
// opens the circuit so the engine falls back to simulated execution instead
// of hammering a dead gateway.
type Breaker struct {
	name   string
	config BreakerConfig
	log    zerolog.Logger

	mu          sync.Mutex
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
	lastChange  time.Time

	totalRequests  int64
	totalFailures  int64
	totalSuccesses int64
	totalRejected  int64
}

// NewBreaker creates a circuit breaker.
func NewBreaker(name string, config BreakerConfig, logger zerolog.Logger) *Breaker {
	return &Breaker{
		name:       name,
		config:     config,
		log:        logger.With().Str("component", "breaker").Str("name", name).Logger(),
		state:      CircuitClosed,
		lastChange: time.Now(),
	}
}

// Execute runs fn under circuit protection. When the circuit is open the
// call is rejected immediately with ErrCircuitOpen.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	b.mu.Lock()
	b.totalRequests++
	b.mu.Unlock()

	if err := fn(); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if time.Since(b.lastFailure) > b.config.CoolDown {
			b.transition(CircuitHalfOpen)
			return nil
		}
		b.totalRejected++
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalSuccesses++
	switch b.state {
	case CircuitHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transition(CircuitClosed)
		}
	case CircuitClosed:
		b.failures = 0
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures++
	b.lastFailure = time.Now()
	switch b.state {
	case CircuitClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		b.transition(CircuitOpen)
	}
}

func (b *Breaker) transition(state CircuitState) {
	old := b.state
	b.state = state
	b.lastChange = time.Now()
	b.failures = 0
	b.successes = 0
	b.log.Warn().Str("from", string(old)).Str("to", string(state)).Msg("Circuit state changed")
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the circuit and clears counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failures = 0
	b.successes = 0
	b.lastChange = time.Now()
}

// BreakerStats is a snapshot of breaker counters.
type BreakerStats struct {
	Name           string
	State          CircuitState
	TotalRequests  int64
	TotalSuccesses int64
	TotalFailures  int64
	TotalRejected  int64
	LastFailure    time.Time
	LastChange     time.Time
}

// Stats returns breaker statistics.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		Name:           b.name,
		State:          b.state,
		TotalRequests:  b.totalRequests,
		TotalSuccesses: b.totalSuccesses,
		TotalFailures:  b.totalFailures,
		TotalRejected:  b.totalRejected,
		LastFailure:    b.lastFailure,
		LastChange:     b.lastChange,
	}
}
