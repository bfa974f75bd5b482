// Package resilience protects Vidforge's outbound provider calls from
// cascading failures. [CircuitBreaker] is a three-state breaker
// (closed → open → half-open) used around status polling and LLM completions;
// [LLMFallback] chains several LLM backends behind per-backend breakers so a
// failing enhancer provider is bypassed in favour of a healthy one.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vidforge/vidforge/internal/observe"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call. Consecutive failures are counted.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen admits a bounded number of probe calls. Enough successes
	// close the breaker; any failure re-opens it.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values fall back to
// defaults.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in logs and in the
	// vidforge.breaker.transitions metric (e.g. "runway-status").
	Name string

	// MaxFailures is the consecutive-failure count that opens a closed
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long an open breaker rejects calls before admitting
	// probes. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax bounds the probe calls admitted while half-open. Default: 3.
	HalfOpenMax int

	// Metrics, when non-nil, receives a counter increment per state
	// transition.
	Metrics *observe.Metrics
}

// CircuitBreaker implements the three-state circuit breaker pattern. State
// transitions are logged and, when configured, recorded to
// [observe.Metrics.BreakerTransitions].
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	metrics      *observe.Metrics

	mu         sync.Mutex
	state      State
	failures   int // consecutive failures while closed
	probes     int // calls admitted while half-open
	probeFails int
	openedAt   time.Time
}

// NewCircuitBreaker creates a closed [CircuitBreaker] from cfg.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		metrics:      cfg.Metrics,
	}
}

// Execute runs fn if the breaker admits the call, passing ctx through to the
// guarded operation. While open it returns [ErrCircuitOpen] without calling
// fn; while half-open only [CircuitBreakerConfig.HalfOpenMax] probes get
// through. The error from fn is returned unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probing, err := cb.admit(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx)
	cb.settle(ctx, probing, err)
	return err
}

// admit decides whether a call may proceed and reports whether it counts as a
// half-open probe.
func (cb *CircuitBreaker) admit(ctx context.Context) (probing bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.transition(ctx, StateHalfOpen)
		cb.probes = 0
		cb.probeFails = 0

	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.probes++
		return true, nil
	}
	return false, nil
}

// settle applies the outcome of an admitted call.
func (cb *CircuitBreaker) settle(ctx context.Context, probing bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		if probing {
			cb.probeFails++
			// Any probe failure re-opens for a full reset window.
			cb.transition(ctx, StateOpen)
			cb.openedAt = time.Now()
			return
		}
		cb.failures++
		if cb.failures >= cb.maxFailures && cb.state == StateClosed {
			cb.transition(ctx, StateOpen)
			cb.openedAt = time.Now()
		}
		return
	}

	if probing {
		if cb.probes-cb.probeFails >= cb.halfOpenMax {
			cb.transition(ctx, StateClosed)
			cb.failures = 0
			cb.probes = 0
			cb.probeFails = 0
		}
		return
	}
	cb.failures = 0
}

// transition moves the breaker to next, logging and counting the change.
// Must be called with cb.mu held.
func (cb *CircuitBreaker) transition(ctx context.Context, next State) {
	prev := cb.state
	cb.state = next

	level := slog.LevelInfo
	if next == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "circuit breaker state change",
		"breaker", cb.name,
		"from", prev.String(),
		"to", next.String(),
		"consecutive_failures", cb.failures,
	)
	if cb.metrics != nil {
		cb.metrics.RecordBreakerTransition(ctx, cb.name, prev.String(), next.String())
	}
}

// State returns the breaker's current [State]. An open breaker whose reset
// timeout has elapsed reports [StateHalfOpen]; the recorded transition
// happens on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.transition(context.Background(), StateClosed)
	}
	cb.failures = 0
	cb.probes = 0
	cb.probeFails = 0
}
