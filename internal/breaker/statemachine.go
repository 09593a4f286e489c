// Package breaker implements the circuit breaker state machine shared by
// all five failure-detector variants (spec.md §4.3): one Breaker struct
// parameterized by a pluggable Detector, rather than five independent
// machines.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is one of the three circuit states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Detector is the mark_success/mark_failed/should_trip? contract shared by
// every failure-detector variant (spec.md §4.4). Implementations keep their
// own sliding window over a monotonic clock.
type Detector interface {
	MarkSuccess(ts time.Time)
	MarkFailed(err error, ts time.Time)
	ShouldTrip(ts time.Time) bool
	// Metrics returns a snapshot suitable for logging and state_change
	// event payloads.
	Metrics() map[string]any
	// Reset clears accumulated state, called on an explicit breaker reset.
	Reset()
}

// AdapterError classifies a failure observed during Acquire. Callers that
// distinguish "this exception marks the circuit" from transient,
// non-tripping errors set Marks to false; AdapterError implements
// circuitMarker so Acquire honors it automatically.
type AdapterError struct {
	Err   error
	Marks bool
}

func (e *AdapterError) Error() string     { return e.Err.Error() }
func (e *AdapterError) Unwrap() error      { return e.Err }
func (e *AdapterError) MarksCircuit() bool { return e.Marks }

// Config configures a Breaker.
type Config struct {
	Name          string
	Detector      Detector
	ErrorTimeout  time.Duration // time open before a probe is allowed
	SuccessThreshold int        // half_open successes required to close

	// HalfOpenResourceTimeout, if non-zero, is handed to the caller via
	// Acquire's resourceOverride callback for the duration of a half_open
	// probe (spec.md §4.3 item 2).
	HalfOpenResourceTimeout time.Duration

	Logger *slog.Logger

	// OnStateChange is invoked synchronously on every transition with
	// {state, name, metrics}, mirroring the state_change event payload
	// spec.md §4.3 requires published on the event bus.
	OnStateChange func(name string, state State, metrics map[string]any)
}

// Breaker is the generic circuit breaker state machine.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	openedAt time.Time
	successCount int
	lastErr  error
}

// New constructs a Breaker starting in the closed state.
func New(cfg Config) *Breaker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RequestAllowed is the pure predicate from spec.md §4.3: it reports
// whether a call would be accepted right now without itself causing a
// transition, including reporting true in open once error_timeout has
// elapsed (the transition to half_open only happens inside Acquire).
func (b *Breaker) RequestAllowed(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed, HalfOpen:
		return true
	case Open:
		return now.Sub(b.openedAt) >= b.errorTimeoutLocked()
	default:
		return false
	}
}

// dynamicTimeoutDetector is implemented by DynamicBackoffDetector; when a
// breaker's detector satisfies it, error_timeout is the detector's current
// backoff value instead of the configured fixed Config.ErrorTimeout,
// matching spec.md §4.4d's "mutually exclusive with a configured fixed
// error_timeout".
type dynamicTimeoutDetector interface {
	Detector
	Timeout() time.Duration
	OnProbeFailed()
	OnProbeSucceeded()
}

// errorTimeoutLocked must be called with mu held.
func (b *Breaker) errorTimeoutLocked() time.Duration {
	if d, ok := b.cfg.Detector.(dynamicTimeoutDetector); ok {
		return d.Timeout()
	}
	return b.cfg.ErrorTimeout
}

// ResourceOverride is a hook Acquire uses to mutate and later restore a
// resource-level timeout during a half_open probe (spec.md §4.3 item 2).
type ResourceOverride interface {
	SetTimeout(d time.Duration) (restore func())
}

// Acquire runs work under breaker protection per spec.md §4.3's four-step
// contract. resourceOverride may be nil.
func (b *Breaker) Acquire(ctx context.Context, resourceOverride ResourceOverride, work func(ctx context.Context) error) error {
	now := time.Now()

	b.mu.Lock()
	switch b.state {
	case Open:
		errTimeout := b.errorTimeoutLocked()
		if now.Sub(b.openedAt) < errTimeout {
			resetAt := b.openedAt.Add(errTimeout)
			b.mu.Unlock()
			return &OpenCircuitError{Name: b.cfg.Name, ResetAt: resetAt}
		}
		b.transitionLocked(HalfOpen)
	case HalfOpen, Closed:
		// fall through
	}
	b.mu.Unlock()

	var restore func()
	if b.State() == HalfOpen && resourceOverride != nil && b.cfg.HalfOpenResourceTimeout > 0 {
		restore = resourceOverride.SetTimeout(b.cfg.HalfOpenResourceTimeout)
	}
	if restore != nil {
		defer restore()
	}

	err := work(ctx)
	ts := time.Now()
	if err != nil {
		if marksCircuit(err) {
			b.markFailed(err, ts)
		}
		return err
	}
	b.markSuccess(ts)
	return nil
}

// circuitMarker lets an adapter declare that a given error should not trip
// the circuit (spec.md §4.3 item 3, "marks_semian_circuits?"). Errors that
// don't implement it always mark the circuit.
type circuitMarker interface {
	MarksCircuit() bool
}

func marksCircuit(err error) bool {
	m, ok := err.(circuitMarker)
	if !ok {
		return true
	}
	return m.MarksCircuit()
}

// MarkSuccess records a successful call outside of Acquire (e.g. when the
// caller's adapter decides success/failure itself).
func (b *Breaker) MarkSuccess(ts time.Time) { b.markSuccess(ts) }

// MarkFailed records a failed call outside of Acquire.
func (b *Breaker) MarkFailed(err error, ts time.Time) { b.markFailed(err, ts) }

func (b *Breaker) markSuccess(ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cfg.Detector.MarkSuccess(ts)

	switch b.state {
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.transitionLocked(Closed)
		}
	case Closed:
		// detector owns the sliding window; nothing else to do.
	}
}

func (b *Breaker) markFailed(err error, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastErr = err
	b.cfg.Detector.MarkFailed(err, ts)

	switch b.state {
	case HalfOpen:
		b.transitionLocked(Open)
	case Closed:
		if b.cfg.Detector.ShouldTrip(ts) {
			b.transitionLocked(Open)
		}
	}
}

// Reset forces the breaker back to closed and clears the detector's
// accumulated state (the "any -> explicit reset -> closed" transition).
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.Detector.Reset()
	b.transitionLocked(Closed)
}

// transitionLocked must be called with mu held.
func (b *Breaker) transitionLocked(newState State) {
	if b.state == newState {
		return
	}
	prev := b.state
	b.state = newState

	if d, ok := b.cfg.Detector.(dynamicTimeoutDetector); ok {
		switch {
		case prev == HalfOpen && newState == Open:
			d.OnProbeFailed()
		case prev == HalfOpen && newState == Closed:
			d.OnProbeSucceeded()
		}
	}

	switch newState {
	case Open:
		b.openedAt = time.Now()
	case HalfOpen:
		b.successCount = 0
	case Closed:
		b.successCount = 0
	}

	metrics := b.cfg.Detector.Metrics()

	if prev == Closed && newState == Open {
		lastErrMsg := ""
		if b.lastErr != nil {
			lastErrMsg = b.lastErr.Error()
		}
		b.cfg.Logger.Info("circuit breaker opened",
			slog.String("name", b.cfg.Name),
			slog.String("last_error", lastErrMsg),
			slog.Any("metrics", metrics),
		)
	}

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, newState, metrics)
	}
}

// OpenCircuitError is returned by Acquire when the circuit is open and the
// error timeout has not yet elapsed.
type OpenCircuitError struct {
	Name    string
	ResetAt time.Time
}

func (e *OpenCircuitError) Error() string {
	return fmt.Sprintf("circuit %q is open until %s", e.Name, e.ResetAt.Format(time.RFC3339))
}
