package breaker

import (
	"sync"
	"time"
)

// DynamicBackoffDetector doesn't decide should_trip itself — it reacts to
// the breaker's own transitions (spec.md §4.4d), growing error_timeout
// exponentially then linearly after repeated half_open->open failures, and
// resetting it to the floor once a probe succeeds and the breaker closes.
// It is mutually exclusive with a fixed error_timeout; the breaker consults
// Timeout() each time it needs error_timeout instead of a static Config
// field.
type DynamicBackoffDetector struct {
	mu sync.Mutex

	floor        time.Duration
	exponentCap  time.Duration // above this, switch from x2 to +1s
	hardCap      time.Duration
	linearStep   time.Duration

	current time.Duration
	// base wraps an underlying tripping detector (e.g. consecutive or
	// error-rate); DynamicBackoffDetector only owns the timeout
	// progression, delegating should_trip?/mark_* to base.
	base Detector
}

// DynamicBackoffConfig configures a DynamicBackoffDetector. Defaults match
// spec.md §4.4d's literal progression: 0.5s floor, doubling to 20s, then
// +1s to a 60s hard cap.
type DynamicBackoffConfig struct {
	Floor       time.Duration
	ExponentCap time.Duration
	HardCap     time.Duration
	LinearStep  time.Duration
	Base        Detector
}

// NewDynamicBackoffDetector fills zero fields with spec.md §4.4d's defaults.
func NewDynamicBackoffDetector(cfg DynamicBackoffConfig) *DynamicBackoffDetector {
	if cfg.Floor == 0 {
		cfg.Floor = 500 * time.Millisecond
	}
	if cfg.ExponentCap == 0 {
		cfg.ExponentCap = 20 * time.Second
	}
	if cfg.HardCap == 0 {
		cfg.HardCap = 60 * time.Second
	}
	if cfg.LinearStep == 0 {
		cfg.LinearStep = time.Second
	}
	return &DynamicBackoffDetector{
		floor:       cfg.Floor,
		exponentCap: cfg.ExponentCap,
		hardCap:     cfg.HardCap,
		linearStep:  cfg.LinearStep,
		current:     cfg.Floor,
		base:        cfg.Base,
	}
}

// Timeout returns the current error_timeout to use for the next open
// period.
func (d *DynamicBackoffDetector) Timeout() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// OnProbeFailed grows the timeout per spec.md §4.4d's progression:
// 0.5 -> 1 -> 2 -> 4 -> 8 -> 16 -> 20 -> 21 -> 22 -> ... -> 60 -> 60.
func (d *DynamicBackoffDetector) OnProbeFailed() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current < d.exponentCap {
		next := d.current * 2
		if next > d.exponentCap {
			next = d.exponentCap
		}
		d.current = next
		return
	}
	next := d.current + d.linearStep
	if next > d.hardCap {
		next = d.hardCap
	}
	d.current = next
}

// OnProbeSucceeded resets the timeout to its floor once the breaker closes.
func (d *DynamicBackoffDetector) OnProbeSucceeded() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = d.floor
}

func (d *DynamicBackoffDetector) MarkSuccess(ts time.Time)        { d.base.MarkSuccess(ts) }
func (d *DynamicBackoffDetector) MarkFailed(err error, ts time.Time) { d.base.MarkFailed(err, ts) }
func (d *DynamicBackoffDetector) ShouldTrip(ts time.Time) bool    { return d.base.ShouldTrip(ts) }

func (d *DynamicBackoffDetector) Metrics() map[string]any {
	m := d.base.Metrics()
	d.mu.Lock()
	m["error_timeout"] = d.current
	d.mu.Unlock()
	return m
}

func (d *DynamicBackoffDetector) Reset() {
	d.base.Reset()
	d.mu.Lock()
	d.current = d.floor
	d.mu.Unlock()
}
