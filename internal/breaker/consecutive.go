package breaker

import (
	"sync"
	"time"

	"github.com/hostward/resiliency/internal/window"
)

// ConsecutiveDetector is the classic threshold detector (spec.md §4.4a): it
// trips once error_threshold errors have been recorded; with TimeoutEnabled,
// those errors must also land inside error_threshold_timeout of each other.
type ConsecutiveDetector struct {
	mu sync.Mutex

	errorThreshold        int
	errorThresholdTimeout time.Duration
	timeoutEnabled        bool
	lumpingInterval       time.Duration

	errors       *window.Window
	lastErrorTs  time.Time
	hasLastError bool
}

// ConsecutiveConfig configures a ConsecutiveDetector. ErrorThresholdTimeout
// defaults to ErrorTimeout when zero, matching spec.md §4.4a.
type ConsecutiveConfig struct {
	ErrorThreshold        int
	ErrorThresholdTimeout time.Duration
	ErrorTimeout          time.Duration
	TimeoutEnabled        bool
	LumpingInterval       time.Duration
}

// NewConsecutiveDetector validates cfg per spec.md §4.4a's "lumping_interval
// x (error_threshold - 1) <= error_threshold_timeout" and panics if it is
// violated, since a breaker that could never open is a configuration error
// caught at construction, not at runtime.
func NewConsecutiveDetector(cfg ConsecutiveConfig) *ConsecutiveDetector {
	timeout := cfg.ErrorThresholdTimeout
	if timeout == 0 {
		timeout = cfg.ErrorTimeout
	}
	if cfg.LumpingInterval > 0 {
		worstCase := time.Duration(cfg.ErrorThreshold-1) * cfg.LumpingInterval
		if worstCase > timeout {
			panic("breaker: lumping_interval * (error_threshold - 1) must not exceed error_threshold_timeout")
		}
	}
	return &ConsecutiveDetector{
		errorThreshold:        cfg.ErrorThreshold,
		errorThresholdTimeout: timeout,
		timeoutEnabled:        cfg.TimeoutEnabled,
		lumpingInterval:       cfg.LumpingInterval,
		errors:                window.New(cfg.ErrorThreshold),
	}
}

func (d *ConsecutiveDetector) MarkSuccess(ts time.Time) {
	// the classic detector only tracks errors; success is a no-op, matching
	// spec.md §4.4a (no window clear on success is specified).
}

func (d *ConsecutiveDetector) MarkFailed(_ error, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lumpingInterval > 0 && d.hasLastError && ts.Sub(d.lastErrorTs) < d.lumpingInterval {
		return
	}
	d.lastErrorTs = ts
	d.hasLastError = true

	if d.timeoutEnabled {
		if newest, ok := d.errors.Newest(); ok && ts.Sub(newest) > d.errorThresholdTimeout {
			d.errors.Clear()
		}
	}

	d.errors.Add(ts)
}

func (d *ConsecutiveDetector) ShouldTrip(ts time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.errors.Size() < d.errorThreshold {
		return false
	}
	if !d.timeoutEnabled {
		return true
	}
	oldest, ok := d.errors.Oldest()
	if !ok {
		return false
	}
	return ts.Sub(oldest) <= d.errorThresholdTimeout
}

func (d *ConsecutiveDetector) Metrics() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]any{
		"error_count":     d.errors.Size(),
		"error_threshold": d.errorThreshold,
	}
}

func (d *ConsecutiveDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors.Clear()
	d.hasLastError = false
}
