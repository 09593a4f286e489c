package breaker

import (
	"sync"
	"time"

	"github.com/hostward/resiliency/internal/window"
)

// ErrorRateDetector trips once the error rate over a rolling time window
// crosses a percent threshold, provided enough volume has been observed
// (spec.md §4.4b).
type ErrorRateDetector struct {
	mu sync.Mutex

	errorPercentThreshold float64
	minimumRequestVolume  int
	timeWindow            time.Duration

	obs *window.TimestampedWindow
}

// ErrorRateConfig configures an ErrorRateDetector.
type ErrorRateConfig struct {
	ErrorPercentThreshold float64 // exclusive (0, 1)
	TimeWindow            time.Duration
	MinimumRequestVolume  int
}

// NewErrorRateDetector panics if ErrorPercentThreshold is outside the
// exclusive (0, 1) range spec.md §4.4b requires.
func NewErrorRateDetector(cfg ErrorRateConfig) *ErrorRateDetector {
	if cfg.ErrorPercentThreshold <= 0 || cfg.ErrorPercentThreshold >= 1 {
		panic("breaker: error_percent_threshold must be in (0, 1)")
	}
	return &ErrorRateDetector{
		errorPercentThreshold: cfg.ErrorPercentThreshold,
		minimumRequestVolume:  cfg.MinimumRequestVolume,
		timeWindow:            cfg.TimeWindow,
		obs:                   window.NewTimestamped(cfg.TimeWindow),
	}
}

func (d *ErrorRateDetector) MarkSuccess(ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.obs.Add(ts, window.KindSuccess)
	d.obs.Prune(ts)
}

func (d *ErrorRateDetector) MarkFailed(_ error, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.obs.Add(ts, window.KindError)
	d.obs.Prune(ts)
}

func (d *ErrorRateDetector) ShouldTrip(ts time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.obs.Prune(ts)

	if d.obs.Size() < d.minimumRequestVolume {
		return false
	}
	success, errors, _ := d.obs.CountsByKind()
	total := success + errors
	if total == 0 {
		return false
	}
	return float64(errors)/float64(total) >= d.errorPercentThreshold
}

func (d *ErrorRateDetector) Metrics() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	success, errors, rejected := d.obs.CountsByKind()
	return map[string]any{
		"window_size": d.obs.Size(),
		"success":     success,
		"errors":      errors,
		"rejected":    rejected,
	}
}

func (d *ErrorRateDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.obs = window.NewTimestamped(d.timeWindow)
}
