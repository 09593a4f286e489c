package breaker

import (
	"sync"
	"time"
)

// LumpingDetector wraps any Detector and drops consecutive MarkFailed calls
// that land within lumping_interval of the last one, so a brief burst of
// failures (e.g. a single flaky retry storm) only counts once against the
// wrapped detector's threshold (spec.md §4.4e). Orthogonal to 4.4a/4.4b —
// either can be wrapped.
type LumpingDetector struct {
	mu sync.Mutex

	interval time.Duration
	inner    Detector

	lastFailureTs time.Time
	hasLast       bool
}

// NewLumpingDetector wraps inner with a lumping_interval filter.
func NewLumpingDetector(interval time.Duration, inner Detector) *LumpingDetector {
	return &LumpingDetector{interval: interval, inner: inner}
}

func (l *LumpingDetector) MarkSuccess(ts time.Time) {
	l.inner.MarkSuccess(ts)
}

func (l *LumpingDetector) MarkFailed(err error, ts time.Time) {
	l.mu.Lock()
	if l.hasLast && ts.Sub(l.lastFailureTs) < l.interval {
		l.mu.Unlock()
		return
	}
	l.lastFailureTs = ts
	l.hasLast = true
	l.mu.Unlock()

	l.inner.MarkFailed(err, ts)
}

func (l *LumpingDetector) ShouldTrip(ts time.Time) bool { return l.inner.ShouldTrip(ts) }
func (l *LumpingDetector) Metrics() map[string]any      { return l.inner.Metrics() }

func (l *LumpingDetector) Reset() {
	l.mu.Lock()
	l.hasLast = false
	l.mu.Unlock()
	l.inner.Reset()
}
