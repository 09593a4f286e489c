package window

import "time"

// Kind tags a timestamped observation as a success, error or rejection, per
// spec.md §3 ("tagged sequence of (timestamp, kind)").
type Kind int

const (
	KindSuccess Kind = iota
	KindError
	KindRejected
)

// Observation is a single timestamped, kind-tagged entry.
type Observation struct {
	Timestamp time.Time
	Kind      Kind
}

// TimestampedWindow is a time-indexed observation buffer with expiration and
// per-kind counts, backing the error-rate detector's sliding window of
// (ts, outcome) events (spec.md §4.4b).
type TimestampedWindow struct {
	size  time.Duration
	items []Observation
	head  int // index of the oldest live entry; entries before head are dead but not yet compacted
}

// NewTimestamped creates a TimestampedWindow spanning size.
func NewTimestamped(size time.Duration) *TimestampedWindow {
	return &TimestampedWindow{size: size}
}

// Add appends an observation in O(1) amortized time.
func (t *TimestampedWindow) Add(ts time.Time, kind Kind) {
	t.items = append(t.items, Observation{Timestamp: ts, Kind: kind})
}

// EvictOlderThan drops every entry with Timestamp before cutoff, amortized
// O(1) per eviction since dead entries are only skipped, then compacted once
// the dead prefix grows past half the slice.
func (t *TimestampedWindow) EvictOlderThan(cutoff time.Time) {
	for t.head < len(t.items) && t.items[t.head].Timestamp.Before(cutoff) {
		t.head++
	}
	if t.head > 0 && t.head*2 >= len(t.items) {
		t.items = append(t.items[:0], t.items[t.head:]...)
		t.head = 0
	}
}

// Prune evicts everything older than the configured window size relative to
// now, the convenience form callers use before reading Size/CountsByKind.
func (t *TimestampedWindow) Prune(now time.Time) {
	t.EvictOlderThan(now.Add(-t.size))
}

// Size returns the number of live entries.
func (t *TimestampedWindow) Size() int { return len(t.items) - t.head }

// CountsByKind returns the number of live success/error/rejected entries.
func (t *TimestampedWindow) CountsByKind() (success, errors, rejected int) {
	for _, obs := range t.items[t.head:] {
		switch obs.Kind {
		case KindSuccess:
			success++
		case KindError:
			errors++
		case KindRejected:
			rejected++
		}
	}
	return
}

// Each iterates live observations in insertion order.
func (t *TimestampedWindow) Each(fn func(Observation)) {
	for _, obs := range t.items[t.head:] {
		fn(obs)
	}
}
