package resiliency

import (
	"time"
)

// DetectorKind selects the failure detector a circuit-breaker-enabled
// resource uses (spec.md §4.4). Detectors are mutually exclusive per
// resource (spec.md §9, Open Questions); dynamic backoff and lumping are
// layered on top through DynamicTimeout and LumpingInterval.
type DetectorKind string

const (
	// DetectorConsecutive is the classic threshold detector (§4.4a).
	DetectorConsecutive DetectorKind = "consecutive"
	// DetectorErrorRate trips on a rolling error percentage (§4.4b).
	DetectorErrorRate DetectorKind = "error_rate"
	// DetectorAdaptive delegates the entire acquire path to the PID
	// controller (§4.4c / §4.5) instead of the classic closed/open/
	// half_open state machine.
	DetectorAdaptive DetectorKind = "adaptive"
)

// Options configures a single registered resource, mirroring spec.md §6's
// configuration option table.
type Options struct {
	// Bulkhead sizing: exactly one of Tickets or Quota when Bulkhead is
	// true.
	Bulkhead bool
	Tickets  int
	Quota    float64
	Timeout  time.Duration

	// CircuitBreaker enables a classic or adaptive breaker.
	CircuitBreaker bool
	Detector       DetectorKind

	// Consecutive / error-threshold detector (§4.4a).
	ErrorThreshold               int
	ErrorTimeout                 time.Duration
	SuccessThreshold             int
	ErrorThresholdTimeout        time.Duration
	ErrorThresholdTimeoutEnabled bool
	HalfOpenResourceTimeout      time.Duration
	LumpingInterval              time.Duration

	// Dynamic backoff (§4.4d); mutually exclusive with a non-zero
	// ErrorTimeout.
	DynamicTimeout bool

	// Error-rate detector (§4.4b).
	ErrorPercentThreshold float64
	TimeWindow            time.Duration
	MinimumRequestVolume  int

	// PID adaptive controller (§4.5).
	Kp, Ki, Kd       float64
	WindowSize       time.Duration
	InitialErrorRate float64
	MaxRejectionRate float64

	// Exceptions lists adapter-declared error kinds. Register does not read
	// it: every non-nil error from work marks the circuit unless the error
	// itself reports MarksCircuit() == false (see breaker.AdapterError),
	// whatever its Code.
	Exceptions []ErrorCode
}

// Validate enforces spec.md §4.2 and §4.7's structural rules, returning an
// *ArgumentError describing the first violation.
func (o Options) Validate(name string) error {
	if !o.Bulkhead && !o.CircuitBreaker {
		return NewArgumentError(name, "component", "at least one of Bulkhead or CircuitBreaker must be enabled")
	}

	if o.Bulkhead {
		hasTickets := o.Tickets != 0
		hasQuota := o.Quota != 0
		if hasTickets && hasQuota {
			return NewArgumentError(name, "tickets/quota", "exactly one of tickets or quota is accepted, not both")
		}
		if !hasTickets && !hasQuota {
			return NewArgumentError(name, "tickets/quota", "exactly one of tickets or quota is required")
		}
		if hasQuota && (o.Quota <= 0 || o.Quota > 1) {
			return NewArgumentError(name, "quota", "must be in (0, 1]")
		}
	}

	if o.CircuitBreaker {
		if o.DynamicTimeout && o.ErrorTimeout != 0 {
			return NewArgumentError(name, "dynamic_timeout/error_timeout", "dynamic_timeout is mutually exclusive with a fixed error_timeout")
		}
		if o.Detector == DetectorErrorRate && (o.ErrorPercentThreshold <= 0 || o.ErrorPercentThreshold >= 1) {
			return NewArgumentError(name, "error_percent_threshold", "must be in (0, 1) exclusive")
		}
	}

	return nil
}
