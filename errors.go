package resiliency

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode identifies the kind of a BaseError, mirroring spec.md §7.
type ErrorCode string

const (
	ErrTimeout       ErrorCode = "TIMEOUT"
	ErrOpenCircuit   ErrorCode = "OPEN_CIRCUIT"
	ErrResourceBusy  ErrorCode = "RESOURCE_BUSY"
	ErrCircuitOpen   ErrorCode = "CIRCUIT_OPEN"
	ErrSyscall       ErrorCode = "SYSCALL"
	ErrArgument      ErrorCode = "ARGUMENT"
)

// BaseError is the abstract root every resiliency error embeds, per spec.md
// §7's error kind table.
type BaseError struct {
	Code    ErrorCode
	Service string
	Message string
	Cause   error
}

func (e *BaseError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Service, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *BaseError) Unwrap() error { return e.Cause }

func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)
	return ok && e.Code == t.Code
}

// TimeoutError is raised when a bulkhead acquire exceeds its wait budget.
// It propagates to the caller untouched; the breaker never observes it
// (spec.md §7, "Propagation policy").
type TimeoutError struct {
	BaseError
	Timeout time.Duration
}

// NewTimeoutError creates a TimeoutError for a bulkhead wait that exceeded
// timeout against the named resource.
func NewTimeoutError(resource string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{
		BaseError: BaseError{
			Code:    ErrTimeout,
			Service: resource,
			Message: fmt.Sprintf("bulkhead acquire exceeded %s", timeout),
		},
		Timeout: timeout,
	}
}

// OpenCircuitError is raised before work runs when the breaker rejects a
// call, either because the circuit is open or, for PID detectors, because
// the probabilistic rejection check fired.
type OpenCircuitError struct {
	BaseError
	ResetAt time.Time
}

// NewOpenCircuitError creates an OpenCircuitError for the named resource.
func NewOpenCircuitError(resource string, resetAt time.Time) *OpenCircuitError {
	return &OpenCircuitError{
		BaseError: BaseError{
			Code:    ErrOpenCircuit,
			Service: resource,
			Message: "circuit breaker is open",
		},
		ResetAt: resetAt,
	}
}

// ResourceBusyError is the adapter-level wrapper over TimeoutError (spec.md
// §7). Adapters construct it from a TimeoutError to present a vocabulary
// specific to their client library.
type ResourceBusyError struct {
	BaseError
	Underlying *TimeoutError
}

// NewResourceBusyError wraps a TimeoutError as an adapter-facing error.
func NewResourceBusyError(resource string, underlying *TimeoutError) *ResourceBusyError {
	return &ResourceBusyError{
		BaseError: BaseError{
			Code:    ErrResourceBusy,
			Service: resource,
			Message: "resource is busy",
			Cause:   underlying,
		},
		Underlying: underlying,
	}
}

// CircuitOpenError is the adapter-level wrapper over OpenCircuitError.
type CircuitOpenError struct {
	BaseError
	Underlying *OpenCircuitError
}

// NewCircuitOpenError wraps an OpenCircuitError as an adapter-facing error.
func NewCircuitOpenError(resource string, underlying *OpenCircuitError) *CircuitOpenError {
	return &CircuitOpenError{
		BaseError: BaseError{
			Code:    ErrCircuitOpen,
			Service: resource,
			Message: "circuit is open",
			Cause:   underlying,
		},
		Underlying: underlying,
	}
}

// SyscallError wraps a kernel/IPC failure from the cross-process semaphore or
// shared-memory region.
type SyscallError struct {
	BaseError
}

// NewSyscallError creates a SyscallError describing the failed operation.
func NewSyscallError(resource, op string, cause error) *SyscallError {
	return &SyscallError{
		BaseError: BaseError{
			Code:    ErrSyscall,
			Service: resource,
			Message: fmt.Sprintf("ipc operation %q failed", op),
			Cause:   cause,
		},
	}
}

// ArgumentError is raised at registration time for invalid configuration; it
// is never raised at call time (spec.md §7).
type ArgumentError struct {
	BaseError
	Field string
}

// NewArgumentError creates an ArgumentError describing why field is invalid.
func NewArgumentError(resource, field, reason string) *ArgumentError {
	return &ArgumentError{
		BaseError: BaseError{
			Code:    ErrArgument,
			Service: resource,
			Message: fmt.Sprintf("%s: %s", field, reason),
		},
		Field: field,
	}
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	_, ok := asCode(err, ErrTimeout)
	return ok
}

// IsOpenCircuit reports whether err is (or wraps) an OpenCircuitError.
func IsOpenCircuit(err error) bool {
	_, ok := asCode(err, ErrOpenCircuit)
	return ok
}

// IsArgumentError reports whether err is (or wraps) an ArgumentError.
func IsArgumentError(err error) bool {
	_, ok := asCode(err, ErrArgument)
	return ok
}

func asCode(err error, code ErrorCode) (*BaseError, bool) {
	type coder interface{ baseError() *BaseError }
	for err != nil {
		if c, ok := err.(coder); ok {
			if b := c.baseError(); b.Code == code {
				return b, true
			}
		}
		err = errors.Unwrap(err)
	}
	return nil, false
}

func (e *TimeoutError) baseError() *BaseError       { return &e.BaseError }
func (e *OpenCircuitError) baseError() *BaseError   { return &e.BaseError }
func (e *ResourceBusyError) baseError() *BaseError  { return &e.BaseError }
func (e *CircuitOpenError) baseError() *BaseError   { return &e.BaseError }
func (e *SyscallError) baseError() *BaseError       { return &e.BaseError }
func (e *ArgumentError) baseError() *BaseError      { return &e.BaseError }
