package resiliency

import "github.com/hostward/resiliency/internal/config"

// Disabled reports SEMIAN_DISABLED: when true, every Resource.Acquire
// call should be treated by the caller as an unprotected passthrough
// (spec.md §6). The library itself does not special-case this at the
// Acquire layer since a caller checking Disabled() once at startup and
// choosing not to call Register at all is the idiomatic use, matching the
// teacher's env-gated feature flags.
func Disabled() bool { return config.Disabled() }

// BulkheadDisabled reports SEMIAN_BULKHEAD_DISABLED.
func BulkheadDisabled() bool { return config.BulkheadDisabled() }

// CircuitBreakerDisabled reports SEMIAN_CIRCUIT_BREAKER_DISABLED.
func CircuitBreakerDisabled() bool { return config.CircuitBreakerDisabled() }

// SemaphoresDisabled reports SEMIAN_SEMAPHORES_DISABLED: cross-process
// state falls back to process-local implementations when true.
func SemaphoresDisabled() bool { return config.SemaphoresDisabled() }
