package resiliency

import (
	"context"
	"errors"
	"time"

	"github.com/hostward/resiliency/internal/breaker"
	"github.com/hostward/resiliency/internal/bulkhead"
	"github.com/hostward/resiliency/internal/config"
	"github.com/hostward/resiliency/internal/pid"
	"github.com/hostward/resiliency/internal/xsem"
)

// Resource is a single registered protected call site: an optional
// bulkhead wrapping an optional breaker or adaptive PID controller
// (spec.md §4.7). At least one of the two is present; which is decided once
// at registration and never changes for the resource's lifetime.
type Resource struct {
	name string

	bh      *bulkhead.Bulkhead
	br      *breaker.Breaker
	adapter *pid.Controller

	acquireTimeout time.Duration
}

// Name returns the resource's registered name.
func (r *Resource) Name() string { return r.name }

// Acquire runs work under this resource's protection, per spec.md §4.7's
// composition order: the bulkhead is the outer layer (its timeout raises
// before the breaker is ever consulted), and the breaker or PID controller
// observes only errors raised by work itself, never a bulkhead rejection.
func (r *Resource) Acquire(ctx context.Context, work func(ctx context.Context) error) (err error) {
	protectedWork := func(ctx context.Context) error {
		return r.acquireInner(ctx, work)
	}

	if r.bh == nil || config.BulkheadDisabled() {
		return protectedWork(ctx)
	}

	berr := r.bh.Acquire(ctx, r.acquireTimeout, protectedWork)
	if berr == nil {
		return nil
	}
	if errors.Is(berr, xsem.ErrTimeout) {
		te := NewTimeoutError(r.name, r.acquireTimeout)
		publish(newEvent(EventError, r.name).with("error", te))
		return te
	}
	return berr
}

func (r *Resource) acquireInner(ctx context.Context, work func(ctx context.Context) error) error {
	if config.CircuitBreakerDisabled() || (r.br == nil && r.adapter == nil) {
		return r.runAndPublish(ctx, work)
	}

	if r.adapter != nil {
		err := r.adapter.Acquire(ctx, func(ctx context.Context) error { return r.runAndPublish(ctx, work) })
		var openErr *pid.OpenCircuitError
		if errors.As(err, &openErr) {
			oe := NewOpenCircuitError(r.name, time.Time{})
			publish(newEvent(EventError, r.name).with("error", oe))
			return oe
		}
		return err
	}

	err := r.br.Acquire(ctx, nil, func(ctx context.Context) error { return r.runAndPublish(ctx, work) })
	var openErr *breaker.OpenCircuitError
	if errors.As(err, &openErr) {
		oe := NewOpenCircuitError(r.name, openErr.ResetAt)
		publish(newEvent(EventError, r.name).with("error", oe))
		return oe
	}
	return err
}

// runAndPublish invokes work and publishes the success/error event the
// detector itself does not know how to emit (spec.md §6's event table).
func (r *Resource) runAndPublish(ctx context.Context, work func(ctx context.Context) error) error {
	err := work(ctx)
	if err != nil {
		publish(newEvent(EventError, r.name).with("error", err))
		return err
	}
	publish(newEvent(EventSuccess, r.name))
	return nil
}

// InUse reports whether this resource currently holds non-default
// protective state: an open/half_open breaker, or a non-zero PID
// rejection_rate. The registry's idle-eviction pass (spec.md §4.8) never
// evicts an in-use resource regardless of age.
//
// The PID case reads Controller.LastRejectionRate, a process-local cache
// updated on every ShouldReject/tick rather than a fresh shared-memory
// load: InUse must stay synchronous and error-free to satisfy
// registry.InUseChecker, so it can be briefly stale by up to one window
// tick relative to the authoritative value in xmem.Region.
func (r *Resource) InUse() bool {
	if r.br != nil {
		return r.br.State() != breaker.Closed
	}
	if r.adapter != nil {
		return r.adapter.LastRejectionRate() > 0
	}
	return false
}

// State returns the classic breaker state, or "" for a PID-backed resource.
func (r *Resource) State() breaker.State {
	if r.br == nil {
		return ""
	}
	return r.br.State()
}

// Reset forces a classic breaker back to closed; a no-op for bulkhead-only
// or PID-backed resources.
func (r *Resource) Reset() {
	if r.br != nil {
		r.br.Reset()
	}
}

// Close releases the resource's bulkhead worker registration.
func (r *Resource) Close(ctx context.Context) error {
	if r.bh != nil {
		return r.bh.Close(ctx)
	}
	return nil
}
