// Package xsem implements the cross-process counting semaphore from
// spec.md §4.1: a ticket slot bounding concurrent holders and a
// worker-registration slot counting live processes. A SysV semaphore set
// has no cgo-free idiomatic binding in this corpus, so the cross-process
// variant (RedisSemaphore) keeps ticket and worker accounting in Redis sorted
// sets scored by lease expiry, and a held ticket that is never released
// (holder crashed) simply ages out of the set — the functional equivalent
// of kernel SEM_UNDO. LocalSemaphore backs single-process use with
// golang.org/x/sync/semaphore's weighted semaphore.
package xsem

import (
	"context"
	"time"
)

// Semaphore is the cross-process counting semaphore contract bulkhead.
// Bulkhead is built on.
type Semaphore interface {
	// Acquire blocks up to timeout for a ticket. Returns ErrTimeout on
	// expiration; the caller translates it into resiliency's TimeoutError.
	Acquire(ctx context.Context, timeout time.Duration) (Ticket, error)

	// Resize rewrites the ticket slot to n, net-preserving in-flight
	// holders per spec.md §4.1 ("resizing ... atomically adjusts the
	// ticket slot respecting existing holders").
	Resize(ctx context.Context, n int) error

	// Tickets returns the current ticket capacity.
	Tickets(ctx context.Context) (int, error)

	// Count returns the number of currently available (unheld) tickets.
	Count(ctx context.Context) (int, error)

	// RegisterWorker increments the registered-worker counter and returns
	// an id used to unregister on clean shutdown; crashed workers are
	// reaped lazily by ReapWorkers.
	RegisterWorker(ctx context.Context) (workerID string, err error)

	// UnregisterWorker decrements the registered-worker counter.
	UnregisterWorker(ctx context.Context, workerID string) error

	// ReapWorkers removes worker registrations whose lease has expired and
	// returns the number reaped, satisfying spec.md §3's "dead workers must
	// eventually be reaped to avoid permanent over-registration".
	ReapWorkers(ctx context.Context) (int, error)

	// RegisteredWorkers returns max(1, live registered workers), the W term
	// in spec.md §4.2's quota formula.
	RegisteredWorkers(ctx context.Context) (int, error)

	// Close removes the underlying kernel/IPC objects (spec.md §4.1).
	Close(ctx context.Context) error
}

// Ticket represents one held permit; Release returns it. Release never
// blocks and is safe to call at most once.
type Ticket interface {
	Release()
}

// ErrTimeout is returned by Acquire when the wait exceeds the caller's
// timeout budget.
var ErrTimeout = &timeoutSentinel{}

type timeoutSentinel struct{}

func (*timeoutSentinel) Error() string { return "xsem: acquire timed out" }

// leaseTTL bounds how long a held ticket or worker registration survives
// without a liveness refresh before the reaper treats its holder as dead —
// the RedisSemaphore analogue of SEM_UNDO.
const leaseTTL = 30 * time.Second
