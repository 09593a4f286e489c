// Package bulkhead caps concurrency for a resource (spec.md §4.2), using an
// xsem.Semaphore for the ticket accounting. It is a thin policy layer over
// xsem: sizing (static vs. quota), worker-registration bookkeeping, the
// SEMIAN_BULKHEAD_DISABLED no-op escape hatch, and an optional second-level
// global bulkhead acquired before the per-resource one.
package bulkhead

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/hostward/resiliency/internal/xsem"
)

// ErrBothSizingModes / ErrNoSizingMode are validation failures from New,
// surfacing spec.md §4.2's "exactly one of tickets or quota is accepted;
// neither or both is an error".
var (
	ErrBothSizingModes = fmt.Errorf("bulkhead: specify exactly one of Tickets or Quota, not both")
	ErrNoSizingMode    = fmt.Errorf("bulkhead: specify exactly one of Tickets or Quota")
)

// Config configures a Bulkhead.
type Config struct {
	Name string

	// Exactly one of Tickets (static) or Quota (quota, 0 < Quota <= 1) must
	// be set.
	Tickets int
	Quota   float64

	// AcquireTimeout is used by Acquire when the caller passes timeout <= 0.
	AcquireTimeout time.Duration

	// Global, when non-nil, is a second-level bulkhead acquired before the
	// per-resource semaphore (spec.md §4.2, "global bulkhead").
	Global *Bulkhead

	// DisabledEnvVar overrides the environment variable checked for the
	// no-op escape hatch; defaults to SEMIAN_BULKHEAD_DISABLED.
	DisabledEnvVar string
}

// Bulkhead caps concurrency for one resource.
type Bulkhead struct {
	name           string
	sem            xsem.Semaphore
	quota          float64 // 0 means static sizing
	acquireTimeout time.Duration
	global         *Bulkhead
	disabledEnv    string
	workerID       string
}

// New constructs a Bulkhead backed by sem. Construction registers a worker
// against sem and, in quota mode, recomputes and rewrites the ticket slot to
// ceil(quota * registered_workers) (spec.md §4.2, "construction recomputes
// tickets and rewrites the ticket slot").
func New(ctx context.Context, sem xsem.Semaphore, cfg Config) (*Bulkhead, error) {
	hasTickets := cfg.Tickets != 0
	hasQuota := cfg.Quota != 0
	if hasTickets && hasQuota {
		return nil, ErrBothSizingModes
	}
	if !hasTickets && !hasQuota {
		return nil, ErrNoSizingMode
	}
	if hasQuota && (cfg.Quota <= 0 || cfg.Quota > 1) {
		return nil, fmt.Errorf("bulkhead: quota must be in (0, 1], got %v", cfg.Quota)
	}

	disabledEnv := cfg.DisabledEnvVar
	if disabledEnv == "" {
		disabledEnv = "SEMIAN_BULKHEAD_DISABLED"
	}

	b := &Bulkhead{
		name:           cfg.Name,
		sem:            sem,
		acquireTimeout: cfg.AcquireTimeout,
		global:         cfg.Global,
		disabledEnv:    disabledEnv,
	}
	if hasQuota {
		b.quota = cfg.Quota
	}

	workerID, err := sem.RegisterWorker(ctx)
	if err != nil {
		return nil, fmt.Errorf("bulkhead %s: register worker: %w", cfg.Name, err)
	}
	b.workerID = workerID

	if hasTickets {
		if err := sem.Resize(ctx, cfg.Tickets); err != nil {
			return nil, fmt.Errorf("bulkhead %s: size tickets: %w", cfg.Name, err)
		}
	} else if err := b.rewriteQuota(ctx); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Bulkhead) rewriteQuota(ctx context.Context) error {
	workers, err := b.sem.RegisteredWorkers(ctx)
	if err != nil {
		return fmt.Errorf("bulkhead %s: registered workers: %w", b.name, err)
	}
	tickets := int(math.Ceil(b.quota * float64(workers)))
	if tickets < 1 {
		tickets = 1
	}
	if err := b.sem.Resize(ctx, tickets); err != nil {
		return fmt.Errorf("bulkhead %s: resize to quota: %w", b.name, err)
	}
	return nil
}

// disabled reports whether the no-op escape hatch is active.
func (b *Bulkhead) disabled() bool {
	return os.Getenv(b.disabledEnv) != ""
}

// Acquire runs work while holding a ticket (and, if configured, the global
// bulkhead's ticket first). timeout <= 0 uses the configured
// AcquireTimeout. When the bulkhead is disabled via environment variable,
// work runs immediately with no concurrency limit.
func (b *Bulkhead) Acquire(ctx context.Context, timeout time.Duration, work func(ctx context.Context) error) error {
	if b.disabled() {
		return work(ctx)
	}
	if timeout <= 0 {
		timeout = b.acquireTimeout
	}

	if b.global != nil {
		var globalErr error
		err := b.global.Acquire(ctx, timeout, func(ctx context.Context) error {
			globalErr = b.acquireLocal(ctx, timeout, work)
			return nil
		})
		if err != nil {
			return err
		}
		return globalErr
	}

	return b.acquireLocal(ctx, timeout, work)
}

func (b *Bulkhead) acquireLocal(ctx context.Context, timeout time.Duration, work func(ctx context.Context) error) error {
	ticket, err := b.sem.Acquire(ctx, timeout)
	if err != nil {
		return fmt.Errorf("bulkhead %s: %w", b.name, err)
	}
	defer ticket.Release()
	return work(ctx)
}

// RegisteredWorkers returns max(1, live registered workers).
func (b *Bulkhead) RegisteredWorkers(ctx context.Context) (int, error) {
	return b.sem.RegisteredWorkers(ctx)
}

// Tickets returns the current ticket capacity.
func (b *Bulkhead) Tickets(ctx context.Context) (int, error) {
	return b.sem.Tickets(ctx)
}

// Count returns the number of currently available (unheld) tickets.
func (b *Bulkhead) Count(ctx context.Context) (int, error) {
	return b.sem.Count(ctx)
}

// ResetRegisteredWorkers unregisters this bulkhead's worker and re-registers
// a fresh one, then, in quota mode, recomputes tickets. Intended for tests
// and operator-triggered recovery after a worker-count drift.
func (b *Bulkhead) ResetRegisteredWorkers(ctx context.Context) error {
	if err := b.sem.UnregisterWorker(ctx, b.workerID); err != nil {
		return err
	}
	workerID, err := b.sem.RegisterWorker(ctx)
	if err != nil {
		return err
	}
	b.workerID = workerID
	if b.quota != 0 {
		return b.rewriteQuota(ctx)
	}
	return nil
}

// Close unregisters this bulkhead's worker from the underlying semaphore.
func (b *Bulkhead) Close(ctx context.Context) error {
	return b.sem.UnregisterWorker(ctx, b.workerID)
}
