// Package xmem implements the "atomic shared-memory region" primitive from
// spec.md §2: a host-wide byte region attached by key, offering atomic
// int64/float64 load/store/exchange/fetch-add. A real SysV shared-memory
// segment has no idiomatic cgo-free binding in this corpus's dependency
// surface, so the cross-process implementation is backed by Redis — the
// same substrate the teacher (platform/resilience-service/internal/infra/
// redis) already uses to share circuit and rate-limit state across
// processes. A LocalRegion variant backs single-process use and the
// non-Linux/disabled fallback spec.md §4.5 calls for.
package xmem

import "context"

// Region is a named collection of atomic int64 and float64 cells. All
// methods must be safe for concurrent use by many goroutines, and — for
// cross-process Region implementations — by many OS processes.
type Region interface {
	// LoadInt64 / StoreInt64 / FetchAddInt64 / ExchangeInt64 operate on the
	// named int64 cell, created lazily at zero on first use.
	LoadInt64(ctx context.Context, cell string) (int64, error)
	StoreInt64(ctx context.Context, cell string, v int64) error
	FetchAddInt64(ctx context.Context, cell string, delta int64) (int64, error)
	ExchangeInt64(ctx context.Context, cell string, v int64) (int64, error)

	// LoadFloat64 / StoreFloat64 operate on the named float64 cell.
	LoadFloat64(ctx context.Context, cell string) (float64, error)
	StoreFloat64(ctx context.Context, cell string, v float64) error

	// Close releases any resources the region holds (for Destroy semantics).
	Close(ctx context.Context) error
}
