// Package xatomic provides atomic value holders used on the hot paths of the
// local semaphore's worker counter, the local shared-memory region and the
// PID controller, where lock-free reads matter.
package xatomic

import "sync/atomic"

// Int64 is a thin wrapper over atomic.Int64 kept for symmetry with Float64
// and Bool below, and so call sites read uniformly ("xatomic.X") regardless
// of which primitive backs a given counter.
type Int64 struct {
	v atomic.Int64
}

// NewInt64 creates an Int64 initialized to v.
func NewInt64(v int64) *Int64 {
	i := &Int64{}
	i.v.Store(v)
	return i
}

func (i *Int64) Load() int64                { return i.v.Load() }
func (i *Int64) Store(v int64)               { i.v.Store(v) }
func (i *Int64) Add(delta int64) int64       { return i.v.Add(delta) }
func (i *Int64) Swap(v int64) int64          { return i.v.Swap(v) }
func (i *Int64) CompareAndSwap(old, new int64) bool {
	return i.v.CompareAndSwap(old, new)
}

// Float64 stores a float64 behind a bit-cast atomic.Uint64, matching the
// shared-memory layout in spec.md §6 ("f64 rejection_rate" etc. are 64-bit
// atomics under the hood).
type Float64 struct {
	bits atomic.Uint64
}

// NewFloat64 creates a Float64 initialized to v.
func NewFloat64(v float64) *Float64 {
	f := &Float64{}
	f.Store(v)
	return f
}

func (f *Float64) Load() float64 {
	return float64FromBits(f.bits.Load())
}

func (f *Float64) Store(v float64) {
	f.bits.Store(bitsFromFloat64(v))
}

// Add atomically adds delta and returns the new value. Implemented as a CAS
// retry loop since there is no native atomic float add.
func (f *Float64) Add(delta float64) float64 {
	for {
		old := f.bits.Load()
		newV := float64FromBits(old) + delta
		newBits := bitsFromFloat64(newV)
		if f.bits.CompareAndSwap(old, newBits) {
			return newV
		}
	}
}

// CompareAndSwap performs a CAS on the underlying bit pattern.
func (f *Float64) CompareAndSwap(old, new float64) bool {
	return f.bits.CompareAndSwap(bitsFromFloat64(old), bitsFromFloat64(new))
}

// Bool is an atomic boolean flag that can be read without locking.
type Bool struct {
	v atomic.Bool
}

func NewBool(v bool) *Bool { b := &Bool{}; b.v.Store(v); return b }

func (b *Bool) Load() bool           { return b.v.Load() }
func (b *Bool) Store(v bool)         { b.v.Store(v) }
func (b *Bool) Swap(v bool) bool     { return b.v.Swap(v) }
func (b *Bool) CompareAndSwap(old, new bool) bool {
	return b.v.CompareAndSwap(old, new)
}
