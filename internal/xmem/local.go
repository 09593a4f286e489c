package xmem

import (
	"context"
	"sync"

	"github.com/hostward/resiliency/internal/xatomic"
)

// LocalRegion is a single-process Region backed by xatomic cells. It is the
// fallback spec.md §4.5 requires "if shared-memory is unavailable (non-Linux
// or disabled by environment)", and the only Region a single-worker process
// needs.
type LocalRegion struct {
	mu     sync.Mutex
	ints   map[string]*xatomic.Int64
	floats map[string]*xatomic.Float64
}

// NewLocalRegion creates an empty LocalRegion.
func NewLocalRegion() *LocalRegion {
	return &LocalRegion{
		ints:   make(map[string]*xatomic.Int64),
		floats: make(map[string]*xatomic.Float64),
	}
}

func (r *LocalRegion) intCell(cell string) *xatomic.Int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.ints[cell]
	if !ok {
		c = xatomic.NewInt64(0)
		r.ints[cell] = c
	}
	return c
}

func (r *LocalRegion) floatCell(cell string) *xatomic.Float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.floats[cell]
	if !ok {
		c = xatomic.NewFloat64(0)
		r.floats[cell] = c
	}
	return c
}

func (r *LocalRegion) LoadInt64(_ context.Context, cell string) (int64, error) {
	return r.intCell(cell).Load(), nil
}

func (r *LocalRegion) StoreInt64(_ context.Context, cell string, v int64) error {
	r.intCell(cell).Store(v)
	return nil
}

func (r *LocalRegion) FetchAddInt64(_ context.Context, cell string, delta int64) (int64, error) {
	c := r.intCell(cell)
	return c.Add(delta) - delta, nil
}

func (r *LocalRegion) ExchangeInt64(_ context.Context, cell string, v int64) (int64, error) {
	return r.intCell(cell).Swap(v), nil
}

func (r *LocalRegion) LoadFloat64(_ context.Context, cell string) (float64, error) {
	return r.floatCell(cell).Load(), nil
}

func (r *LocalRegion) StoreFloat64(_ context.Context, cell string, v float64) error {
	r.floatCell(cell).Store(v)
	return nil
}

func (r *LocalRegion) Close(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ints = make(map[string]*xatomic.Int64)
	r.floats = make(map[string]*xatomic.Float64)
	return nil
}
