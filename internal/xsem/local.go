package xsem

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hostward/resiliency/internal/xatomic"
)

// LocalSemaphore backs single-process bulkheads. Resizing a
// golang.org/x/sync/semaphore.Weighted isn't supported in place, so Resize
// swaps in a fresh Weighted sized to the new ticket count; each localTicket
// keeps a reference to the Weighted it acquired from and releases into that
// one, so no in-flight holder is ever forcibly evicted, matching spec.md
// §4.1's resize contract.
type LocalSemaphore struct {
	mu          sync.Mutex
	sem         *semaphore.Weighted
	tickets     int
	held        int // permits currently held against sem
	workers     *xatomic.Int64
	closed      bool
}

// NewLocalSemaphore creates a LocalSemaphore with the given initial ticket
// count.
func NewLocalSemaphore(tickets int) *LocalSemaphore {
	return &LocalSemaphore{
		sem:     semaphore.NewWeighted(int64(tickets)),
		tickets: tickets,
		workers: xatomic.NewInt64(0),
	}
}

type localTicket struct {
	sem  *semaphore.Weighted
	s    *LocalSemaphore
	once sync.Once
}

func (t *localTicket) Release() {
	t.once.Do(func() {
		t.sem.Release(1)
		t.s.mu.Lock()
		t.s.held--
		t.s.mu.Unlock()
	})
}

// Acquire blocks up to timeout for a ticket.
func (s *LocalSemaphore) Acquire(ctx context.Context, timeout time.Duration) (Ticket, error) {
	s.mu.Lock()
	sem := s.sem
	s.mu.Unlock()

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := sem.Acquire(waitCtx, 1); err != nil {
		return nil, ErrTimeout
	}

	s.mu.Lock()
	s.held++
	s.mu.Unlock()

	return &localTicket{sem: sem, s: s}, nil
}

// Resize rewrites the ticket slot. In-flight holders keep releasing into the
// semaphore they acquired from; new acquires use the resized one.
func (s *LocalSemaphore) Resize(_ context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sem = semaphore.NewWeighted(int64(n))
	s.tickets = n
	return nil
}

func (s *LocalSemaphore) Tickets(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickets, nil
}

func (s *LocalSemaphore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	avail := s.tickets - s.held
	if avail < 0 {
		avail = 0
	}
	return avail, nil
}

func (s *LocalSemaphore) RegisterWorker(_ context.Context) (string, error) {
	s.workers.Add(1)
	return "local", nil
}

func (s *LocalSemaphore) UnregisterWorker(_ context.Context, _ string) error {
	if s.workers.Add(-1) < 0 {
		s.workers.Store(0)
	}
	return nil
}

func (s *LocalSemaphore) ReapWorkers(_ context.Context) (int, error) {
	return 0, nil
}

func (s *LocalSemaphore) RegisteredWorkers(_ context.Context) (int, error) {
	w := s.workers.Load()
	if w < 1 {
		w = 1
	}
	return int(w), nil
}

func (s *LocalSemaphore) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
