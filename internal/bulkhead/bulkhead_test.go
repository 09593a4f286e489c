package bulkhead

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hostward/resiliency/internal/xsem"
)

func TestNew_RejectsAmbiguousSizing(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, xsem.NewLocalSemaphore(1), Config{Name: "x"}); err != ErrNoSizingMode {
		t.Fatalf("got %v, want ErrNoSizingMode", err)
	}

	if _, err := New(ctx, xsem.NewLocalSemaphore(1), Config{Name: "x", Tickets: 2, Quota: 0.5}); err != ErrBothSizingModes {
		t.Fatalf("got %v, want ErrBothSizingModes", err)
	}
}

func TestNew_QuotaSizing(t *testing.T) {
	ctx := context.Background()
	sem := xsem.NewLocalSemaphore(0)

	b, err := New(ctx, sem, Config{Name: "quota", Quota: 0.5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// RegisteredWorkers is max(1, W); one worker registered -> ceil(0.5*1) = 1.
	tickets, err := b.Tickets(ctx)
	if err != nil {
		t.Fatalf("Tickets: %v", err)
	}
	if tickets != 1 {
		t.Fatalf("got %d tickets, want 1", tickets)
	}
}

func TestAcquire_SerializesBeyondTicketCount(t *testing.T) {
	ctx := context.Background()
	sem := xsem.NewLocalSemaphore(2)
	b, err := New(ctx, sem, Config{Name: "serial", Tickets: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var active int64
	var maxActive int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Acquire(ctx, time.Second, func(ctx context.Context) error {
				n := atomic.AddInt64(&active, 1)
				for {
					cur := atomic.LoadInt64(&maxActive)
					if n <= cur || atomic.CompareAndSwapInt64(&maxActive, cur, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxActive > 2 {
		t.Fatalf("observed %d concurrent holders, want <= 2", maxActive)
	}
}

func TestAcquire_TimesOutWhenSaturated(t *testing.T) {
	ctx := context.Background()
	sem := xsem.NewLocalSemaphore(1)
	b, err := New(ctx, sem, Config{Name: "saturated", Tickets: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	release := make(chan struct{})
	go func() {
		_ = b.Acquire(ctx, time.Second, func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond) // let the holder settle in

	err = b.Acquire(ctx, 20*time.Millisecond, func(ctx context.Context) error { return nil })
	close(release)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
}

func TestDisabled_BypassesLimit(t *testing.T) {
	t.Setenv("SEMIAN_BULKHEAD_DISABLED", "1")

	ctx := context.Background()
	sem := xsem.NewLocalSemaphore(1)
	b, err := New(ctx, sem, Config{Name: "disabled", Tickets: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	entered := make(chan struct{})
	go func() {
		_ = b.Acquire(ctx, time.Second, func(ctx context.Context) error {
			close(entered)
			time.Sleep(50 * time.Millisecond)
			return nil
		})
	}()
	<-entered

	// A second concurrent call must also run immediately, since the
	// disabled bulkhead never touches the semaphore.
	done := make(chan struct{})
	go func() {
		_ = b.Acquire(ctx, time.Second, func(ctx context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(20 * time.Millisecond):
		t.Fatal("disabled bulkhead blocked a second concurrent acquire")
	}
}

func TestGlobalBulkhead_AcquiredFirst(t *testing.T) {
	ctx := context.Background()
	globalSem := xsem.NewLocalSemaphore(1)
	global, err := New(ctx, globalSem, Config{Name: "global", Tickets: 1})
	if err != nil {
		t.Fatalf("New global: %v", err)
	}

	localSem := xsem.NewLocalSemaphore(5)
	local, err := New(ctx, localSem, Config{Name: "local", Tickets: 5, Global: global})
	if err != nil {
		t.Fatalf("New local: %v", err)
	}

	release := make(chan struct{})
	go func() {
		_ = local.Acquire(ctx, time.Second, func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	err = local.Acquire(ctx, 20*time.Millisecond, func(ctx context.Context) error { return nil })
	close(release)
	if err == nil {
		t.Fatal("expected global bulkhead to serialize local acquires, got nil error")
	}
}
