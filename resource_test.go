package resiliency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hostward/resiliency/internal/breaker"
	"github.com/hostward/resiliency/internal/bulkhead"
	"github.com/hostward/resiliency/internal/pid"
	"github.com/hostward/resiliency/internal/xmem"
	"github.com/hostward/resiliency/internal/xsem"
)

func newTestBulkheadResource(t *testing.T, tickets int) *Resource {
	t.Helper()
	sem := xsem.NewLocalSemaphore(tickets)
	bh, err := bulkhead.New(context.Background(), sem, bulkhead.Config{
		Name:           "svc",
		Tickets:        tickets,
		AcquireTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("bulkhead.New: %v", err)
	}
	return &Resource{name: "svc", bh: bh, acquireTimeout: 50 * time.Millisecond}
}

func newTestBreakerResource(t *testing.T) *Resource {
	t.Helper()
	det := breaker.NewConsecutiveDetector(breaker.ConsecutiveConfig{
		ErrorThreshold:        2,
		ErrorThresholdTimeout: time.Minute,
		ErrorTimeout:          time.Hour,
	})
	br := breaker.New(breaker.Config{
		Name:             "svc",
		Detector:         det,
		ErrorTimeout:     time.Hour,
		SuccessThreshold: 1,
	})
	return &Resource{name: "svc", br: br}
}

func TestResource_BulkheadTimeoutNeverReachesWork(t *testing.T) {
	res := newTestBulkheadResource(t, 1)
	ctx := context.Background()

	release := make(chan struct{})
	go func() {
		_ = res.Acquire(ctx, func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond) // let the first acquire land

	workRan := false
	err := res.Acquire(ctx, func(ctx context.Context) error {
		workRan = true
		return nil
	})
	close(release)

	if workRan {
		t.Fatal("work must not run once the bulkhead has timed out")
	}
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestResource_BreakerOpensOnWorkErrorsAndRejects(t *testing.T) {
	res := newTestBreakerResource(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = res.Acquire(ctx, func(ctx context.Context) error {
			return errors.New("boom")
		})
	}

	if res.State() != breaker.Open {
		t.Fatalf("state = %v, want open after threshold errors", res.State())
	}

	var oe *OpenCircuitError
	err := res.Acquire(ctx, func(ctx context.Context) error {
		t.Fatal("work must not run while the breaker is open")
		return nil
	})
	if !errors.As(err, &oe) {
		t.Fatalf("expected OpenCircuitError, got %v", err)
	}
}

func TestResource_InUseReflectsOpenBreaker(t *testing.T) {
	res := newTestBreakerResource(t)
	ctx := context.Background()
	if res.InUse() {
		t.Fatal("a fresh closed breaker must not be in use")
	}
	for i := 0; i < 2; i++ {
		_ = res.Acquire(ctx, func(ctx context.Context) error { return errors.New("boom") })
	}
	if !res.InUse() {
		t.Fatal("an open breaker must be in use")
	}
}

func newTestPIDResource(t *testing.T) *Resource {
	t.Helper()
	ctl := pid.New(pid.Config{
		Name:       "svc",
		WindowSize: time.Hour, // ticks are driven manually in the test
		Kp:         1, Ki: 0, Kd: 0,
		Region: xmem.NewLocalRegion(),
		Sem:    xsem.NewLocalSemaphore(1),
		Rand:   func() float64 { return 1 }, // never reject, so work always runs
	})
	return &Resource{name: "svc", adapter: ctl}
}

func TestResource_InUseReflectsPIDRejectionRate(t *testing.T) {
	res := newTestPIDResource(t)
	ctx := context.Background()

	if res.InUse() {
		t.Fatal("a fresh PID controller with zero rejection_rate must not be in use")
	}

	// Drive enough error-only ticks that the PID loop raises rejection_rate
	// above zero, then confirm InUse observes it without any further calls
	// into the shared region.
	for i := 0; i < 5; i++ {
		_ = res.Acquire(ctx, func(ctx context.Context) error { return errors.New("boom") })
		if err := res.adapter.Tick(ctx, time.Second); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}

	if res.adapter.LastRejectionRate() <= 0 {
		t.Fatalf("LastRejectionRate() = %v, want > 0 after sustained errors", res.adapter.LastRejectionRate())
	}
	if !res.InUse() {
		t.Fatal("a PID controller with non-zero rejection_rate must be in use (spec.md §4.8)")
	}
}

func TestResource_ResetReturnsToClosed(t *testing.T) {
	res := newTestBreakerResource(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_ = res.Acquire(ctx, func(ctx context.Context) error { return errors.New("boom") })
	}
	res.Reset()
	if res.State() != breaker.Closed {
		t.Fatalf("state = %v, want closed after Reset", res.State())
	}
}
