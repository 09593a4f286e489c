package pid

import (
	"context"
	"testing"
	"time"

	"github.com/hostward/resiliency/internal/xmem"
	"github.com/hostward/resiliency/internal/xsem"
)

func newTestController(t *testing.T, kp, ki, kd float64) *Controller {
	t.Helper()
	return New(Config{
		Name:       "test",
		WindowSize: time.Second,
		Kp:         kp,
		Ki:         ki,
		Kd:         kd,
		Region:     xmem.NewLocalRegion(),
		Sem:        xsem.NewLocalSemaphore(1),
		Rand:       func() float64 { return 0 }, // always "reject" when rate > 0
	})
}

func TestTick_RejectionRateStaysWithinBounds(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, 1.0, 0.5, 0.1)

	for i := 0; i < 50; i++ {
		if _, err := c.cfg.Region.FetchAddInt64(ctx, cellError, 8); err != nil {
			t.Fatalf("seed errors: %v", err)
		}
		if _, err := c.cfg.Region.FetchAddInt64(ctx, cellSuccess, 2); err != nil {
			t.Fatalf("seed successes: %v", err)
		}
		if err := c.Tick(ctx, time.Second); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		rate, err := c.cfg.Region.LoadFloat64(ctx, cellRejectionRate)
		if err != nil {
			t.Fatalf("load rejection_rate: %v", err)
		}
		if rate < 0 || rate > 1 {
			t.Fatalf("tick %d: rejection_rate %v out of [0,1]", i, rate)
		}
	}
}

func TestTick_HealthyTrafficDrivesRateToZero(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, 0.8, 0.2, 0.0)

	for i := 0; i < 20; i++ {
		if _, err := c.cfg.Region.FetchAddInt64(ctx, cellSuccess, 100); err != nil {
			t.Fatalf("seed successes: %v", err)
		}
		if err := c.Tick(ctx, time.Second); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	rate, err := c.cfg.Region.LoadFloat64(ctx, cellRejectionRate)
	if err != nil {
		t.Fatalf("load rejection_rate: %v", err)
	}
	if rate > 0.01 {
		t.Fatalf("expected rejection_rate near 0 after sustained healthy traffic, got %v", rate)
	}
}

func TestAcquire_RejectsWhenRejectionRateNonZero(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, 1, 1, 0)

	if err := c.cfg.Region.StoreFloat64(ctx, cellRejectionRate, 0.5); err != nil {
		t.Fatalf("store rejection_rate: %v", err)
	}

	err := c.Acquire(ctx, func(ctx context.Context) error {
		t.Fatal("work should not run when rejecting")
		return nil
	})
	if err == nil {
		t.Fatal("expected OpenCircuitError, got nil")
	}
	if _, ok := err.(*OpenCircuitError); !ok {
		t.Fatalf("got %T, want *OpenCircuitError", err)
	}
}

func TestAcquire_RunsWorkWhenRejectionRateZero(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, 1, 1, 0)
	c.cfg.Rand = func() float64 { return 0.999 }

	ran := false
	err := c.Acquire(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("expected work to run")
	}

	successes, err := c.cfg.Region.LoadInt64(ctx, cellSuccess)
	if err != nil {
		t.Fatalf("load success count: %v", err)
	}
	if successes != 1 {
		t.Fatalf("got %d successes, want 1", successes)
	}
}

func TestDeriveState(t *testing.T) {
	cases := []struct {
		rate, max float64
		want      DerivedState
	}{
		{0, 1, DerivedClosed},
		{0.5, 1, DerivedPartiallyOpen},
		{1, 1, DerivedOpen},
		{0.8, 0.5, DerivedOpen},
	}
	for _, c := range cases {
		if got := deriveState(c.rate, c.max); got != c.want {
			t.Errorf("deriveState(%v, %v) = %v, want %v", c.rate, c.max, got, c.want)
		}
	}
}
