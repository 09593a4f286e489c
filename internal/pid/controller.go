// Package pid implements the cross-process adaptive circuit breaker from
// spec.md §4.5: a PID control loop that outputs a continuous rejection
// probability instead of a binary open/closed state, ticked by a background
// task on a fixed window interval.
package pid

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hostward/resiliency/internal/xatomic"
	"github.com/hostward/resiliency/internal/xmem"
	"github.com/hostward/resiliency/internal/xsem"
)

const (
	cellSuccess       = "success"
	cellError         = "error"
	cellRejected      = "rejected"
	cellRejectionRate = "rejection_rate"
	cellIntegral      = "integral"
	cellPrevPValue    = "previous_p_value"
)

// DerivedState is the three-way bucketing of a continuous rejection_rate
// into the discrete vocabulary the rest of the system (logging, event bus)
// understands (spec.md §4.5 step 10).
type DerivedState string

const (
	DerivedClosed        DerivedState = "closed"
	DerivedPartiallyOpen DerivedState = "partially_open"
	DerivedOpen          DerivedState = "open"
)

// Config configures a Controller.
type Config struct {
	Name             string
	WindowSize       time.Duration
	Kp, Ki, Kd       float64
	MaxRejectionRate float64 // defaults to 1.0

	Region xmem.Region
	Sem    xsem.Semaphore // guards the slow-path window tick

	// Rand returns a uniform [0,1) sample; overridable for deterministic
	// tests. Defaults to rand.Float64.
	Rand func() float64

	// OnStateChange is invoked when the zero/non-zero rejection_rate
	// boundary flips, with the newly derived state and current
	// rejection_rate, mirroring the state_change event spec.md §4.5 step 10
	// requires.
	OnStateChange func(state DerivedState, rejectionRate float64)
}

// Controller is the per-resource adaptive controller. Hot-path methods
// (ShouldReject, Acquire) only touch atomic counters and the
// shared rejection_rate cell; the PID math runs exclusively inside Tick,
// serialized across processes by cfg.Sem.
type Controller struct {
	cfg Config

	mu              sync.Mutex // guards quantile, local prevRejectionIsZero
	quantile        *P2Quantile
	prevRejectionIsZero bool

	tickAttemptTimeout time.Duration

	// lastRejectionRate caches the rejection_rate this process last wrote
	// during tickLocked or observed in ShouldReject, so callers that need a synchronous,
	// context-free read — e.g. Resource.InUse's eviction guard — don't have
	// to round-trip cfg.Region.
	lastRejectionRate xatomic.Float64
}

// New constructs a Controller. MaxRejectionRate defaults to 1.0 and Rand to
// rand.Float64 when zero.
func New(cfg Config) *Controller {
	if cfg.MaxRejectionRate == 0 {
		cfg.MaxRejectionRate = 1.0
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	return &Controller{
		cfg:                cfg,
		quantile:           NewP2Quantile(0.9),
		prevRejectionIsZero: true,
		tickAttemptTimeout: 10 * time.Millisecond,
	}
}

// ShouldReject is the hot-path predicate: true iff a freshly drawn uniform
// sample falls under the current (atomically loaded) rejection_rate.
func (c *Controller) ShouldReject(ctx context.Context) (bool, error) {
	rate, err := c.cfg.Region.LoadFloat64(ctx, cellRejectionRate)
	if err != nil {
		return false, fmt.Errorf("pid %s: load rejection_rate: %w", c.cfg.Name, err)
	}
	c.lastRejectionRate.Store(rate)
	return c.cfg.Rand() < rate, nil
}

// LastRejectionRate returns the most recently observed rejection_rate
// without touching cfg.Region: the value from this process's last
// ShouldReject call or tick, whichever is more recent. Used by callers that
// need a synchronous, error-free read, such as Resource.InUse.
func (c *Controller) LastRejectionRate() float64 {
	return c.lastRejectionRate.Load()
}

// Acquire is the per-request hot path from spec.md §4.5: reject immediately
// (recording a rejected outcome) if ShouldReject, else run work and record
// success/error.
func (c *Controller) Acquire(ctx context.Context, work func(ctx context.Context) error) error {
	reject, err := c.ShouldReject(ctx)
	if err != nil {
		return err
	}
	if reject {
		if _, err := c.cfg.Region.FetchAddInt64(ctx, cellRejected, 1); err != nil {
			return err
		}
		return &OpenCircuitError{Name: c.cfg.Name}
	}

	werr := work(ctx)
	if werr != nil {
		if _, err := c.cfg.Region.FetchAddInt64(ctx, cellError, 1); err != nil {
			return errors.Join(werr, err)
		}
		return werr
	}
	if _, err := c.cfg.Region.FetchAddInt64(ctx, cellSuccess, 1); err != nil {
		return err
	}
	return nil
}

// OpenCircuitError is returned by Acquire when ShouldReject draws true.
type OpenCircuitError struct{ Name string }

func (e *OpenCircuitError) Error() string {
	return fmt.Sprintf("pid controller %q is rejecting this request", e.Name)
}

// Tick runs one window update (spec.md §4.5 steps 1-10). It tries to
// acquire cfg.Sem for a short window; if another process currently holds
// it, this tick is skipped for this process, matching "only the process
// that wins the semaphore in a given tick performs the update."
func (c *Controller) Tick(ctx context.Context, dt time.Duration) error {
	ticket, err := c.cfg.Sem.Acquire(ctx, c.tickAttemptTimeout)
	if err != nil {
		if errors.Is(err, xsem.ErrTimeout) {
			return nil // another process is updating this tick
		}
		return fmt.Errorf("pid %s: acquire tick lock: %w", c.cfg.Name, err)
	}
	defer ticket.Release()

	return c.tickLocked(ctx, dt)
}

func (c *Controller) tickLocked(ctx context.Context, dt time.Duration) error {
	region := c.cfg.Region

	successes, err := region.ExchangeInt64(ctx, cellSuccess, 0)
	if err != nil {
		return err
	}
	errs, err := region.ExchangeInt64(ctx, cellError, 0)
	if err != nil {
		return err
	}
	rejected, err := region.ExchangeInt64(ctx, cellRejected, 0)
	if err != nil {
		return err
	}

	total := successes + errs + rejected
	if total < 1 {
		total = 1
	}
	errorRate := float64(errs) / float64(total)

	c.mu.Lock()
	c.quantile.Update(errorRate)
	idealErrorRate := c.quantile.Query()
	c.mu.Unlock()
	if idealErrorRate > 0.1 {
		idealErrorRate = 0.1
	}

	rejectionRate, err := region.LoadFloat64(ctx, cellRejectionRate)
	if err != nil {
		return err
	}
	integral, err := region.LoadFloat64(ctx, cellIntegral)
	if err != nil {
		return err
	}
	prevPValue, err := region.LoadFloat64(ctx, cellPrevPValue)
	if err != nil {
		return err
	}

	pValue := (errorRate - idealErrorRate) - rejectionRate

	dtSeconds := dt.Seconds()
	newIntegral := integral + pValue*dtSeconds
	newIntegral = clamp(newIntegral, -10, 10)

	derivative := 0.0
	if dtSeconds > 0 {
		derivative = (pValue - prevPValue) / dtSeconds
	}

	controlSignal := c.cfg.Kp*pValue + c.cfg.Ki*newIntegral + c.cfg.Kd*derivative
	newRejectionRate := clamp(rejectionRate+controlSignal, 0, 1)

	// Back-calculation anti-windup: if the output saturated and the
	// integral term is pushing further into saturation, undo this step's
	// integral accumulation.
	saturatedHigh := newRejectionRate >= 1 && controlSignal > 0
	saturatedLow := newRejectionRate <= 0 && controlSignal < 0
	if saturatedHigh || saturatedLow {
		newIntegral = integral
	}

	if err := region.StoreFloat64(ctx, cellIntegral, newIntegral); err != nil {
		return err
	}
	if err := region.StoreFloat64(ctx, cellPrevPValue, pValue); err != nil {
		return err
	}
	if err := region.StoreFloat64(ctx, cellRejectionRate, newRejectionRate); err != nil {
		return err
	}
	c.lastRejectionRate.Store(newRejectionRate)

	nowIsZero := newRejectionRate == 0
	c.mu.Lock()
	flipped := nowIsZero != c.prevRejectionIsZero
	c.prevRejectionIsZero = nowIsZero
	c.mu.Unlock()

	if flipped && c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(deriveState(newRejectionRate, c.cfg.MaxRejectionRate), newRejectionRate)
	}

	return nil
}

func deriveState(rejectionRate, maxRejectionRate float64) DerivedState {
	switch {
	case rejectionRate == 0:
		return DerivedClosed
	case rejectionRate >= maxRejectionRate:
		return DerivedOpen
	default:
		return DerivedPartiallyOpen
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Run drives Tick on a ticker sized to cfg.WindowSize until ctx is canceled,
// using an errgroup so callers can wait for clean shutdown (spec.md §5's
// "background cooperative task ... cancelable; on resource destruction the
// task stops before the underlying shared memory is detached").
func (c *Controller) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(c.cfg.WindowSize)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				dt := now.Sub(last)
				last = now
				if err := c.Tick(gctx, dt); err != nil {
					return err
				}
			}
		}
	})
	return g.Wait()
}
