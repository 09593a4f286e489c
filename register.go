package resiliency

import (
	"context"
	"time"

	"github.com/hostward/resiliency/internal/breaker"
	"github.com/hostward/resiliency/internal/bulkhead"
	"github.com/hostward/resiliency/internal/config"
	"github.com/hostward/resiliency/internal/pid"
	"github.com/hostward/resiliency/internal/xmem"
	"github.com/hostward/resiliency/internal/xsem"
)

// Register validates opts and creates (or replaces) the resource registered
// under name, per spec.md §6's register(name, options) entry point.
func Register(ctx context.Context, name string, opts Options) (*Resource, error) {
	if err := opts.Validate(name); err != nil {
		return nil, err
	}
	registry := ensureRegistry()
	res, err := buildResource(ctx, name, opts)
	if err != nil {
		return nil, err
	}
	registry.Register(name, res)
	return res, nil
}

// RetrieveOrRegister returns the already-registered resource for name, or
// registers and returns a new one built from opts. Re-registering an
// existing name with the same opts is a no-op: the existing resource and
// its accumulated breaker/bulkhead state are preserved (spec.md §8).
func RetrieveOrRegister(ctx context.Context, name string, opts Options) (*Resource, error) {
	if err := opts.Validate(name); err != nil {
		return nil, err
	}
	registry := ensureRegistry()
	var buildErr error
	res, _ := registry.RetrieveOrRegister(name, func() *Resource {
		var r *Resource
		r, buildErr = buildResource(ctx, name, opts)
		return r
	})
	if buildErr != nil {
		return nil, buildErr
	}
	return res, nil
}

// Lookup returns the resource registered under name, if any.
func Lookup(name string) (*Resource, bool) {
	return ensureRegistry().Lookup(name)
}

// Destroy unregisters name. Calling Destroy twice is idempotent.
func Destroy(ctx context.Context, name string) {
	if res, ok := ensureRegistry().Lookup(name); ok {
		_ = res.Close(ctx)
	}
	ensureRegistry().Destroy(name)
}

func buildResource(ctx context.Context, name string, opts Options) (*Resource, error) {
	res := &Resource{name: name, acquireTimeout: opts.Timeout}

	if opts.Bulkhead && !config.BulkheadDisabled() {
		bh, err := buildBulkhead(ctx, name, opts)
		if err != nil {
			return nil, err
		}
		res.bh = bh
	}

	if opts.CircuitBreaker && !config.CircuitBreakerDisabled() {
		if opts.Detector == DetectorAdaptive {
			ctl, err := buildPID(ctx, name, opts)
			if err != nil {
				return nil, err
			}
			res.adapter = ctl
		} else {
			res.br = buildBreaker(name, opts)
		}
	}

	return res, nil
}

func semaphoreFor(ctx context.Context, name string, tickets int) xsem.Semaphore {
	if rdb == nil || config.SemaphoresDisabled() {
		return xsem.NewLocalSemaphore(tickets)
	}
	prefix := "semian"
	if libCfg != nil {
		prefix = libCfg.Redis.Prefix
	}
	sem, err := xsem.NewRedisSemaphore(ctx, rdb, prefix, name, tickets)
	if err != nil {
		return xsem.NewLocalSemaphore(tickets)
	}
	return sem
}

func regionFor(name string) xmem.Region {
	if rdb == nil || config.SemaphoresDisabled() {
		return xmem.NewLocalRegion()
	}
	prefix := "semian"
	if libCfg != nil {
		prefix = libCfg.Redis.Prefix
	}
	return xmem.NewRedisRegion(rdb, prefix, name)
}

func buildBulkhead(ctx context.Context, name string, opts Options) (*bulkhead.Bulkhead, error) {
	startingTickets := opts.Tickets
	if startingTickets == 0 {
		startingTickets = 1 // rewritten immediately in quota mode
	}
	sem := semaphoreFor(ctx, name, startingTickets)

	return bulkhead.New(ctx, sem, bulkhead.Config{
		Name:           name,
		Tickets:        opts.Tickets,
		Quota:          opts.Quota,
		AcquireTimeout: opts.Timeout,
	})
}

func buildPID(ctx context.Context, name string, opts Options) (*pid.Controller, error) {
	kp, ki, kd := opts.Kp, opts.Ki, opts.Kd
	windowSize := opts.WindowSize
	maxRejectionRate := opts.MaxRejectionRate
	if libCfg != nil {
		if kp == 0 && ki == 0 && kd == 0 {
			kp, ki, kd = libCfg.PID.Kp, libCfg.PID.Ki, libCfg.PID.Kd
		}
		if windowSize == 0 {
			windowSize = libCfg.PID.WindowSize
		}
		if maxRejectionRate == 0 {
			maxRejectionRate = libCfg.PID.MaxRejectionRate
		}
	}
	if windowSize == 0 {
		windowSize = time.Second
	}

	region := regionFor(name)
	sem := semaphoreFor(ctx, name+":pid-tick", 1)

	ctl := pid.New(pid.Config{
		Name:             name,
		WindowSize:       windowSize,
		Kp:               kp,
		Ki:               ki,
		Kd:               kd,
		MaxRejectionRate: maxRejectionRate,
		Region:           region,
		Sem:              sem,
		OnStateChange: func(state pid.DerivedState, rejectionRate float64) {
			publish(newEvent(EventStateChange, name).
				with("state", string(state)).
				with("rejection_rate", rejectionRate))
			publish(newEvent(EventAdaptiveUpdate, name).
				with("state", string(state)).
				with("rejection_rate", rejectionRate))
		},
	})
	return ctl, nil
}

func buildBreaker(name string, opts Options) *breaker.Breaker {
	var det breaker.Detector

	switch opts.Detector {
	case DetectorErrorRate:
		rate := breaker.NewErrorRateDetector(breaker.ErrorRateConfig{
			ErrorPercentThreshold: opts.ErrorPercentThreshold,
			TimeWindow:            opts.TimeWindow,
			MinimumRequestVolume:  opts.MinimumRequestVolume,
		})
		if opts.LumpingInterval > 0 {
			det = breaker.NewLumpingDetector(opts.LumpingInterval, rate)
		} else {
			det = rate
		}
	default: // DetectorConsecutive, or CircuitBreaker enabled with no explicit kind
		det = breaker.NewConsecutiveDetector(breaker.ConsecutiveConfig{
			ErrorThreshold:        nonZeroOr(opts.ErrorThreshold, 3),
			ErrorThresholdTimeout: opts.ErrorThresholdTimeout,
			ErrorTimeout:          opts.ErrorTimeout,
			TimeoutEnabled:        opts.ErrorThresholdTimeoutEnabled,
			LumpingInterval:       opts.LumpingInterval,
		})
	}

	if opts.DynamicTimeout {
		det = breaker.NewDynamicBackoffDetector(breaker.DynamicBackoffConfig{Base: det})
	}

	return breaker.New(breaker.Config{
		Name:                    name,
		Detector:                det,
		ErrorTimeout:            opts.ErrorTimeout,
		SuccessThreshold:        nonZeroOr(opts.SuccessThreshold, 1),
		HalfOpenResourceTimeout: opts.HalfOpenResourceTimeout,
		OnStateChange: func(rname string, state breaker.State, metrics map[string]any) {
			evt := newEvent(EventStateChange, rname).with("state", string(state))
			for k, v := range metrics {
				evt = evt.with(k, v)
			}
			publish(evt)
		},
	})
}

func nonZeroOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
