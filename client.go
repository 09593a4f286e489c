// Package resiliency is a client-side resiliency toolkit: a bulkhead
// (concurrency cap), a five-variant circuit breaker family, and a
// cross-process adaptive PID rejection controller, unified behind a single
// named Resource registry. It is the Go sibling of Shopify's Semian gem.
package resiliency

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/hostward/resiliency/internal/config"
	"github.com/hostward/resiliency/internal/registry"
)

var (
	initOnce sync.Once
	initErr  error

	rdb     *redis.Client
	libCfg  *config.Config
	reg     *registry.Registry[*Resource]
)

// Init connects the library to Redis (for cross-process semaphores and
// shared PID state) using cfg, or library defaults if cfg is nil. Init is
// idempotent: subsequent calls are no-ops returning the first call's error.
// Resources registered before Init falls back to process-local state
// (spec.md §4.5's "fall back to a process-local thread-safe controller
// when shared memory is unavailable").
func Init(ctx context.Context, cfg *config.Config) error {
	initOnce.Do(func() {
		if cfg == nil {
			cfg = config.Default()
		}
		libCfg = cfg
		reg = registry.New[*Resource](registry.Config{
			Cap:       cfg.Registry.Cap,
			MinLRUAge: cfg.Registry.MinLRUAge,
			OnGC: func(stats registry.GCStats) {
				publish(newEvent(EventLRUHashGC, "").
					with("size", stats.Size).
					with("examined", stats.Examined).
					with("cleared", stats.Cleared).
					with("elapsed", stats.Elapsed))
			},
		})

		if config.SemaphoresDisabled() {
			return
		}

		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			initErr = fmt.Errorf("resiliency: parse redis url: %w", err)
			return
		}
		if cfg.Redis.Password != "" {
			opt.Password = cfg.Redis.Password
		}
		opt.DB = cfg.Redis.DB

		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			initErr = fmt.Errorf("resiliency: redis ping: %w", err)
			return
		}
		rdb = client
	})
	return initErr
}

func ensureRegistry() *registry.Registry[*Resource] {
	if reg == nil {
		libCfg = config.Default()
		reg = registry.New[*Resource](registry.Config{
			Cap:       libCfg.Registry.Cap,
			MinLRUAge: libCfg.Registry.MinLRUAge,
		})
	}
	return reg
}

// AfterFork must be called in a forked child before any resource is used
// again: it clears the process-local registry so every resource is
// re-registered, and is the Go analogue of Semian's fork-safety contract
// (spec.md §4.8). Cross-process state in Redis is untouched.
func AfterFork() {
	if reg != nil {
		reg.AfterFork()
	}
}

// Close releases the Redis connection opened by Init, if any.
func Close() error {
	if rdb != nil {
		return rdb.Close()
	}
	return nil
}
