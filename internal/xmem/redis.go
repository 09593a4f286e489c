package xmem

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisRegion is the cross-process Region backing the shared PID controller
// (spec.md §4.5, "Cross-process shared controller"); the bulkhead's
// worker/ticket counters live in xsem.RedisSemaphore instead. Each cell is a Redis key under a deterministic
// prefix keyed by the resource name, matching the kernel-IPC-key idea in
// spec.md §6 without requiring a real IPC namespace.
type RedisRegion struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisRegion creates a RedisRegion whose keys are namespaced under
// "<prefix>:<name>:<cell>".
func NewRedisRegion(rdb *redis.Client, prefix, name string) *RedisRegion {
	return &RedisRegion{rdb: rdb, prefix: prefix + ":" + name + ":"}
}

func (r *RedisRegion) key(cell string) string { return r.prefix + cell }

func (r *RedisRegion) LoadInt64(ctx context.Context, cell string) (int64, error) {
	v, err := r.rdb.Get(ctx, r.key(cell)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("xmem: load int64 %s: %w", cell, err)
	}
	return v, nil
}

func (r *RedisRegion) StoreInt64(ctx context.Context, cell string, v int64) error {
	if err := r.rdb.Set(ctx, r.key(cell), v, 0).Err(); err != nil {
		return fmt.Errorf("xmem: store int64 %s: %w", cell, err)
	}
	return nil
}

func (r *RedisRegion) FetchAddInt64(ctx context.Context, cell string, delta int64) (int64, error) {
	// INCRBY returns the value *after* the increment; the fetch-add contract
	// returns the value *before*, so subtract delta back out.
	after, err := r.rdb.IncrBy(ctx, r.key(cell), delta).Result()
	if err != nil {
		return 0, fmt.Errorf("xmem: fetch-add int64 %s: %w", cell, err)
	}
	return after - delta, nil
}

// exchangeScript atomically sets key to ARGV[1] and returns its previous
// value (0 if absent), giving ExchangeInt64 true atomicity across processes.
var exchangeScript = redis.NewScript(`
local prev = redis.call("GET", KEYS[1])
redis.call("SET", KEYS[1], ARGV[1])
if prev == false then
  return "0"
end
return prev
`)

func (r *RedisRegion) ExchangeInt64(ctx context.Context, cell string, v int64) (int64, error) {
	res, err := exchangeScript.Run(ctx, r.rdb, []string{r.key(cell)}, strconv.FormatInt(v, 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("xmem: exchange int64 %s: %w", cell, err)
	}
	prev, ok := res.(string)
	if !ok {
		return 0, fmt.Errorf("xmem: exchange int64 %s: unexpected reply %T", cell, res)
	}
	n, err := strconv.ParseInt(prev, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("xmem: exchange int64 %s: parse reply: %w", cell, err)
	}
	return n, nil
}

func (r *RedisRegion) LoadFloat64(ctx context.Context, cell string) (float64, error) {
	v, err := r.rdb.Get(ctx, r.key(cell)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("xmem: load float64 %s: %w", cell, err)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("xmem: load float64 %s: parse: %w", cell, err)
	}
	return f, nil
}

func (r *RedisRegion) StoreFloat64(ctx context.Context, cell string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("xmem: store float64 %s: non-finite value", cell)
	}
	if err := r.rdb.Set(ctx, r.key(cell), strconv.FormatFloat(v, 'g', -1, 64), 0).Err(); err != nil {
		return fmt.Errorf("xmem: store float64 %s: %w", cell, err)
	}
	return nil
}

func (r *RedisRegion) Close(ctx context.Context) error {
	keys, err := r.rdb.Keys(ctx, r.prefix+"*").Result()
	if err != nil {
		return fmt.Errorf("xmem: close scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("xmem: close del: %w", err)
	}
	return nil
}
