package xsem

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisSemaphore is the cross-process Semaphore. Ticket holders and
// registered workers are members of Redis sorted sets scored by lease
// expiry (unix millis); Acquire reaps expired holders before checking
// capacity and RegisteredWorkers reaps expired workers before counting, so
// a process killed mid-hold (spec.md §4.1, "release
// on crash") frees its ticket the next time any process touches the set,
// within one lease TTL — the Redis analogue of SEM_UNDO.
type RedisSemaphore struct {
	rdb           *redis.Client
	ticketsKey    string // capacity, a plain string key
	heldKey       string // sorted set: holder-id -> lease expiry (ms)
	workersKey    string // sorted set: worker-id -> lease expiry (ms)
	pollInterval  time.Duration
}

// NewRedisSemaphore creates a RedisSemaphore namespaced under prefix:name,
// initializing the ticket slot to tickets if it does not already exist
// (joining an already-created kernel object attaches instead, per
// spec.md §4.2 "Edge policies").
func NewRedisSemaphore(ctx context.Context, rdb *redis.Client, prefix, name string, tickets int) (*RedisSemaphore, error) {
	s := &RedisSemaphore{
		rdb:          rdb,
		ticketsKey:   prefix + ":" + name + ":tickets",
		heldKey:      prefix + ":" + name + ":held",
		workersKey:   prefix + ":" + name + ":workers",
		pollInterval: 20 * time.Millisecond,
	}
	ok, err := rdb.SetNX(ctx, s.ticketsKey, tickets, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("xsem: init tickets: %w", err)
	}
	_ = ok // false means another process already created it; that's fine, we attach.
	return s, nil
}

type redisTicket struct {
	s    *RedisSemaphore
	id   string
	once func()
}

func (t *redisTicket) Release() {
	t.once()
}

// acquireScript atomically reaps expired holders, checks ZCARD(held) <
// capacity, and if so adds the new holder with its lease expiry — all in one
// round trip so concurrent acquirers across processes never both succeed
// past capacity.
var acquireScript = redis.NewScript(`
local ticketsKey = KEYS[1]
local heldKey = KEYS[2]
local now = tonumber(ARGV[1])
local leaseExpiry = tonumber(ARGV[2])
local holderID = ARGV[3]

redis.call("ZREMRANGEBYSCORE", heldKey, "-inf", now)

local capacity = tonumber(redis.call("GET", ticketsKey) or "0")
local count = redis.call("ZCARD", heldKey)
if count >= capacity then
  return 0
end

redis.call("ZADD", heldKey, leaseExpiry, holderID)
return 1
`)

// Acquire polls acquireScript until it succeeds, the context is done, or
// timeout elapses.
func (s *RedisSemaphore) Acquire(ctx context.Context, timeout time.Duration) (Ticket, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	id := uuid.NewString()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		now := time.Now()
		leaseExpiry := now.Add(leaseTTL).UnixMilli()
		res, err := acquireScript.Run(waitCtx, s.rdb, []string{s.ticketsKey, s.heldKey},
			now.UnixMilli(), leaseExpiry, id).Int()
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("xsem: acquire: %w", err)
		}
		if res == 1 {
			return &redisTicket{s: s, id: id, once: sync1(func() {
				s.rdb.ZRem(context.Background(), s.heldKey, id)
			})}, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, ErrTimeout
		case <-ticker.C:
		}
	}
}

func sync1(fn func()) func() {
	var done bool
	return func() {
		if done {
			return
		}
		done = true
		fn()
	}
}

// Resize rewrites the ticket capacity. Existing holders stay in heldKey
// untouched; a shrink simply makes new Acquire calls block until enough
// holders release, never evicting anyone already holding a ticket.
func (s *RedisSemaphore) Resize(ctx context.Context, n int) error {
	if err := s.rdb.Set(ctx, s.ticketsKey, n, 0).Err(); err != nil {
		return fmt.Errorf("xsem: resize: %w", err)
	}
	return nil
}

func (s *RedisSemaphore) Tickets(ctx context.Context) (int, error) {
	v, err := s.rdb.Get(ctx, s.ticketsKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("xsem: tickets: %w", err)
	}
	return v, nil
}

func (s *RedisSemaphore) Count(ctx context.Context) (int, error) {
	now := time.Now().UnixMilli()
	s.rdb.ZRemRangeByScore(ctx, s.heldKey, "-inf", strconv.FormatInt(now, 10))
	held, err := s.rdb.ZCard(ctx, s.heldKey).Result()
	if err != nil {
		return 0, fmt.Errorf("xsem: count: %w", err)
	}
	tickets, err := s.Tickets(ctx)
	if err != nil {
		return 0, err
	}
	avail := tickets - int(held)
	if avail < 0 {
		avail = 0
	}
	return avail, nil
}

func (s *RedisSemaphore) RegisterWorker(ctx context.Context) (string, error) {
	id := uuid.NewString()
	expiry := time.Now().Add(leaseTTL).UnixMilli()
	if err := s.rdb.ZAdd(ctx, s.workersKey, redis.Z{Score: float64(expiry), Member: id}).Err(); err != nil {
		return "", fmt.Errorf("xsem: register worker: %w", err)
	}
	return id, nil
}

func (s *RedisSemaphore) UnregisterWorker(ctx context.Context, workerID string) error {
	if err := s.rdb.ZRem(ctx, s.workersKey, workerID).Err(); err != nil {
		return fmt.Errorf("xsem: unregister worker: %w", err)
	}
	return nil
}

func (s *RedisSemaphore) ReapWorkers(ctx context.Context) (int, error) {
	now := time.Now().UnixMilli()
	n, err := s.rdb.ZRemRangeByScore(ctx, s.workersKey, "-inf", strconv.FormatInt(now, 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("xsem: reap workers: %w", err)
	}
	return int(n), nil
}

func (s *RedisSemaphore) RegisteredWorkers(ctx context.Context) (int, error) {
	if _, err := s.ReapWorkers(ctx); err != nil {
		return 0, err
	}
	n, err := s.rdb.ZCard(ctx, s.workersKey).Result()
	if err != nil {
		return 0, fmt.Errorf("xsem: registered workers: %w", err)
	}
	if n < 1 {
		n = 1
	}
	return int(n), nil
}

func (s *RedisSemaphore) Close(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.ticketsKey, s.heldKey, s.workersKey).Err(); err != nil {
		return fmt.Errorf("xsem: close: %w", err)
	}
	return nil
}
