package bulkhead

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"testing"

	"github.com/hostward/resiliency/internal/testutil"
	"github.com/hostward/resiliency/internal/xsem"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_ActiveHoldersNeverExceedTickets(t *testing.T) {
	testutil.RunPropertyTest(t, "active_holders_never_exceed_tickets", prop.ForAll(
		func(tickets int, requests int) bool {
			ctx := context.Background()
			b, err := New(ctx, xsem.NewLocalSemaphore(tickets), Config{Name: "prop", Tickets: tickets})
			if err != nil {
				return false
			}

			var active int64
			var maxActive int64
			var wg sync.WaitGroup
			for i := 0; i < requests; i++ {
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
						time.Sleep(time.Millisecond)
						atomic.AddInt64(&active, -1)
						return nil
					})
				}()
			}
			wg.Wait()

			return atomic.LoadInt64(&maxActive) <= int64(tickets)
		},
		gen.IntRange(1, 8),
		gen.IntRange(1, 40),
	))
}
