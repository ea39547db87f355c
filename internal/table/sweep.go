package table

import (
	"context"

	"github.com/volatileimg/tilecache/internal/shared/rate"
)

// RunSweep starts the background weak-tier sweep, paced at ratePerSec ticks
// per second via the same leaky-bucket jitter used elsewhere in this
// codebase to pace bursty background work off a shared lock. Each tick runs
// one sweepOnce pass across every shard. Stop with the returned
// context.CancelFunc, or by cancelling ctx.
func (t *Table[K, V]) RunSweep(ctx context.Context, ratePerSec int) context.CancelFunc {
	sweepCtx, cancel := context.WithCancel(ctx)
	jitter := rate.NewJitter(sweepCtx, ratePerSec)
	t.stopSweep = cancel

	go func() {
		for {
			select {
			case <-sweepCtx.Done():
				return
			case _, ok := <-jitter.Chan():
				if !ok {
					return
				}
				t.sweepOnce()
			}
		}
	}()

	return cancel
}
