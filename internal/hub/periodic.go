package hub

import (
	"context"
	"time"
)

// runEvery invokes fn at the given cadence until ctx is cancelled. fn
// may return a positive duration to override the delay before its next
// run (the totals logger uses this to back off while the engine is not
// ready); returning zero keeps the configured interval.
func runEvery(ctx context.Context, interval time.Duration, fn func(ctx context.Context) time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := fn(ctx)
		if next <= 0 {
			next = interval
		}
		timer.Reset(next)
	}
}
