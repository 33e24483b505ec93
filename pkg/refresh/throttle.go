package refresh

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle runs fn at most once per interval. Triggers that arrive while a
// call is pending or the limiter is cooling down collapse into one call.
type Throttle struct {
	limiter *rate.Limiter
	pending chan struct{}
	fn      func(ctx context.Context)
}

func NewThrottle(interval time.Duration, fn func(ctx context.Context)) *Throttle {
	return &Throttle{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		pending: make(chan struct{}, 1),
		fn:      fn,
	}
}

// Trigger requests a call. Never blocks.
func (t *Throttle) Trigger() {
	select {
	case t.pending <- struct{}{}:
	default:
		// already pending
	}
}

// Run executes pending calls until ctx is cancelled. A call that is waiting
// on the limiter when ctx ends is dropped.
func (t *Throttle) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.pending:
		}

		if err := t.limiter.Wait(ctx); err != nil {
			return
		}

		// triggers that landed during the wait are served by this call
		select {
		case <-t.pending:
		default:
		}

		t.fn(ctx)
	}
}
