package registry

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// backoff calculates an exponential backoff. This is used to
// calculate wait times between push attempts.
type backoff struct {
	initial time.Duration
	max     time.Duration

	current time.Duration
}

// Failure should be called each time an attempt fails.
func (b *backoff) Failure() {
	b.current *= 2
	if b.current == 0 {
		b.current = b.initial
	} else if b.current > b.max {
		b.current = b.max
	}
}

// Wait how long to sleep before the next attempt.
func (b *backoff) Wait() time.Duration {
	return b.current
}

// sleep waits out the backoff on the given clock, or returns early
// with the context's error if it is cancelled first.
func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}
