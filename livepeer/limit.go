package livepeer

import (
	"context"
	"log/slog"
)

// slots limits concurrent in-flight requests to the platform.
type slots chan struct{}

func newSlots(n int) slots {
	if n <= 0 {
		n = 1
	}
	return make(slots, n)
}

// acquire blocks until a slot is free or ctx is done.
func (s slots) acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s slots) release() {
	select {
	case <-s:
	default:
		slog.Warn("livepeer slot release called without corresponding acquire", slog.String("component", "livepeer"))
	}
}

// InFlight returns the number of requests currently holding a slot.
func (c *Client) InFlight() int { return len(c.slots) }

// MaxConcurrency returns the configured request concurrency.
func (c *Client) MaxConcurrency() int { return cap(c.slots) }
