package admission

import (
	"context"
	"fmt"
	"time"
)

// Counter is the slice of the record store the controller reads. Headroom is
// always computed from these aggregate queries over durable state; there is
// no second set of counters to drift after a crash or restart.
type Counter interface {
	CountInProgress(ctx context.Context) (int, error)
	CountDispatchedSince(ctx context.Context, since time.Time) (int, error)
}

// Limits are the dispatch rate ceilings.
type Limits struct {
	MaxConcurrentCalls int
	MaxCallsPerHour    int
	MaxCallsPerDay     int
}

// Controller answers "how many calls may start right now".
type Controller struct {
	limits Limits
	window Window
	counts Counter
}

func NewController(limits Limits, window Window, counts Counter) *Controller {
	return &Controller{limits: limits, window: window, counts: counts}
}

// Headroom returns min(concurrency, hourly, daily headroom), or 0 outside
// the calling window. Never negative.
func (c *Controller) Headroom(ctx context.Context, now time.Time) (int, error) {
	if !c.window.Contains(now) {
		return 0, nil
	}

	inProgress, err := c.counts.CountInProgress(ctx)
	if err != nil {
		return 0, fmt.Errorf("admission: count in progress: %w", err)
	}
	lastHour, err := c.counts.CountDispatchedSince(ctx, now.Add(-time.Hour))
	if err != nil {
		return 0, fmt.Errorf("admission: count hourly: %w", err)
	}
	today, err := c.counts.CountDispatchedSince(ctx, c.window.StartOfDay(now))
	if err != nil {
		return 0, fmt.Errorf("admission: count daily: %w", err)
	}

	n := c.limits.MaxConcurrentCalls - inProgress
	if h := c.limits.MaxCallsPerHour - lastHour; h < n {
		n = h
	}
	if d := c.limits.MaxCallsPerDay - today; d < n {
		n = d
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// Window returns the configured calling window.
func (c *Controller) Window() Window { return c.window }
