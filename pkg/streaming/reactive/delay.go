package reactive

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vnykmshr/goflux/pkg/common/validation"
	"github.com/vnykmshr/goflux/pkg/scheduling/clock"
	"github.com/vnykmshr/goflux/pkg/scheduling/scheduler"
)

// DelayElements waits d before emitting each value, timing the wait on s's
// clock. Values are delivered on s in order.
func (m Many[T]) DelayElements(d time.Duration, s scheduler.Scheduler) Many[T] {
	if err := validation.ValidateNonNegativeDuration("reactive", "delay", d); err != nil {
		return ErrorMany[T](err)
	}
	if err := validation.ValidateNotNil("reactive", "scheduler", s); err != nil {
		return ErrorMany[T](err)
	}
	return Many[T]{
		kind:       "delayElements",
		on:         s,
		subscribed: m.subscribed,
		open: func(ctx context.Context) Cursor[T] {
			return &delayCursor[T]{up: m.cursor(ctx), d: d, clock: s.Clock()}
		},
	}
}

type delayCursor[T any] struct {
	up    Cursor[T]
	d     time.Duration
	clock clock.Clock
}

func (c *delayCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	v, ok, err := c.up.Next(ctx)
	if err != nil || !ok {
		return zero, false, err
	}
	if err := sleep(ctx, c.clock, c.d); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (c *delayCursor[T]) Done() bool   { return isDone(c.up) }
func (c *delayCursor[T]) Close() error { return c.up.Close() }

func sleep(ctx context.Context, c clock.Clock, d time.Duration) error {
	t := c.NewTimer(d)
	select {
	case <-t.C():
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}

// Interval emits 0, 1, 2, ... with period between values, measured on s's
// clock. It never completes; bound it with Take or cancel the subscription.
func Interval(period time.Duration, s scheduler.Scheduler) Many[int64] {
	if err := validation.ValidatePositive("reactive", "period", int(period)); err != nil {
		return ErrorMany[int64](err)
	}
	if err := validation.ValidateNotNil("reactive", "scheduler", s); err != nil {
		return ErrorMany[int64](err)
	}
	return Many[int64]{
		kind: "interval",
		on:   s,
		open: func(context.Context) Cursor[int64] {
			var n int64
			return CursorFunc[int64](func(ctx context.Context) (int64, bool, error) {
				if err := sleep(ctx, s.Clock(), period); err != nil {
					return 0, false, err
				}
				n++
				return n - 1, true, nil
			})
		},
	}
}

// Cron emits the activation time each time the cron expression fires on s's
// clock. Expressions accept an optional seconds field and descriptors such
// as "@every 5s". It never completes.
func Cron(expr string, s scheduler.Scheduler) Many[time.Time] {
	sched, err := scheduler.ParseCron(expr)
	if err != nil {
		return ErrorMany[time.Time](err)
	}
	if err := validation.ValidateNotNil("reactive", "scheduler", s); err != nil {
		return ErrorMany[time.Time](err)
	}
	return Many[time.Time]{
		kind: "cron",
		on:   s,
		open: func(context.Context) Cursor[time.Time] {
			return &cronCursor{sched: sched, clock: s.Clock()}
		},
	}
}

type cronCursor struct {
	sched cron.Schedule
	clock clock.Clock
	last  time.Time
}

func (c *cronCursor) Next(ctx context.Context) (time.Time, bool, error) {
	now := c.clock.Now()
	if c.last.After(now) {
		now = c.last
	}
	next := c.sched.Next(now)
	if err := sleep(ctx, c.clock, next.Sub(c.clock.Now())); err != nil {
		return time.Time{}, false, err
	}
	c.last = next
	return next, true, nil
}

func (c *cronCursor) Close() error { return nil }
