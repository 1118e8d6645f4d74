package reactive

import (
	"context"
	"sync"
	"sync/atomic"
)

const (
	cellUnstarted int32 = iota
	cellInFlight
	cellSettled
)

// cacheCell records the single run of a cached source.
type cacheCell[T any] struct {
	state atomic.Int32

	mu      sync.Mutex
	values  []T
	err     error
	changed chan struct{} // closed and replaced on every append or settle
	// waiters are replay contexts to wake on settle.
	waiters []context.Context
}

// Cache runs m at most once, on the first subscription that pulls, and
// replays every recorded signal to all subscribers, including those that
// arrive while the run is in flight. The run is not cancelled when a
// subscriber cancels, so later subscribers still observe its outcome.
func (m Many[T]) Cache() Many[T] {
	cell := &cacheCell[T]{changed: make(chan struct{})}
	return Many[T]{
		kind:   "cache",
		static: true,
		open: func(context.Context) Cursor[T] {
			return &replayCursor[T]{cell: cell, src: m}
		},
	}
}

func (c *cacheCell[T]) start(ctx context.Context, src Many[T]) {
	if !c.state.CompareAndSwap(cellUnstarted, cellInFlight) {
		return
	}
	go c.run(detach(context.WithoutCancel(ctx)), src)
}

func (c *cacheCell[T]) run(ctx context.Context, src Many[T]) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
		c.mu.Lock()
		c.err = err
		c.state.Store(cellSettled)
		c.notifyLocked()
		waiters := c.waiters
		c.waiters = nil
		c.mu.Unlock()
		for _, w := range waiters {
			wake(w)
		}
	}()

	cur := src.cursor(ctx)
	defer cur.Close()
	for {
		v, ok, nextErr := cur.Next(ctx)
		if nextErr != nil || !ok {
			err = nextErr
			return
		}
		c.mu.Lock()
		c.values = append(c.values, v)
		c.notifyLocked()
		c.mu.Unlock()
	}
}

func (c *cacheCell[T]) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

type replayCursor[T any] struct {
	cell    *cacheCell[T]
	src     Many[T]
	i       int
	ctx     context.Context
	waiting bool
}

func (r *replayCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	r.ctx = ctx
	r.cell.start(ctx, r.src)
	for {
		r.cell.mu.Lock()
		if r.i < len(r.cell.values) {
			v := r.cell.values[r.i]
			r.i++
			r.cell.mu.Unlock()
			return v, true, nil
		}
		if r.cell.state.Load() == cellSettled {
			err := r.cell.err
			r.cell.mu.Unlock()
			return zero, false, err
		}
		wait := r.cell.changed
		r.cell.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	}
}

// Done reports whether the recording is settled and fully replayed. While
// the run is in flight it asks to be woken on settle.
func (r *replayCursor[T]) Done() bool {
	r.cell.mu.Lock()
	defer r.cell.mu.Unlock()
	if r.i < len(r.cell.values) {
		return false
	}
	if r.cell.state.Load() == cellSettled {
		return true
	}
	if r.ctx != nil && !r.waiting {
		r.waiting = true
		r.cell.waiters = append(r.cell.waiters, r.ctx)
	}
	return false
}

func (r *replayCursor[T]) Close() error { return nil }
