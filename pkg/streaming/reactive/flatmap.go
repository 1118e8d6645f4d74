package reactive

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vnykmshr/goflux/pkg/common/validation"
	"github.com/vnykmshr/goflux/pkg/scheduling/concurrency"
)

// outerIdx tags signals from the outer source of a flatMap.
const outerIdx = -1

// FlatMap maps every value of m to an inner sequence and merges the inner
// sequences as they emit, with at most maxConcurrency of them running at
// once. Values from different inners interleave in arrival order. The
// first error from m, from f, or from any inner terminates the result and
// cancels everything else.
func FlatMap[T, R any](m Many[T], f func(T) Many[R], maxConcurrency int, opts ...Option) Many[R] {
	if err := validation.ValidatePositive("reactive", "concurrency", maxConcurrency); err != nil {
		return ErrorMany[R](err)
	}
	o := buildOptions(opts)
	return Many[R]{
		kind: "flatMap",
		open: func(ctx context.Context) Cursor[R] {
			return newMergeCursor(ctx, m, f, maxConcurrency, o.prefetch)
		},
	}
}

type mergeCursor[T, R any] struct {
	cancel    context.CancelFunc
	out       chan tagged[R]
	head      *tagged[R] // received by Done, not yet returned
	active    atomic.Int64
	outerDone bool
	wg        sync.WaitGroup
	closed    bool
}

func newMergeCursor[T, R any](ctx context.Context, m Many[T], f func(T) Many[R], maxConcurrency, prefetch int) *mergeCursor[T, R] {
	ctx, cancel := context.WithCancel(ctx)
	c := &mergeCursor[T, R]{
		cancel: cancel,
		out:    make(chan tagged[R], maxConcurrency*prefetch),
	}
	c.wg.Add(1)
	go c.outer(ctx, m, f, concurrency.MustNew(maxConcurrency))
	return c
}

func (c *mergeCursor[T, R]) outer(ctx context.Context, m Many[T], f func(T) Many[R], slots concurrency.Limiter) {
	defer wake(ctx)
	defer c.wg.Done()

	cur := m.cursor(detach(ctx))
	defer cur.Close()

	send := func(it item[R]) {
		select {
		case c.out <- tagged[R]{idx: outerIdx, item: it}:
		case <-ctx.Done():
		}
	}

	for {
		if err := slots.Wait(ctx); err != nil {
			return
		}
		v, ok, err := cur.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			send(item[R]{err: err, done: true})
			return
		}
		if !ok {
			send(item[R]{done: true})
			return
		}
		inner, err := call("flatMap", func() (Many[R], error) { return f(v), nil })
		if err != nil {
			send(item[R]{err: err, done: true})
			return
		}

		c.active.Add(1)
		c.wg.Add(1)
		go func() {
			defer wake(ctx)
			defer c.wg.Done()
			defer slots.Release()
			forward(ctx, 0, inner, nil, c.out)
		}()
	}
}

func (c *mergeCursor[T, R]) Next(ctx context.Context) (R, bool, error) {
	var zero R
	for {
		if c.closed {
			return zero, false, nil
		}
		if c.outerDone && c.active.Load() == 0 {
			c.Close()
			return zero, false, nil
		}

		var t tagged[R]
		if c.head != nil {
			t, c.head = *c.head, nil
		} else {
			select {
			case t = <-c.out:
			case <-ctx.Done():
				return zero, false, ctx.Err()
			}
		}
		if t.err != nil {
			c.Close()
			return zero, false, t.err
		}
		if !t.done {
			return t.v, true, nil
		}
		c.markDone(t)
	}
}

func (c *mergeCursor[T, R]) markDone(t tagged[R]) {
	if t.idx == outerIdx {
		c.outerDone = true
	} else {
		c.active.Add(-1)
	}
}

// Done consumes completion markers that already arrived and reports
// whether the merge ended or failed.
func (c *mergeCursor[T, R]) Done() bool {
	for c.head == nil && !c.closed {
		if c.outerDone && c.active.Load() == 0 {
			return true
		}
		select {
		case t := <-c.out:
			if t.err != nil || !t.done {
				c.head = &t
			} else {
				c.markDone(t)
			}
		default:
			return false
		}
	}
	return c.closed || c.head.err != nil
}

func (c *mergeCursor[T, R]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	c.wg.Wait()
	return nil
}

// FlatMapSequential runs up to maxConcurrency inner sequences eagerly like
// FlatMap but emits their values in the order of the outer values that
// produced them. Values of later inners are buffered, up to the prefetch
// per inner, until the earlier ones complete. Errors are delivered in the
// same order.
func FlatMapSequential[T, R any](m Many[T], f func(T) Many[R], maxConcurrency int, opts ...Option) Many[R] {
	if err := validation.ValidatePositive("reactive", "concurrency", maxConcurrency); err != nil {
		return ErrorMany[R](err)
	}
	o := buildOptions(opts)
	return Many[R]{
		kind: "flatMapSequential",
		open: func(ctx context.Context) Cursor[R] {
			return newSequentialCursor(ctx, m, f, maxConcurrency, o.prefetch)
		},
	}
}

type sequentialCursor[T, R any] struct {
	cancel context.CancelFunc
	lanes  chan chan tagged[R]
	lane   chan tagged[R]
	head   *tagged[R] // received from lane by Done, not yet returned
	ended  bool       // lanes closed
	wg     sync.WaitGroup
	closed bool
}

func newSequentialCursor[T, R any](ctx context.Context, m Many[T], f func(T) Many[R], maxConcurrency, prefetch int) *sequentialCursor[T, R] {
	ctx, cancel := context.WithCancel(ctx)
	c := &sequentialCursor[T, R]{
		cancel: cancel,
		lanes:  make(chan chan tagged[R], maxConcurrency),
	}
	c.wg.Add(1)
	go c.outer(ctx, m, f, concurrency.MustNew(maxConcurrency), prefetch)
	return c
}

func (c *sequentialCursor[T, R]) outer(ctx context.Context, m Many[T], f func(T) Many[R], slots concurrency.Limiter, prefetch int) {
	defer wake(ctx)
	defer c.wg.Done()
	defer close(c.lanes)

	cur := m.cursor(detach(ctx))
	defer cur.Close()

	fail := func(err error) {
		lane := make(chan tagged[R], 1)
		lane <- tagged[R]{item: item[R]{err: err, done: true}}
		select {
		case c.lanes <- lane:
		case <-ctx.Done():
		}
	}

	for {
		if err := slots.Wait(ctx); err != nil {
			return
		}
		v, ok, err := cur.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			fail(err)
			return
		}
		if !ok {
			return
		}
		inner, err := call("flatMapSequential", func() (Many[R], error) { return f(v), nil })
		if err != nil {
			fail(err)
			return
		}

		lane := make(chan tagged[R], prefetch+1)
		select {
		case c.lanes <- lane:
		case <-ctx.Done():
			return
		}
		c.wg.Add(1)
		go func() {
			defer wake(ctx)
			defer c.wg.Done()
			defer slots.Release()
			forward(ctx, 0, inner, nil, lane)
		}()
	}
}

func (c *sequentialCursor[T, R]) Next(ctx context.Context) (R, bool, error) {
	var zero R
	for {
		if c.closed {
			return zero, false, nil
		}
		if c.ended {
			c.Close()
			return zero, false, nil
		}
		if c.lane == nil {
			select {
			case lane, ok := <-c.lanes:
				if !ok {
					c.ended = true
					continue
				}
				c.lane = lane
			case <-ctx.Done():
				return zero, false, ctx.Err()
			}
		}

		var t tagged[R]
		if c.head != nil {
			t, c.head = *c.head, nil
		} else {
			select {
			case t = <-c.lane:
			case <-ctx.Done():
				return zero, false, ctx.Err()
			}
		}
		if t.err != nil {
			c.Close()
			return zero, false, t.err
		}
		if t.done {
			c.lane = nil
			continue
		}
		return t.v, true, nil
	}
}

// Done moves past lanes that already completed and reports whether every
// lane ended or the current one failed.
func (c *sequentialCursor[T, R]) Done() bool {
	for !c.closed && !c.ended {
		if c.lane == nil {
			select {
			case lane, ok := <-c.lanes:
				if !ok {
					c.ended = true
					return true
				}
				c.lane = lane
			default:
				return false
			}
		}
		if c.head == nil {
			select {
			case t := <-c.lane:
				c.head = &t
			default:
				return false
			}
		}
		if !c.head.done {
			return false
		}
		if c.head.err != nil {
			return true
		}
		c.head, c.lane = nil, nil
	}
	return true
}

func (c *sequentialCursor[T, R]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	c.wg.Wait()
	return nil
}
