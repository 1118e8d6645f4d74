package reactive

import (
	"context"
	"sync"
)

// Cursor is the pull side of one subscription. Next returns the next value
// and true, or false with a nil error on completion, or a non-nil error.
// After Next reports completion or an error it must not be called again.
// Close releases upstream resources and is safe to call more than once.
// A Cursor is used by one goroutine at a time.
type Cursor[T any] interface {
	Next(ctx context.Context) (T, bool, error)
	Close() error
}

// DoneCursor is implemented by cursors that can tell, without blocking or
// consuming a value, that their next Next call returns completion or an
// error. Subscriptions use it to deliver terminal signals while demand is
// zero.
type DoneCursor interface {
	Done() bool
}

func isDone(c any) bool {
	d, ok := c.(DoneCursor)
	return ok && d.Done()
}

// CursorFunc adapts a function to a Cursor with a no-op Close.
type CursorFunc[T any] func(ctx context.Context) (T, bool, error)

func (f CursorFunc[T]) Next(ctx context.Context) (T, bool, error) { return f(ctx) }
func (f CursorFunc[T]) Close() error                              { return nil }

type sliceCursor[T any] struct {
	items []T
	i     int
}

func (c *sliceCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if c.i >= len(c.items) {
		return zero, false, nil
	}
	v := c.items[c.i]
	c.i++
	return v, true, nil
}

func (c *sliceCursor[T]) Done() bool   { return c.i >= len(c.items) }
func (c *sliceCursor[T]) Close() error { return nil }

type rangeCursor struct {
	next, end int
}

func (c *rangeCursor) Next(ctx context.Context) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	if c.next >= c.end {
		return 0, false, nil
	}
	v := c.next
	c.next++
	return v, true, nil
}

func (c *rangeCursor) Done() bool   { return c.next >= c.end }
func (c *rangeCursor) Close() error { return nil }

type channelCursor[T any] struct {
	ch <-chan T
}

func (c *channelCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	select {
	case v, ok := <-c.ch:
		if !ok {
			return zero, false, nil
		}
		return v, true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func (c *channelCursor[T]) Close() error { return nil }

type emptyCursor[T any] struct{}

func (emptyCursor[T]) Next(context.Context) (T, bool, error) {
	var zero T
	return zero, false, nil
}

func (emptyCursor[T]) Done() bool   { return true }
func (emptyCursor[T]) Close() error { return nil }

type errorCursor[T any] struct {
	err error
}

func (c errorCursor[T]) Next(context.Context) (T, bool, error) {
	var zero T
	return zero, false, c.err
}

func (errorCursor[T]) Done() bool   { return true }
func (errorCursor[T]) Close() error { return nil }

// upstreamCursor wraps errors of a user-provided cursor as UpstreamError and
// recovers panics raised by it.
type upstreamCursor[T any] struct {
	cur  Cursor[T]
	once sync.Once
	err  error
}

func (c *upstreamCursor[T]) Next(ctx context.Context) (v T, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, ok, err = zero, false, &UpstreamError{Err: newPanicError(r)}
		}
	}()
	v, ok, err = c.cur.Next(ctx)
	return v, ok, upstream(err)
}

func (c *upstreamCursor[T]) Done() bool { return isDone(c.cur) }

func (c *upstreamCursor[T]) Close() error {
	c.once.Do(func() { c.err = c.cur.Close() })
	return c.err
}
