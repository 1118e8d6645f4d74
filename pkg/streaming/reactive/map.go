package reactive

import "context"

// Map transforms each value with f. A panic in f terminates the sequence
// with an OperatorError and stops pulling upstream.
func Map[T, R any](m Many[T], f func(T) R) Many[R] {
	return MapErr(m, func(v T) (R, error) { return f(v), nil })
}

// MapErr is Map for transforms that can fail. The first error terminates
// the sequence.
func MapErr[T, R any](m Many[T], f func(T) (R, error)) Many[R] {
	return derive(m, "map", func(_ context.Context, up Cursor[T]) Cursor[R] {
		return &mapCursor[T, R]{up: up, f: f}
	})
}

type mapCursor[T, R any] struct {
	up Cursor[T]
	f  func(T) (R, error)
}

func (c *mapCursor[T, R]) Next(ctx context.Context) (R, bool, error) {
	var zero R
	v, ok, err := c.up.Next(ctx)
	if err != nil || !ok {
		return zero, false, err
	}
	r, err := call("map", func() (R, error) { return c.f(v) })
	if err != nil {
		return zero, false, err
	}
	return r, true, nil
}

func (c *mapCursor[T, R]) Done() bool   { return isDone(c.up) }
func (c *mapCursor[T, R]) Close() error { return c.up.Close() }

// ConcatMap maps each value to a sequence and emits the sequences one after
// another, subscribing to the next only when the previous completes.
func ConcatMap[T, R any](m Many[T], f func(T) Many[R]) Many[R] {
	return derive(m, "concatMap", func(_ context.Context, up Cursor[T]) Cursor[R] {
		return &concatCursor[T, R]{up: up, f: f}
	})
}

type concatCursor[T, R any] struct {
	up    Cursor[T]
	f     func(T) Many[R]
	inner Cursor[R]
}

func (c *concatCursor[T, R]) Next(ctx context.Context) (R, bool, error) {
	var zero R
	for {
		if c.inner == nil {
			v, ok, err := c.up.Next(ctx)
			if err != nil || !ok {
				return zero, false, err
			}
			next, err := call("concatMap", func() (Many[R], error) { return c.f(v), nil })
			if err != nil {
				return zero, false, err
			}
			c.inner = next.cursor(ctx)
		}

		r, ok, err := c.inner.Next(ctx)
		if err != nil {
			return zero, false, err
		}
		if ok {
			return r, true, nil
		}
		c.inner.Close()
		c.inner = nil
	}
}

func (c *concatCursor[T, R]) Done() bool {
	if c.inner != nil && !isDone(c.inner) {
		return false
	}
	return isDone(c.up)
}

func (c *concatCursor[T, R]) Close() error {
	if c.inner != nil {
		c.inner.Close()
		c.inner = nil
	}
	return c.up.Close()
}
