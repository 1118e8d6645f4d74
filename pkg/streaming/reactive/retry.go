package reactive

import (
	"context"

	"github.com/vnykmshr/goflux/pkg/streaming/channel"
)

// Retry resubscribes to m after an error, at most n times. Values emitted
// before a failure are not withdrawn. Cancellation is never retried.
func (m Many[T]) Retry(n int) Many[T] {
	if n <= 0 || m.open == nil {
		return m
	}
	return Many[T]{
		kind: "retry",
		on:   m.on,
		open: func(ctx context.Context) Cursor[T] {
			return &retryCursor[T]{ctx: ctx, src: m, left: n, up: m.open(ctx)}
		},
	}
}

type retryCursor[T any] struct {
	ctx  context.Context
	src  Many[T]
	left int
	up   Cursor[T]
}

func (c *retryCursor[T]) Next(ctx context.Context) (T, bool, error) {
	for {
		v, ok, err := c.up.Next(ctx)
		if err == nil || c.left == 0 || isContextErr(err) {
			return v, ok, err
		}
		c.left--
		c.up.Close()
		c.up = c.src.open(c.ctx)
	}
}

func (c *retryCursor[T]) Close() error { return c.up.Close() }

// OnBackpressureBuffer lets upstream run ahead of a slow consumer by up to
// size values, applying strategy when the buffer is full. With
// channel.Error an overflow terminates the sequence with an OperatorError
// wrapping channel.ErrChannelFull once the buffered values are delivered.
func (m Many[T]) OnBackpressureBuffer(size int, strategy channel.BackpressureStrategy) Many[T] {
	return Many[T]{
		kind: "onBackpressureBuffer",
		open: func(ctx context.Context) Cursor[T] {
			ctx, cancel := context.WithCancel(ctx)
			c := &bufferedCursor[T]{
				cancel: cancel,
				buf: channel.NewWithConfig[T](channel.Config{
					BufferSize: size,
					Strategy:   strategy,
				}),
				done: make(chan struct{}),
			}
			go c.fill(ctx, m)
			return c
		},
	}
}

type bufferedCursor[T any] struct {
	cancel context.CancelFunc
	buf    channel.BackpressureChannel[T]
	done   chan struct{}
	err    error // written by fill before done is closed
}

func (c *bufferedCursor[T]) fill(ctx context.Context, m Many[T]) {
	defer close(c.done)
	defer c.buf.Close()

	cur := m.cursor(detach(ctx))
	defer cur.Close()

	for {
		v, ok, err := cur.Next(ctx)
		if err != nil {
			c.err = err
			return
		}
		if !ok {
			return
		}
		if err := c.buf.Send(ctx, v); err != nil {
			if !isContextErr(err) {
				c.err = &OperatorError{Op: "onBackpressureBuffer", Err: err}
			}
			return
		}
	}
}

func (c *bufferedCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	v, err := c.buf.Receive(ctx)
	if err == nil {
		return v, true, nil
	}
	if err != channel.ErrChannelClosed {
		return zero, false, err
	}
	<-c.done
	return zero, false, c.err
}

func (c *bufferedCursor[T]) Close() error {
	c.cancel()
	<-c.done
	return nil
}
