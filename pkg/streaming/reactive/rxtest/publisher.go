package rxtest

import (
	"context"
	"sync/atomic"

	"github.com/vnykmshr/goflux/pkg/streaming/reactive"
)

// ColdPublisher is a source that replays fixed values to every subscription
// and counts how many times it was run.
type ColdPublisher[T any] struct {
	values []T
	err    error
	runs   atomic.Int64
}

// NewColdPublisher emits values, then completes.
func NewColdPublisher[T any](values ...T) *ColdPublisher[T] {
	return &ColdPublisher[T]{values: values}
}

// FailWith makes the publisher fail with err after its values.
func (p *ColdPublisher[T]) FailWith(err error) *ColdPublisher[T] {
	p.err = err
	return p
}

// SubscribeCount reports how many subscriptions started pulling.
func (p *ColdPublisher[T]) SubscribeCount() int {
	return int(p.runs.Load())
}

// Many returns the publisher as a sequence.
func (p *ColdPublisher[T]) Many() reactive.Many[T] {
	return reactive.FromCursor(func(context.Context) (reactive.Cursor[T], error) {
		p.runs.Add(1)
		return &coldCursor[T]{p: p}, nil
	})
}

type coldCursor[T any] struct {
	p *ColdPublisher[T]
	i int
}

func (c *coldCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if c.i < len(c.p.values) {
		c.i++
		return c.p.values[c.i-1], true, nil
	}
	return zero, false, c.p.err
}

// Done reports that every value was emitted, so the terminal signal needs
// no demand.
func (c *coldCursor[T]) Done() bool { return c.i >= len(c.p.values) }

func (c *coldCursor[T]) Close() error { return nil }

// Single returns the first value of the publisher.
func (p *ColdPublisher[T]) Single() reactive.Single[T] {
	return reactive.SingleFrom(p.Many())
}

// Subscribe implements reactive.Publisher.
func (p *ColdPublisher[T]) Subscribe(ctx context.Context, sub reactive.Subscriber[T]) reactive.Subscription {
	return p.Many().Subscribe(ctx, sub)
}
