package reactive

import (
	"context"
	"sync/atomic"

	"github.com/vnykmshr/goflux/pkg/scheduling/scheduler"
)

// Single is an inert description of an asynchronous computation producing
// at most one value, then completion, or an error.
type Single[T any] struct {
	m Many[T]
}

// Many views s as a sequence of zero or one values.
func (s Single[T]) Many() Many[T] { return s.m }

// Kind names the operator that produced s.
func (s Single[T]) Kind() string { return s.m.Kind() }

// Just emits v.
func Just[T any](v T) Single[T] {
	return Single[T]{m: Many[T]{
		kind:   "just",
		static: true,
		open:   func(context.Context) Cursor[T] { return &sliceCursor[T]{items: []T{v}} },
	}}
}

// EmptySingle completes without a value.
func EmptySingle[T any]() Single[T] {
	return Single[T]{m: EmptyMany[T]()}
}

// ErrorSingle fails with err.
func ErrorSingle[T any](err error) Single[T] {
	return Single[T]{m: ErrorMany[T](err)}
}

// Deferred runs compute once per subscription, when the subscriber first
// requests. compute reports a value with true, emptiness with false, or an
// error. A panic in compute becomes an UpstreamError.
func Deferred[T any](compute func(ctx context.Context) (T, bool, error)) Single[T] {
	return Single[T]{m: Many[T]{
		kind: "deferred",
		open: func(context.Context) Cursor[T] { return &deferredCursor[T]{compute: compute} },
	}}
}

type deferredCursor[T any] struct {
	compute func(ctx context.Context) (T, bool, error)
	done    bool
}

func (c *deferredCursor[T]) Next(ctx context.Context) (v T, ok bool, err error) {
	if c.done {
		return v, false, nil
	}
	c.done = true
	if err := ctx.Err(); err != nil {
		return v, false, err
	}
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, ok, err = zero, false, &UpstreamError{Err: newPanicError(r)}
		}
	}()
	v, ok, err = c.compute(ctx)
	if err != nil {
		var zero T
		return zero, false, upstream(err)
	}
	return v, ok, nil
}

func (c *deferredCursor[T]) Done() bool   { return c.done }
func (c *deferredCursor[T]) Close() error { return nil }

// SingleSink is the completion token handed to Create. The first of
// Success, SuccessEmpty or Fail wins; later calls return false. A sink may be
// completed from any goroutine.
type SingleSink[T any] struct {
	resolved atomic.Bool
	done     chan struct{}
	ctx      context.Context
	v        T
	ok       bool
	err      error
}

func newSingleSink[T any](ctx context.Context) *SingleSink[T] {
	return &SingleSink[T]{done: make(chan struct{}), ctx: ctx}
}

// Context is cancelled when the subscriber no longer wants the outcome.
func (s *SingleSink[T]) Context() context.Context { return s.ctx }

// Success completes with v.
func (s *SingleSink[T]) Success(v T) bool {
	return s.resolve(v, true, nil)
}

// SuccessEmpty completes without a value.
func (s *SingleSink[T]) SuccessEmpty() bool {
	var zero T
	return s.resolve(zero, false, nil)
}

// Fail completes with err.
func (s *SingleSink[T]) Fail(err error) bool {
	var zero T
	return s.resolve(zero, false, upstream(err))
}

func (s *SingleSink[T]) resolve(v T, ok bool, err error) bool {
	if !s.resolved.CompareAndSwap(false, true) {
		return false
	}
	s.v, s.ok, s.err = v, ok, err
	close(s.done)
	return true
}

// Create bridges a callback-style producer. register runs once per
// subscription, when the subscriber first requests, and must eventually
// complete the sink, possibly from another goroutine.
func Create[T any](register func(sink *SingleSink[T])) Single[T] {
	return Single[T]{m: Many[T]{
		kind: "create",
		open: func(context.Context) Cursor[T] { return &createCursor[T]{register: register} },
	}}
}

type createCursor[T any] struct {
	register func(sink *SingleSink[T])
	sink     *SingleSink[T]
	done     bool
}

func (c *createCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if c.done {
		return zero, false, nil
	}
	if c.sink == nil {
		c.sink = newSingleSink[T](ctx)
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.sink.Fail(newPanicError(r))
				}
			}()
			c.register(c.sink)
		}()
	}

	select {
	case <-c.sink.done:
		c.done = true
		return c.sink.v, c.sink.ok, c.sink.err
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func (c *createCursor[T]) Done() bool {
	if c.done {
		return true
	}
	if c.sink == nil || !c.sink.resolved.Load() {
		return false
	}
	select {
	case <-c.sink.done:
		return !c.sink.ok
	default:
		return false
	}
}

func (c *createCursor[T]) Close() error { return nil }

// SingleFrom emits the first value of m and cancels the rest.
func SingleFrom[T any](m Many[T]) Single[T] {
	return Single[T]{m: m.Take(1)}
}

// MapSingle transforms the value of s.
func MapSingle[T, R any](s Single[T], f func(T) R) Single[R] {
	return Single[R]{m: Map(s.m, f)}
}

// FlatMapSingle chains a dependent computation on the value of s.
func FlatMapSingle[T, R any](s Single[T], f func(T) Single[R]) Single[R] {
	return Single[R]{m: ConcatMap(s.m, func(v T) Many[R] { return f(v).m })}
}

// FlatMapMany expands the value of s into a sequence.
func FlatMapMany[T, R any](s Single[T], f func(T) Many[R]) Many[R] {
	return ConcatMap(s.m, f)
}

// Block subscribes and waits for the outcome: the value and true, false on
// empty completion, or the error. It is the only operation that blocks its
// caller.
func (s Single[T]) Block(ctx context.Context) (T, bool, error) {
	return s.m.BlockFirst(ctx)
}

// Subscribe implements Publisher.
func (s Single[T]) Subscribe(ctx context.Context, sub Subscriber[T]) Subscription {
	return s.m.Subscribe(ctx, sub)
}

// Cache runs s at most once and replays its outcome to every subscriber.
func (s Single[T]) Cache() Single[T] { return Single[T]{m: s.m.Cache()} }

// SubscribeOn runs s on sch.
func (s Single[T]) SubscribeOn(sch scheduler.Scheduler) Single[T] {
	return Single[T]{m: s.m.SubscribeOn(sch)}
}

// PublishOn delivers the outcome of s on sch.
func (s Single[T]) PublishOn(sch scheduler.Scheduler) Single[T] {
	return Single[T]{m: s.m.PublishOn(sch, WithPrefetch(1))}
}

// Filter turns a rejected value into empty completion.
func (s Single[T]) Filter(pred func(T) bool) Single[T] {
	return Single[T]{m: s.m.Filter(pred)}
}

// Tap reports the signals of every subscription to t.
func (s Single[T]) Tap(t SignalTap) Single[T] { return Single[T]{m: s.m.Tap(t)} }

// DoOnSubscribe calls f when a subscription starts pulling.
func (s Single[T]) DoOnSubscribe(f func()) Single[T] { return Single[T]{m: s.m.DoOnSubscribe(f)} }

// DoOnNext calls f with the value.
func (s Single[T]) DoOnNext(f func(T)) Single[T] { return Single[T]{m: s.m.DoOnNext(f)} }

// DoOnError calls f with the error.
func (s Single[T]) DoOnError(f func(error)) Single[T] { return Single[T]{m: s.m.DoOnError(f)} }

// Retry resubscribes to s up to n times after an error.
func (s Single[T]) Retry(n int) Single[T] { return Single[T]{m: s.m.Retry(n)} }
