package reactive

import (
	"context"
	"errors"
)

// Kind identifies a signal reported to a SignalObserver.
type Kind int

const (
	KindSubscribe Kind = iota
	KindNext
	KindError
	KindComplete
	KindCancel
)

func (k Kind) String() string {
	switch k {
	case KindSubscribe:
		return "subscribe"
	case KindNext:
		return "next"
	case KindError:
		return "error"
	case KindComplete:
		return "complete"
	case KindCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Event is a read-only copy of one signal.
type Event struct {
	Kind  Kind
	Value any
	Err   error
}

// SignalObserver sees the signals of one subscription. Observe must not
// block.
type SignalObserver interface {
	Observe(e Event)
}

// ObserverFunc adapts a function to a SignalObserver.
type ObserverFunc func(e Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// SignalTap creates an observer per subscription.
type SignalTap interface {
	NewObserver(ctx context.Context) SignalObserver
}

// TapFunc adapts a function to a SignalTap.
type TapFunc func(ctx context.Context) SignalObserver

func (f TapFunc) NewObserver(ctx context.Context) SignalObserver { return f(ctx) }

// Tap reports every signal of every subscription to an observer created by
// t. Observers cannot influence demand or outcomes.
func (m Many[T]) Tap(t SignalTap) Many[T] {
	tapped := derive(m, "tap", func(ctx context.Context, up Cursor[T]) Cursor[T] {
		obs := t.NewObserver(ctx)
		return &peekCursor[T]{up: up, hooks: hooks[T]{
			subscribe: func() { obs.Observe(Event{Kind: KindSubscribe}) },
			next:      func(v T) { obs.Observe(Event{Kind: KindNext, Value: v}) },
			err:       func(err error) { obs.Observe(Event{Kind: KindError, Err: err}) },
			complete:  func() { obs.Observe(Event{Kind: KindComplete}) },
			cancel:    func() { obs.Observe(Event{Kind: KindCancel}) },
		}}
	})
	// opening creates an observer
	tapped.static = false
	return tapped
}

// DoOnSubscribe calls f when a subscription starts pulling, on the goroutine
// doing so.
func (m Many[T]) DoOnSubscribe(f func()) Many[T] {
	return m.peek("doOnSubscribe", hooks[T]{subscribe: f})
}

// DoOnNext calls f with every value before it is delivered.
func (m Many[T]) DoOnNext(f func(T)) Many[T] {
	return m.peek("doOnNext", hooks[T]{next: f})
}

// DoOnError calls f with the terminal error.
func (m Many[T]) DoOnError(f func(error)) Many[T] {
	return m.peek("doOnError", hooks[T]{err: f})
}

// DoOnComplete calls f on successful completion.
func (m Many[T]) DoOnComplete(f func()) Many[T] {
	return m.peek("doOnComplete", hooks[T]{complete: f})
}

// DoOnCancel calls f when the consumer stops before a terminal signal.
func (m Many[T]) DoOnCancel(f func()) Many[T] {
	return m.peek("doOnCancel", hooks[T]{cancel: f})
}

func (m Many[T]) peek(kind string, h hooks[T]) Many[T] {
	return derive(m, kind, func(_ context.Context, up Cursor[T]) Cursor[T] {
		return &peekCursor[T]{up: up, hooks: h}
	})
}

type hooks[T any] struct {
	subscribe func()
	next      func(T)
	err       func(error)
	complete  func()
	cancel    func()
}

type peekCursor[T any] struct {
	up         Cursor[T]
	hooks      hooks[T]
	subscribed bool
	terminated bool
	closed     bool
}

func (c *peekCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if !c.subscribed {
		c.subscribed = true
		if c.hooks.subscribe != nil {
			if _, err := call("doOnSubscribe", func() (struct{}, error) { c.hooks.subscribe(); return struct{}{}, nil }); err != nil {
				c.terminated = true
				return zero, false, err
			}
		}
	}

	v, ok, err := c.up.Next(ctx)
	switch {
	case err != nil:
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return zero, false, err
		}
		c.terminated = true
		if c.hooks.err != nil {
			c.hooks.err(err)
		}
		return zero, false, err
	case !ok:
		c.terminated = true
		if c.hooks.complete != nil {
			if _, err := call("doOnComplete", func() (struct{}, error) { c.hooks.complete(); return struct{}{}, nil }); err != nil {
				return zero, false, err
			}
		}
		return zero, false, nil
	}

	if c.hooks.next != nil {
		if _, err := call("doOnNext", func() (struct{}, error) { c.hooks.next(v); return struct{}{}, nil }); err != nil {
			c.terminated = true
			return zero, false, err
		}
	}
	return v, true, nil
}

func (c *peekCursor[T]) Done() bool { return c.terminated || isDone(c.up) }

func (c *peekCursor[T]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.subscribed && !c.terminated && c.hooks.cancel != nil {
		c.hooks.cancel()
	}
	return c.up.Close()
}
