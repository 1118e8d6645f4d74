package reactive

import (
	"context"
	"math"
	"strconv"

	gferrors "github.com/vnykmshr/goflux/pkg/common/errors"
	"github.com/vnykmshr/goflux/pkg/common/validation"
	"github.com/vnykmshr/goflux/pkg/scheduling/scheduler"
)

// Many is an inert description of an asynchronous sequence of values
// terminated by completion or an error. Nothing runs until it is subscribed
// or consumed by a terminal operation, and every subscription runs it
// independently. Many values are immutable and safe to share.
type Many[T any] struct {
	kind string
	open func(ctx context.Context) Cursor[T]
	// on is the scheduler the cursor must be pulled on; nil means any
	// goroutine.
	on scheduler.Scheduler
	// prefetch sizes the pump used when the cursor is pulled from elsewhere.
	prefetch int
	// subscribed is set once SubscribeOn has bound the origin of the chain.
	subscribed bool
	// static marks chains whose open starts no work, so a subscription may
	// open them before any demand to look for a terminal signal.
	static bool
}

// Kind names the operator that produced m.
func (m Many[T]) Kind() string {
	if m.kind == "" {
		return "empty"
	}
	return m.kind
}

// cursor realizes m for a consumer running in ctx. When m is bound to a
// scheduler other than the one ctx runs on, the values are pumped across.
func (m Many[T]) cursor(ctx context.Context) Cursor[T] {
	if m.open == nil {
		return emptyCursor[T]{}
	}
	on := m.on
	if on == nil {
		if origin := originOf(ctx); origin != nil {
			on = origin
			ctx = withOrigin(ctx, nil)
		}
	}
	if on == nil || on == scheduler.Current(ctx) {
		return m.open(ctx)
	}
	prefetch := m.prefetch
	if prefetch <= 0 {
		prefetch = DefaultPrefetch
	}
	return newPump(ctx, on, m.open, prefetch)
}

type originKey struct{}

// withOrigin asks the first unbound segment opened under ctx to run on s.
func withOrigin(ctx context.Context, s scheduler.Scheduler) context.Context {
	return context.WithValue(ctx, originKey{}, s)
}

func originOf(ctx context.Context) scheduler.Scheduler {
	s, _ := ctx.Value(originKey{}).(scheduler.Scheduler)
	return s
}

// derive returns a same-thread operator over m: it runs wherever m runs.
func derive[T, R any](m Many[T], kind string, wrap func(ctx context.Context, up Cursor[T]) Cursor[R]) Many[R] {
	return Many[R]{
		kind:       kind,
		on:         m.on,
		prefetch:   m.prefetch,
		subscribed: m.subscribed,
		static:     m.static,
		open: func(ctx context.Context) Cursor[R] {
			var up Cursor[T] = emptyCursor[T]{}
			if m.open != nil {
				up = m.open(ctx)
			}
			return wrap(ctx, up)
		},
	}
}

// FromSlice emits the items in order.
func FromSlice[T any](items []T) Many[T] {
	return Many[T]{
		kind:   "fromSlice",
		static: true,
		open: func(context.Context) Cursor[T] { return &sliceCursor[T]{items: items} },
	}
}

// JustMany emits the given values in order.
func JustMany[T any](items ...T) Many[T] {
	return FromSlice(items)
}

// Range emits count consecutive integers starting at start.
func Range(start, count int) Many[int] {
	if err := validation.ValidateAtLeast("reactive", "count", count, 0); err != nil {
		return ErrorMany[int](err)
	}
	if start > math.MaxInt-count {
		return ErrorMany[int](gferrors.NewValidationError("reactive", "start", start, "range overflows int").
			WithHint("use a start of at most " + strconv.Itoa(math.MaxInt-count)))
	}
	return Many[int]{
		kind:   "range",
		static: true,
		open: func(context.Context) Cursor[int] { return &rangeCursor{next: start, end: start + count} },
	}
}

// EmptyMany completes without values.
func EmptyMany[T any]() Many[T] {
	return Many[T]{
		kind:   "empty",
		static: true,
		open:   func(context.Context) Cursor[T] { return emptyCursor[T]{} },
	}
}

// ErrorMany fails with err as soon as it is pulled.
func ErrorMany[T any](err error) Many[T] {
	err = upstream(err)
	return Many[T]{
		kind:   "error",
		static: true,
		open:   func(context.Context) Cursor[T] { return errorCursor[T]{err: err} },
	}
}

// FromChannel emits values received from ch until it is closed. Every
// subscription reads from the same channel.
func FromChannel[T any](ch <-chan T) Many[T] {
	return Many[T]{
		kind: "fromChannel",
		open: func(context.Context) Cursor[T] { return &channelCursor[T]{ch: ch} },
	}
}

// FromCursor adapts a producer that can be pulled. open runs once per
// subscription; its error, and errors returned by the cursor, surface as
// UpstreamError.
func FromCursor[T any](open func(ctx context.Context) (Cursor[T], error)) Many[T] {
	return Many[T]{
		kind: "fromCursor",
		open: func(ctx context.Context) (cur Cursor[T]) {
			defer func() {
				if r := recover(); r != nil {
					cur = errorCursor[T]{err: &UpstreamError{Err: newPanicError(r)}}
				}
			}()
			c, err := open(ctx)
			if err != nil {
				return errorCursor[T]{err: upstream(err)}
			}
			return &upstreamCursor[T]{cur: c}
		},
	}
}

// Filter emits only the values pred accepts. Rejected values do not count
// against downstream demand.
func (m Many[T]) Filter(pred func(T) bool) Many[T] {
	return derive(m, "filter", func(_ context.Context, up Cursor[T]) Cursor[T] {
		return &filterCursor[T]{up: up, pred: pred}
	})
}

type filterCursor[T any] struct {
	up   Cursor[T]
	pred func(T) bool
}

func (c *filterCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		v, ok, err := c.up.Next(ctx)
		if err != nil || !ok {
			return zero, false, err
		}
		keep, err := call("filter", func() (bool, error) { return c.pred(v), nil })
		if err != nil {
			return zero, false, err
		}
		if keep {
			return v, true, nil
		}
	}
}

func (c *filterCursor[T]) Done() bool   { return isDone(c.up) }
func (c *filterCursor[T]) Close() error { return c.up.Close() }

// Take emits at most n values, then completes and cancels upstream.
func (m Many[T]) Take(n int64) Many[T] {
	if n <= 0 {
		return Many[T]{kind: "take", on: m.on, subscribed: m.subscribed, static: true, open: func(context.Context) Cursor[T] { return emptyCursor[T]{} }}
	}
	return derive(m, "take", func(_ context.Context, up Cursor[T]) Cursor[T] {
		return &takeCursor[T]{up: up, left: n}
	})
}

type takeCursor[T any] struct {
	up     Cursor[T]
	left   int64
	closed bool
}

func (c *takeCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if c.left <= 0 {
		c.Close()
		return zero, false, nil
	}
	v, ok, err := c.up.Next(ctx)
	if err != nil || !ok {
		return zero, false, err
	}
	c.left--
	if c.left == 0 {
		c.Close()
	}
	return v, true, nil
}

func (c *takeCursor[T]) Done() bool { return c.left <= 0 || isDone(c.up) }

func (c *takeCursor[T]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.up.Close()
}

// Buffer collects values into batches of size. The final batch may be
// shorter; it is emitted on completion and discarded on error.
func Buffer[T any](m Many[T], size int) Many[[]T] {
	if err := validation.ValidatePositive("reactive", "buffer size", size); err != nil {
		return ErrorMany[[]T](err)
	}
	return derive(m, "buffer", func(_ context.Context, up Cursor[T]) Cursor[[]T] {
		return &bufferCursor[T]{up: up, size: size}
	})
}

type bufferCursor[T any] struct {
	up   Cursor[T]
	size int
	done bool
}

func (c *bufferCursor[T]) Next(ctx context.Context) ([]T, bool, error) {
	if c.done {
		return nil, false, nil
	}
	batch := make([]T, 0, c.size)
	for len(batch) < c.size {
		v, ok, err := c.up.Next(ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			c.done = true
			if len(batch) == 0 {
				return nil, false, nil
			}
			return batch, true, nil
		}
		batch = append(batch, v)
	}
	return batch, true, nil
}

func (c *bufferCursor[T]) Done() bool   { return c.done || isDone(c.up) }
func (c *bufferCursor[T]) Close() error { return c.up.Close() }

// CollectList gathers every value into one slice emitted on completion.
func CollectList[T any](m Many[T]) Single[[]T] {
	return Single[[]T]{m: derive(m, "collectList", func(_ context.Context, up Cursor[T]) Cursor[[]T] {
		return &collectCursor[T]{up: up}
	})}
}

type collectCursor[T any] struct {
	up   Cursor[T]
	done bool
}

func (c *collectCursor[T]) Next(ctx context.Context) ([]T, bool, error) {
	if c.done {
		return nil, false, nil
	}
	c.done = true
	out := []T{}
	for {
		v, ok, err := c.up.Next(ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return out, true, nil
		}
		out = append(out, v)
	}
}

func (c *collectCursor[T]) Done() bool   { return c.done }
func (c *collectCursor[T]) Close() error { return c.up.Close() }

// Next emits the first value of m, if any.
func (m Many[T]) Next() Single[T] {
	return SingleFrom(m)
}

// SubscribeOn runs the origin of the chain on s. A chain without hops runs
// entirely on s; after PublishOn or DelayElements only the stages before
// the first hop move, and delivery stays where that hop put it. Only the
// SubscribeOn nearest the source has an effect.
func (m Many[T]) SubscribeOn(s scheduler.Scheduler) Many[T] {
	if m.subscribed || s == nil {
		return m
	}
	if m.on == nil {
		return Many[T]{kind: "subscribeOn", on: s, subscribed: true, static: m.static, open: m.open}
	}
	return Many[T]{
		kind:       "subscribeOn",
		on:         m.on,
		prefetch:   m.prefetch,
		subscribed: true,
		open: func(ctx context.Context) Cursor[T] {
			return m.open(withOrigin(ctx, s))
		},
	}
}

// PublishOn moves delivery of m's values to s. Operators after it run on s
// until the next hop.
func (m Many[T]) PublishOn(s scheduler.Scheduler, opts ...Option) Many[T] {
	if s == nil {
		return m
	}
	o := buildOptions(opts)
	return Many[T]{
		kind:       "publishOn",
		on:         s,
		prefetch:   o.prefetch,
		subscribed: m.subscribed,
		open:       m.cursor,
	}
}

// ToSlice runs m to completion and returns every value.
func (m Many[T]) ToSlice(ctx context.Context) ([]T, error) {
	cur := m.cursor(ctx)
	defer cur.Close()

	result := []T{}
	for {
		v, ok, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return result, nil
		}
		result = append(result, v)
	}
}

// ForEach runs m to completion, calling action for each value on the
// calling goroutine.
func (m Many[T]) ForEach(ctx context.Context, action func(T)) error {
	cur := m.cursor(ctx)
	defer cur.Close()

	for {
		v, ok, err := cur.Next(ctx)
		if err != nil || !ok {
			return err
		}
		action(v)
	}
}

// Count runs m to completion and returns the number of values.
func (m Many[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	err := m.ForEach(ctx, func(T) { n++ })
	if err != nil {
		return 0, err
	}
	return n, nil
}

// BlockFirst waits for the first value and cancels the rest.
func (m Many[T]) BlockFirst(ctx context.Context) (T, bool, error) {
	cur := m.cursor(ctx)
	defer cur.Close()
	return cur.Next(ctx)
}

// BlockLast runs m to completion and returns the last value.
func (m Many[T]) BlockLast(ctx context.Context) (T, bool, error) {
	var (
		last  T
		found bool
	)
	err := m.ForEach(ctx, func(v T) {
		last = v
		found = true
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return last, found, nil
}
