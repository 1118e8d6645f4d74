package reactive

import (
	"context"
	"runtime"
	"sync"

	"github.com/vnykmshr/goflux/pkg/scheduling/scheduler"
)

// ParallelMany is m split into rails. Values are dealt to the rails
// round-robin; each rail runs its stage functions on its own worker of the
// scheduler given to RunOn. There is no ordering between rails, but every
// value reaches exactly one rail exactly once.
type ParallelMany[T any] struct {
	src      Many[any]
	rails    int
	on       scheduler.Scheduler
	prefetch int
	stage    func(v any) (T, bool, error)
}

// Parallel splits m into rails partitions. A non-positive rails uses one
// rail per CPU.
func (m Many[T]) Parallel(rails int) ParallelMany[T] {
	if rails <= 0 {
		rails = runtime.NumCPU()
	}
	return ParallelMany[T]{
		src:      boxed(m),
		rails:    rails,
		prefetch: DefaultPrefetch,
		stage: func(v any) (T, bool, error) {
			t, _ := v.(T)
			return t, true, nil
		},
	}
}

// Rails returns the number of partitions.
func (p ParallelMany[T]) Rails() int { return p.rails }

// RunOn runs each rail on s. Without RunOn the rails run on the goroutine
// that pulls the source.
func (p ParallelMany[T]) RunOn(s scheduler.Scheduler, opts ...Option) ParallelMany[T] {
	o := buildOptions(opts)
	p.on = s
	p.prefetch = o.prefetch
	return p
}

// Filter drops the values pred rejects on every rail.
func (p ParallelMany[T]) Filter(pred func(T) bool) ParallelMany[T] {
	prev := p.stage
	p.stage = func(v any) (T, bool, error) {
		t, ok, err := prev(v)
		if err != nil || !ok {
			return t, ok, err
		}
		keep, err := call("filter", func() (bool, error) { return pred(t), nil })
		return t, keep, err
	}
	return p
}

// ParallelMap applies f on every rail.
func ParallelMap[T, R any](p ParallelMany[T], f func(T) R) ParallelMany[R] {
	prev := p.stage
	return ParallelMany[R]{
		src:      p.src,
		rails:    p.rails,
		on:       p.on,
		prefetch: p.prefetch,
		stage: func(v any) (R, bool, error) {
			var zero R
			t, ok, err := prev(v)
			if err != nil || !ok {
				return zero, ok, err
			}
			r, err := call("map", func() (R, error) { return f(t), nil })
			return r, err == nil, err
		},
	}
}

// Sequential merges the rails back into one sequence in the order their
// values become available.
func (p ParallelMany[T]) Sequential() Many[T] {
	return Many[T]{
		kind: "parallel",
		open: func(ctx context.Context) Cursor[T] {
			return newParallelCursor(ctx, p)
		},
	}
}

// rail is an actor: values are queued by the dispatcher and drained by at
// most one task at a time on the rail's scheduler.
type rail[T any] struct {
	idx    int
	p      *parallelCursor[T]
	tokens chan struct{}

	mu      sync.Mutex
	queue   []railItem
	running bool
	failed  bool
}

type railItem struct {
	v   any
	end bool
}

type parallelCursor[T any] struct {
	cancel   context.CancelFunc
	on       scheduler.Scheduler
	stage    func(v any) (T, bool, error)
	rails    []*rail[T]
	out      chan tagged[T]
	finished int
	wg       sync.WaitGroup
	closed   bool
}

func newParallelCursor[T any](ctx context.Context, p ParallelMany[T]) *parallelCursor[T] {
	ctx, cancel := context.WithCancel(ctx)
	c := &parallelCursor[T]{
		cancel: cancel,
		on:     p.on,
		stage:  p.stage,
		rails:  make([]*rail[T], p.rails),
		// Each rail holds at most prefetch values plus its terminal signal,
		// and the dispatcher adds one, so sends never block.
		out: make(chan tagged[T], p.rails*p.prefetch+p.rails+1),
	}
	for i := range c.rails {
		r := &rail[T]{idx: i, p: c, tokens: make(chan struct{}, p.prefetch)}
		for j := 0; j < p.prefetch; j++ {
			r.tokens <- struct{}{}
		}
		c.rails[i] = r
	}
	c.wg.Add(1)
	go c.dispatch(ctx, p.src)
	return c
}

func (c *parallelCursor[T]) dispatch(ctx context.Context, src Many[any]) {
	defer c.wg.Done()

	cur := src.cursor(detach(ctx))
	defer cur.Close()

	fail := func(err error) {
		select {
		case c.out <- tagged[T]{idx: outerIdx, item: item[T]{err: err, done: true}}:
		default:
		}
	}

	for n := 0; ; n++ {
		r := c.rails[n%len(c.rails)]
		select {
		case <-r.tokens:
		case <-ctx.Done():
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
			for _, r := range c.rails {
				if err := r.push(railItem{end: true}); err != nil {
					fail(err)
					return
				}
			}
			return
		}
		if err := r.push(railItem{v: v}); err != nil {
			fail(err)
			return
		}
	}
}

// push queues it and starts a drain task if none is running.
func (r *rail[T]) push(it railItem) error {
	r.mu.Lock()
	r.queue = append(r.queue, it)
	start := !r.running
	r.running = true
	r.mu.Unlock()

	if !start {
		return nil
	}
	on := r.p.on
	if on == nil {
		r.drain()
		return nil
	}
	if err := on.Schedule(context.Background(), func(context.Context) { r.drain() }); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return &SchedulingError{Scheduler: on.Name(), Err: err}
	}
	return nil
}

func (r *rail[T]) drain() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.running = false
			r.mu.Unlock()
			return
		}
		it := r.queue[0]
		r.queue = r.queue[1:]
		failed := r.failed
		r.mu.Unlock()

		if !failed {
			r.process(it)
		}
	}
}

func (r *rail[T]) process(it railItem) {
	out := r.p.out
	if it.end {
		out <- tagged[T]{idx: r.idx, item: item[T]{done: true}}
		return
	}

	v, ok, err := r.apply(it.v)
	switch {
	case err != nil:
		r.mu.Lock()
		r.failed = true
		r.mu.Unlock()
		out <- tagged[T]{idx: r.idx, item: item[T]{err: err, done: true}}
	case !ok:
		r.tokens <- struct{}{}
	default:
		out <- tagged[T]{idx: r.idx, item: item[T]{v: v}}
	}
}

func (r *rail[T]) apply(v any) (t T, ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = newPanicError(rec)
		}
	}()
	return r.p.stage(v)
}

func (c *parallelCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		if c.closed {
			return zero, false, nil
		}
		if c.finished == len(c.rails) {
			c.Close()
			return zero, false, nil
		}

		select {
		case t := <-c.out:
			if t.err != nil {
				c.Close()
				return zero, false, t.err
			}
			if t.done {
				c.finished++
				continue
			}
			c.rails[t.idx].tokens <- struct{}{}
			return t.v, true, nil
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	}
}

func (c *parallelCursor[T]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	c.wg.Wait()
	return nil
}
