package reactive

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vnykmshr/goflux/pkg/scheduling/scheduler"
)

// item is one signal crossing an asynchronous boundary.
type item[T any] struct {
	v    T
	err  error
	done bool
}

// pump moves values from a cursor opened on one scheduler to a consumer on
// another. The producer side runs as scheduler tasks that fill a bounded
// channel; when the channel is full the task parks and returns its worker,
// and the consumer reschedules it after making room.
type pump[T any] struct {
	ctx    context.Context // cancelled by Close
	runCtx context.Context // ctx tagged with the target scheduler
	cancel context.CancelFunc
	on     scheduler.Scheduler
	open   func(ctx context.Context) Cursor[T]
	ch     chan item[T]

	// Producer state, owned by whichever task currently runs.
	up      Cursor[T]
	pending *item[T]
	upOnce  sync.Once

	parked atomic.Bool
	// finished is set once the terminal item is in ch; nothing follows it.
	finished atomic.Bool

	// Consumer state.
	started bool
	done    bool
	err     error
}

func newPump[T any](ctx context.Context, on scheduler.Scheduler, open func(ctx context.Context) Cursor[T], prefetch int) *pump[T] {
	ctx, cancel := context.WithCancel(ctx)
	return &pump[T]{
		ctx:    ctx,
		runCtx: scheduler.WithCurrent(ctx, on),
		cancel: cancel,
		on:     on,
		open:   open,
		ch:     make(chan item[T], prefetch),
	}
}

func (p *pump[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if p.done {
		return zero, false, p.err
	}
	if !p.started {
		p.started = true
		if err := p.schedule(); err != nil {
			return p.fail(err)
		}
	}

	select {
	case it := <-p.ch:
		if it.done {
			p.done = true
			p.err = it.err
			return zero, false, it.err
		}
		if p.parked.CompareAndSwap(true, false) {
			if err := p.schedule(); err != nil {
				// Deliver what we have; the failure follows.
				p.done = true
				p.err = err
				p.closeUp()
			}
		}
		return it.v, true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// Done reports whether only the terminal item is left.
func (p *pump[T]) Done() bool {
	return p.done || (p.finished.Load() && len(p.ch) == 1)
}

func (p *pump[T]) fail(err error) (T, bool, error) {
	var zero T
	p.done = true
	p.err = err
	p.closeUp()
	return zero, false, err
}

func (p *pump[T]) schedule() error {
	// The task must run even after cancellation so it can close upstream.
	err := p.on.Schedule(context.WithoutCancel(p.ctx), p.run)
	if err != nil {
		return &SchedulingError{Scheduler: p.on.Name(), Err: err}
	}
	return nil
}

func (p *pump[T]) Close() error {
	p.cancel()
	if !p.started || p.parked.CompareAndSwap(true, false) {
		p.closeUp()
	}
	return nil
}

func (p *pump[T]) closeUp() {
	p.upOnce.Do(func() {
		if p.up != nil {
			p.up.Close()
		}
	})
}

func (p *pump[T]) run(context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.closeUp()
			p.offer(item[T]{err: newPanicError(r), done: true})
		}
	}()

	if p.pending != nil {
		it := *p.pending
		p.pending = nil
		if !p.offer(it) || it.done {
			return
		}
	}

	for {
		if p.ctx.Err() != nil {
			p.closeUp()
			return
		}
		if p.up == nil {
			p.up = p.open(p.runCtx)
		}

		v, ok, err := p.up.Next(p.runCtx)
		it := item[T]{v: v}
		switch {
		case err != nil:
			if p.ctx.Err() != nil {
				zerolog.Ctx(p.ctx).Debug().Err(err).Str("scheduler", p.on.Name()).Msg("signal dropped after cancellation")
				p.closeUp()
				return
			}
			it = item[T]{err: err, done: true}
		case !ok:
			it = item[T]{done: true}
		}
		if it.done {
			p.closeUp()
		}
		if !p.offer(it) || it.done {
			return
		}
	}
}

// offer hands it to the consumer, parking the producer when the channel is
// full. It reports false when the producer parked and must stop running.
func (p *pump[T]) offer(it item[T]) bool {
	for {
		select {
		case p.ch <- it:
			if it.done {
				p.finished.Store(true)
				wake(p.ctx)
			}
			return true
		default:
		}

		p.pending = &it
		p.parked.Store(true)
		if p.ctx.Err() != nil {
			if p.parked.CompareAndSwap(true, false) {
				p.pending = nil
				p.closeUp()
			}
			return false
		}
		// The consumer may have drained the channel before it could see us
		// parked; reclaim the slot if nobody else did.
		if len(p.ch) == cap(p.ch) || !p.parked.CompareAndSwap(true, false) {
			return false
		}
		p.pending = nil
	}
}

// tagged is an item from the source at idx of a fan-in.
type tagged[T any] struct {
	idx int
	item[T]
}

// detach clears the scheduler tag so sources realized by an internal
// goroutine hop to their own scheduler instead of running inline.
func detach(ctx context.Context) context.Context {
	return scheduler.WithCurrent(ctx, nil)
}

// forward pulls src on the calling goroutine and sends every signal to out,
// waiting for a token before each pull when tokens is non-nil. It stops on
// the first terminal signal or when ctx is done.
func forward[T any](ctx context.Context, idx int, src Many[T], tokens <-chan struct{}, out chan<- tagged[T]) {
	cur := src.cursor(detach(ctx))
	defer cur.Close()

	send := func(it item[T]) bool {
		select {
		case out <- tagged[T]{idx: idx, item: it}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		if tokens != nil {
			select {
			case <-tokens:
			case <-ctx.Done():
				return
			}
		}
		v, ok, err := cur.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		switch {
		case err != nil:
			send(item[T]{err: err, done: true})
			return
		case !ok:
			send(item[T]{done: true})
			return
		}
		if !send(item[T]{v: v}) {
			return
		}
	}
}
