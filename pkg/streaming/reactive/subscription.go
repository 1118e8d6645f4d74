package reactive

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vnykmshr/goflux/pkg/scheduling/scheduler"
)

// Unbounded is the demand that disables backpressure.
const Unbounded int64 = math.MaxInt64

// Subscriber receives the signals of one subscription. Calls are sequential:
// OnSubscribe first, then OnNext at most as many times as requested, then at
// most one of OnError or OnComplete.
type Subscriber[T any] interface {
	OnSubscribe(s Subscription)
	OnNext(v T)
	OnError(err error)
	OnComplete()
}

// Subscription is the consumer's handle on a running source.
type Subscription interface {
	// Request adds n to the outstanding demand. n must be positive.
	Request(n int64)

	// Cancel stops the subscription. It is idempotent and no signal is
	// delivered after it returns unless one was already in progress.
	Cancel()
}

// Publisher is implemented by Many and Single.
type Publisher[T any] interface {
	Subscribe(ctx context.Context, sub Subscriber[T]) Subscription
}

// SubscriberFuncs builds a Subscriber from optional callbacks. It requests
// Unbounded on subscription.
type SubscriberFuncs[T any] struct {
	Next     func(T)
	Error    func(error)
	Complete func()
}

func (f SubscriberFuncs[T]) OnSubscribe(s Subscription) { s.Request(Unbounded) }

func (f SubscriberFuncs[T]) OnNext(v T) {
	if f.Next != nil {
		f.Next(v)
	}
}

func (f SubscriberFuncs[T]) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f SubscriberFuncs[T]) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}

const (
	stateActive int32 = iota
	stateTerminated
	stateCancelled
)

type subscription[T any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	src    Many[T]
	sub    Subscriber[T]

	demand  atomic.Int64
	wip     atomic.Int32
	state   atomic.Int32
	badReq  atomic.Int64
	cur     Cursor[T]
	held    *T
	release sync.Once
}

// Subscribe starts a subscription of m. sub.OnSubscribe runs before
// Subscribe returns; values flow once it requests demand, while completion
// and errors are delivered as soon as they are known. Delivery runs on
// the goroutine calling Request, or on m's scheduler when it has one.
func (m Many[T]) Subscribe(ctx context.Context, sub Subscriber[T]) Subscription {
	s := &subscription[T]{src: m, sub: sub}
	s.ctx, s.cancel = context.WithCancel(withWaker(ctx, s.wake))
	sub.OnSubscribe(s)
	if m.static {
		// a source that is already terminal signals without demand
		s.drain()
	}
	return s
}

func (s *subscription[T]) Request(n int64) {
	if s.state.Load() != stateActive {
		return
	}
	if n <= 0 {
		s.badReq.CompareAndSwap(0, n-1)
		s.drain()
		return
	}
	for {
		cur := s.demand.Load()
		next := cur + n
		if next < 0 || cur == Unbounded {
			next = Unbounded
		}
		if s.demand.CompareAndSwap(cur, next) {
			break
		}
	}
	s.drain()
}

func (s *subscription[T]) Cancel() {
	if s.state.CompareAndSwap(stateActive, stateCancelled) {
		s.cancel()
		s.drain()
	}
}

// wake is called by asynchronous stages that reached their end while the
// consumer had no demand.
func (s *subscription[T]) wake() {
	if s.demand.Load() == 0 && s.state.Load() == stateActive {
		s.drain()
	}
}

type wakerKey struct{}

func withWaker(ctx context.Context, f func()) context.Context {
	return context.WithValue(ctx, wakerKey{}, f)
}

// wake notifies the subscription running ctx that a terminal signal may be
// ready.
func wake(ctx context.Context) {
	if f, ok := ctx.Value(wakerKey{}).(func()); ok {
		f()
	}
}

// drain runs the delivery loop unless another goroutine is already in it.
func (s *subscription[T]) drain() {
	if s.wip.Add(1) != 1 {
		return
	}
	on := s.src.on
	if on == nil || s.state.Load() != stateActive {
		s.loop(s.ctx)
		return
	}
	err := on.Schedule(context.WithoutCancel(s.ctx), func(context.Context) {
		s.loop(scheduler.WithCurrent(s.ctx, on))
	})
	if err != nil {
		s.terminate(&SchedulingError{Scheduler: on.Name(), Err: err})
		s.loop(s.ctx)
	}
}

func (s *subscription[T]) loop(ctx context.Context) {
	missed := int32(1)
	for {
		s.pass(ctx)
		missed = s.wip.Add(-missed)
		if missed == 0 {
			return
		}
	}
}

func (s *subscription[T]) pass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.terminate(newPanicError(r))
		}
	}()

	for {
		if s.state.Load() != stateActive {
			s.closeCursor()
			return
		}
		if n := s.badReq.Load(); n != 0 {
			s.terminate(fmt.Errorf("%w: got %d", ErrInvalidRequest, n+1))
			return
		}
		if s.demand.Load() == 0 {
			if s.cur == nil && s.src.static {
				s.cur = s.src.cursor(ctx)
			}
			// Completion and errors need no demand, but a value must not
			// be pulled without it.
			if s.cur == nil || s.held != nil || !isDone(s.cur) {
				return
			}
		}
		if s.held != nil {
			v := *s.held
			s.held = nil
			s.emit(v)
			continue
		}
		if s.cur == nil {
			s.cur = s.src.cursor(ctx)
		}

		v, ok, err := s.cur.Next(ctx)
		if s.state.Load() != stateActive {
			zerolog.Ctx(s.ctx).Debug().
				Str("source", s.src.Kind()).
				Bool("value", ok).
				AnErr("error", err).
				Msg("signal dropped after cancellation")
			s.closeCursor()
			return
		}
		if err != nil {
			s.terminate(err)
			return
		}
		if !ok {
			s.terminate(nil)
			return
		}
		if s.demand.Load() == 0 {
			// Done was wrong; keep the value until it is requested.
			s.held = &v
			return
		}
		s.emit(v)
	}
}

func (s *subscription[T]) emit(v T) {
	if s.demand.Load() != Unbounded {
		s.demand.Add(-1)
	}
	s.sub.OnNext(v)
}

// terminate delivers the terminal signal once. It must run while holding
// the drain loop.
func (s *subscription[T]) terminate(err error) {
	if !s.state.CompareAndSwap(stateActive, stateTerminated) {
		return
	}
	s.closeCursor()
	if err != nil {
		s.sub.OnError(err)
		return
	}
	s.sub.OnComplete()
}

func (s *subscription[T]) closeCursor() {
	s.release.Do(func() {
		s.cancel()
		if s.cur != nil {
			s.cur.Close()
		}
	})
}
