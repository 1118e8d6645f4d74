package reactive_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tu "github.com/vnykmshr/goflux/internal/testutil"
	"github.com/vnykmshr/goflux/pkg/scheduling/scheduler"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive/rxtest"
)

// recorder is a Subscriber that requests nothing on its own.
type recorder[T any] struct {
	mu        sync.Mutex
	sub       reactive.Subscription
	values    []T
	err       error
	completed int
	errored   int
}

func (r *recorder[T]) OnSubscribe(s reactive.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sub = s
}

func (r *recorder[T]) OnNext(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder[T]) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.errored++
}

func (r *recorder[T]) OnComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

type outcome[T any] struct {
	values    []T
	err       error
	completed int
	errored   int
}

func (r *recorder[T]) snapshot() outcome[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return outcome[T]{
		values:    append([]T(nil), r.values...),
		err:       r.err,
		completed: r.completed,
		errored:   r.errored,
	}
}

func TestRequestBoundsDelivery(t *testing.T) {
	rec := &recorder[int]{}
	sub := reactive.Range(0, 10).Subscribe(context.Background(), rec)
	defer sub.Cancel()

	sub.Request(3)
	got := rec.snapshot()
	tu.AssertEqual(t, len(got.values), 3)
	tu.AssertEqual(t, got.completed, 0)

	sub.Request(reactive.Unbounded)
	got = rec.snapshot()
	tu.AssertEqual(t, len(got.values), 10)
	tu.AssertEqual(t, got.completed, 1)
}

func TestCancelIsIdempotent(t *testing.T) {
	rec := &recorder[int]{}
	sub := reactive.Range(0, 10).Subscribe(context.Background(), rec)
	sub.Request(2)

	sub.Cancel()
	sub.Cancel()
	sub.Request(5)

	got := rec.snapshot()
	tu.AssertEqual(t, len(got.values), 2)
	tu.AssertNoError(t, got.err)
	tu.AssertEqual(t, got.completed, 0)
	tu.AssertEqual(t, got.errored, 0)
}

func TestCancelAfterComplete(t *testing.T) {
	rec := &recorder[string]{}
	sub := reactive.Just("done").Subscribe(context.Background(), rec)
	sub.Request(reactive.Unbounded)

	sub.Cancel()
	sub.Cancel()

	got := rec.snapshot()
	tu.AssertEqual(t, len(got.values), 1)
	tu.AssertNoError(t, got.err)
	tu.AssertEqual(t, got.completed, 1)
	tu.AssertEqual(t, got.errored, 0)
}

func TestInvalidRequestSignalsError(t *testing.T) {
	rec := &recorder[int]{}
	sub := reactive.Range(0, 10).Subscribe(context.Background(), rec)
	sub.Request(0)

	got := rec.snapshot()
	if !errors.Is(got.err, reactive.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", got.err)
	}
	tu.AssertEqual(t, got.errored, 1)
}

func TestReentrantRequestIsTrampolined(t *testing.T) {
	var (
		depth, maxDepth int
		got             []int
		sub             reactive.Subscription
	)
	sub = reactive.Range(0, 1000).Subscribe(context.Background(), &funcSubscriber[int]{
		onSubscribe: func(s reactive.Subscription) { sub = s },
		onNext: func(v int) {
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
			got = append(got, v)
			sub.Request(1)
			depth--
		},
	})
	sub.Request(1)

	tu.AssertEqual(t, len(got), 1000)
	tu.AssertEqual(t, maxDepth, 1)
}

type funcSubscriber[T any] struct {
	onSubscribe func(reactive.Subscription)
	onNext      func(T)
}

func (f *funcSubscriber[T]) OnSubscribe(s reactive.Subscription) { f.onSubscribe(s) }
func (f *funcSubscriber[T]) OnNext(v T)                          { f.onNext(v) }
func (f *funcSubscriber[T]) OnError(error)                       {}
func (f *funcSubscriber[T]) OnComplete()                         {}

func TestSubscriberPanicBecomesError(t *testing.T) {
	var (
		mu  sync.Mutex
		got error
	)
	sub := reactive.Range(0, 10).Subscribe(context.Background(), reactive.SubscriberFuncs[int]{
		Next: func(v int) {
			if v == 2 {
				panic("subscriber exploded")
			}
		},
		Error: func(err error) {
			mu.Lock()
			got = err
			mu.Unlock()
		},
	})
	defer sub.Cancel()

	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(got, reactive.ErrPanic) {
		t.Fatalf("err = %v, want ErrPanic", got)
	}
}

func newPool(t *testing.T, workers int) *scheduler.Pool {
	t.Helper()
	p, err := scheduler.NewParallel(workers)
	tu.AssertNoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := tu.WithTimeout(t)
		defer cancel()
		p.Dispose(ctx)
	})
	return p
}

func TestSubscribeOnRunsSourceOnScheduler(t *testing.T) {
	pool := newPool(t, 2)

	var onPool atomic.Bool
	src := reactive.Deferred(func(ctx context.Context) (string, bool, error) {
		onPool.Store(scheduler.Current(ctx) == scheduler.Scheduler(pool))
		return "hopped", true, nil
	})

	rxtest.Create(src.SubscribeOn(pool)).ExpectNext("hopped").VerifyComplete(t)
	tu.AssertEqual(t, onPool.Load(), true)
}

func TestSubscribeOnNearestSourceWins(t *testing.T) {
	first := newPool(t, 1)
	second := newPool(t, 1)

	var ranOn atomic.Value
	src := reactive.Deferred(func(ctx context.Context) (int, bool, error) {
		ranOn.Store(scheduler.Current(ctx))
		return 1, true, nil
	})

	rxtest.Create(src.SubscribeOn(first).SubscribeOn(second)).ExpectNext(1).VerifyComplete(t)
	if ranOn.Load() != scheduler.Scheduler(first) {
		t.Fatal("source did not run on the scheduler nearest to it")
	}
}

func TestSubscribeOnAfterPublishOnMovesOrigin(t *testing.T) {
	publish := newPool(t, 1)
	origin := newPool(t, 1)

	var ranOn, deliveredOn atomic.Value
	src := reactive.Deferred(func(ctx context.Context) (int, bool, error) {
		ranOn.Store(scheduler.Current(ctx))
		return 1, true, nil
	})
	where := reactive.TapFunc(func(ctx context.Context) reactive.SignalObserver {
		deliveredOn.Store(scheduler.Current(ctx))
		return reactive.ObserverFunc(func(reactive.Event) {})
	})

	v, ok, err := src.PublishOn(publish).Tap(where).SubscribeOn(origin).Block(context.Background())
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, ok, true)
	tu.AssertEqual(t, v, 1)
	if ranOn.Load() != scheduler.Scheduler(origin) {
		t.Fatal("origin did not run on the SubscribeOn scheduler")
	}
	if deliveredOn.Load() != scheduler.Scheduler(publish) {
		t.Fatal("values after PublishOn left its scheduler")
	}

	ranOn = atomic.Value{}
	_, _, err = src.PublishOn(publish).SubscribeOn(origin).SubscribeOn(publish).Block(context.Background())
	tu.AssertNoError(t, err)
	if ranOn.Load() != scheduler.Scheduler(origin) {
		t.Fatal("a later SubscribeOn replaced the one nearest the source")
	}
}

func TestPublishOnDeliversOffCaller(t *testing.T) {
	pool := newPool(t, 1)

	block := make(chan struct{})
	tu.AssertNoError(t, pool.Schedule(context.Background(), func(context.Context) { <-block }))

	rec := &recorder[int]{}
	sub := reactive.Range(0, 5).PublishOn(pool).Subscribe(context.Background(), rec)
	defer sub.Cancel()
	sub.Request(reactive.Unbounded)

	tu.AssertEqual(t, len(rec.snapshot().values), 0)

	close(block)
	tu.Eventually(t, func() bool { return rec.snapshot().completed == 1 }, tu.TestTimeout, time.Millisecond)

	values := rec.snapshot().values
	tu.AssertEqual(t, len(values), 5)
	for i, v := range values {
		tu.AssertEqual(t, v, i)
	}
}

func TestHopsPreserveOrder(t *testing.T) {
	source := newPool(t, 2)
	consumer := newPool(t, 2)

	src := reactive.Range(0, 500).
		SubscribeOn(source).
		PublishOn(consumer, reactive.WithPrefetch(4))
	doubled := reactive.Map(src, func(v int) int { return v * 2 })

	ctx, cancel := tu.WithTimeout(t)
	defer cancel()
	values, err := doubled.ToSlice(ctx)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, len(values), 500)
	for i, v := range values {
		if v != i*2 {
			t.Fatalf("values[%d] = %d, want %d", i, v, i*2)
		}
	}
}

func TestHopDoesNotHoldWorkersWhileParked(t *testing.T) {
	pool := newPool(t, 1)

	// The consumer stalls on the first value, so the hop fills its buffer
	// and has to give the only worker back for the second pipeline to run.
	first := reactive.Range(0, 100).SubscribeOn(pool)
	second := reactive.Just("second").SubscribeOn(pool)

	ctx, cancel := tu.WithTimeout(t)
	defer cancel()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	var count atomic.Int32
	go func() {
		done <- first.ForEach(ctx, func(v int) {
			if v == 0 {
				close(started)
				<-release
			}
			count.Add(1)
		})
	}()

	<-started
	rxtest.Create(second).ExpectNext("second").VerifyComplete(t)

	close(release)
	tu.AssertNoError(t, <-done)
	tu.AssertEqual(t, count.Load(), int32(100))
}

func TestDisposedSchedulerFailsSubscription(t *testing.T) {
	pool, err := scheduler.NewParallel(1)
	tu.AssertNoError(t, err)
	tu.AssertNoError(t, pool.Dispose(context.Background()))

	rxtest.Create(reactive.Range(0, 3).SubscribeOn(pool)).
		ExpectErrorMatches(func(err error) bool {
			var se *reactive.SchedulingError
			return errors.As(err, &se) && se.Scheduler == scheduler.NameParallel &&
				errors.Is(err, scheduler.ErrRejected)
		}).
		Verify(t)

	ctx, cancel := tu.WithTimeout(t)
	defer cancel()
	_, err = reactive.Range(0, 3).SubscribeOn(pool).ToSlice(ctx)
	var se *reactive.SchedulingError
	if !errors.As(err, &se) {
		t.Fatalf("ToSlice err = %v, want SchedulingError", err)
	}
}

func TestCancelPropagatesAcrossHop(t *testing.T) {
	pool := newPool(t, 2)

	var cancelled atomic.Bool
	src := reactive.Range(0, 1_000_000).
		DoOnCancel(func() { cancelled.Store(true) }).
		SubscribeOn(pool)

	rxtest.Create(src).
		WithInitialRequest(3).
		ExpectNext(0, 1, 2).
		ThenCancel().
		Verify(t)

	tu.Eventually(t, cancelled.Load, tu.TestTimeout, time.Millisecond)
}
