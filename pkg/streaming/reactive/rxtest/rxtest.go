package rxtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vnykmshr/goflux/pkg/scheduling/clock"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive"
)

// DefaultTimeout bounds how long Verify waits for any single signal.
const DefaultTimeout = 5 * time.Second

var (
	// ErrTimeout is reported when an expected signal does not arrive in time.
	ErrTimeout = errors.New("rxtest: timed out waiting for signal")

	// ErrValueMismatch is reported when a value differs from the expected one.
	ErrValueMismatch = errors.New("rxtest: unexpected value")

	// ErrUnexpectedValue is reported when a value arrives where a terminal
	// signal was expected.
	ErrUnexpectedValue = errors.New("rxtest: value where terminal signal expected")

	// ErrUnexpectedError is reported when the source fails where a value or
	// completion was expected.
	ErrUnexpectedError = errors.New("rxtest: unexpected error")

	// ErrErrorMismatch is reported when the source fails with the wrong error.
	ErrErrorMismatch = errors.New("rxtest: error of the wrong kind")

	// ErrMissingError is reported when the source completes where an error
	// was expected.
	ErrMissingError = errors.New("rxtest: completed where error expected")

	// ErrUnexpectedComplete is reported when the source completes where a
	// value was expected.
	ErrUnexpectedComplete = errors.New("rxtest: completed where value expected")

	// ErrRecording is reported when a recording assertion rejects the
	// recorded values.
	ErrRecording = errors.New("rxtest: recorded values rejected")
)

type signalKind int

const (
	signalNext signalKind = iota
	signalError
	signalComplete
)

type signal[T any] struct {
	kind signalKind
	v    T
	err  error
}

func (s signal[T]) String() string {
	switch s.kind {
	case signalNext:
		return fmt.Sprintf("next(%#v)", s.v)
	case signalError:
		return fmt.Sprintf("error(%v)", s.err)
	default:
		return "complete"
	}
}

// Verifier subscribes to a source and checks the signals it emits against a
// script of expectations. Build the script with the Expect and Then methods
// and run it with Verify.
type Verifier[T any] struct {
	src     reactive.Publisher[T]
	steps   []step[T]
	initial int64
	timeout time.Duration
}

type step[T any] struct {
	desc string
	run  func(r *run[T]) error
}

// Create starts a script for src. By default the subscriber requests
// reactive.Unbounded on subscription.
func Create[T any](src reactive.Publisher[T]) *Verifier[T] {
	return &Verifier[T]{src: src, initial: reactive.Unbounded, timeout: DefaultTimeout}
}

// WithInitialRequest sets the demand requested on subscription. Zero
// requests nothing until ThenRequest.
func (v *Verifier[T]) WithInitialRequest(n int64) *Verifier[T] {
	v.initial = n
	return v
}

// WithTimeout bounds the wait for each signal.
func (v *Verifier[T]) WithTimeout(d time.Duration) *Verifier[T] {
	v.timeout = d
	return v
}

func (v *Verifier[T]) add(desc string, fn func(r *run[T]) error) *Verifier[T] {
	v.steps = append(v.steps, step[T]{desc: desc, run: fn})
	return v
}

// ExpectNext expects the given values, in order.
func (v *Verifier[T]) ExpectNext(values ...T) *Verifier[T] {
	for _, want := range values {
		want := want
		v.add(fmt.Sprintf("expectNext(%#v)", want), func(r *run[T]) error {
			got, err := r.nextValue()
			if err != nil {
				return err
			}
			if !assert.ObjectsAreEqual(want, got) {
				return fmt.Errorf("%w: want %#v, got %#v", ErrValueMismatch, want, got)
			}
			return nil
		})
	}
	return v
}

// ExpectNextCount expects n values, whatever they are.
func (v *Verifier[T]) ExpectNextCount(n int) *Verifier[T] {
	return v.add(fmt.Sprintf("expectNextCount(%d)", n), func(r *run[T]) error {
		for i := 0; i < n; i++ {
			if _, err := r.nextValue(); err != nil {
				return fmt.Errorf("value %d of %d: %w", i+1, n, err)
			}
		}
		return nil
	})
}

// ExpectNextMatches expects one value accepted by pred.
func (v *Verifier[T]) ExpectNextMatches(pred func(T) bool) *Verifier[T] {
	return v.add("expectNextMatches", func(r *run[T]) error {
		got, err := r.nextValue()
		if err != nil {
			return err
		}
		if !pred(got) {
			return fmt.Errorf("%w: %#v rejected by predicate", ErrValueMismatch, got)
		}
		return nil
	})
}

// ExpectError expects the source to fail with an error matching target
// under errors.Is. A nil target accepts any error.
func (v *Verifier[T]) ExpectError(target error) *Verifier[T] {
	return v.ExpectErrorMatches(func(err error) bool {
		return target == nil || errors.Is(err, target)
	})
}

// ExpectErrorMatches expects the source to fail with an error accepted by
// pred.
func (v *Verifier[T]) ExpectErrorMatches(pred func(error) bool) *Verifier[T] {
	return v.add("expectError", func(r *run[T]) error {
		s, err := r.take()
		if err != nil {
			return err
		}
		switch s.kind {
		case signalNext:
			return fmt.Errorf("%w: %s", ErrUnexpectedValue, s)
		case signalComplete:
			return ErrMissingError
		}
		if !pred(s.err) {
			return fmt.Errorf("%w: %v", ErrErrorMismatch, s.err)
		}
		return nil
	})
}

// ExpectComplete expects successful completion.
func (v *Verifier[T]) ExpectComplete() *Verifier[T] {
	return v.add("expectComplete", func(r *run[T]) error {
		s, err := r.take()
		if err != nil {
			return err
		}
		switch s.kind {
		case signalNext:
			return fmt.Errorf("%w: %s", ErrUnexpectedValue, s)
		case signalError:
			return fmt.Errorf("%w: %v", ErrUnexpectedError, s.err)
		}
		return nil
	})
}

// RecordWith starts recording the values consumed by ThenConsumeWhile.
func (v *Verifier[T]) RecordWith() *Verifier[T] {
	return v.add("recordWith", func(r *run[T]) error {
		r.recording = true
		r.recorded = nil
		return nil
	})
}

// ThenConsumeWhile consumes values while pred accepts them. The first
// rejected value and any terminal signal are left for the next step.
func (v *Verifier[T]) ThenConsumeWhile(pred func(T) bool) *Verifier[T] {
	return v.add("thenConsumeWhile", func(r *run[T]) error {
		for {
			s, err := r.peek()
			if err != nil {
				return err
			}
			if s.kind != signalNext || !pred(s.v) {
				return nil
			}
			r.pop()
			if r.recording {
				r.recorded = append(r.recorded, s.v)
			}
		}
	})
}

// ConsumeRecordedWith hands the recorded values to check and fails the
// verification if it returns an error.
func (v *Verifier[T]) ConsumeRecordedWith(check func(recorded []T) error) *Verifier[T] {
	return v.add("consumeRecordedWith", func(r *run[T]) error {
		recorded := r.recorded
		r.recording = false
		r.recorded = nil
		if err := check(recorded); err != nil {
			return fmt.Errorf("%w: %w", ErrRecording, err)
		}
		return nil
	})
}

// ThenRequest requests n more values.
func (v *Verifier[T]) ThenRequest(n int64) *Verifier[T] {
	return v.add(fmt.Sprintf("thenRequest(%d)", n), func(r *run[T]) error {
		r.request(n)
		return nil
	})
}

// ThenCancel cancels the subscription. No later step may expect a signal.
func (v *Verifier[T]) ThenCancel() *Verifier[T] {
	return v.add("thenCancel", func(r *run[T]) error {
		r.cancel()
		return nil
	})
}

// ThenAdvance waits until at least one timer is pending on c, then moves
// it forward by d.
func (v *Verifier[T]) ThenAdvance(c *clock.Virtual, d time.Duration) *Verifier[T] {
	return v.add(fmt.Sprintf("thenAdvance(%s)", d), func(r *run[T]) error {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := c.BlockUntil(ctx, 1); err != nil {
			return fmt.Errorf("%w: no timer pending", ErrTimeout)
		}
		c.Advance(d)
		return nil
	})
}

// Then runs f between steps, for example to trigger an external producer.
func (v *Verifier[T]) Then(f func()) *Verifier[T] {
	return v.add("then", func(*run[T]) error {
		f()
		return nil
	})
}

// VerifyErr subscribes, runs the script and cancels the subscription. It
// returns the first failed expectation.
func (v *Verifier[T]) VerifyErr() error {
	r := newRun(v)
	defer r.close()

	r.subscribe()
	for i, s := range v.steps {
		if err := s.run(r); err != nil {
			return fmt.Errorf("step %d %s: %w", i+1, s.desc, err)
		}
	}
	return nil
}

// Verify runs the script and fails t on the first failed expectation.
func (v *Verifier[T]) Verify(t testing.TB) {
	t.Helper()
	if err := v.VerifyErr(); err != nil {
		t.Fatal(err)
	}
}

// VerifyComplete expects completion and runs the script.
func (v *Verifier[T]) VerifyComplete(t testing.TB) {
	t.Helper()
	v.ExpectComplete().Verify(t)
}

// run is one execution of a script: a subscriber that queues every signal
// for the steps to consume.
type run[T any] struct {
	v       *Verifier[T]
	timeout time.Duration
	ctx     context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	queue   []signal[T]
	changed chan struct{}
	sub     reactive.Subscription
	subDone chan struct{}

	wg sync.WaitGroup

	recording bool
	recorded  []T
}

func newRun[T any](v *Verifier[T]) *run[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &run[T]{
		v:       v,
		timeout: v.timeout,
		ctx:     ctx,
		stop:    cancel,
		changed: make(chan struct{}),
		subDone: make(chan struct{}),
	}
}

func (r *run[T]) subscribe() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.v.src.Subscribe(r.ctx, r)
	}()
}

func (r *run[T]) OnSubscribe(s reactive.Subscription) {
	r.mu.Lock()
	r.sub = s
	r.mu.Unlock()
	close(r.subDone)
	if r.v.initial > 0 {
		s.Request(r.v.initial)
	}
}

func (r *run[T]) OnNext(v T)        { r.push(signal[T]{kind: signalNext, v: v}) }
func (r *run[T]) OnError(err error) { r.push(signal[T]{kind: signalError, err: err}) }
func (r *run[T]) OnComplete()       { r.push(signal[T]{kind: signalComplete}) }

func (r *run[T]) push(s signal[T]) {
	r.mu.Lock()
	r.queue = append(r.queue, s)
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()
}

func (r *run[T]) subscription() (reactive.Subscription, error) {
	select {
	case <-r.subDone:
	case <-time.After(r.timeout):
		return nil, fmt.Errorf("%w: no subscription", ErrTimeout)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub, nil
}

func (r *run[T]) request(n int64) {
	sub, err := r.subscription()
	if err != nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		sub.Request(n)
	}()
}

func (r *run[T]) cancel() {
	if sub, err := r.subscription(); err == nil {
		sub.Cancel()
	}
}

// peek waits for the next signal without consuming it.
func (r *run[T]) peek() (signal[T], error) {
	deadline := time.NewTimer(r.timeout)
	defer deadline.Stop()
	for {
		r.mu.Lock()
		if len(r.queue) > 0 {
			s := r.queue[0]
			r.mu.Unlock()
			return s, nil
		}
		wait := r.changed
		r.mu.Unlock()

		select {
		case <-wait:
		case <-deadline.C:
			return signal[T]{}, ErrTimeout
		}
	}
}

func (r *run[T]) pop() {
	r.mu.Lock()
	r.queue = r.queue[1:]
	r.mu.Unlock()
}

func (r *run[T]) take() (signal[T], error) {
	s, err := r.peek()
	if err != nil {
		return s, err
	}
	r.pop()
	return s, nil
}

func (r *run[T]) nextValue() (T, error) {
	var zero T
	s, err := r.take()
	if err != nil {
		return zero, err
	}
	switch s.kind {
	case signalError:
		return zero, fmt.Errorf("%w: %v", ErrUnexpectedError, s.err)
	case signalComplete:
		return zero, ErrUnexpectedComplete
	}
	return s.v, nil
}

// close cancels the subscription and waits, up to the timeout, for the
// goroutines driving it.
func (r *run[T]) close() {
	r.stop()
	select {
	case <-r.subDone:
		r.sub.Cancel()
	default:
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(r.timeout):
	}
}
