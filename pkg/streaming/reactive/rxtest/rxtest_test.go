package rxtest_test

import (
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	tu "github.com/vnykmshr/goflux/internal/testutil"
	"github.com/vnykmshr/goflux/pkg/scheduling/scheduler"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive/rxtest"
)

var errBoom = errors.New("boom")

func TestExpectNextAndComplete(t *testing.T) {
	rxtest.Create(reactive.JustMany("a", "b")).
		ExpectNext("a", "b").
		VerifyComplete(t)
}

func TestFailureKinds(t *testing.T) {
	tests := []struct {
		name string
		v    *rxtest.Verifier[int]
		want error
	}{
		{
			name: "wrong value",
			v:    rxtest.Create(reactive.JustMany(1)).ExpectNext(2),
			want: rxtest.ErrValueMismatch,
		},
		{
			name: "error where value expected",
			v:    rxtest.Create(reactive.ErrorMany[int](errBoom)).ExpectNext(1),
			want: rxtest.ErrUnexpectedError,
		},
		{
			name: "error where completion expected",
			v:    rxtest.Create(reactive.ErrorMany[int](errBoom)).ExpectComplete(),
			want: rxtest.ErrUnexpectedError,
		},
		{
			name: "wrong error",
			v:    rxtest.Create(reactive.ErrorMany[int](errBoom)).ExpectError(reactive.ErrPanic),
			want: rxtest.ErrErrorMismatch,
		},
		{
			name: "missing error",
			v:    rxtest.Create(reactive.EmptyMany[int]()).ExpectError(errBoom),
			want: rxtest.ErrMissingError,
		},
		{
			name: "completion where value expected",
			v:    rxtest.Create(reactive.EmptyMany[int]()).ExpectNext(1),
			want: rxtest.ErrUnexpectedComplete,
		},
		{
			name: "value where completion expected",
			v:    rxtest.Create(reactive.JustMany(1)).ExpectComplete(),
			want: rxtest.ErrUnexpectedValue,
		},
		{
			name: "timeout",
			v: rxtest.Create(reactive.FromChannel(make(chan int))).
				WithTimeout(20 * time.Millisecond).
				ExpectNext(1),
			want: rxtest.ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.VerifyErr()
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExpectError(t *testing.T) {
	rxtest.Create(reactive.ErrorMany[int](errBoom)).
		ExpectError(errBoom).
		Verify(t)

	rxtest.Create(reactive.ErrorMany[int](errBoom)).
		ExpectErrorMatches(func(err error) bool {
			var ue *reactive.UpstreamError
			return errors.As(err, &ue)
		}).
		Verify(t)
}

func TestExpectNextCountAndMatches(t *testing.T) {
	rxtest.Create(reactive.Range(0, 10)).
		ExpectNextCount(9).
		ExpectNextMatches(func(v int) bool { return v == 9 }).
		VerifyComplete(t)
}

func TestDemandScripting(t *testing.T) {
	pub := rxtest.NewColdPublisher(1, 2, 3)

	rxtest.Create[int](pub).
		WithInitialRequest(0).
		Then(func() { tu.AssertEqual(t, pub.SubscribeCount(), 0) }).
		ThenRequest(1).
		ExpectNext(1).
		ThenRequest(2).
		ExpectNext(2, 3).
		VerifyComplete(t)

	tu.AssertEqual(t, pub.SubscribeCount(), 1)
}

func TestThenCancel(t *testing.T) {
	rxtest.Create(reactive.Range(0, 1_000_000)).
		WithInitialRequest(2).
		ExpectNext(0, 1).
		ThenCancel().
		Verify(t)
}

func TestRecording(t *testing.T) {
	rxtest.Create(reactive.JustMany(3, 1, 2)).
		RecordWith().
		ThenConsumeWhile(func(int) bool { return true }).
		ConsumeRecordedWith(func(got []int) error {
			sort.Ints(got)
			if fmt.Sprint(got) != "[1 2 3]" {
				return fmt.Errorf("recorded %v", got)
			}
			return nil
		}).
		VerifyComplete(t)

	err := rxtest.Create(reactive.JustMany(1)).
		RecordWith().
		ThenConsumeWhile(func(int) bool { return true }).
		ConsumeRecordedWith(func([]int) error { return errBoom }).
		VerifyErr()
	if !errors.Is(err, rxtest.ErrRecording) || !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want ErrRecording wrapping errBoom", err)
	}
}

func TestThenConsumeWhileStopsAtRejectedValue(t *testing.T) {
	rxtest.Create(reactive.Range(0, 5)).
		ThenConsumeWhile(func(v int) bool { return v < 3 }).
		ExpectNext(3, 4).
		VerifyComplete(t)
}

func TestThenAdvance(t *testing.T) {
	vs := scheduler.NewVirtual(nil)

	rxtest.Create(reactive.JustMany("x", "y").DelayElements(time.Hour, vs)).
		ThenAdvance(vs.VirtualClock(), time.Hour).
		ExpectNext("x").
		ThenAdvance(vs.VirtualClock(), time.Hour).
		ExpectNext("y").
		VerifyComplete(t)
}

func TestColdPublisher(t *testing.T) {
	pub := rxtest.NewColdPublisher("a", "b").FailWith(errBoom)

	for i := 0; i < 2; i++ {
		rxtest.Create(pub.Many()).
			ExpectNext("a", "b").
			ExpectError(errBoom).
			Verify(t)
	}
	tu.AssertEqual(t, pub.SubscribeCount(), 2)

	rxtest.Create(pub.Single()).
		ExpectNext("a").
		VerifyComplete(t)
	tu.AssertEqual(t, pub.SubscribeCount(), 3)
}
