package reactive_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	tu "github.com/vnykmshr/goflux/internal/testutil"
	gferrors "github.com/vnykmshr/goflux/pkg/common/errors"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive/rxtest"
)

func TestRangeInOrder(t *testing.T) {
	rxtest.Create(reactive.Range(1, 10)).
		ExpectNext(1, 2, 3, 4, 5, 6, 7, 8, 9, 10).
		VerifyComplete(t)

	rxtest.Create(reactive.Range(5, 0)).VerifyComplete(t)

	rxtest.Create(reactive.Range(0, -1)).
		ExpectError(gferrors.ErrInvalidConfiguration).
		Verify(t)

	rxtest.Create(reactive.Range(math.MaxInt-2, 2)).
		ExpectNext(math.MaxInt-2, math.MaxInt-1).
		VerifyComplete(t)

	rxtest.Create(reactive.Range(math.MaxInt-1, 2)).
		ExpectError(gferrors.ErrInvalidConfiguration).
		Verify(t)
}

func TestSources(t *testing.T) {
	rxtest.Create(reactive.FromSlice([]string{"a", "b"})).ExpectNext("a", "b").VerifyComplete(t)
	rxtest.Create(reactive.JustMany[int]()).VerifyComplete(t)
	rxtest.Create(reactive.EmptyMany[int]()).VerifyComplete(t)

	ch := make(chan int, 3)
	ch <- 1
	ch <- 2
	close(ch)
	rxtest.Create(reactive.FromChannel(ch)).ExpectNext(1, 2).VerifyComplete(t)
}

func TestFromCursor(t *testing.T) {
	i := 0
	src := reactive.FromCursor(func(context.Context) (reactive.Cursor[int], error) {
		i = 0
		return reactive.CursorFunc[int](func(context.Context) (int, bool, error) {
			i++
			if i > 3 {
				return 0, false, errSomeFailure
			}
			return i, true, nil
		}), nil
	})
	rxtest.Create(src).
		ExpectNext(1, 2, 3).
		ExpectErrorMatches(func(err error) bool {
			var ue *reactive.UpstreamError
			return errors.As(err, &ue) && errors.Is(err, errSomeFailure)
		}).
		Verify(t)

	failing := reactive.FromCursor(func(context.Context) (reactive.Cursor[int], error) {
		return nil, errSomeFailure
	})
	rxtest.Create(failing).ExpectError(errSomeFailure).Verify(t)
}

func TestMap(t *testing.T) {
	upper := reactive.Map(reactive.JustMany("breeze", "freeze"), strings.ToUpper)
	rxtest.Create(upper).ExpectNext("BREEZE", "FREEZE").VerifyComplete(t)
}

func TestMapPanicStopsUpstream(t *testing.T) {
	pulled := 0
	src := reactive.Range(1, 100).DoOnNext(func(int) { pulled++ })
	failing := reactive.Map(src, func(v int) int {
		if v == 3 {
			panic("bad value")
		}
		return v
	})

	rxtest.Create(failing).
		ExpectNext(1, 2).
		ExpectErrorMatches(func(err error) bool {
			var oe *reactive.OperatorError
			return errors.As(err, &oe) && oe.Op == "map" && errors.Is(err, reactive.ErrPanic)
		}).
		Verify(t)
	tu.AssertEqual(t, pulled, 3)
}

func TestMapErr(t *testing.T) {
	parsed := reactive.MapErr(reactive.JustMany("1", "x"), func(s string) (int, error) {
		var v int
		_, err := fmt.Sscanf(s, "%d", &v)
		return v, err
	})
	rxtest.Create(parsed).
		ExpectNext(1).
		ExpectErrorMatches(func(err error) bool {
			var oe *reactive.OperatorError
			return errors.As(err, &oe)
		}).
		Verify(t)
}

func TestFilterDoesNotConsumeDemand(t *testing.T) {
	even := reactive.Range(1, 10).Filter(func(v int) bool { return v%2 == 0 })

	rxtest.Create(even).
		WithInitialRequest(2).
		ExpectNext(2, 4).
		ThenRequest(3).
		ExpectNext(6, 8, 10).
		VerifyComplete(t)

	rxtest.Create(reactive.Range(1, 3).Filter(func(int) bool { panic("predicate") })).
		ExpectError(reactive.ErrPanic).
		Verify(t)
}

func TestTake(t *testing.T) {
	rxtest.Create(reactive.Range(0, 1_000_000).Take(3)).ExpectNext(0, 1, 2).VerifyComplete(t)
	rxtest.Create(reactive.Range(0, 2).Take(5)).ExpectNext(0, 1).VerifyComplete(t)
	rxtest.Create(reactive.Range(0, 2).Take(0)).VerifyComplete(t)
}

func TestBuffer(t *testing.T) {
	rxtest.Create(reactive.Buffer(reactive.Range(1, 7), 3)).
		ExpectNext([]int{1, 2, 3}, []int{4, 5, 6}, []int{7}).
		VerifyComplete(t)

	rxtest.Create(reactive.Buffer(reactive.Range(1, 6), 3)).
		ExpectNext([]int{1, 2, 3}, []int{4, 5, 6}).
		VerifyComplete(t)

	rxtest.Create(reactive.Buffer(reactive.Range(1, 3), 0)).
		ExpectError(gferrors.ErrInvalidConfiguration).
		Verify(t)
}

func TestBufferDiscardsPartialBatchOnError(t *testing.T) {
	src := reactive.ConcatMap(reactive.JustMany(1, 2), func(v int) reactive.Many[int] {
		if v == 2 {
			return reactive.ErrorMany[int](errSomeFailure)
		}
		return reactive.JustMany(v)
	})
	rxtest.Create(reactive.Buffer(src, 5)).ExpectError(errSomeFailure).Verify(t)
}

func TestCollectList(t *testing.T) {
	rxtest.Create(reactive.CollectList(reactive.Range(1, 3))).
		ExpectNext([]int{1, 2, 3}).
		VerifyComplete(t)

	rxtest.Create(reactive.CollectList(reactive.EmptyMany[int]())).
		ExpectNext([]int{}).
		VerifyComplete(t)
}

func TestConcatMap(t *testing.T) {
	src := reactive.ConcatMap(reactive.Range(1, 3), func(n int) reactive.Many[string] {
		return reactive.Map(reactive.Range(0, n), func(i int) string { return fmt.Sprintf("%d.%d", n, i) })
	})
	rxtest.Create(src).
		ExpectNext("1.0", "2.0", "2.1", "3.0", "3.1", "3.2").
		VerifyComplete(t)
}

func TestTerminals(t *testing.T) {
	ctx, cancel := tu.WithTimeout(t)
	defer cancel()

	values, err := reactive.Range(1, 4).ToSlice(ctx)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, fmt.Sprint(values), "[1 2 3 4]")

	n, err := reactive.Range(1, 4).Count(ctx)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, n, int64(4))

	first, ok, err := reactive.Range(1, 4).BlockFirst(ctx)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, ok, true)
	tu.AssertEqual(t, first, 1)

	last, ok, err := reactive.Range(1, 4).BlockLast(ctx)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, ok, true)
	tu.AssertEqual(t, last, 4)

	_, ok, err = reactive.EmptyMany[int]().BlockLast(ctx)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, ok, false)

	sum := 0
	err = reactive.Range(1, 4).ForEach(ctx, func(v int) { sum += v })
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, sum, 10)

	_, err = reactive.ErrorMany[int](errSomeFailure).ToSlice(ctx)
	if !errors.Is(err, errSomeFailure) {
		t.Fatalf("ToSlice err = %v, want %v", err, errSomeFailure)
	}
}

func TestKind(t *testing.T) {
	tu.AssertEqual(t, reactive.Range(0, 1).Kind(), "range")
	tu.AssertEqual(t, reactive.Range(0, 1).Filter(func(int) bool { return true }).Kind(), "filter")
	tu.AssertEqual(t, reactive.Just(1).Kind(), "just")
	tu.AssertEqual(t, reactive.Many[int]{}.Kind(), "empty")
}

func TestZeroValueManyCompletes(t *testing.T) {
	rxtest.Create(reactive.Many[int]{}).VerifyComplete(t)
}
