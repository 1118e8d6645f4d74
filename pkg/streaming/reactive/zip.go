package reactive

import (
	"context"
	"sync"
)

// ZipAll subscribes to every source concurrently and emits combine applied
// to one value from each, in lockstep. It completes as soon as any source
// completes with no unconsumed values, and fails on the first error,
// cancelling the other sources.
func ZipAll[T, R any](sources []Many[T], combine func([]T) R, opts ...Option) Many[R] {
	if len(sources) == 0 {
		return EmptyMany[R]()
	}
	o := buildOptions(opts)
	return Many[R]{
		kind: "zip",
		open: func(ctx context.Context) Cursor[R] {
			return newZipCursor(ctx, sources, combine, o.prefetch)
		},
	}
}

// Zip2 pairs the values of a and b.
func Zip2[A, B, R any](a Many[A], b Many[B], combine func(A, B) R, opts ...Option) Many[R] {
	return ZipAll([]Many[any]{boxed(a), boxed(b)}, func(vs []any) R {
		a, _ := vs[0].(A)
		b, _ := vs[1].(B)
		return combine(a, b)
	}, opts...)
}

// Zip3 combines the values of a, b and c.
func Zip3[A, B, C, R any](a Many[A], b Many[B], c Many[C], combine func(A, B, C) R, opts ...Option) Many[R] {
	return ZipAll([]Many[any]{boxed(a), boxed(b), boxed(c)}, func(vs []any) R {
		a, _ := vs[0].(A)
		b, _ := vs[1].(B)
		c, _ := vs[2].(C)
		return combine(a, b, c)
	}, opts...)
}

// ZipSingles waits for every source and combines their values. It completes
// empty if any source is empty.
func ZipSingles[T, R any](sources []Single[T], combine func([]T) R) Single[R] {
	ms := make([]Many[T], len(sources))
	for i, s := range sources {
		ms[i] = s.m
	}
	return Single[R]{m: ZipAll(ms, combine, WithPrefetch(1))}
}

// ZipSingle2 combines the values of a and b.
func ZipSingle2[A, B, R any](a Single[A], b Single[B], combine func(A, B) R) Single[R] {
	return Single[R]{m: Zip2(a.m, b.m, combine, WithPrefetch(1))}
}

func boxed[T any](m Many[T]) Many[any] {
	return Map(m, func(v T) any { return v })
}

type zipCursor[T, R any] struct {
	cancel  context.CancelFunc
	combine func([]T) R
	out     chan tagged[T]
	tokens  []chan struct{}
	queues  [][]T
	done    []bool
	wg      sync.WaitGroup
	closed  bool
}

func newZipCursor[T, R any](ctx context.Context, sources []Many[T], combine func([]T) R, prefetch int) *zipCursor[T, R] {
	ctx, cancel := context.WithCancel(ctx)
	z := &zipCursor[T, R]{
		cancel:  cancel,
		combine: combine,
		out:     make(chan tagged[T], len(sources)*(prefetch+1)),
		tokens:  make([]chan struct{}, len(sources)),
		queues:  make([][]T, len(sources)),
		done:    make([]bool, len(sources)),
	}
	for i, src := range sources {
		tokens := make(chan struct{}, prefetch)
		for j := 0; j < prefetch; j++ {
			tokens <- struct{}{}
		}
		z.tokens[i] = tokens
		z.wg.Add(1)
		go func(i int, src Many[T]) {
			defer z.wg.Done()
			forward(ctx, i, src, tokens, z.out)
		}(i, src)
	}
	return z
}

func (z *zipCursor[T, R]) Next(ctx context.Context) (R, bool, error) {
	var zero R
	for {
		if z.closed {
			return zero, false, nil
		}
		if z.ready() {
			row := make([]T, len(z.queues))
			for i := range z.queues {
				row[i] = z.queues[i][0]
				z.queues[i] = z.queues[i][1:]
				z.tokens[i] <- struct{}{}
			}
			r, err := call("zip", func() (R, error) { return z.combine(row), nil })
			if err != nil {
				z.Close()
				return zero, false, err
			}
			return r, true, nil
		}
		if z.exhausted() {
			z.Close()
			return zero, false, nil
		}

		select {
		case t := <-z.out:
			if t.err != nil {
				z.Close()
				return zero, false, t.err
			}
			if t.done {
				z.done[t.idx] = true
				continue
			}
			z.queues[t.idx] = append(z.queues[t.idx], t.v)
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	}
}

func (z *zipCursor[T, R]) ready() bool {
	for _, q := range z.queues {
		if len(q) == 0 {
			return false
		}
	}
	return true
}

// exhausted reports whether some source finished with nothing left to pair.
func (z *zipCursor[T, R]) exhausted() bool {
	for i, d := range z.done {
		if d && len(z.queues[i]) == 0 {
			return true
		}
	}
	return false
}

func (z *zipCursor[T, R]) Close() error {
	if z.closed {
		return nil
	}
	z.closed = true
	z.cancel()
	z.wg.Wait()
	z.queues = nil
	return nil
}
