package benchmark

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/vnykmshr/goflux/pkg/scheduling/scheduler"
)

// BenchmarkSchedule measures task hand-off to a pool.
func BenchmarkSchedule(b *testing.B) {
	for _, workers := range []int{1, 4, 8} {
		b.Run(strconv.Itoa(workers)+"workers", func(b *testing.B) {
			pool := newPool(b, workers)

			var wg sync.WaitGroup
			task := func(context.Context) { wg.Done() }

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				wg.Add(1)
				if err := pool.Schedule(context.Background(), task); err != nil {
					wg.Done()
					b.Fatal(err)
				}
			}
			wg.Wait()
		})
	}
}

// BenchmarkScheduleElastic measures hand-off when workers are created on
// demand.
func BenchmarkScheduleElastic(b *testing.B) {
	pool, err := scheduler.NewBoundedElastic(16)
	if err != nil {
		b.Fatal(err)
	}
	defer func() { _ = pool.Dispose(context.Background()) }()

	var wg sync.WaitGroup
	task := func(context.Context) { wg.Done() }

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			wg.Add(1)
			if err := pool.Schedule(context.Background(), task); err != nil {
				wg.Done()
			}
		}
	})
	wg.Wait()
}
