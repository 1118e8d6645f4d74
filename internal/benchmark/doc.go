// Package benchmark holds cross-package benchmarks for the reactive engine,
// its schedulers and its backpressure buffers.
//
//	go test -bench=. -benchmem ./internal/benchmark
package benchmark
