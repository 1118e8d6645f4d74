/*
Package goflux is a reactive-stream execution engine for Go: lazily
described asynchronous computations, demand-driven delivery and explicit
schedulers.

Reactive streams (pkg/streaming):
  - reactive: Single and Many sources, operators, subscriptions with demand
  - reactive/rxtest: step verifier and cold test publisher
  - channel: backpressure buffers behind OnBackpressureBuffer
  - sse: server-sent events sink that requests one value at a time

Scheduling (pkg/scheduling):
  - scheduler: immediate, parallel and bounded elastic schedulers, registry
  - workerpool: fixed and elastic worker pools backing the schedulers
  - concurrency: slot limiter bounding flatMap fan-out
  - clock: real and virtual time

Supporting packages:
  - metrics, metrics/rxmetrics: Prometheus registry and pipeline taps
  - repository: participant stores on Redis and SQL returning reactive sources
  - config, logger: viper configuration and zerolog logging

Example usage:

	import (
		"github.com/vnykmshr/goflux/pkg/scheduling/scheduler"
		"github.com/vnykmshr/goflux/pkg/streaming/reactive"
	)

	pool, _ := scheduler.NewParallel(4)
	defer pool.Dispose(ctx)

	squares := reactive.Map(reactive.Range(1, 10), func(n int) int { return n * n }).
		PublishOn(pool)
	values, err := squares.ToSlice(ctx)
*/
package goflux
