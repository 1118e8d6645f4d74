/*
Package workerpool provides the bounded worker pools that back goflux schedulers.

A pool runs tasks on at most WorkerCount goroutines and parks excess tasks in a
bounded queue. A fixed pool keeps every worker alive; setting IdleTimeout makes
the pool elastic, spawning workers on demand and reaping them once idle:

	pool, err := workerpool.NewWithConfig(workerpool.Config{
		WorkerCount: 64,
		QueueSize:   100000,
		IdleTimeout: time.Minute,
	})
	if err != nil {
		return err
	}
	defer func() { <-pool.Shutdown() }()

	err = pool.TrySubmit(ctx, workerpool.TaskFunc(func(ctx context.Context) error {
		return process(ctx)
	}))

TrySubmit never waits for queue space and reports ErrQueueFull instead, which
is what schedulers rely on so that a worker can never block on its own queue.
Submit and SubmitWithContext wait for room.

Panics inside tasks are recovered. They are passed to Config.PanicHandler when
set and logged through Config.Logger otherwise; the worker keeps running.
Completion is reported through Config.OnTaskComplete.

Shutdown stops accepting tasks, lets queued tasks run, and closes the returned
channel once every worker has exited.

NewWithMetrics wraps a pool with Prometheus collectors from the metrics package.
*/
package workerpool
