/*
Package reactive represents asynchronous computations as lazy pipelines of
zero, one or many values.

A Many[T] or Single[T] is only a description. Building a pipeline runs
nothing; work starts when a subscriber requests values, and every
subscription runs the whole chain again unless it is cached:

	names := reactive.Map(
		reactive.Range(1, 100).Filter(func(i int) bool { return i%2 == 0 }),
		func(i int) string { return "freeze " + strconv.Itoa(i) },
	)

	sub := names.Subscribe(ctx, reactive.SubscriberFuncs[string]{
		Next:  func(s string) { fmt.Println(s) },
		Error: func(err error) { log.Error().Err(err).Msg("stream failed") },
	})
	defer sub.Cancel()

Subscribers pull with Request; a source never emits more values than were
requested. Terminal helpers such as ToSlice, ForEach and Block drive a
pipeline to completion on the calling goroutine.

# Schedulers

Values are delivered synchronously on the goroutine that requested them
until a pipeline hops to a scheduler. SubscribeOn picks where the source
runs and PublishOn picks where downstream operators run:

	users.SubscribeOn(reg.BoundedElastic()).PublishOn(reg.Parallel())

A hop is a bounded buffer filled by scheduler tasks. When the buffer is full
the task returns its worker to the pool and is rescheduled once the consumer
makes room.

# Concurrency

FlatMap, FlatMapSequential, Zip and Parallel subscribe to several sources at
once. FlatMap emits in arrival order, FlatMapSequential in source order.
Parallel deals values round-robin to rails and only guarantees that every
value arrives exactly once.

# Errors

Failures are classified: sources fail with *UpstreamError, user functions
that return an error or panic fail with *OperatorError, and rejected
scheduler tasks fail with *SchedulingError. errors.Is reaches the cause, and
ErrPanic matches every recovered panic.

Cache runs its source at most once and replays the outcome to every
subscriber, including those that arrive while it is still running.
*/
package reactive
