/*
Package scheduling provides the execution primitives the reactive engine runs
on.

  - scheduler: named execution contexts (immediate, parallel, boundedElastic)
    with an explicit Registry lifecycle and cron parsing
  - workerpool: fixed and elastic worker pools
  - concurrency: a counting limiter for bounded fan-out
  - clock: real and virtual time sources

Schedulers:

	reg := scheduler.NewRegistry(scheduler.Config{ParallelWorkers: 4})
	if err := reg.Init(); err != nil {
		return err
	}
	defer reg.Shutdown(ctx)

	err := reg.Parallel().Schedule(ctx, func(ctx context.Context) {
		// runs on a parallel worker; scheduler.Current(ctx) reports it
	})

Virtual time:

	vc := clock.NewVirtual(time.Unix(0, 0))
	s := scheduler.NewVirtual(vc)
	ticks := reactive.Interval(time.Second, s)
	vc.Advance(3 * time.Second)

All components are safe for concurrent use and honour context cancellation.
*/
package scheduling
