/*
Package scheduler provides the execution contexts reactive pipelines run on.

A Scheduler accepts tasks and runs them somewhere: inline on the caller
(Immediate, Virtual) or on a worker pool (Pool). Tasks receive a context
tagged with the scheduler that runs them, so code can ask which execution
context it is on with Current.

Two pool flavours cover the usual workloads:

	parallel, _ := scheduler.NewParallel(0)            // NumCPU fixed workers
	elastic, _ := scheduler.NewBoundedElastic(0)       // on-demand, capped, reaped when idle
	defer elastic.Dispose(context.Background())

Schedule never blocks for queue space. A full queue or a disposed pool
rejects the task with an error wrapping ErrRejected.

Applications normally own a Registry rather than individual pools:

	reg := scheduler.NewRegistry(scheduler.Config{}, scheduler.WithLogger(log))
	if err := reg.Init(); err != nil {
		return err
	}
	defer reg.Shutdown(ctx)

	many.SubscribeOn(reg.BoundedElastic())

Tests substitute NewVirtual, whose clock only moves when advanced.

ParseCron turns cron expressions (with optional seconds and descriptors such
as "@every 5s") into schedules for periodic sources.
*/
package scheduler
