package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/vnykmshr/goflux/pkg/common/errors"
)

// ErrQueueFull is returned by TrySubmit when the task queue has no room.
var ErrQueueFull = fmt.Errorf("workerpool: queue full: %w", errors.ErrCapacityExceeded)

// ErrPoolClosed is returned when submitting to a pool that has been shut down.
var ErrPoolClosed = fmt.Errorf("workerpool: %w", errors.ErrClosed)

// Submit adds a task to the pool for execution.
// The task will be executed with context.Background().
// Use SubmitWithContext to provide a custom context.
func (p *workerPool) Submit(task Task) error {
	return p.SubmitWithContext(context.Background(), task)
}

// SubmitWithContext adds a task to the pool for execution with the given context.
// If the pool has a TaskTimeout configured, the effective timeout will be the
// minimum of the context deadline and TaskTimeout.
func (p *workerPool) SubmitWithContext(ctx context.Context, task Task) error {
	return p.submit(ctx, task, true)
}

// TrySubmit adds a task to the pool only if it can be queued immediately.
func (p *workerPool) TrySubmit(ctx context.Context, task Task) error {
	return p.submit(ctx, task, false)
}

func (p *workerPool) submit(ctx context.Context, task Task, wait bool) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Check if context is already canceled before attempting to queue
	select {
	case <-ctx.Done():
		return fmt.Errorf("cannot submit task: context canceled: %w", ctx.Err())
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.isShutdown {
		return ErrPoolClosed
	}

	qt := queuedTask{task: task, ctx: ctx, queuedAt: time.Now()}

	// Make sure someone will pick the task up before parking it in the queue.
	p.ensureWorker(1)

	select {
	case p.taskQueue <- qt:
		p.totalSubmitted.Add(1)
		p.ensureWorker(0)
		return nil
	default:
	}

	if !wait {
		return ErrQueueFull
	}

	select {
	case p.taskQueue <- qt:
		p.totalSubmitted.Add(1)
		p.ensureWorker(0)
		return nil
	case <-p.shutdownCh:
		return ErrPoolClosed
	case <-ctx.Done():
		return fmt.Errorf("cannot submit task: context canceled: %w", ctx.Err())
	}
}

// Shutdown initiates a graceful shutdown of the pool. Tasks already queued
// still run.
func (p *workerPool) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		close(p.shutdownCh)

		p.mu.Lock()
		p.isShutdown = true
		close(p.taskQueue)
		p.mu.Unlock()

		go func() {
			p.workerWg.Wait()
			p.log.Debug().Int64("completed", p.totalCompleted.Load()).Msg("worker pool stopped")
			close(p.done)
		}()
	})

	return p.done
}

// Size returns the maximum number of workers in the pool.
func (p *workerPool) Size() int {
	return p.config.WorkerCount
}

// Workers returns the number of live workers.
func (p *workerPool) Workers() int {
	return int(p.workers.Load())
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *workerPool) QueueSize() int {
	return len(p.taskQueue)
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (p *workerPool) ActiveWorkers() int {
	return int(p.activeWorkers.Load())
}

// TotalSubmitted returns the total number of tasks submitted to the pool.
func (p *workerPool) TotalSubmitted() int64 {
	return p.totalSubmitted.Load()
}

// TotalCompleted returns the total number of tasks completed by the pool.
func (p *workerPool) TotalCompleted() int64 {
	return p.totalCompleted.Load()
}

// ensureWorker spawns an elastic worker when idle workers cannot cover the
// queued tasks plus pending ones and the pool is below its maximum size.
// Callers hold p.mu for reading.
func (p *workerPool) ensureWorker(pending int) {
	if int(p.idle.Load()) >= len(p.taskQueue)+pending {
		return
	}
	p.spawnMu.Lock()
	defer p.spawnMu.Unlock()
	if int(p.idle.Load()) >= len(p.taskQueue)+pending || int(p.workers.Load()) >= p.config.WorkerCount {
		return
	}
	p.spawn(true)
}

// retire lets an idle elastic worker exit unless tasks are waiting. It runs
// under spawnMu so a concurrent submit either sees the worker gone or the
// worker sees the task.
func (p *workerPool) retire() bool {
	p.spawnMu.Lock()
	defer p.spawnMu.Unlock()
	if len(p.taskQueue) > 0 {
		return false
	}
	p.idle.Add(-1)
	p.workers.Add(-1)
	return true
}

// spawn starts a worker. Callers serialize through spawnMu or run during construction.
func (p *workerPool) spawn(elastic bool) {
	w := &worker{id: p.nextID, pool: p, elastic: elastic}
	p.nextID++
	p.workers.Add(1)
	p.idle.Add(1)
	p.workerWg.Add(1)
	go w.run()
}

// run is the main loop for a worker.
func (w *worker) run() {
	p := w.pool
	defer p.workerWg.Done()

	var idleTimer *time.Timer
	var idleC <-chan time.Time
	if w.elastic {
		idleTimer = time.NewTimer(p.config.IdleTimeout)
		defer idleTimer.Stop()
		idleC = idleTimer.C
	}

	for {
		select {
		case qt, ok := <-p.taskQueue:
			if !ok {
				p.idle.Add(-1)
				p.workers.Add(-1)
				return
			}
			p.idle.Add(-1)
			w.executeTask(qt)
			p.idle.Add(1)

			if idleTimer != nil {
				if !idleTimer.Stop() {
					select {
					case <-idleTimer.C:
					default:
					}
				}
				idleTimer.Reset(p.config.IdleTimeout)
			}
		case <-idleC:
			if p.retire() {
				return
			}
			idleTimer.Reset(p.config.IdleTimeout)
		}
	}
}

// executeTask executes a single task with the provided context.
func (w *worker) executeTask(qt queuedTask) {
	p := w.pool
	start := time.Now()
	var err error

	p.activeWorkers.Add(1)
	if p.config.OnTaskStart != nil {
		p.config.OnTaskStart(w.id, qt.task)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			if p.config.PanicHandler != nil {
				p.config.PanicHandler(qt.task, r)
			} else {
				p.log.Error().
					Int("worker", w.id).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("task panicked")
			}
		}

		p.activeWorkers.Add(-1)
		p.totalCompleted.Add(1)

		if p.config.OnTaskComplete != nil {
			p.config.OnTaskComplete(w.id, Result{
				Task:     qt.task,
				Error:    err,
				Duration: time.Since(start),
				WorkerID: w.id,
			})
		}
	}()

	ctx := qt.ctx
	if p.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.TaskTimeout)
		defer cancel()
	}

	err = qt.task.Execute(ctx)
}
