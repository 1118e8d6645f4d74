package workerpool

import (
	"context"
	"time"

	"github.com/vnykmshr/goflux/pkg/metrics"
)

// MetricsPool wraps a worker Pool with Prometheus metrics collection.
type MetricsPool struct {
	pool     Pool
	name     string
	registry *metrics.Registry
}

// NewWithMetrics creates a worker pool whose tasks and occupancy are recorded
// in registry under name. A nil registry uses metrics.DefaultRegistry.
func NewWithMetrics(config Config, name string, registry *metrics.Registry) (*MetricsPool, error) {
	base, err := NewWithConfig(config)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = metrics.DefaultRegistry
	}

	mp := &MetricsPool{
		pool:     base,
		name:     name,
		registry: registry,
	}
	mp.registry.WorkerPoolSize.WithLabelValues(name).Set(float64(base.Size()))
	mp.updateMetrics()

	return mp, nil
}

// updateMetrics updates the current state metrics.
func (mp *MetricsPool) updateMetrics() {
	mp.registry.WorkerPoolLive.WithLabelValues(mp.name).Set(float64(mp.pool.Workers()))
	mp.registry.WorkerPoolActive.WithLabelValues(mp.name).Set(float64(mp.pool.ActiveWorkers()))
	mp.registry.WorkerPoolQueued.WithLabelValues(mp.name).Set(float64(mp.pool.QueueSize()))
}

// Submit adds a task to the pool for execution.
func (mp *MetricsPool) Submit(task Task) error {
	return mp.SubmitWithContext(context.Background(), task)
}

// SubmitWithContext submits a task with a context for cancellation.
func (mp *MetricsPool) SubmitWithContext(ctx context.Context, task Task) error {
	return mp.record(mp.pool.SubmitWithContext(ctx, mp.wrap(task)))
}

// TrySubmit submits a task only if it can be queued immediately.
func (mp *MetricsPool) TrySubmit(ctx context.Context, task Task) error {
	return mp.record(mp.pool.TrySubmit(ctx, mp.wrap(task)))
}

func (mp *MetricsPool) wrap(task Task) Task {
	return &metricsTask{
		original:   task,
		pool:       mp,
		submitTime: time.Now(),
	}
}

func (mp *MetricsPool) record(err error) error {
	if err != nil {
		mp.registry.TasksRejected.WithLabelValues(mp.name).Inc()
	} else {
		mp.registry.TasksScheduled.WithLabelValues(mp.name).Inc()
	}
	mp.updateMetrics()
	return err
}

// metricsTask wraps a Task to collect execution metrics.
type metricsTask struct {
	original   Task
	pool       *MetricsPool
	submitTime time.Time
}

// Execute runs the original task and records metrics.
func (mt *metricsTask) Execute(ctx context.Context) (err error) {
	reg, name := mt.pool.registry, mt.pool.name
	start := time.Now()
	reg.TaskQueueWait.WithLabelValues(name).Observe(start.Sub(mt.submitTime).Seconds())

	// Panics still propagate to the worker; record them as failures first.
	defer func() {
		reg.TaskExecutionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			reg.TasksFailed.WithLabelValues(name).Inc()
			mt.pool.updateMetrics()
			panic(r)
		}
		if err != nil {
			reg.TasksFailed.WithLabelValues(name).Inc()
		} else {
			reg.TasksCompleted.WithLabelValues(name).Inc()
		}
		mt.pool.updateMetrics()
	}()

	return mt.original.Execute(ctx)
}

// Shutdown initiates graceful shutdown of the pool.
func (mp *MetricsPool) Shutdown() <-chan struct{} {
	return mp.pool.Shutdown()
}

// Size returns the maximum number of workers.
func (mp *MetricsPool) Size() int {
	return mp.pool.Size()
}

// Workers returns the number of live workers.
func (mp *MetricsPool) Workers() int {
	return mp.pool.Workers()
}

// QueueSize returns the current number of queued tasks.
func (mp *MetricsPool) QueueSize() int {
	return mp.pool.QueueSize()
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (mp *MetricsPool) ActiveWorkers() int {
	return mp.pool.ActiveWorkers()
}

// TotalSubmitted returns the total number of tasks submitted.
func (mp *MetricsPool) TotalSubmitted() int64 {
	return mp.pool.TotalSubmitted()
}

// TotalCompleted returns the total number of tasks completed.
func (mp *MetricsPool) TotalCompleted() int64 {
	return mp.pool.TotalCompleted()
}
