// Package metrics provides Prometheus instrumentation for goflux components.
//
// A Registry groups the collectors for schedulers, worker pools, reactive
// pipelines and server-sent event streams. Components accept a *Registry so
// tests can isolate collectors on a private prometheus.Registry:
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	pool := workerpool.NewWithMetrics(workerpool.Config{WorkerCount: 4}, "io", reg)
//
// Pipelines are instrumented through taps:
//
//	tapped := source.Tap(rxmetrics.NewTap(reg, "participants"))
//
// The rxmetrics package provides the taps, including one over an
// OpenTelemetry meter.
//
// # Available Metrics
//
//   - goflux_scheduler_tasks_scheduled_total{scheduler_name}
//   - goflux_scheduler_tasks_rejected_total{scheduler_name}
//   - goflux_scheduler_tasks_completed_total{scheduler_name}
//   - goflux_scheduler_tasks_failed_total{scheduler_name}
//   - goflux_scheduler_task_queue_wait_seconds{scheduler_name}
//   - goflux_scheduler_task_duration_seconds{scheduler_name}
//   - goflux_workerpool_size{pool_name}
//   - goflux_workerpool_live_workers{pool_name}
//   - goflux_workerpool_active_workers{pool_name}
//   - goflux_workerpool_queued_tasks{pool_name}
//   - goflux_reactive_subscriptions_total{pipeline}
//   - goflux_reactive_active_subscriptions{pipeline}
//   - goflux_reactive_signals_total{pipeline,kind}
//   - goflux_reactive_subscription_duration_seconds{pipeline,outcome}
//   - goflux_sse_events_written_total{stream}
//   - goflux_sse_open_streams{stream}
package metrics
