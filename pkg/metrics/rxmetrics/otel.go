package rxmetrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vnykmshr/goflux/pkg/streaming/reactive"
)

// OTelTap records pipeline signals with OpenTelemetry instruments:
//
//   - goflux.reactive.signals{pipeline,kind}
//   - goflux.reactive.active_subscriptions{pipeline}
//   - goflux.reactive.subscription.duration{pipeline,outcome} in seconds
type OTelTap struct {
	pipeline attribute.KeyValue
	signals  metric.Int64Counter
	active   metric.Int64UpDownCounter
	duration metric.Float64Histogram
}

// NewOTelTap creates the instruments on meter.
func NewOTelTap(meter metric.Meter, pipeline string) (*OTelTap, error) {
	signals, err := meter.Int64Counter("goflux.reactive.signals",
		metric.WithDescription("Signals observed on a pipeline, by kind"))
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter("goflux.reactive.active_subscriptions",
		metric.WithDescription("Subscriptions that have not terminated"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("goflux.reactive.subscription.duration",
		metric.WithDescription("Time from subscription to terminal signal or cancellation"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &OTelTap{
		pipeline: attribute.String("pipeline", pipeline),
		signals:  signals,
		active:   active,
		duration: duration,
	}, nil
}

// NewObserver implements reactive.SignalTap.
func (t *OTelTap) NewObserver(ctx context.Context) reactive.SignalObserver {
	return &otelObserver{tap: t, ctx: context.WithoutCancel(ctx)}
}

// otelObserver is driven by one subscription, whose signals are sequential.
type otelObserver struct {
	tap   *OTelTap
	ctx   context.Context
	start time.Time
	done  bool
}

func (o *otelObserver) Observe(e reactive.Event) {
	t := o.tap
	t.signals.Add(o.ctx, 1, metric.WithAttributes(t.pipeline, attribute.String("kind", e.Kind.String())))

	outcome := ""
	switch e.Kind {
	case reactive.KindSubscribe:
		o.start = time.Now()
		t.active.Add(o.ctx, 1, metric.WithAttributes(t.pipeline))
		return
	case reactive.KindComplete:
		outcome = OutcomeComplete
	case reactive.KindError:
		outcome = OutcomeError
	case reactive.KindCancel:
		outcome = OutcomeCancel
	default:
		return
	}
	if o.done || o.start.IsZero() {
		return
	}
	o.done = true
	t.active.Add(o.ctx, -1, metric.WithAttributes(t.pipeline))
	t.duration.Record(o.ctx, time.Since(o.start).Seconds(),
		metric.WithAttributes(t.pipeline, attribute.String("outcome", outcome)))
}
