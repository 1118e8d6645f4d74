package rxmetrics

import (
	"context"
	"sync"
	"time"

	"github.com/vnykmshr/goflux/pkg/metrics"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive"
)

// Outcomes recorded in SubscriptionDuration.
const (
	OutcomeComplete = "complete"
	OutcomeError    = "error"
	OutcomeCancel   = "cancel"
)

// Tap records the signals of a pipeline in a metrics.Registry. Attach it with
// Many.Tap or Single.Tap; every subscription gets its own observer.
type Tap struct {
	reg      *metrics.Registry
	pipeline string
	now      func() time.Time
}

// NewTap creates a tap labelling its metrics with pipeline. A nil reg uses
// metrics.DefaultRegistry.
func NewTap(reg *metrics.Registry, pipeline string) *Tap {
	if reg == nil {
		reg = metrics.DefaultRegistry
	}
	return &Tap{reg: reg, pipeline: pipeline, now: time.Now}
}

// NewObserver implements reactive.SignalTap.
func (t *Tap) NewObserver(context.Context) reactive.SignalObserver {
	return &tapObserver{tap: t}
}

type tapObserver struct {
	tap   *Tap
	mu    sync.Mutex
	start time.Time
	done  bool
}

func (o *tapObserver) Observe(e reactive.Event) {
	t := o.tap
	t.reg.Signals.WithLabelValues(t.pipeline, e.Kind.String()).Inc()

	switch e.Kind {
	case reactive.KindSubscribe:
		o.mu.Lock()
		o.start = t.now()
		o.mu.Unlock()
		t.reg.Subscriptions.WithLabelValues(t.pipeline).Inc()
		t.reg.ActiveSubscriptions.WithLabelValues(t.pipeline).Inc()
	case reactive.KindComplete:
		o.finish(OutcomeComplete)
	case reactive.KindError:
		o.finish(OutcomeError)
	case reactive.KindCancel:
		o.finish(OutcomeCancel)
	}
}

func (o *tapObserver) finish(outcome string) {
	o.mu.Lock()
	if o.done || o.start.IsZero() {
		o.mu.Unlock()
		return
	}
	o.done = true
	elapsed := o.tap.now().Sub(o.start)
	o.mu.Unlock()

	t := o.tap
	t.reg.ActiveSubscriptions.WithLabelValues(t.pipeline).Dec()
	t.reg.SubscriptionDuration.WithLabelValues(t.pipeline, outcome).Observe(elapsed.Seconds())
}
