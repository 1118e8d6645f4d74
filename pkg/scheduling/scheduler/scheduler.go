package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/vnykmshr/goflux/pkg/scheduling/clock"
)

// Well-known scheduler names.
const (
	NameImmediate      = "immediate"
	NameParallel       = "parallel"
	NameBoundedElastic = "boundedElastic"
)

// ErrRejected is wrapped by every error a Scheduler returns when it refuses a task.
var ErrRejected = errors.New("scheduler rejected task")

// Scheduler runs tasks in a named execution context.
type Scheduler interface {
	// Name identifies the scheduler in logs and metrics.
	Name() string

	// Schedule queues task for execution. The task receives ctx tagged with
	// this scheduler (see Current). A task whose ctx is done by the time a
	// worker picks it up is skipped. Schedule never waits for queue space.
	Schedule(ctx context.Context, task func(ctx context.Context)) error

	// Clock is the time source used for delays issued on this scheduler.
	Clock() clock.Clock

	// Dispose stops accepting tasks and waits for running ones, or for ctx.
	Dispose(ctx context.Context) error
}

type currentKey struct{}

// WithCurrent tags ctx with the scheduler whose worker is running the caller.
func WithCurrent(ctx context.Context, s Scheduler) context.Context {
	return context.WithValue(ctx, currentKey{}, s)
}

// Current returns the scheduler ctx was tagged with, or nil.
func Current(ctx context.Context) Scheduler {
	s, _ := ctx.Value(currentKey{}).(Scheduler)
	return s
}

func rejected(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRejected, name, err)
}

// Immediate returns a scheduler that runs tasks synchronously on the caller.
func Immediate() Scheduler {
	return immediate{clock: clock.Real()}
}

type immediate struct {
	clock clock.Clock
}

func (immediate) Name() string { return NameImmediate }

func (s immediate) Schedule(ctx context.Context, task func(ctx context.Context)) error {
	if err := ctx.Err(); err != nil {
		return rejected(NameImmediate, err)
	}
	task(WithCurrent(ctx, s))
	return nil
}

func (s immediate) Clock() clock.Clock { return s.clock }

func (immediate) Dispose(context.Context) error { return nil }

// Virtual is a scheduler for tests: tasks run synchronously on the caller and
// delays are measured on a virtual clock that only moves when advanced.
type Virtual struct {
	clock *clock.Virtual
}

// NewVirtual creates a virtual-time scheduler. A nil clock starts a new one.
func NewVirtual(c *clock.Virtual) *Virtual {
	if c == nil {
		c = clock.NewVirtual(timeZero)
	}
	return &Virtual{clock: c}
}

func (v *Virtual) Name() string { return "virtual" }

func (v *Virtual) Schedule(ctx context.Context, task func(ctx context.Context)) error {
	if err := ctx.Err(); err != nil {
		return rejected("virtual", err)
	}
	task(WithCurrent(ctx, v))
	return nil
}

// Clock returns the virtual clock as a clock.Clock.
func (v *Virtual) Clock() clock.Clock { return v.clock }

// VirtualClock exposes the clock for Advance and BlockUntil.
func (v *Virtual) VirtualClock() *clock.Virtual { return v.clock }

func (v *Virtual) Dispose(context.Context) error { return nil }
