package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	gferrors "github.com/vnykmshr/goflux/pkg/common/errors"
	"github.com/vnykmshr/goflux/pkg/metrics"
	"github.com/vnykmshr/goflux/pkg/scheduling/clock"
)

// ErrUnknownScheduler is returned by Registry.Get for names never registered.
var ErrUnknownScheduler = fmt.Errorf("unknown scheduler: %w", gferrors.ErrNotFound)

// Config sizes the default schedulers a Registry creates on Init.
type Config struct {
	// ParallelWorkers sizes the "parallel" pool. Zero means runtime.NumCPU().
	ParallelWorkers int `mapstructure:"parallel_workers" validate:"gte=0"`

	// ElasticMaxWorkers caps the "boundedElastic" pool. Zero means 10 * runtime.NumCPU().
	ElasticMaxWorkers int `mapstructure:"elastic_max_workers" validate:"gte=0"`

	// ElasticQueueSize bounds tasks waiting for an elastic worker.
	ElasticQueueSize int `mapstructure:"elastic_queue_size" validate:"gte=0"`

	// ElasticIdleTimeout is how long an idle elastic worker lives.
	ElasticIdleTimeout time.Duration `mapstructure:"elastic_idle_timeout" validate:"gte=0"`
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger sets the logger handed to every scheduler the registry creates.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithMetrics records pool metrics for the schedulers the registry creates.
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock sets the time source of the schedulers the registry creates.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// Registry owns a set of named schedulers with an explicit lifecycle.
// Components that need a default scheduler receive the registry instead of
// looking one up globally, so tests can substitute deterministic schedulers.
type Registry struct {
	mu         sync.RWMutex
	cfg        Config
	log        zerolog.Logger
	metrics    *metrics.Registry
	clock      clock.Clock
	schedulers map[string]Scheduler
	order      []string
	closed     bool
}

// NewRegistry creates an empty registry. Call Init to create the defaults.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:        cfg,
		log:        zerolog.Nop(),
		clock:      clock.Real(),
		schedulers: make(map[string]Scheduler),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.schedulers[NameImmediate] = Immediate()
	return r
}

// Init creates the "parallel" and "boundedElastic" schedulers unless a
// scheduler with that name has already been registered.
func (r *Registry) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("scheduler registry: %w", gferrors.ErrClosed)
	}

	if _, ok := r.schedulers[NameParallel]; !ok {
		workers := r.cfg.ParallelWorkers
		if workers == 0 {
			workers = runtime.NumCPU()
		}
		p, err := NewPool(PoolConfig{
			Name:      NameParallel,
			Workers:   workers,
			QueueSize: DefaultElasticQueueSize,
			Clock:     r.clock,
			Logger:    &r.log,
			Metrics:   r.metrics,
		})
		if err != nil {
			return err
		}
		r.addLocked(p)
	}

	if _, ok := r.schedulers[NameBoundedElastic]; !ok {
		cfg := PoolConfig{
			Name:        NameBoundedElastic,
			Workers:     r.cfg.ElasticMaxWorkers,
			QueueSize:   r.cfg.ElasticQueueSize,
			IdleTimeout: r.cfg.ElasticIdleTimeout,
			Clock:       r.clock,
			Logger:      &r.log,
			Metrics:     r.metrics,
		}
		if cfg.Workers == 0 {
			cfg.Workers = 10 * runtime.NumCPU()
		}
		if cfg.QueueSize == 0 {
			cfg.QueueSize = DefaultElasticQueueSize
		}
		if cfg.IdleTimeout == 0 {
			cfg.IdleTimeout = DefaultElasticIdleTimeout
		}
		p, err := NewPool(cfg)
		if err != nil {
			return err
		}
		r.addLocked(p)
	}

	r.log.Info().Strs("schedulers", r.order).Msg("scheduler registry initialized")
	return nil
}

// Register adds a scheduler under its name. Registering before Init replaces
// the corresponding default.
func (r *Registry) Register(s Scheduler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("scheduler registry: %w", gferrors.ErrClosed)
	}
	if _, ok := r.schedulers[s.Name()]; ok && s.Name() != NameImmediate {
		return gferrors.NewValidationError("scheduler", "name", s.Name(), "already registered")
	}
	r.addLocked(s)
	return nil
}

func (r *Registry) addLocked(s Scheduler) {
	if _, ok := r.schedulers[s.Name()]; !ok {
		r.order = append(r.order, s.Name())
	}
	r.schedulers[s.Name()] = s
}

// Get returns the scheduler registered under name.
func (r *Registry) Get(name string) (Scheduler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schedulers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheduler, name)
	}
	return s, nil
}

// Immediate returns the inline scheduler.
func (r *Registry) Immediate() Scheduler {
	s, _ := r.Get(NameImmediate)
	return s
}

// Parallel returns the CPU-bound pool. It panics if Init has not run.
func (r *Registry) Parallel() Scheduler {
	return r.mustGet(NameParallel)
}

// BoundedElastic returns the elastic pool for blocking work. It panics if
// Init has not run.
func (r *Registry) BoundedElastic() Scheduler {
	return r.mustGet(NameBoundedElastic)
}

func (r *Registry) mustGet(name string) Scheduler {
	s, err := r.Get(name)
	if err != nil {
		panic("scheduler registry: " + err.Error() + " (call Init first)")
	}
	return s
}

// Shutdown disposes every registered scheduler in reverse registration order.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	order := append([]string(nil), r.order...)
	scheds := make([]Scheduler, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		scheds = append(scheds, r.schedulers[order[i]])
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range scheds {
		if err := s.Dispose(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispose %s: %w", s.Name(), err))
		}
	}
	r.log.Info().Int("schedulers", len(scheds)).Msg("scheduler registry shut down")
	return errors.Join(errs...)
}
