package scheduler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vnykmshr/goflux/pkg/common/validation"
	"github.com/vnykmshr/goflux/pkg/metrics"
	"github.com/vnykmshr/goflux/pkg/scheduling/clock"
	"github.com/vnykmshr/goflux/pkg/scheduling/workerpool"
)

var timeZero time.Time

// Defaults for the bounded-elastic scheduler.
const (
	DefaultElasticQueueSize   = 100000
	DefaultElasticIdleTimeout = 60 * time.Second
)

// PoolConfig configures a worker-pool backed scheduler.
type PoolConfig struct {
	Name string

	// Workers bounds the number of concurrently running tasks.
	Workers int

	// QueueSize bounds the number of tasks waiting for a worker. Tasks beyond
	// it are rejected.
	QueueSize int

	// IdleTimeout makes workers elastic: they are created on demand and
	// reaped after this long without work. Zero keeps Workers alive.
	IdleTimeout time.Duration

	Clock   clock.Clock
	Logger  *zerolog.Logger
	Metrics *metrics.Registry
}

// Pool is a Scheduler backed by a workerpool.Pool.
type Pool struct {
	name  string
	pool  workerpool.Pool
	clock clock.Clock
	log   zerolog.Logger
	once  sync.Once
}

// NewPool creates a worker-pool scheduler.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if err := validation.ValidateNotEmpty("scheduler", "name", cfg.Name); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("scheduler", "workers", cfg.Workers); err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	log = log.With().Str("scheduler", cfg.Name).Logger()

	wcfg := workerpool.Config{
		WorkerCount: cfg.Workers,
		QueueSize:   cfg.QueueSize,
		IdleTimeout: cfg.IdleTimeout,
		Logger:      &log,
	}

	var (
		p   workerpool.Pool
		err error
	)
	if cfg.Metrics != nil {
		p, err = workerpool.NewWithMetrics(wcfg, cfg.Name, cfg.Metrics)
	} else {
		p, err = workerpool.NewWithConfig(wcfg)
	}
	if err != nil {
		return nil, err
	}

	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}

	return &Pool{name: cfg.Name, pool: p, clock: c, log: log}, nil
}

// NewParallel creates a fixed pool sized for CPU-bound work. workers <= 0
// means runtime.NumCPU().
func NewParallel(workers int) (*Pool, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return NewPool(PoolConfig{
		Name:      NameParallel,
		Workers:   workers,
		QueueSize: DefaultElasticQueueSize,
	})
}

// NewBoundedElastic creates an elastic pool for blocking work: at most
// maxWorkers goroutines, spawned on demand and reaped when idle.
// maxWorkers <= 0 means 10 * runtime.NumCPU().
func NewBoundedElastic(maxWorkers int) (*Pool, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10 * runtime.NumCPU()
	}
	return NewPool(PoolConfig{
		Name:        NameBoundedElastic,
		Workers:     maxWorkers,
		QueueSize:   DefaultElasticQueueSize,
		IdleTimeout: DefaultElasticIdleTimeout,
	})
}

// Name implements Scheduler.
func (p *Pool) Name() string { return p.name }

// Clock implements Scheduler.
func (p *Pool) Clock() clock.Clock { return p.clock }

// Schedule implements Scheduler.
func (p *Pool) Schedule(ctx context.Context, task func(ctx context.Context)) error {
	err := p.pool.TrySubmit(ctx, workerpool.TaskFunc(func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		task(WithCurrent(ctx, p))
		return nil
	}))
	if err != nil {
		p.log.Debug().Err(err).Msg("task rejected")
		return rejected(p.name, err)
	}
	return nil
}

// Workers returns the number of live workers.
func (p *Pool) Workers() int { return p.pool.Workers() }

// Dispose implements Scheduler.
func (p *Pool) Dispose(ctx context.Context) error {
	done := p.pool.Shutdown()
	select {
	case <-done:
		p.once.Do(func() { p.log.Debug().Msg("scheduler disposed") })
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
