package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vnykmshr/goflux/pkg/common/validation"
)

// Task represents a unit of work that can be executed by a worker.
type Task interface {
	// Execute runs the task with the given context.
	// It should respect context cancellation and return any error encountered.
	Execute(ctx context.Context) error
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Result represents the result of a task execution.
type Result struct {
	// Task is the original task that was executed
	Task Task

	// Error is any error that occurred during task execution
	Error error

	// Duration is how long the task took to execute
	Duration time.Duration

	// WorkerID identifies which worker executed the task
	WorkerID int
}

// Pool represents a worker pool that can execute tasks concurrently.
type Pool interface {
	// Submit adds a task to the pool, blocking while the queue is full.
	Submit(task Task) error

	// SubmitWithContext adds a task to the pool. The context bounds the wait
	// for queue space and is passed to the task's Execute method.
	SubmitWithContext(ctx context.Context, task Task) error

	// TrySubmit adds a task without waiting. It returns ErrQueueFull when the
	// queue has no room.
	TrySubmit(ctx context.Context, task Task) error

	// Shutdown stops accepting tasks, lets queued tasks finish, and returns a
	// channel that closes once every worker has exited.
	Shutdown() <-chan struct{}

	// Size returns the maximum number of workers in the pool.
	Size() int

	// Workers returns the number of live worker goroutines.
	Workers() int

	// QueueSize returns the current number of queued tasks waiting for execution.
	QueueSize() int

	// ActiveWorkers returns the number of workers currently executing tasks.
	ActiveWorkers() int

	// TotalSubmitted returns the total number of tasks submitted to the pool.
	TotalSubmitted() int64

	// TotalCompleted returns the total number of tasks completed by the pool.
	TotalCompleted() int64
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// WorkerCount is the maximum number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// MinWorkers is the number of workers started up front and kept alive
	// when IdleTimeout is set. Ignored for fixed pools.
	MinWorkers int

	// QueueSize is the maximum number of tasks that can be queued.
	// Zero makes every submit hand off directly to a waiting worker.
	QueueSize int

	// IdleTimeout makes the pool elastic: workers above MinWorkers are spawned
	// when tasks queue up and exit after IdleTimeout without work.
	// Zero keeps WorkerCount workers alive for the life of the pool.
	IdleTimeout time.Duration

	// TaskTimeout is the default timeout for individual task execution.
	// Zero means no timeout.
	TaskTimeout time.Duration

	// PanicHandler is called when a task panics. If nil, the panic is logged.
	PanicHandler func(task Task, recovered any)

	// OnTaskStart is called before a task begins execution.
	OnTaskStart func(workerID int, task Task)

	// OnTaskComplete is called after a task completes (success or failure).
	OnTaskComplete func(workerID int, result Result)

	// Logger receives panic and lifecycle events. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

type queuedTask struct {
	task     Task
	ctx      context.Context
	queuedAt time.Time
}

// workerPool implements the Pool interface.
type workerPool struct {
	config Config
	log    zerolog.Logger

	taskQueue    chan queuedTask
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	// mu guards closing taskQueue against concurrent sends.
	mu         sync.RWMutex
	isShutdown bool

	spawnMu        sync.Mutex
	nextID         int
	workers        atomic.Int32
	idle           atomic.Int32
	activeWorkers  atomic.Int32
	totalSubmitted atomic.Int64
	totalCompleted atomic.Int64

	workerWg sync.WaitGroup
}

// New creates a new worker pool with the specified number of workers and queue size.
// It panics on invalid arguments; use NewWithConfig to receive an error instead.
func New(workerCount, queueSize int) Pool {
	p, err := NewWithConfig(Config{
		WorkerCount: workerCount,
		QueueSize:   queueSize,
	})
	if err != nil {
		panic(err.Error())
	}
	return p
}

// NewWithConfig creates a new worker pool with the specified configuration.
func NewWithConfig(config Config) (Pool, error) {
	if err := validation.ValidatePositive("workerpool", "worker_count", config.WorkerCount); err != nil {
		return nil, err
	}
	if err := validation.ValidateAtLeast("workerpool", "queue_size", config.QueueSize, 0); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("workerpool", "idle_timeout", config.IdleTimeout); err != nil {
		return nil, err
	}
	switch {
	case config.IdleTimeout == 0, config.MinWorkers > config.WorkerCount:
		config.MinWorkers = config.WorkerCount
	case config.MinWorkers < 0:
		config.MinWorkers = 0
	}

	log := zerolog.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}

	pool := &workerPool{
		config:     config,
		log:        log.With().Str("component", "workerpool").Logger(),
		taskQueue:  make(chan queuedTask, config.QueueSize),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}

	for i := 0; i < config.MinWorkers; i++ {
		pool.spawn(false)
	}

	return pool, nil
}

// worker represents a single worker goroutine in the pool.
type worker struct {
	id      int
	pool    *workerPool
	elastic bool
}
