package concurrency

import (
	"context"
	"sync"

	"github.com/vnykmshr/goflux/pkg/common/errors"
)

// Limiter bounds the number of operations in flight. It is a counting
// semaphore whose waiters are served in FIFO order and whose capacity can be
// changed at runtime.
type Limiter interface {
	// TryAcquire takes one permit if one is free. It never blocks.
	TryAcquire() bool

	// Wait blocks until a permit is available or ctx is done.
	Wait(ctx context.Context) error

	// WaitN blocks until n permits are available or ctx is done.
	WaitN(ctx context.Context, n int) error

	// Release returns one permit. It panics if more permits are released
	// than were acquired.
	Release()

	// ReleaseN returns n permits.
	ReleaseN(n int)

	// SetCapacity changes the number of permits. Shrinking below the
	// current usage takes effect as permits are released.
	SetCapacity(capacity int)

	Capacity() int
	Available() int
	InUse() int
}

type limiter struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	waiters  []*waiter
}

type waiter struct {
	n     int
	ready chan struct{}
}

// New creates a limiter with capacity permits.
func New(capacity int) (Limiter, error) {
	if capacity <= 0 {
		return nil, errors.NewValidationError("concurrency", "capacity", capacity, "must be positive").
			WithHint("capacity is the maximum number of operations in flight")
	}
	return &limiter{capacity: capacity}, nil
}

// MustNew is New for capacities known to be valid.
func MustNew(capacity int) Limiter {
	l, err := New(capacity)
	if err != nil {
		panic(err)
	}
	return l
}

func (l *limiter) available() int {
	if free := l.capacity - l.inUse; free > 0 {
		return free
	}
	return 0
}

func (l *limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.waiters) == 0 && l.available() >= 1 {
		l.inUse++
		return true
	}
	return false
}

func (l *limiter) Wait(ctx context.Context) error {
	return l.WaitN(ctx, 1)
}

func (l *limiter) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if len(l.waiters) == 0 && l.available() >= n {
		l.inUse += n
		l.mu.Unlock()
		return nil
	}
	w := &waiter{n: n, ready: make(chan struct{})}
	l.waiters = append(l.waiters, w)
	l.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		if l.removeLocked(w) {
			// Our turn may have unblocked smaller waiters behind us.
			l.grantLocked()
			l.mu.Unlock()
			return ctx.Err()
		}
		l.mu.Unlock()
		// Granted concurrently with cancellation; hand the permits back.
		l.ReleaseN(n)
		return ctx.Err()
	}
}

func (l *limiter) Release() {
	l.ReleaseN(1)
}

func (l *limiter) ReleaseN(n int) {
	if n <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inUse < n {
		panic("concurrency: released more permits than acquired")
	}
	l.inUse -= n
	l.grantLocked()
}

func (l *limiter) SetCapacity(capacity int) {
	if capacity <= 0 {
		panic("concurrency: capacity must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.capacity = capacity
	l.grantLocked()
}

func (l *limiter) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity
}

func (l *limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available()
}

func (l *limiter) InUse() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse
}

// grantLocked wakes waiters from the head of the queue while permits last.
func (l *limiter) grantLocked() {
	for len(l.waiters) > 0 {
		w := l.waiters[0]
		if l.available() < w.n {
			return
		}
		l.inUse += w.n
		l.waiters[0] = nil
		l.waiters = l.waiters[1:]
		close(w.ready)
	}
}

func (l *limiter) removeLocked(w *waiter) bool {
	for i, cur := range l.waiters {
		if cur == w {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return true
		}
	}
	return false
}
