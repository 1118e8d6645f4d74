package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/vnykmshr/goflux/pkg/common/errors"
)

// BackpressureStrategy defines how the channel handles a send when full.
type BackpressureStrategy int

const (
	// Block waits for space.
	Block BackpressureStrategy = iota

	// Drop discards the value being sent.
	Drop

	// DropOldest discards the oldest buffered value to make room.
	DropOldest

	// Error rejects the send with ErrChannelFull.
	Error
)

func (s BackpressureStrategy) String() string {
	switch s {
	case Block:
		return "block"
	case Drop:
		return "drop"
	case DropOldest:
		return "drop_oldest"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ErrChannelFull is returned when the buffer is full and the strategy is Error.
var ErrChannelFull = fmt.Errorf("channel buffer is full: %w", errors.ErrCapacityExceeded)

// ErrChannelClosed is returned by Send after Close, and by Receive once a
// closed channel is drained.
var ErrChannelClosed = fmt.Errorf("channel: %w", errors.ErrClosed)

// BackpressureChannel is a bounded FIFO buffer with a configurable overflow
// strategy. Receivers drain buffered values after Close before seeing
// ErrChannelClosed.
type BackpressureChannel[T any] interface {
	// Send adds a value, applying the strategy when the buffer is full.
	Send(ctx context.Context, value T) error

	// TrySend is Send that treats Block as Error.
	TrySend(value T) error

	// Receive takes the oldest value, waiting for one if necessary.
	Receive(ctx context.Context) (T, error)

	// TryReceive takes the oldest value if one is buffered.
	TryReceive() (T, bool, error)

	Close() error
	IsClosed() bool
	Len() int
	Cap() int
	Stats() Stats
}

// Stats counts channel operations.
type Stats struct {
	SendCount    int64
	ReceiveCount int64
	DroppedCount int64
	BlockedSends int64
}

// Config holds configuration for BackpressureChannel.
type Config struct {
	// BufferSize is the capacity of the buffer.
	BufferSize int

	// Strategy defines how a full buffer is handled.
	Strategy BackpressureStrategy

	// OnDrop is called with every value discarded by Drop or DropOldest.
	OnDrop func(value any)
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize: 100,
		Strategy:   Block,
	}
}

type backpressureChannel[T any] struct {
	config Config

	mu     sync.Mutex
	buffer []T
	head   int
	count  int
	closed bool

	// Closed and replaced whenever a value is added or removed, so waiters
	// can select on them together with ctx.
	added   chan struct{}
	removed chan struct{}

	stats Stats
}

// New creates a blocking BackpressureChannel.
func New[T any](bufferSize int) BackpressureChannel[T] {
	config := DefaultConfig()
	config.BufferSize = bufferSize
	return NewWithConfig[T](config)
}

// NewWithConfig creates a BackpressureChannel. A non-positive BufferSize
// falls back to the default.
func NewWithConfig[T any](config Config) BackpressureChannel[T] {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	return &backpressureChannel[T]{
		config:  config,
		buffer:  make([]T, config.BufferSize),
		added:   make(chan struct{}),
		removed: make(chan struct{}),
	}
}

func (ch *backpressureChannel[T]) Send(ctx context.Context, value T) error {
	ch.mu.Lock()
	blocked := false
	for {
		if ch.closed {
			ch.mu.Unlock()
			return ErrChannelClosed
		}
		if ch.count < len(ch.buffer) {
			ch.pushLocked(value)
			ch.mu.Unlock()
			return nil
		}
		if ch.config.Strategy != Block {
			err := ch.overflowLocked(value)
			ch.mu.Unlock()
			return err
		}

		if !blocked {
			blocked = true
			ch.stats.BlockedSends++
		}
		wait := ch.removed
		ch.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		ch.mu.Lock()
	}
}

func (ch *backpressureChannel[T]) TrySend(value T) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return ErrChannelClosed
	}
	if ch.count < len(ch.buffer) {
		ch.pushLocked(value)
		return nil
	}
	if ch.config.Strategy == Block {
		return ErrChannelFull
	}
	return ch.overflowLocked(value)
}

// overflowLocked applies a non-blocking strategy to a full buffer.
func (ch *backpressureChannel[T]) overflowLocked(value T) error {
	switch ch.config.Strategy {
	case Drop:
		ch.stats.DroppedCount++
		ch.dropped(value)
		return nil
	case DropOldest:
		old := ch.popLocked()
		ch.stats.DroppedCount++
		ch.dropped(old)
		ch.pushLocked(value)
		return nil
	default:
		return ErrChannelFull
	}
}

func (ch *backpressureChannel[T]) dropped(value T) {
	if ch.config.OnDrop != nil {
		ch.config.OnDrop(value)
	}
}

func (ch *backpressureChannel[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	ch.mu.Lock()
	for {
		if ch.count > 0 {
			v := ch.popLocked()
			ch.stats.ReceiveCount++
			ch.mu.Unlock()
			return v, nil
		}
		if ch.closed {
			ch.mu.Unlock()
			return zero, ErrChannelClosed
		}
		wait := ch.added
		ch.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		ch.mu.Lock()
	}
}

func (ch *backpressureChannel[T]) TryReceive() (T, bool, error) {
	var zero T
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.count > 0 {
		v := ch.popLocked()
		ch.stats.ReceiveCount++
		return v, true, nil
	}
	if ch.closed {
		return zero, false, ErrChannelClosed
	}
	return zero, false, nil
}

// Close stops further sends and wakes every waiter. It is idempotent.
func (ch *backpressureChannel[T]) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return nil
	}
	ch.closed = true
	close(ch.added)
	close(ch.removed)
	ch.added = make(chan struct{})
	ch.removed = make(chan struct{})
	return nil
}

func (ch *backpressureChannel[T]) IsClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

func (ch *backpressureChannel[T]) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.count
}

func (ch *backpressureChannel[T]) Cap() int {
	return len(ch.buffer)
}

func (ch *backpressureChannel[T]) Stats() Stats {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.stats
}

func (ch *backpressureChannel[T]) pushLocked(value T) {
	ch.buffer[(ch.head+ch.count)%len(ch.buffer)] = value
	ch.count++
	ch.stats.SendCount++
	close(ch.added)
	ch.added = make(chan struct{})
}

func (ch *backpressureChannel[T]) popLocked() T {
	var zero T
	v := ch.buffer[ch.head]
	ch.buffer[ch.head] = zero
	ch.head = (ch.head + 1) % len(ch.buffer)
	ch.count--
	close(ch.removed)
	ch.removed = make(chan struct{})
	return v
}
