package clock

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Virtual is a Clock whose time only moves when Advance is called.
// Pending timers are kept in a min-heap ordered by deadline.
type Virtual struct {
	mu      sync.Mutex
	now     time.Time
	seq     int64
	pending timerHeap
	changed chan struct{}
}

// NewVirtual creates a virtual clock starting at start.
// If zero time is provided, uses current time.
func NewVirtual(start time.Time) *Virtual {
	if start.IsZero() {
		start = time.Now()
	}
	return &Virtual{now: start, changed: make(chan struct{})}
}

// Now returns the current virtual time.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// NewTimer registers a timer that fires once virtual time reaches now+d.
func (v *Virtual) NewTimer(d time.Duration) Timer {
	t := &virtualTimer{clock: v, ch: make(chan time.Time, 1)}
	v.add(t, d)
	return t
}

// AfterFunc registers f to run in its own goroutine once virtual time reaches now+d.
func (v *Virtual) AfterFunc(d time.Duration, f func()) Timer {
	t := &virtualTimer{clock: v, fn: f}
	v.add(t, d)
	return t
}

// Advance moves virtual time forward by d, firing due timers in deadline order.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now.Add(d)
	var due []*virtualTimer
	for len(v.pending) > 0 && !v.pending[0].deadline.After(target) {
		t := heap.Pop(&v.pending).(*virtualTimer)
		due = append(due, t)
	}
	v.now = target
	v.notifyLocked()
	v.mu.Unlock()

	for _, t := range due {
		t.fire(t.deadline)
	}
}

// Pending returns the number of timers that have not fired yet.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

// BlockUntil waits until at least n timers are pending or ctx is done.
func (v *Virtual) BlockUntil(ctx context.Context, n int) error {
	for {
		v.mu.Lock()
		if len(v.pending) >= n {
			v.mu.Unlock()
			return nil
		}
		changed := v.changed
		v.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (v *Virtual) add(t *virtualTimer, d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()

	t.index = -1
	if d <= 0 {
		t.fire(v.now)
		return
	}
	v.seq++
	t.seq = v.seq
	t.deadline = v.now.Add(d)
	heap.Push(&v.pending, t)
	v.notifyLocked()
}

func (v *Virtual) remove(t *virtualTimer) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if t.index < 0 || t.index >= len(v.pending) || v.pending[t.index] != t {
		return false
	}
	heap.Remove(&v.pending, t.index)
	v.notifyLocked()
	return true
}

func (v *Virtual) notifyLocked() {
	close(v.changed)
	v.changed = make(chan struct{})
}

type virtualTimer struct {
	clock    *Virtual
	deadline time.Time
	seq      int64
	index    int
	ch       chan time.Time
	fn       func()
}

func (t *virtualTimer) C() <-chan time.Time { return t.ch }

func (t *virtualTimer) Stop() bool {
	return t.clock.remove(t)
}

func (t *virtualTimer) fire(at time.Time) {
	if t.fn != nil {
		go t.fn()
		return
	}
	select {
	case t.ch <- at:
	default:
	}
}

// timerHeap implements a min-heap of timers ordered by deadline, then by
// registration order.
type timerHeap []*virtualTimer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*virtualTimer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}
