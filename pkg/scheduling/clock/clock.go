// Package clock abstracts time so that delays, intervals and cron ticks can
// run against virtual time in tests.
package clock

import "time"

// Clock reports the current time and creates timers.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTimer returns a timer that delivers the fire time on C after d.
	NewTimer(d time.Duration) Timer

	// AfterFunc calls f in its own goroutine after d. The returned timer has a nil C.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a single pending timer.
type Timer interface {
	C() <-chan time.Time

	// Stop prevents the timer from firing. It returns false if the timer
	// already fired or was stopped.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) Timer {
	return realTimer{t: time.NewTimer(d)}
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }
