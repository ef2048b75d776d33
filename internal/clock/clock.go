// Package clock provides the timer abstraction used for reconnect backoff and
// polling. Production code uses Real; tests drive a Fake by hand so that
// delays are simulated instead of slept through.
package clock

import "time"

// Clock schedules callbacks and reports the current time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f in its own goroutine once d has elapsed.
	// The returned Timer can cancel the call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It returns false if the callback
	// already fired or the timer was already stopped.
	Stop() bool
}

// Real is the wall-clock implementation backed by package time.
type Real struct{}

// New returns the wall clock.
func New() Clock {
	return Real{}
}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
