// Package clock lets OTP expiry, cooldown and session deadlines be driven by
// a fixed time in tests.
package clock

import "time"

// Clocker reports the current time.
type Clocker interface {
	Now() time.Time
}

// Func adapts a plain function to Clocker.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time { return f() }

// New returns the wall clock.
func New() Clocker { return Func(time.Now) }

// Fixed returns a Clocker stuck at t.
func Fixed(t time.Time) Clocker {
	return Func(func() time.Time { return t })
}
