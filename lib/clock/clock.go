// Package clock abstracts time so that expiration, cache eviction and lock
// waiting can be driven deterministically in tests.
//
// Production code uses Real. Tests use Manual and move time forward
// explicitly with Advance.
package clock

import "time"

// Clock abstracts the time related functions used by the stores, caches and
// lock managers.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After mirrors time.After.
	After(d time.Duration) <-chan time.Time
}

// Real implements Clock using the standard library.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// After mirrors time.After while satisfying the Clock interface.
func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// OrReal returns c, or Real if c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}
