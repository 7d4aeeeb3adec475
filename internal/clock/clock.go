// Package clock abstracts time so tests can inject a fake source.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

// NewSystem returns the wall-clock implementation.
func NewSystem() *System {
	return &System{}
}

// Now returns the current UTC time.
func (*System) Now() time.Time {
	return time.Now().UTC()
}
