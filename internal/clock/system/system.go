// Package system provides the wall-clock implementation of clock.Clock.
package system

import "time"

// Clock reads time.Now and normalizes it to UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
