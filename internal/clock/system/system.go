// Package system provides the wall clock used to stamp journal entries and
// archive notifications.
package system

import "time"

// Clock implements webfetch.Clock with the UTC wall clock.
type Clock struct{}

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
