// Package system provides the wall clock used to stamp URL and check records.
package system

import "time"

// Clock implements analyzer.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to microseconds, the precision
// Postgres keeps, so a record read back equals the one returned on insert.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
