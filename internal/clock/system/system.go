// Package system provides the real clock behind admissions.Clock.
package system

import "time"

// Clock reports wall time in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time. Stored timestamps are always UTC so cycle
// boundaries and staleness comparisons line up.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
