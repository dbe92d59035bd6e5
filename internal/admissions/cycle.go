package admissions

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Cycle is an admissions year pair token, e.g. "2025-2026".
type Cycle string

var cyclePattern = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

// CycleFor derives the cycle a calendar date belongs to. September through
// December open the cycle starting that year; January through August belong to
// the cycle opened the previous year.
func CycleFor(t time.Time) Cycle {
	year := t.Year()
	if t.Month() < time.September {
		year--
	}
	return Cycle(fmt.Sprintf("%d-%d", year, year+1))
}

// NewCycle builds the cycle token beginning at startYear.
func NewCycle(startYear int) Cycle {
	return Cycle(fmt.Sprintf("%d-%d", startYear, startYear+1))
}

// StartYear returns the first year of the cycle, or 0 if the token is malformed.
func (c Cycle) StartYear() int {
	m := cyclePattern.FindStringSubmatch(string(c))
	if m == nil {
		return 0
	}
	year, _ := strconv.Atoi(m[1])
	return year
}

// Valid reports whether the token is well-formed and the end year follows the
// start year.
func (c Cycle) Valid() bool {
	m := cyclePattern.FindStringSubmatch(string(c))
	if m == nil {
		return false
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	return end == start+1
}
