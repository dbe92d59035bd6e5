// Package dateparse turns heterogeneous deadline text fragments into ISO dates.
//
// Admissions pages and the requirements grid write the same deadline a dozen
// ways ("November 1, 2025", "Nov 1", "11/01/2025", "2025-11-01"). The parser
// tries a fixed, ordered set of patterns and infers the year from the
// admission cycle when the text omits it.
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const isoLayout = "2006-01-02"

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

const monthAlt = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|` +
	`jul(?:y)?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

// Patterns are tried in this order; the first one yielding a valid calendar
// date wins. Keep the priority stable: the windowed HTML scan depends on
// year-bearing forms outranking year-less ones.
var (
	reMonthDayYear = regexp.MustCompile(`(?i)\b(` + monthAlt + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\s*,?\s+(\d{4})\b`)
	reMonthDay     = regexp.MustCompile(`(?i)\b(` + monthAlt + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	reSlash        = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	reISO          = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
)

// Parse extracts a calendar date from text, returning it in ISO YYYY-MM-DD
// form. Year-less month/day forms borrow the year from cycleStartYear:
// September through December fall in the cycle's opening year, everything else
// in the following year. The second return is false when no pattern yields a
// valid date; Parse never fails any harder than that.
func Parse(text string, cycleStartYear int) (string, bool) {
	for _, try := range []func(string, int) (string, bool){
		parseMonthDayYear,
		parseMonthDay,
		parseSlash,
		parseISO,
	} {
		if iso, ok := try(text, cycleStartYear); ok {
			return iso, true
		}
	}
	return "", false
}

// Find behaves like Parse but is meant for keyword windows cut out of page
// text: each pattern is searched across the whole window before the next,
// lower-priority pattern is considered.
func Find(window string, cycleStartYear int) (string, bool) {
	return Parse(window, cycleStartYear)
}

func parseMonthDayYear(text string, _ int) (string, bool) {
	m := reMonthDayYear.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	month, ok := monthFromName(m[1])
	if !ok {
		return "", false
	}
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	return makeISO(year, month, day)
}

func parseMonthDay(text string, cycleStartYear int) (string, bool) {
	m := reMonthDay.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	month, ok := monthFromName(m[1])
	if !ok {
		return "", false
	}
	day, _ := strconv.Atoi(m[2])
	year := inferYear(month, cycleStartYear)
	return makeISO(year, month, day)
}

func parseSlash(text string, _ int) (string, bool) {
	m := reSlash.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 {
		return "", false
	}
	return makeISO(year, time.Month(month), day)
}

func parseISO(text string, _ int) (string, bool) {
	m := reISO.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 {
		return "", false
	}
	return makeISO(year, time.Month(month), day)
}

// inferYear maps a year-less month onto the admission cycle: Sep-Dec deadlines
// happen in the cycle's start year, Jan-Aug in the year after.
func inferYear(month time.Month, cycleStartYear int) int {
	if month >= time.September {
		return cycleStartYear
	}
	return cycleStartYear + 1
}

// makeISO validates the components as a real calendar date. time.Date
// normalizes overflow (Feb 30 becomes Mar 2), so a round-trip mismatch means
// the input was not a valid date.
func makeISO(year int, month time.Month, day int) (string, bool) {
	if day < 1 || day > 31 || year < 1 {
		return "", false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return "", false
	}
	return t.Format(isoLayout), true
}

func monthFromName(name string) (time.Month, bool) {
	name = strings.ToLower(name)
	if len(name) < 3 {
		return 0, false
	}
	month, ok := monthsByPrefix[name[:3]]
	return month, ok
}
