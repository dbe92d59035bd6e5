package pdfgrid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

// Grid dates older than 2024 or past 2027 are table leakage (founding years,
// phone fragments), not deadlines.
const (
	minGridYear = 2024
	maxGridYear = 2027
)

var (
	// School-type markers terminate a college entry: name before, dates after.
	reMarker = regexp.MustCompile(`\b(Coed|Women|Men)\b`)

	reGridDate = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)

	// Checkbox-only "Y N Y Y" rows are both noise and never name fragments.
	reCheckboxRow = regexp.MustCompile(`^[YN](?:\s+[YN])*$`)

	noisePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d+$`),             // bare page number
		regexp.MustCompile(`(?i)^page\s+\d+\b`), // "Page 3 of 12"
		reCheckboxRow,
		regexp.MustCompile(`(?i)requirements?\s+grid`),
		regexp.MustCompile(`(?i)^school\s+name\b`),
		regexp.MustCompile(`(?i)^deadlines?\b`),
	}

	reLeadingYN    = regexp.MustCompile(`^(?:[YN]\s+)+`)
	reLeadingJunk  = regexp.MustCompile(`^[^A-Za-z]+`)
	reTableLeakage = regexp.MustCompile(`\b(?:Website|Forms)\b`)
	reSpaces       = regexp.MustCompile(`\s+`)
)

type candidateKey struct {
	name  string
	round admissions.RoundType
}

// ScanLines turns extracted grid text into deadline candidates. This is a
// best-effort classifier over a known table layout, not authoritative
// parsing; ambiguous multi-date rows can and do get misclassified.
func ScanLines(text string, cycleStartYear int) []admissions.ParsedDeadlineCandidate {
	var out []admissions.ParsedDeadlineCandidate
	seen := make(map[candidateKey]struct{})
	pending := ""

	for _, raw := range strings.Split(text, "\n") {
		// The page-break marker is itself whitespace; catch it before trimming.
		if strings.Contains(raw, PageBreak) {
			pending = ""
			continue
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if isNoise(line) {
			pending = ""
			continue
		}

		if loc := reMarker.FindStringIndex(line); loc != nil {
			name := cleanCollegeName(strings.TrimSpace(pending + " " + line[:loc[0]]))
			pending = ""
			if name == "" {
				continue
			}
			for _, cand := range scanEntry(name, line[loc[1]:], line, cycleStartYear) {
				key := candidateKey{name: cand.RawName, round: cand.Round}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, cand)
			}
			continue
		}

		// A dated line with no marker is a stray payload row; whatever name
		// fragments were pending belong to nothing.
		if reGridDate.MatchString(line) {
			pending = ""
			continue
		}

		if isNameFragment(line) {
			if pending != "" {
				pending += " "
			}
			pending += line
		}
	}
	return out
}

// scanEntry extracts every in-range date from a terminator line's payload and
// infers each date's round from position and month.
func scanEntry(name, payload, fullLine string, cycleStartYear int) []admissions.ParsedDeadlineCandidate {
	hasRolling := strings.Contains(fullLine, "Rolling")
	dates := gridDates(payload)

	if len(dates) == 0 {
		if hasRolling {
			return []admissions.ParsedDeadlineCandidate{{
				RawName: name,
				Round:   admissions.RoundRolling,
				Date:    rollingPlaceholder(cycleStartYear),
			}}
		}
		return nil
	}

	out := make([]admissions.ParsedDeadlineCandidate, 0, len(dates))
	for i, round := range classifyRounds(dates, hasRolling) {
		out = append(out, admissions.ParsedDeadlineCandidate{
			RawName: name,
			Round:   round,
			Date:    dates[i].Format("2006-01-02"),
		})
	}
	return out
}

// classifyRounds assigns a round to each date by month window and position.
// The grid carries no signal distinguishing REA from ED by date alone, so the
// scanner never emits REA; REA-only schools come out labeled ED. Known
// false-classification source, preserved on purpose.
func classifyRounds(dates []time.Time, hasRolling bool) []admissions.RoundType {
	rounds := make([]admissions.RoundType, len(dates))
	earlyFall, december, earlyJanuary := 0, 0, 0

	for i, d := range dates {
		month, day := d.Month(), d.Day()
		switch {
		case month == time.October || (month == time.November && day <= 15):
			if earlyFall == 0 {
				rounds[i] = admissions.RoundED
			} else {
				rounds[i] = admissions.RoundEA
			}
			earlyFall++
		case month == time.December:
			if december == 0 {
				rounds[i] = admissions.RoundEA
			} else {
				rounds[i] = admissions.RoundED2
			}
			december++
		case month == time.January && day <= 15:
			if earlyJanuary == 0 {
				rounds[i] = admissions.RoundED2
			} else {
				rounds[i] = admissions.RoundRD
			}
			earlyJanuary++
		case month == time.January || month == time.February:
			rounds[i] = admissions.RoundRD
		case month >= time.March && month <= time.August:
			if hasRolling {
				rounds[i] = admissions.RoundRolling
			} else {
				rounds[i] = admissions.RoundRD
			}
		default:
			rounds[i] = admissions.RoundRolling
		}
	}
	return rounds
}

// gridDates returns every valid MM/DD/YYYY in payload, left to right, with the
// year constrained to the grid's plausible range.
func gridDates(payload string) []time.Time {
	var out []time.Time
	for _, m := range reGridDate.FindAllStringSubmatch(payload, -1) {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if year < minGridYear || year > maxGridYear || month < 1 || month > 12 {
			continue
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Month() != time.Month(month) || t.Day() != day {
			continue
		}
		out = append(out, t)
	}
	return out
}

// cleanCollegeName strips the PDF-table leakage that rides along with names:
// leading checkbox Y/N tokens, leading non-letter characters, and embedded
// Website/Forms column artifacts.
func cleanCollegeName(name string) string {
	name = reLeadingYN.ReplaceAllString(name, "")
	name = reLeadingJunk.ReplaceAllString(name, "")
	name = reTableLeakage.ReplaceAllString(name, " ")
	name = strings.TrimSpace(reSpaces.ReplaceAllString(name, " "))
	return name
}

func isNoise(line string) bool {
	for _, p := range noisePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// isNameFragment recognizes lines that look like the continuation of a
// multi-line college name.
func isNameFragment(line string) bool {
	if len(line) < 3 {
		return false
	}
	if !unicode.IsUpper(rune(line[0])) {
		return false
	}
	return !reCheckboxRow.MatchString(line)
}

// rollingPlaceholder is the far-future date recorded for rolling entries that
// carry no concrete date in the grid.
func rollingPlaceholder(cycleStartYear int) string {
	return fmt.Sprintf("%d-12-31", cycleStartYear+1)
}
