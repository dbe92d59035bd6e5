// Package match resolves free-text college names from parsed sources against
// the reference college list.
//
// Matching is staged, cheapest and most precise first: exact name/short-name,
// then substring containment, then significant-token overlap. The first stage
// that succeeds wins. A name no stage can place is reported back unmatched,
// never treated as an error — ingestion simply skips it.
package match

import (
	"strings"

	"go.uber.org/zap"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

// stopwords carry no identifying signal in college names; tokens this short
// or this generic are discarded before overlap counting.
var stopwords = map[string]struct{}{
	"university": {},
	"college":    {},
	"the":        {},
	"and":        {},
	"of":         {},
}

const minTokenLen = 4

// Matcher matches raw names against a fixed reference list.
type Matcher struct {
	logger *zap.Logger
}

// New builds a Matcher.
func New(logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{logger: logger}
}

// Match resolves each unique raw name to a college ID. The returned map is
// partial: unmatched names are simply absent (and logged).
func (m *Matcher) Match(rawNames []string, colleges []admissions.College) map[string]int64 {
	out := make(map[string]int64, len(rawNames))
	for _, raw := range rawNames {
		if _, done := out[raw]; done {
			continue
		}
		if id, ok := m.matchOne(raw, colleges); ok {
			out[raw] = id
			continue
		}
		m.logger.Info("no reference match for college name", zap.String("raw_name", raw))
	}
	return out
}

func (m *Matcher) matchOne(raw string, colleges []admissions.College) (int64, bool) {
	candidate := strings.ToLower(strings.TrimSpace(raw))
	if candidate == "" {
		return 0, false
	}

	// Stage 1: case-insensitive exact match on name or short name.
	for _, c := range colleges {
		if candidate == strings.ToLower(c.Name) || candidate == strings.ToLower(c.ShortName) {
			return c.ID, true
		}
	}

	// Stage 2: substring containment in either direction.
	for _, c := range colleges {
		name := strings.ToLower(c.Name)
		if name != "" && (strings.Contains(name, candidate) || strings.Contains(candidate, name)) {
			return c.ID, true
		}
		short := strings.ToLower(c.ShortName)
		if short != "" && (strings.Contains(short, candidate) || strings.Contains(candidate, short)) {
			return c.ID, true
		}
	}

	// Stage 3: significant-token overlap.
	candTokens := significantTokens(candidate)
	if len(candTokens) == 0 {
		return 0, false
	}
	required := 2
	if len(candTokens) == 1 {
		required = 1
	}
	for _, c := range colleges {
		refTokens := significantTokens(strings.ToLower(c.Name + " " + c.ShortName))
		if overlap(candTokens, refTokens) >= required {
			return c.ID, true
		}
	}
	return 0, false
}

func significantTokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9')
	}) {
		tok = strings.ToLower(tok)
		if len(tok) < minTokenLen {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			n++
		}
	}
	return n
}
