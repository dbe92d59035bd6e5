package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

// runState accumulates counters and diagnostics while batch goroutines are
// in flight. Skips (unmatched grid names) are tracked outside the counters
// so Succeeded+Failed == Attempted holds at every checkpoint.
type runState struct {
	mu      sync.Mutex
	run     admissions.CrawlRun
	skipped int
}

func (s *runState) addSuccess(label string, rounds []admissions.RoundType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Counters.Attempted++
	s.run.Counters.Succeeded++
	if len(rounds) == 0 {
		return
	}
	merged := s.run.Details.RoundsFound[label]
	for _, round := range rounds {
		if !containsRound(merged, round) {
			merged = append(merged, round)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Precedence() < merged[j].Precedence()
	})
	s.run.Details.RoundsFound[label] = merged
}

func (s *runState) addFailure(label string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Counters.Attempted++
	s.run.Counters.Failed++
	s.run.Details.Errors = append(s.run.Details.Errors, fmt.Sprintf("%s: %v", label, err))
}

func (s *runState) addSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
}

func (s *runState) addError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Details.Errors = append(s.run.Details.Errors, msg)
}

func (s *runState) summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.run.Counters
	out := fmt.Sprintf("%d attempted, %d succeeded, %d failed", c.Attempted, c.Succeeded, c.Failed)
	if s.skipped > 0 {
		out += fmt.Sprintf(", %d unmatched names skipped", s.skipped)
	}
	return out
}

// snapshot deep-copies the mutable details so callers can hand them to a
// store without racing the batch goroutines.
func (s *runState) snapshot() (admissions.RunCounters, admissions.RunDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()

	details := admissions.RunDetails{Summary: s.run.Details.Summary}
	if len(s.run.Details.Errors) > 0 {
		details.Errors = append([]string(nil), s.run.Details.Errors...)
	}
	if len(s.run.Details.RoundsFound) > 0 {
		details.RoundsFound = make(map[string][]admissions.RoundType, len(s.run.Details.RoundsFound))
		for label, rounds := range s.run.Details.RoundsFound {
			details.RoundsFound[label] = append([]admissions.RoundType(nil), rounds...)
		}
	}
	return s.run.Counters, details
}

func containsRound(rounds []admissions.RoundType, round admissions.RoundType) bool {
	for _, r := range rounds {
		if r == round {
			return true
		}
	}
	return false
}
