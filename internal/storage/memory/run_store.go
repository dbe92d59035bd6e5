package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

// RunStore implements admissions.RunStore in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]admissions.CrawlRun
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]admissions.CrawlRun)}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run admissions.CrawlRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return admissions.ErrRunInProgress
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRunProgress persists counters and details for a running run.
func (s *RunStore) UpdateRunProgress(
	_ context.Context,
	runID string,
	counters admissions.RunCounters,
	details admissions.RunDetails,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return admissions.ErrNotFound
	}
	run.Counters = counters
	run.Details = details
	s.runs[runID] = run
	return nil
}

// FinalizeRun records the terminal status and end time.
func (s *RunStore) FinalizeRun(
	_ context.Context,
	runID string,
	status admissions.RunStatus,
	finishedAt time.Time,
	counters admissions.RunCounters,
	details admissions.RunDetails,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return admissions.ErrNotFound
	}
	run.Status = status
	run.FinishedAt = &finishedAt
	run.Counters = counters
	run.Details = details
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (admissions.CrawlRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return admissions.CrawlRun{}, admissions.ErrNotFound
	}
	return run, nil
}

// ListRuns returns up to limit runs, most recent first.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]admissions.CrawlRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]admissions.CrawlRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FinalizeStaleRuns force-finalizes runs started before cutoff with no end
// time, annotating each with note.
func (s *RunStore) FinalizeStaleRuns(_ context.Context, cutoff time.Time, note string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := time.Now().UTC()
	for id, run := range s.runs {
		if run.FinishedAt != nil || !run.StartedAt.Before(cutoff) {
			continue
		}
		run.Status = admissions.RunStatusFailed
		run.FinishedAt = &now
		run.Details.Errors = append(run.Details.Errors, note)
		s.runs[id] = run
		n++
	}
	return n, nil
}
