package memory

import (
	"context"
	"sync"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

// SettingsStore implements admissions.SettingsStore in memory.
type SettingsStore struct {
	mu    sync.RWMutex
	cycle admissions.Cycle
}

// NewSettingsStore constructs a SettingsStore. An empty cycle means none has
// been configured yet.
func NewSettingsStore(cycle admissions.Cycle) *SettingsStore {
	return &SettingsStore{cycle: cycle}
}

// ActiveCycle returns the configured cycle, or ErrNotFound when unset.
func (s *SettingsStore) ActiveCycle(_ context.Context) (admissions.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cycle == "" {
		return "", admissions.ErrNotFound
	}
	return s.cycle, nil
}

// SetActiveCycle stores the cycle.
func (s *SettingsStore) SetActiveCycle(_ context.Context, cycle admissions.Cycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle = cycle
	return nil
}
