package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

type stubTrigger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubTrigger) StartCrawlMissing(context.Context) (admissions.CrawlRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return admissions.CrawlRun{ID: "run-1"}, s.err
}

func (s *stubTrigger) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestNewRejectsBadSpec(t *testing.T) {
	t.Parallel()

	_, err := New("not a cron spec", &stubTrigger{}, nil)
	require.Error(t, err)
}

func TestNewAcceptsStandardSpec(t *testing.T) {
	t.Parallel()

	s, err := New("0 */6 * * *", &stubTrigger{}, nil)
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestFireTriggersCrawl(t *testing.T) {
	t.Parallel()

	trigger := &stubTrigger{}
	s, err := New("0 3 * * *", trigger, nil)
	require.NoError(t, err)

	s.fire()
	require.Equal(t, 1, trigger.count())
}

func TestFireToleratesRunInProgress(t *testing.T) {
	t.Parallel()

	trigger := &stubTrigger{err: admissions.ErrRunInProgress}
	s, err := New("0 3 * * *", trigger, nil)
	require.NoError(t, err)

	// Must not panic or escalate; the skip is logged and the next tick tries
	// again.
	s.fire()
	s.fire()
	require.Equal(t, 2, trigger.count())
}
