package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/admitkit/deadline-crawler/internal/admissions"
	"github.com/admitkit/deadline-crawler/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newEngine(store *memory.DeadlineStore) *Engine {
	return New(store, fixedClock{t: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)}, nil)
}

func candidate(date string) admissions.ParsedDeadlineCandidate {
	return admissions.ParsedDeadlineCandidate{
		RawName: "Example University",
		Round:   admissions.RoundED,
		Date:    date,
	}
}

func TestReconcileInsertsNewRecord(t *testing.T) {
	t.Parallel()

	store := memory.NewDeadlineStore()
	engine := newEngine(store)

	outcome, err := engine.Reconcile(context.Background(), candidate("2025-11-01"), 1, "2025-2026")
	require.NoError(t, err)
	require.Equal(t, admissions.OutcomeInserted, outcome)

	rec, err := store.Get(context.Background(), 1, admissions.RoundED, "2025-2026")
	require.NoError(t, err)
	require.Equal(t, admissions.SourceCrawler, rec.Source)
	require.False(t, rec.AdminConfirmed)
	require.NotNil(t, rec.DeadlineDate)
	require.Equal(t, "2025-11-01", *rec.DeadlineDate)
	require.NotNil(t, rec.LastCrawledAt)
}

func TestReconcileIdempotent(t *testing.T) {
	t.Parallel()

	store := memory.NewDeadlineStore()
	engine := newEngine(store)
	ctx := context.Background()

	first, err := engine.Reconcile(ctx, candidate("2025-11-01"), 1, "2025-2026")
	require.NoError(t, err)
	require.Equal(t, admissions.OutcomeInserted, first)

	second, err := engine.Reconcile(ctx, candidate("2025-11-01"), 1, "2025-2026")
	require.NoError(t, err)
	require.Equal(t, admissions.OutcomeSkipped, second)

	require.Equal(t, 1, store.Len())
}

func TestReconcileUpdatesChangedDate(t *testing.T) {
	t.Parallel()

	store := memory.NewDeadlineStore()
	engine := newEngine(store)
	ctx := context.Background()

	_, err := engine.Reconcile(ctx, candidate("2025-11-01"), 1, "2025-2026")
	require.NoError(t, err)

	outcome, err := engine.Reconcile(ctx, candidate("2025-11-15"), 1, "2025-2026")
	require.NoError(t, err)
	require.Equal(t, admissions.OutcomeUpdated, outcome)

	rec, err := store.Get(ctx, 1, admissions.RoundED, "2025-2026")
	require.NoError(t, err)
	require.Equal(t, "2025-11-15", *rec.DeadlineDate)
}

func TestReconcileRespectsAdminLock(t *testing.T) {
	t.Parallel()

	store := memory.NewDeadlineStore()
	confirmed := "2025-11-01"
	store.Put(admissions.DeadlineRecord{
		CollegeID:      1,
		Round:          admissions.RoundED,
		Cycle:          "2025-2026",
		DeadlineDate:   &confirmed,
		Source:         admissions.SourceAdmin,
		AdminConfirmed: true,
	})

	engine := newEngine(store)
	outcome, err := engine.Reconcile(context.Background(), candidate("2025-12-25"), 1, "2025-2026")
	require.NoError(t, err)
	require.Equal(t, admissions.OutcomeLocked, outcome)

	rec, err := store.Get(context.Background(), 1, admissions.RoundED, "2025-2026")
	require.NoError(t, err)
	require.Equal(t, "2025-11-01", *rec.DeadlineDate)
	require.Equal(t, admissions.SourceAdmin, rec.Source)
	require.True(t, rec.AdminConfirmed)
	// The crawl timestamp may still be refreshed under the lock.
	require.NotNil(t, rec.LastCrawledAt)
}

func TestReconcileDistinctRoundsCoexist(t *testing.T) {
	t.Parallel()

	store := memory.NewDeadlineStore()
	engine := newEngine(store)
	ctx := context.Background()

	_, err := engine.Reconcile(ctx, candidate("2025-11-01"), 1, "2025-2026")
	require.NoError(t, err)

	rd := admissions.ParsedDeadlineCandidate{RawName: "Example University", Round: admissions.RoundRD, Date: "2026-01-05"}
	outcome, err := engine.Reconcile(ctx, rd, 1, "2025-2026")
	require.NoError(t, err)
	require.Equal(t, admissions.OutcomeInserted, outcome)
	require.Equal(t, 2, store.Len())
}
