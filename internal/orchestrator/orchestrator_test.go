package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/admitkit/deadline-crawler/internal/admissions"
	archivemem "github.com/admitkit/deadline-crawler/internal/archive/memory"
	"github.com/admitkit/deadline-crawler/internal/events"
	eventsmem "github.com/admitkit/deadline-crawler/internal/events/memory"
	"github.com/admitkit/deadline-crawler/internal/match"
	"github.com/admitkit/deadline-crawler/internal/reconcile"
	"github.com/admitkit/deadline-crawler/internal/storage/memory"
)

var testNow = time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type stubExtractor struct {
	mu          sync.Mutex
	urls        []string
	inflight    int
	maxInflight int

	rounds map[string]map[admissions.RoundType]admissions.RoundDates
	errs   map[string]error

	// When block is non-nil, Extract parks until it closes or the context
	// expires.
	block     chan struct{}
	startOnce sync.Once
	started   chan struct{}
}

func (s *stubExtractor) Extract(
	ctx context.Context,
	url string,
	_ admissions.Cycle,
	_ string,
) (map[admissions.RoundType]admissions.RoundDates, error) {
	s.mu.Lock()
	s.urls = append(s.urls, url)
	s.inflight++
	if s.inflight > s.maxInflight {
		s.maxInflight = s.inflight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}()

	if s.started != nil {
		s.startOnce.Do(func() { close(s.started) })
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := s.errs[url]; err != nil {
		return nil, err
	}
	return s.rounds[url], nil
}

func (s *stubExtractor) seenURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.urls...)
}

type stubFetcher struct {
	body []byte
	err  error
}

func (s *stubFetcher) Fetch(_ context.Context, req admissions.FetchRequest) (admissions.FetchResponse, error) {
	if s.err != nil {
		return admissions.FetchResponse{}, s.err
	}
	return admissions.FetchResponse{URL: req.URL, StatusCode: 200, Body: s.body}, nil
}

type stubGrid struct {
	cands []admissions.ParsedDeadlineCandidate
	err   error
}

func (s *stubGrid) Parse(_ []byte, _ int) ([]admissions.ParsedDeadlineCandidate, error) {
	return s.cands, s.err
}

type recordingRunStore struct {
	*memory.RunStore

	mu       sync.Mutex
	progress int
}

func (r *recordingRunStore) UpdateRunProgress(
	ctx context.Context,
	runID string,
	counters admissions.RunCounters,
	details admissions.RunDetails,
) error {
	r.mu.Lock()
	r.progress++
	r.mu.Unlock()
	return r.RunStore.UpdateRunProgress(ctx, runID, counters, details)
}

func (r *recordingRunStore) progressUpdates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

type fixture struct {
	orch      *Orchestrator
	deadlines *memory.DeadlineStore
	runs      *recordingRunStore
	events    *eventsmem.Publisher
	archive   *archivemem.Store
}

func newFixture(t *testing.T, colleges []admissions.College, deps func(*Deps), cfg Config) *fixture {
	t.Helper()

	deadlines := memory.NewDeadlineStore()
	runs := &recordingRunStore{RunStore: memory.NewRunStore()}
	pub := eventsmem.New()
	blobs := archivemem.New()
	clock := fixedClock{t: testNow}

	d := Deps{
		Colleges:   memory.NewCollegeStore(colleges, deadlines),
		Runs:       runs,
		Settings:   memory.NewSettingsStore("2025-2026"),
		Grid:       &stubGrid{},
		Matcher:    match.New(nil),
		Reconciler: reconcile.New(deadlines, clock, nil),
		Clock:      clock,
		Events:     pub,
		Archive:    blobs,
	}
	if deps != nil {
		deps(&d)
	}
	if cfg.BatchPause == 0 {
		cfg.BatchPause = time.Millisecond
	}
	return &fixture{
		orch:      New(d, cfg, nil),
		deadlines: deadlines,
		runs:      runs,
		events:    pub,
		archive:   blobs,
	}
}

func TestRunCrawlHappyPath(t *testing.T) {
	t.Parallel()

	colleges := []admissions.College{
		{ID: 1, Name: "Amherst College", AdmissionsURL: "https://amherst.edu/apply"},
		{ID: 2, Name: "Bates College", AdmissionsURL: "https://bates.edu/apply"},
		{ID: 3, Name: "Colby College", AdmissionsURL: "https://colby.edu/apply"},
	}
	ext := &stubExtractor{
		rounds: map[string]map[admissions.RoundType]admissions.RoundDates{
			"https://amherst.edu/apply": {
				admissions.RoundED: {DeadlineDate: "2025-11-01"},
				admissions.RoundRD: {DeadlineDate: "2026-01-05"},
			},
			"https://bates.edu/apply": {
				admissions.RoundRolling: {DeadlineDate: "2026-03-01"},
			},
		},
		errs: map[string]error{
			"https://colby.edu/apply": &admissions.FetchError{URL: "https://colby.edu/apply", StatusCode: 503},
		},
	}
	f := newFixture(t, colleges, func(d *Deps) { d.Extractor = ext }, Config{})

	run, err := f.orch.RunCrawl(context.Background())
	require.NoError(t, err)

	require.Equal(t, admissions.RunStatusCompleted, run.Status)
	require.Equal(t, admissions.RunCounters{Attempted: 3, Succeeded: 2, Failed: 1}, run.Counters)
	require.Equal(t, []admissions.RoundType{admissions.RoundED, admissions.RoundRD}, run.Details.RoundsFound["Amherst College"])
	require.Len(t, run.Details.Errors, 1)
	require.Contains(t, run.Details.Errors[0], "Colby College")

	stored, err := f.runs.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, admissions.RunStatusCompleted, stored.Status)
	require.NotNil(t, stored.FinishedAt)

	require.Equal(t, 3, f.deadlines.Len())
	rec, err := f.deadlines.Get(context.Background(), 1, admissions.RoundED, "2025-2026")
	require.NoError(t, err)
	require.Equal(t, "2025-11-01", *rec.DeadlineDate)

	evts := f.events.Events()
	require.Len(t, evts, 2)
	require.Equal(t, events.TypeRunStarted, evts[0].Type)
	require.Equal(t, events.TypeRunFinished, evts[1].Type)
	require.Equal(t, admissions.RunStatusCompleted, evts[1].Status)
}

func TestSecondRunRejectedWhileFirstActive(t *testing.T) {
	t.Parallel()

	colleges := []admissions.College{
		{ID: 1, Name: "Amherst College", AdmissionsURL: "https://amherst.edu/apply"},
	}
	ext := &stubExtractor{
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	f := newFixture(t, colleges, func(d *Deps) { d.Extractor = ext }, Config{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.orch.RunCrawl(context.Background())
		require.NoError(t, err)
	}()

	select {
	case <-ext.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never started crawling")
	}

	_, err := f.orch.RunCrawlMissing(context.Background())
	require.ErrorIs(t, err, admissions.ErrRunInProgress)
	_, err = f.orch.RunPDFImport(context.Background(), false)
	require.ErrorIs(t, err, admissions.ErrRunInProgress)

	close(ext.block)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never finished")
	}

	// The gate releases once the first run finalizes.
	_, err = f.orch.RunCrawl(context.Background())
	require.NoError(t, err)
}

func TestStaleRunFinalizedBeforeStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, func(d *Deps) { d.Extractor = &stubExtractor{} }, Config{})

	staleStart := testNow.Add(-45 * time.Minute)
	require.NoError(t, f.runs.CreateRun(context.Background(), admissions.CrawlRun{
		ID:        "stale-run",
		Kind:      admissions.RunKindCrawl,
		Status:    admissions.RunStatusRunning,
		StartedAt: staleStart,
	}))

	_, err := f.orch.RunCrawl(context.Background())
	require.NoError(t, err)

	stale, err := f.runs.GetRun(context.Background(), "stale-run")
	require.NoError(t, err)
	require.Equal(t, admissions.RunStatusFailed, stale.Status)
	require.NotNil(t, stale.FinishedAt)
	require.NotEmpty(t, stale.Details.Errors)
	require.Contains(t, stale.Details.Errors[0], "force-finalized")
}

func TestRecentRunningRunIsNotFinalized(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, func(d *Deps) { d.Extractor = &stubExtractor{} }, Config{})

	require.NoError(t, f.runs.CreateRun(context.Background(), admissions.CrawlRun{
		ID:        "recent-run",
		Kind:      admissions.RunKindCrawl,
		Status:    admissions.RunStatusRunning,
		StartedAt: testNow.Add(-5 * time.Minute),
	}))

	_, err := f.orch.RunCrawl(context.Background())
	require.NoError(t, err)

	recent, err := f.runs.GetRun(context.Background(), "recent-run")
	require.NoError(t, err)
	require.Equal(t, admissions.RunStatusRunning, recent.Status)
}

func TestBatchAccounting(t *testing.T) {
	t.Parallel()

	var colleges []admissions.College
	rounds := make(map[string]map[admissions.RoundType]admissions.RoundDates)
	for i := 1; i <= 25; i++ {
		url := "https://example.edu/" + string(rune('a'+i-1))
		colleges = append(colleges, admissions.College{
			ID:            int64(i),
			Name:          "College " + string(rune('A'+i-1)),
			AdmissionsURL: url,
		})
		rounds[url] = map[admissions.RoundType]admissions.RoundDates{
			admissions.RoundRD: {DeadlineDate: "2026-01-05"},
		}
	}
	ext := &stubExtractor{rounds: rounds}
	f := newFixture(t, colleges, func(d *Deps) { d.Extractor = ext }, Config{BatchSize: 10})

	run, err := f.orch.RunCrawl(context.Background())
	require.NoError(t, err)

	require.Equal(t, 25, run.Counters.Attempted)
	require.Equal(t, run.Counters.Attempted, run.Counters.Succeeded+run.Counters.Failed)
	// 25 colleges in batches of 10 means three progress checkpoints.
	require.Equal(t, 3, f.runs.progressUpdates())
	require.LessOrEqual(t, ext.maxInflight, 10)
}

func TestCrawlCeilingFailsRun(t *testing.T) {
	t.Parallel()

	colleges := []admissions.College{
		{ID: 1, Name: "Amherst College", AdmissionsURL: "https://amherst.edu/apply"},
		{ID: 2, Name: "Bates College", AdmissionsURL: "https://bates.edu/apply"},
	}
	ext := &stubExtractor{block: make(chan struct{})} // never closed; Extract waits out the context
	f := newFixture(t, colleges, func(d *Deps) { d.Extractor = ext },
		Config{BatchSize: 1, CrawlTimeout: 30 * time.Millisecond})

	run, err := f.orch.RunCrawl(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, admissions.RunStatusFailed, run.Status)
	require.NotEmpty(t, run.Details.Errors)
}

func TestRunCrawlMissingOnly(t *testing.T) {
	t.Parallel()

	colleges := []admissions.College{
		{ID: 1, Name: "Amherst College", AdmissionsURL: "https://amherst.edu/apply"},
		{ID: 2, Name: "Bates College", AdmissionsURL: "https://bates.edu/apply"},
	}
	ext := &stubExtractor{
		rounds: map[string]map[admissions.RoundType]admissions.RoundDates{
			"https://bates.edu/apply": {admissions.RoundRolling: {DeadlineDate: "2026-03-01"}},
		},
	}
	f := newFixture(t, colleges, func(d *Deps) { d.Extractor = ext }, Config{})

	date := "2025-11-01"
	f.deadlines.Put(admissions.DeadlineRecord{
		CollegeID:    1,
		Round:        admissions.RoundED,
		Cycle:        "2025-2026",
		DeadlineDate: &date,
		Source:       admissions.SourceCrawler,
	})

	run, err := f.orch.RunCrawlMissing(context.Background())
	require.NoError(t, err)
	require.Equal(t, admissions.RunKindCrawlMissing, run.Kind)
	require.Equal(t, []string{"https://bates.edu/apply"}, ext.seenURLs())
	require.Equal(t, 1, run.Counters.Attempted)
}

func TestRunPDFImport(t *testing.T) {
	t.Parallel()

	colleges := []admissions.College{
		{ID: 1, Name: "Amherst College", ShortName: "Amherst"},
	}
	grid := &stubGrid{
		cands: []admissions.ParsedDeadlineCandidate{
			{RawName: "Amherst College", Round: admissions.RoundED, Date: "2025-11-01"},
			{RawName: "Amherst College", Round: admissions.RoundRD, Date: "2026-01-05"},
			{RawName: "Some Unknown School", Round: admissions.RoundEA, Date: "2025-11-15"},
		},
	}
	f := newFixture(t, colleges, func(d *Deps) {
		d.Extractor = &stubExtractor{}
		d.Grid = grid
		d.Fetcher = &stubFetcher{body: []byte("%PDF-fake")}
	}, Config{GridURL: "https://example.org/deadlines.pdf"})

	run, err := f.orch.RunPDFImport(context.Background(), false)
	require.NoError(t, err)

	require.Equal(t, admissions.RunKindPDFImport, run.Kind)
	require.Equal(t, admissions.RunStatusCompleted, run.Status)
	require.Equal(t, admissions.RunCounters{Attempted: 2, Succeeded: 2, Failed: 0}, run.Counters)
	require.Contains(t, run.Details.Summary, "1 unmatched names skipped")

	require.Equal(t, 2, f.deadlines.Len())
	rec, err := f.deadlines.Get(context.Background(), 1, admissions.RoundRD, "2025-2026")
	require.NoError(t, err)
	require.Equal(t, "2026-01-05", *rec.DeadlineDate)

	obj, ok := f.archive.Get("grids/2025-2026/" + run.ID + ".pdf")
	require.True(t, ok)
	require.Equal(t, "application/pdf", obj.ContentType)
	require.Equal(t, []byte("%PDF-fake"), obj.Data)
}

func TestRunPDFImportFetchFailureFailsRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, func(d *Deps) {
		d.Extractor = &stubExtractor{}
		d.Fetcher = &stubFetcher{err: &admissions.FetchError{URL: "https://example.org/deadlines.pdf", StatusCode: 404}}
	}, Config{GridURL: "https://example.org/deadlines.pdf"})

	run, err := f.orch.RunPDFImport(context.Background(), false)
	require.Error(t, err)
	require.Equal(t, admissions.RunStatusFailed, run.Status)

	var fe *admissions.FetchError
	require.True(t, errors.As(err, &fe))
}

func TestRunPDFImportThenCrawlMissing(t *testing.T) {
	t.Parallel()

	colleges := []admissions.College{
		{ID: 1, Name: "Amherst College", AdmissionsURL: "https://amherst.edu/apply"},
		{ID: 2, Name: "Bates College", AdmissionsURL: "https://bates.edu/apply"},
	}
	grid := &stubGrid{
		cands: []admissions.ParsedDeadlineCandidate{
			{RawName: "Amherst College", Round: admissions.RoundED, Date: "2025-11-01"},
		},
	}
	ext := &stubExtractor{
		rounds: map[string]map[admissions.RoundType]admissions.RoundDates{
			"https://bates.edu/apply": {admissions.RoundRolling: {DeadlineDate: "2026-03-01"}},
		},
	}
	f := newFixture(t, colleges, func(d *Deps) {
		d.Extractor = ext
		d.Grid = grid
		d.Fetcher = &stubFetcher{body: []byte("%PDF-fake")}
	}, Config{GridURL: "https://example.org/deadlines.pdf"})

	run, err := f.orch.RunPDFImport(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, admissions.RunKindPDFImport, run.Kind)

	// Amherst got its record from the grid, so the follow-up crawl only
	// touches Bates.
	require.Equal(t, []string{"https://bates.edu/apply"}, ext.seenURLs())

	runs, err := f.runs.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	kinds := map[admissions.RunKind]bool{}
	for _, r := range runs {
		kinds[r.Kind] = true
		require.Equal(t, admissions.RunStatusCompleted, r.Status)
	}
	require.True(t, kinds[admissions.RunKindPDFImport])
	require.True(t, kinds[admissions.RunKindCrawlMissing])
}

func TestStartCrawlReturnsBeforeWorkFinishes(t *testing.T) {
	t.Parallel()

	colleges := []admissions.College{
		{ID: 1, Name: "Amherst College", AdmissionsURL: "https://amherst.edu/apply"},
	}
	ext := &stubExtractor{block: make(chan struct{})}
	f := newFixture(t, colleges, func(d *Deps) { d.Extractor = ext }, Config{})

	run, err := f.orch.StartCrawl(context.Background())
	require.NoError(t, err)
	require.Equal(t, admissions.RunStatusRunning, run.Status)

	stored, err := f.runs.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, admissions.RunStatusRunning, stored.Status)

	close(ext.block)
	require.Eventually(t, func() bool {
		got, err := f.runs.GetRun(context.Background(), run.ID)
		return err == nil && got.Status == admissions.RunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCollegeWithoutURLCountsAsFailure(t *testing.T) {
	t.Parallel()

	colleges := []admissions.College{{ID: 1, Name: "Amherst College"}}
	f := newFixture(t, colleges, func(d *Deps) { d.Extractor = &stubExtractor{} }, Config{})

	run, err := f.orch.RunCrawl(context.Background())
	require.NoError(t, err)
	require.Equal(t, admissions.RunCounters{Attempted: 1, Succeeded: 0, Failed: 1}, run.Counters)
	require.Contains(t, run.Details.Errors[0], "no admissions url")
}
