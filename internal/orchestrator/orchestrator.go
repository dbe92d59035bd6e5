// Package orchestrator drives ingestion runs: full crawls, missing-only
// crawls, and PDF grid imports. A process runs at most one ingestion pass at
// a time; concurrency lives inside a run, in fixed-size college batches.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/admitkit/deadline-crawler/internal/admissions"
	"github.com/admitkit/deadline-crawler/internal/archive"
	"github.com/admitkit/deadline-crawler/internal/events"
	"github.com/admitkit/deadline-crawler/internal/metrics"
)

// Defaults applied by Config.withDefaults.
const (
	defaultBatchSize    = 10
	defaultBatchPause   = 200 * time.Millisecond
	defaultRunTimeout   = 15 * time.Minute
	defaultCrawlTimeout = 10 * time.Minute
	defaultStaleAfter   = 30 * time.Minute

	finalizeTimeout = 30 * time.Second
)

// Config tunes run pacing and ceilings.
type Config struct {
	// BatchSize is how many colleges are crawled concurrently per batch.
	BatchSize int
	// BatchPause is the minimum spacing between consecutive batches.
	BatchPause time.Duration
	// RunTimeout bounds a whole run, PDF imports included.
	RunTimeout time.Duration
	// CrawlTimeout bounds the college batch loop inside a run.
	CrawlTimeout time.Duration
	// StaleAfter is how long a run may sit without an end time before it is
	// force-finalized by the next run.
	StaleAfter time.Duration
	// GridURL is where the deadline grid PDF is fetched from.
	GridURL string
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BatchPause <= 0 {
		c.BatchPause = defaultBatchPause
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaultRunTimeout
	}
	if c.CrawlTimeout <= 0 {
		c.CrawlTimeout = defaultCrawlTimeout
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	return c
}

// DeadlineExtractor pulls per-round deadline dates out of one admissions page.
type DeadlineExtractor interface {
	Extract(ctx context.Context, url string, cycle admissions.Cycle, collegeLabel string) (map[admissions.RoundType]admissions.RoundDates, error)
}

// GridParser turns the deadline grid PDF into candidates.
type GridParser interface {
	Parse(data []byte, cycleStartYear int) ([]admissions.ParsedDeadlineCandidate, error)
}

// NameMatcher resolves raw grid names to college IDs.
type NameMatcher interface {
	Match(rawNames []string, colleges []admissions.College) map[string]int64
}

// Reconciler applies one candidate to the deadline store.
type Reconciler interface {
	Reconcile(ctx context.Context, cand admissions.ParsedDeadlineCandidate, collegeID int64, cycle admissions.Cycle) (admissions.UpsertOutcome, error)
}

// Deps collects the orchestrator's collaborators. Archive and Events may be
// nil; everything else is required.
type Deps struct {
	Colleges   admissions.CollegeStore
	Runs       admissions.RunStore
	Settings   admissions.SettingsStore
	Extractor  DeadlineExtractor
	Grid       GridParser
	Matcher    NameMatcher
	Reconciler Reconciler
	Fetcher    admissions.Fetcher
	Archive    archive.Store
	Events     events.Publisher
	Clock      admissions.Clock
}

// Orchestrator owns the run lifecycle.
type Orchestrator struct {
	deps    Deps
	cfg     Config
	logger  *zap.Logger
	running atomic.Bool
}

// New builds an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Orchestrator{deps: deps, cfg: cfg.withDefaults(), logger: logger}
}

// RunCrawl crawls every college in the reference list.
func (o *Orchestrator) RunCrawl(ctx context.Context) (admissions.CrawlRun, error) {
	return o.crawlRun(ctx, admissions.RunKindCrawl)
}

// RunCrawlMissing crawls only colleges with no deadline record for the
// active cycle.
func (o *Orchestrator) RunCrawlMissing(ctx context.Context) (admissions.CrawlRun, error) {
	return o.crawlRun(ctx, admissions.RunKindCrawlMissing)
}

// RunPDFImport fetches and ingests the deadline grid PDF. When
// thenCrawlMissing is set and the import completes, a missing-only crawl
// follows as its own run with its own ceiling. The returned run is always the
// import run.
func (o *Orchestrator) RunPDFImport(ctx context.Context, thenCrawlMissing bool) (admissions.CrawlRun, error) {
	cycle := o.activeCycle(ctx)
	st, err := o.begin(ctx, admissions.RunKindPDFImport)
	if err != nil {
		return admissions.CrawlRun{}, err
	}

	importCtx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	importErr := o.importGrid(importCtx, st, cycle)
	cancel()

	run, err := o.finish(st, importErr)
	if err != nil || !thenCrawlMissing {
		return run, err
	}
	if _, crawlErr := o.RunCrawlMissing(ctx); crawlErr != nil {
		return run, fmt.Errorf("follow-up crawl: %w", crawlErr)
	}
	return run, nil
}

// StartCrawl registers a full-crawl run and returns immediately; the batch
// work continues in the background.
func (o *Orchestrator) StartCrawl(ctx context.Context) (admissions.CrawlRun, error) {
	return o.startDetached(ctx, admissions.RunKindCrawl, false)
}

// StartCrawlMissing is the detached counterpart of RunCrawlMissing.
func (o *Orchestrator) StartCrawlMissing(ctx context.Context) (admissions.CrawlRun, error) {
	return o.startDetached(ctx, admissions.RunKindCrawlMissing, false)
}

// StartPDFImport is the detached counterpart of RunPDFImport.
func (o *Orchestrator) StartPDFImport(ctx context.Context, thenCrawlMissing bool) (admissions.CrawlRun, error) {
	return o.startDetached(ctx, admissions.RunKindPDFImport, thenCrawlMissing)
}

// startDetached performs the synchronous part of a run (gate, stale cleanup,
// run registration) and hands the rest to a goroutine on a background
// context, so an HTTP caller's disconnect cannot kill the run.
func (o *Orchestrator) startDetached(
	ctx context.Context,
	kind admissions.RunKind,
	thenCrawlMissing bool,
) (admissions.CrawlRun, error) {
	cycle := o.activeCycle(ctx)
	st, err := o.begin(ctx, kind)
	if err != nil {
		return admissions.CrawlRun{}, err
	}
	run := st.run

	go func() {
		workCtx, cancel := context.WithTimeout(context.Background(), o.cfg.RunTimeout)
		var workErr error
		if kind == admissions.RunKindPDFImport {
			workErr = o.importGrid(workCtx, st, cycle)
		} else {
			workErr = o.crawlColleges(workCtx, st, cycle, kind == admissions.RunKindCrawlMissing)
		}
		cancel()
		if _, finishErr := o.finish(st, workErr); finishErr != nil {
			return
		}
		if kind == admissions.RunKindPDFImport && thenCrawlMissing {
			if _, crawlErr := o.RunCrawlMissing(context.Background()); crawlErr != nil {
				o.logger.Error("follow-up crawl failed", zap.String("import_run_id", run.ID), zap.Error(crawlErr))
			}
		}
	}()
	return run, nil
}

func (o *Orchestrator) crawlRun(ctx context.Context, kind admissions.RunKind) (admissions.CrawlRun, error) {
	cycle := o.activeCycle(ctx)
	st, err := o.begin(ctx, kind)
	if err != nil {
		return admissions.CrawlRun{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	crawlErr := o.crawlColleges(runCtx, st, cycle, kind == admissions.RunKindCrawlMissing)
	cancel()

	return o.finish(st, crawlErr)
}

// begin is the single entry gate for every run kind. The compare-and-swap
// rejects overlapping runs in-process before anything touches the store.
func (o *Orchestrator) begin(ctx context.Context, kind admissions.RunKind) (*runState, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, admissions.ErrRunInProgress
	}

	now := o.deps.Clock.Now()
	cutoff := now.Add(-o.cfg.StaleAfter)
	note := fmt.Sprintf("force-finalized: no end time recorded after %s", o.cfg.StaleAfter)
	stale, err := o.deps.Runs.FinalizeStaleRuns(ctx, cutoff, note)
	if err != nil {
		o.running.Store(false)
		return nil, fmt.Errorf("finalize stale runs: %w", err)
	}
	if stale > 0 {
		o.logger.Warn("stale runs force-finalized", zap.Int("count", stale))
	}

	run := admissions.CrawlRun{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    admissions.RunStatusRunning,
		StartedAt: now,
		Details:   admissions.RunDetails{RoundsFound: make(map[string][]admissions.RoundType)},
	}
	if err := o.deps.Runs.CreateRun(ctx, run); err != nil {
		o.running.Store(false)
		return nil, fmt.Errorf("create run: %w", err)
	}

	metrics.SetRunActive(true)
	o.publish(ctx, events.Event{
		Type:      events.TypeRunStarted,
		RunID:     run.ID,
		Kind:      kind,
		Timestamp: now,
	})
	o.logger.Info("run started", zap.String("run_id", run.ID), zap.String("kind", string(kind)))
	return &runState{run: run}, nil
}

// finish writes the terminal run state. It uses a fresh context so a run
// that died on a deadline still gets its end time recorded.
func (o *Orchestrator) finish(st *runState, runErr error) (admissions.CrawlRun, error) {
	defer func() {
		metrics.SetRunActive(false)
		o.running.Store(false)
	}()

	status := admissions.RunStatusCompleted
	if runErr != nil {
		status = admissions.RunStatusFailed
		st.addError(runErr.Error())
	}

	now := o.deps.Clock.Now()
	counters, details := st.snapshot()
	details.Summary = st.summary()

	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	if err := o.deps.Runs.FinalizeRun(ctx, st.run.ID, status, now, counters, details); err != nil {
		o.logger.Error("run finalization failed", zap.String("run_id", st.run.ID), zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("finalize run: %w", err)
			status = admissions.RunStatusFailed
		}
	}

	metrics.ObserveRun(string(st.run.Kind), string(status), now.Sub(st.run.StartedAt))
	o.publish(ctx, events.Event{
		Type:      events.TypeRunFinished,
		RunID:     st.run.ID,
		Kind:      st.run.Kind,
		Status:    status,
		Counters:  counters,
		Timestamp: now,
	})
	o.logger.Info("run finished",
		zap.String("run_id", st.run.ID),
		zap.String("status", string(status)),
		zap.Int("attempted", counters.Attempted),
		zap.Int("succeeded", counters.Succeeded),
		zap.Int("failed", counters.Failed),
	)

	run := st.run
	run.Status = status
	run.FinishedAt = &now
	run.Counters = counters
	run.Details = details
	return run, runErr
}

// crawlColleges walks the college list in fixed-size batches. Batch N+1 only
// starts after batch N fully resolves, with a pacing pause in between.
func (o *Orchestrator) crawlColleges(
	ctx context.Context,
	st *runState,
	cycle admissions.Cycle,
	missingOnly bool,
) error {
	var (
		colleges []admissions.College
		err      error
	)
	if missingOnly {
		colleges, err = o.deps.Colleges.ListCollegesMissingDeadlines(ctx, cycle)
	} else {
		colleges, err = o.deps.Colleges.ListColleges(ctx)
	}
	if err != nil {
		return fmt.Errorf("list colleges: %w", err)
	}
	o.logger.Info("crawl targets resolved",
		zap.Int("colleges", len(colleges)),
		zap.Bool("missing_only", missingOnly),
		zap.String("cycle", string(cycle)),
	)

	crawlCtx, cancel := context.WithTimeout(ctx, o.cfg.CrawlTimeout)
	defer cancel()
	limiter := rate.NewLimiter(rate.Every(o.cfg.BatchPause), 1)

	for start := 0; start < len(colleges); start += o.cfg.BatchSize {
		if err := crawlCtx.Err(); err != nil {
			return fmt.Errorf("crawl window closed with %d colleges remaining: %w", len(colleges)-start, err)
		}
		if err := limiter.Wait(crawlCtx); err != nil {
			return fmt.Errorf("batch pacing: %w", err)
		}

		end := start + o.cfg.BatchSize
		if end > len(colleges) {
			end = len(colleges)
		}
		o.processBatch(crawlCtx, st, cycle, colleges[start:end])

		counters, details := st.snapshot()
		if err := o.deps.Runs.UpdateRunProgress(ctx, st.run.ID, counters, details); err != nil {
			// Progress checkpoints are best effort; the terminal write in
			// finish carries the authoritative counters.
			o.logger.Warn("progress checkpoint not persisted", zap.String("run_id", st.run.ID), zap.Error(err))
		}
	}
	return nil
}

// processBatch crawls one batch concurrently and blocks until every college
// in it resolves.
func (o *Orchestrator) processBatch(
	ctx context.Context,
	st *runState,
	cycle admissions.Cycle,
	batch []admissions.College,
) {
	var wg sync.WaitGroup
	for _, college := range batch {
		wg.Add(1)
		go func(college admissions.College) {
			defer wg.Done()
			o.crawlCollege(ctx, st, cycle, college)
		}(college)
	}
	wg.Wait()
}

func (o *Orchestrator) crawlCollege(
	ctx context.Context,
	st *runState,
	cycle admissions.Cycle,
	college admissions.College,
) {
	if college.AdmissionsURL == "" {
		st.addFailure(college.Name, errors.New("no admissions url on file"))
		return
	}

	rounds, err := o.deps.Extractor.Extract(ctx, college.AdmissionsURL, cycle, college.Name)
	if err != nil {
		metrics.ObserveFetch("crawler", "error")
		st.addFailure(college.Name, err)
		o.logger.Warn("college crawl failed",
			zap.String("college", college.Name),
			zap.String("url", college.AdmissionsURL),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveFetch("crawler", "ok")
	metrics.ObserveCandidates("html", len(rounds))

	var reconcileErrs []error
	var found []admissions.RoundType
	for _, round := range admissions.RoundsByPrecedence {
		dates, ok := rounds[round]
		if !ok || dates.DeadlineDate == "" {
			continue
		}
		cand := admissions.ParsedDeadlineCandidate{RawName: college.Name, Round: round, Date: dates.DeadlineDate}
		outcome, reconcileErr := o.deps.Reconciler.Reconcile(ctx, cand, college.ID, cycle)
		if reconcileErr != nil {
			reconcileErrs = append(reconcileErrs, fmt.Errorf("%s: %w", round, reconcileErr))
			continue
		}
		metrics.ObserveReconcile(string(outcome))
		found = append(found, round)
	}

	if len(reconcileErrs) > 0 {
		st.addFailure(college.Name, errors.Join(reconcileErrs...))
		return
	}
	st.addSuccess(college.Name, found)
}

// importGrid ingests the deadline grid PDF: fetch, archive, parse, match,
// reconcile. Unmatched names are skipped, never failures.
func (o *Orchestrator) importGrid(ctx context.Context, st *runState, cycle admissions.Cycle) error {
	if o.cfg.GridURL == "" {
		return errors.New("grid url is not configured")
	}

	resp, err := o.deps.Fetcher.Fetch(ctx, admissions.FetchRequest{URL: o.cfg.GridURL})
	if err != nil {
		metrics.ObserveFetch("pdf_import", "error")
		return fmt.Errorf("fetch grid: %w", err)
	}
	metrics.ObserveFetch("pdf_import", "ok")

	if o.deps.Archive != nil {
		key := archive.GridKey(string(cycle), st.run.ID)
		if _, archiveErr := o.deps.Archive.Put(ctx, key, "application/pdf", resp.Body); archiveErr != nil {
			o.logger.Warn("grid pdf not archived", zap.String("run_id", st.run.ID), zap.Error(archiveErr))
		}
	}

	cands, err := o.deps.Grid.Parse(resp.Body, cycle.StartYear())
	if err != nil {
		return fmt.Errorf("parse grid: %w", err)
	}
	metrics.ObserveCandidates("pdf_grid", len(cands))

	names := make([]string, 0, len(cands))
	seen := make(map[string]struct{}, len(cands))
	for _, cand := range cands {
		if _, ok := seen[cand.RawName]; ok {
			continue
		}
		seen[cand.RawName] = struct{}{}
		names = append(names, cand.RawName)
	}

	colleges, err := o.deps.Colleges.ListColleges(ctx)
	if err != nil {
		return fmt.Errorf("list colleges: %w", err)
	}
	matched := o.deps.Matcher.Match(names, colleges)

	for _, cand := range cands {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("import window closed: %w", err)
		}
		collegeID, ok := matched[cand.RawName]
		if !ok {
			st.addSkip()
			metrics.ObserveUnmatchedName()
			continue
		}
		outcome, reconcileErr := o.deps.Reconciler.Reconcile(ctx, cand, collegeID, cycle)
		if reconcileErr != nil {
			st.addFailure(cand.RawName, fmt.Errorf("%s: %w", cand.Round, reconcileErr))
			continue
		}
		metrics.ObserveReconcile(string(outcome))
		st.addSuccess(cand.RawName, []admissions.RoundType{cand.Round})
	}
	return nil
}

// activeCycle resolves the cycle to ingest into, falling back to the cycle
// computed from the current date when no setting exists.
func (o *Orchestrator) activeCycle(ctx context.Context) admissions.Cycle {
	if o.deps.Settings == nil {
		return admissions.CycleFor(o.deps.Clock.Now())
	}
	cycle, err := o.deps.Settings.ActiveCycle(ctx)
	if err != nil {
		if !errors.Is(err, admissions.ErrNotFound) {
			o.logger.Warn("active cycle lookup failed, using computed cycle", zap.Error(err))
		}
		return admissions.CycleFor(o.deps.Clock.Now())
	}
	if !cycle.Valid() {
		o.logger.Warn("stored active cycle is malformed, using computed cycle", zap.String("cycle", string(cycle)))
		return admissions.CycleFor(o.deps.Clock.Now())
	}
	return cycle
}

func (o *Orchestrator) publish(ctx context.Context, event events.Event) {
	if o.deps.Events == nil {
		return
	}
	if err := o.deps.Events.Publish(ctx, event); err != nil {
		o.logger.Warn("run event not published",
			zap.String("type", event.Type),
			zap.String("run_id", event.RunID),
			zap.Error(err),
		)
	}
}
