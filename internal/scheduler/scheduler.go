// Package scheduler triggers missing-only crawls on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

// Trigger starts a missing-only crawl. The orchestrator satisfies it.
type Trigger interface {
	StartCrawlMissing(ctx context.Context) (admissions.CrawlRun, error)
}

// Scheduler fires crawl-missing runs on a standard 5-field cron spec.
type Scheduler struct {
	cron    *cron.Cron
	trigger Trigger
	logger  *zap.Logger
}

// New validates the cron spec and registers the trigger. Call Start to begin
// firing.
func New(spec string, trigger Trigger, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}

	s := &Scheduler{
		cron:    cron.New(),
		trigger: trigger,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(spec, s.fire); err != nil {
		return nil, fmt.Errorf("register cron job: %w", err)
	}
	return s, nil
}

// Start begins the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and returns once any in-flight trigger call has
// returned. The run itself continues in the orchestrator's background
// goroutine.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) fire() {
	run, err := s.trigger.StartCrawlMissing(context.Background())
	switch {
	case errors.Is(err, admissions.ErrRunInProgress):
		s.logger.Info("scheduled crawl skipped, a run is already in progress")
	case err != nil:
		s.logger.Error("scheduled crawl failed to start", zap.Error(err))
	default:
		s.logger.Info("scheduled crawl started", zap.String("run_id", run.ID))
	}
}
