// Package api exposes the HTTP interface for the deadline pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/admitkit/deadline-crawler/internal/admissions"
	"github.com/admitkit/deadline-crawler/internal/metrics"
)

// Runner triggers ingestion runs. The orchestrator satisfies it.
type Runner interface {
	StartCrawl(ctx context.Context) (admissions.CrawlRun, error)
	StartCrawlMissing(ctx context.Context) (admissions.CrawlRun, error)
	StartPDFImport(ctx context.Context, thenCrawlMissing bool) (admissions.CrawlRun, error)
}

// Server wires HTTP handlers to the orchestrator and stores.
type Server struct {
	router    chi.Router
	runner    Runner
	runs      admissions.RunStore
	deadlines admissions.DeadlineStore
	settings  admissions.SettingsStore
	clock     admissions.Clock
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runner Runner,
	runs admissions.RunStore,
	deadlines admissions.DeadlineStore,
	settings admissions.SettingsStore,
	clock admissions.Clock,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:    runner,
		runs:      runs,
		deadlines: deadlines,
		settings:  settings,
		clock:     clock,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/crawl", s.startCrawl)
			r.Post("/crawl-missing", s.startCrawlMissing)
			r.Post("/import", s.startImport)
			r.Get("/", s.listRuns)
			r.Get("/{run_id}", s.getRun)
		})
		r.Get("/deadlines", s.listDeadlines)
		r.Route("/settings", func(r chi.Router) {
			r.Get("/cycle", s.getActiveCycle)
			r.Put("/cycle", s.setActiveCycle)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The run store is the hard dependency; probe it with a cheap read.
	if _, err := s.runs.ListRuns(r.Context(), 1); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "run store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	s.startRun(w, func() (admissions.CrawlRun, error) {
		return s.runner.StartCrawl(r.Context())
	})
}

func (s *Server) startCrawlMissing(w http.ResponseWriter, r *http.Request) {
	s.startRun(w, func() (admissions.CrawlRun, error) {
		return s.runner.StartCrawlMissing(r.Context())
	})
}

type importRequest struct {
	ThenCrawlMissing bool `json:"then_crawl_missing"`
}

func (s *Server) startImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	s.startRun(w, func() (admissions.CrawlRun, error) {
		return s.runner.StartPDFImport(r.Context(), req.ThenCrawlMissing)
	})
}

func (s *Server) startRun(w http.ResponseWriter, start func() (admissions.CrawlRun, error)) {
	run, err := start()
	if err != nil {
		if errors.Is(err, admissions.ErrRunInProgress) {
			s.writeError(w, http.StatusConflict, "a run is already in progress")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"run": run})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, admissions.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to fetch run")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []admissions.CrawlRun{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) listDeadlines(w http.ResponseWriter, r *http.Request) {
	cycle := admissions.Cycle(r.URL.Query().Get("cycle"))
	if cycle == "" {
		active, err := s.settings.ActiveCycle(r.Context())
		if err != nil {
			if !errors.Is(err, admissions.ErrNotFound) {
				s.writeError(w, http.StatusInternalServerError, "failed to resolve cycle")
				return
			}
			active = admissions.CycleFor(s.clock.Now())
		}
		cycle = active
	}
	if !cycle.Valid() {
		s.writeError(w, http.StatusBadRequest, "malformed cycle; expected YYYY-YYYY")
		return
	}
	records, err := s.deadlines.ListForCycle(r.Context(), cycle)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list deadlines")
		return
	}
	if records == nil {
		records = []admissions.DeadlineRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cycle": cycle, "deadlines": records})
}

func (s *Server) getActiveCycle(w http.ResponseWriter, r *http.Request) {
	cycle, err := s.settings.ActiveCycle(r.Context())
	if err != nil {
		if errors.Is(err, admissions.ErrNotFound) {
			computed := admissions.CycleFor(s.clock.Now())
			s.writeJSON(w, http.StatusOK, map[string]any{"cycle": computed, "configured": false})
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cycle": cycle, "configured": true})
}

type setCycleRequest struct {
	Cycle string `json:"cycle"`
}

func (s *Server) setActiveCycle(w http.ResponseWriter, r *http.Request) {
	var req setCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	cycle := admissions.Cycle(req.Cycle)
	if !cycle.Valid() {
		s.writeError(w, http.StatusBadRequest, "malformed cycle; expected YYYY-YYYY")
		return
	}
	if err := s.settings.SetActiveCycle(r.Context(), cycle); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to write settings")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cycle": cycle})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
