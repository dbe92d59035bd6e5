package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/admitkit/deadline-crawler/internal/api"
	"github.com/admitkit/deadline-crawler/internal/scheduler"
)

const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Starts the HTTP server that triggers ingestion runs and exposes run
status, deadline listings, and Prometheus metrics. With schedule.enabled,
missing-only crawls also fire on the configured cron spec.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	srv := api.NewServer(a.Orchestrator, a.Runs, a.Deadlines, a.Settings, a.Clock, a.Logger.Named("api"))
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var sched *scheduler.Scheduler
	if a.Config.Schedule.Enabled {
		sched, err = scheduler.New(a.Config.Schedule.Cron, a.Orchestrator, a.Logger.Named("scheduler"))
		if err != nil {
			return err
		}
		sched.Start()
		a.Logger.Info("scheduler started", zap.String("cron", a.Config.Schedule.Cron))
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if sched != nil {
			sched.Stop()
		}
		return err
	case <-cmd.Context().Done():
	}

	a.Logger.Info("shutting down")
	if sched != nil {
		sched.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}
