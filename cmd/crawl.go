package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCrawlCmd() *cobra.Command {
	var missingOnly bool

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl pass and exit",
		Long: `Crawls admissions pages and reconciles the extracted deadlines into the
store. With --missing-only, only colleges with no deadline record for the
active cycle are visited.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			runFn := a.Orchestrator.RunCrawl
			if missingOnly {
				runFn = a.Orchestrator.RunCrawlMissing
			}
			run, err := runFn(cmd.Context())
			if err != nil {
				return fmt.Errorf("crawl run: %w", err)
			}
			a.Logger.Info("crawl finished",
				zap.String("run_id", run.ID),
				zap.String("status", string(run.Status)),
				zap.String("summary", run.Details.Summary),
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&missingOnly, "missing-only", false, "only crawl colleges with no deadline record for the active cycle")
	return cmd
}
