package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newImportCmd() *cobra.Command {
	var thenCrawl bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the deadline grid PDF and exit",
		Long: `Fetches the configured deadline grid PDF, parses its per-college rows,
matches the names against the reference list, and reconciles the results.
With --then-crawl, a missing-only crawl follows the import to fill the gaps
the grid left.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			run, err := a.Orchestrator.RunPDFImport(cmd.Context(), thenCrawl)
			if err != nil {
				return fmt.Errorf("pdf import: %w", err)
			}
			a.Logger.Info("import finished",
				zap.String("run_id", run.ID),
				zap.String("status", string(run.Status)),
				zap.String("summary", run.Details.Summary),
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&thenCrawl, "then-crawl", false, "run a missing-only crawl after the import")
	return cmd
}
