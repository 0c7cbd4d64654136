package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/pipeline"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean raw files into prepared files",
	Long: `Clean each raw entity file with the rules from the clean section of
the configuration: string formatting, type conversion, duplicate removal,
missing-value handling and outlier removal. Results are written to the
prepared/ directory of the data directory.

Example:
  pgedge-salesdw clean --data-dir ./data`,
	RunE: runClean,
}

func runClean(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateClean(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return cleanFiles(ctx)
}

func cleanFiles(ctx context.Context) error {
	pipelines, err := cfg.Pipelines()
	if err != nil {
		return err
	}

	results, err := pipeline.Clean(ctx, cfg.DataDir, pipelines)
	if err != nil {
		return err
	}

	var removed int
	for _, r := range results {
		removed += r.Report.Input - r.Report.Output
	}
	logging.Info().
		Int("files", len(results)).
		Int("rows_removed", removed).
		Msg("Clean complete")
	return nil
}
