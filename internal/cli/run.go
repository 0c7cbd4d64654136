package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesdw/internal/logging"
)

var runGenerate bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the clean, load and analyze stages",
	Long: `Run the whole pipeline: clean the raw files, recreate the warehouse
schema, load the prepared files and analyze the result. With memory
storage no database is needed.

Example:
  pgedge-salesdw run --connection "postgres://..."
  pgedge-salesdw run --storage memory --generate --seed 42`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runGenerate, "generate", false,
		"write synthetic raw files before cleaning")
	runCmd.Flags().IntVar(&generateSales, "sales", 0,
		"number of generated sales transactions (with --generate)")
	runCmd.Flags().Uint64Var(&generateSeed, "seed", 0,
		"random seed for generated files (with --generate)")
	runCmd.Flags().IntVar(&loadBatchSize, "batch-size", 0,
		"rows per insert")
	runCmd.Flags().IntVar(&analyzeWorkers, "workers", 0,
		"goroutines per aggregation")
	runCmd.Flags().StringVar(&analyzeOutputDir, "output-dir", "",
		"directory for result CSV files")
	runCmd.Flags().BoolVar(&analyzePivot, "pivot", false,
		"print two-column results as a grid")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runGenerate {
		applyGenerateFlags()
		if err := cfg.ValidateGenerate(); err != nil {
			return err
		}
	}
	if loadBatchSize > 0 {
		cfg.Load.BatchSize = loadBatchSize
	}
	applyAnalyzeFlags()
	if err := cfg.ValidateRun(); err != nil {
		return err
	}

	start := time.Now()
	logging.Info().
		Str("storage", cfg.Storage).
		Str("data_dir", cfg.DataDir).
		Msg("Starting pipeline")

	if runGenerate {
		if err := generateRaw(); err != nil {
			return fmt.Errorf("generate: %w", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := cleanFiles(ctx); err != nil {
		return fmt.Errorf("clean: %w", err)
	}

	h, closeWarehouse, err := openWarehouse(ctx)
	if err != nil {
		return err
	}
	defer closeWarehouse()

	if err := loadFiles(ctx, h, true); err != nil {
		return stageError(ctx, "load", err)
	}
	if err := analyzeWarehouse(ctx, h, cmd.OutOrStdout()); err != nil {
		return stageError(ctx, "analyze", err)
	}

	logging.Info().
		Dur("duration", time.Since(start)).
		Msg("Pipeline complete")
	return nil
}

func stageError(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil {
		logging.Info().Str("stage", stage).Msg("Pipeline stopped")
	}
	return fmt.Errorf("%s: %w", stage, err)
}
