package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/olap"
	"github.com/pgEdge/pgedge-salesdw/internal/pipeline"
	"github.com/pgEdge/pgedge-salesdw/internal/warehouse"
)

var (
	analyzeWorkers   int
	analyzeOutputDir string
	analyzePivot     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run aggregate queries against the warehouse",
	Long: `Read the sales fact table with the product category and calendar
columns joined on, then run the queries from the analyze section of the
configuration. Every aggregate is checked against the raw total of the
rows it summarized; a mismatch fails the command.

Results are written as CSV to the output directory when one is set, and
to standard output otherwise. With --pivot, results grouped by exactly two
columns are printed as a grid with the second column across.

Example:
  pgedge-salesdw analyze --connection "postgres://..." --workers 4`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeWorkers, "workers", 0,
		"goroutines per aggregation")
	analyzeCmd.Flags().StringVar(&analyzeOutputDir, "output-dir", "",
		"directory for result CSV files")
	analyzeCmd.Flags().BoolVar(&analyzePivot, "pivot", false,
		"print two-column results as a grid")
}

func applyAnalyzeFlags() {
	if analyzeWorkers > 0 {
		cfg.Analyze.Workers = analyzeWorkers
	}
	if analyzeOutputDir != "" {
		cfg.Analyze.OutputDir = analyzeOutputDir
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	applyAnalyzeFlags()
	if err := cfg.ValidateAnalyze(); err != nil {
		return err
	}
	warnMemoryStorage("analyze")

	ctx, cancel := signalContext()
	defer cancel()

	h, closeWarehouse, err := openWarehouse(ctx)
	if err != nil {
		return err
	}
	defer closeWarehouse()

	return analyzeWarehouse(ctx, h, cmd.OutOrStdout())
}

func analyzeWarehouse(ctx context.Context, h warehouse.Handle, out io.Writer) error {
	results, err := pipeline.Analyze(ctx, h, warehouse.DefaultSchema(), cfg.Analyze.Queries,
		pipeline.AnalyzeOptions{
			Workers:   cfg.Analyze.Workers,
			OutputDir: cfg.Analyze.OutputDir,
		})
	if err != nil {
		return err
	}

	if cfg.Analyze.OutputDir == "" {
		for _, res := range results {
			if err := printResult(out, res); err != nil {
				return err
			}
		}
	}

	logging.Info().Int("queries", len(results)).Msg("Analysis complete")
	return nil
}

func printResult(out io.Writer, res *olap.Result) error {
	fmt.Fprintf(out, "# %s (%s, %d rows, total %.2f)\n",
		res.Query.Name, res.Query.Kind, res.Rows, res.RawTotal)
	if groups := res.Table.GroupColumns(); analyzePivot && len(groups) == 2 {
		p, err := res.Table.Pivot(groups[0], groups[1])
		if err != nil {
			return err
		}
		if err := p.WriteCSV(out); err != nil {
			return err
		}
	} else if err := res.Table.WriteCSV(out); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out)
	return err
}
