package cli

import (
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesdw/internal/datagen"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/pipeline"
)

var (
	generateSales    int
	generateSeed     uint64
	generateDirtRate float64
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write synthetic raw sales files",
	Long: `Write synthetic customers, products and sales files to the raw/
directory of the data directory. A share of the rows carries the defects
the clean stage removes: duplicates, blank fields, inconsistent casing,
outliers and references to unknown customers.

Example:
  pgedge-salesdw generate --data-dir ./data --sales 20000 --seed 42`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().IntVar(&generateSales, "sales", 0,
		"number of sales transactions")
	generateCmd.Flags().Uint64Var(&generateSeed, "seed", 0,
		"random seed for reproducible files (0 = random)")
	generateCmd.Flags().Float64Var(&generateDirtRate, "dirt-rate", -1,
		"share of rows given a defect, between 0 and 1")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	applyGenerateFlags()

	if err := cfg.ValidateGenerate(); err != nil {
		return err
	}
	return generateRaw()
}

func applyGenerateFlags() {
	if generateSales > 0 {
		cfg.Generate.Sales = generateSales
	}
	if generateSeed != 0 {
		cfg.Generate.Seed = generateSeed
	}
	if generateDirtRate >= 0 {
		cfg.Generate.DirtRate = generateDirtRate
	}
}

func generateRaw() error {
	genCfg, err := cfg.GeneratorConfig()
	if err != nil {
		return err
	}

	logging.Info().
		Int("customers", genCfg.Customers).
		Int("products", genCfg.Products).
		Int("sales", genCfg.Sales).
		Float64("dirt_rate", genCfg.DirtRate).
		Msg("Generating raw files")

	ctx, cancel := signalContext()
	defer cancel()

	g, err := datagen.NewGenerator(genCfg)
	if err != nil {
		return err
	}
	batch, err := g.Generate(ctx)
	if err != nil {
		return err
	}
	return pipeline.WriteRaw(cfg.DataDir, batch.Tables())
}
