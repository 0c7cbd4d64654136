//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for pgedge-salesdw.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesdw/internal/config"
	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/metrics"
	"github.com/pgEdge/pgedge-salesdw/internal/warehouse"
	"github.com/pgEdge/pgedge-salesdw/pkg/version"
)

var (
	// Global flags
	cfgFile     string
	connection  string
	storage     string
	dataDir     string
	logLevel    string
	metricsFile string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "pgedge-salesdw",
		Short: "Sales data warehouse pipeline for PostgreSQL",
		Long: `pgedge-salesdw cleans raw sales files, loads them into a star schema
warehouse in PostgreSQL and runs validated aggregate queries over it.

The pipeline has three stages, each available as a command:
  clean    - raw/<entity>_data.csv to prepared/<entity>_prepared.csv
  load     - prepared files into the customers, products and sales tables
  analyze  - sliced and diced sales totals, checked against the raw total

The run command chains all three. The generate command writes synthetic
raw files for trying the pipeline out.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return writeMetrics()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./pgedge-salesdw.yaml)")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "",
		"PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&storage, "storage", "",
		"warehouse storage: postgres or memory")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "",
		"directory holding raw/ and prepared/ files")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "",
		"write Prometheus metrics to this file when the command ends")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if connection != "" {
		cfg.Connection = connection
	}
	if storage != "" {
		cfg.Storage = storage
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if metricsFile != "" {
		cfg.MetricsFile = metricsFile
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	return nil
}

func writeMetrics() error {
	if cfg == nil || cfg.MetricsFile == "" {
		return nil
	}
	if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	logging.Debug().Str("file", cfg.MetricsFile).Msg("Wrote metrics")
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logging.Info().
				Str("signal", sig.String()).
				Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// openWarehouse returns the configured warehouse handle and a function
// releasing it. Memory storage lives only as long as the process.
func openWarehouse(ctx context.Context) (warehouse.Handle, func(), error) {
	if cfg.Storage == config.StorageMemory {
		return warehouse.NewMemoryHandle(), func() {}, nil
	}

	pool, err := db.Connect(ctx, cfg.Connection, int32(cfg.Load.Connections))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db.NewWarehouse(pool, warehouse.DefaultSchema()), pool.Close, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}
