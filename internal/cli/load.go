//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesdw/internal/config"
	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/pipeline"
	"github.com/pgEdge/pgedge-salesdw/internal/warehouse"
)

var (
	loadBatchSize int
	loadCreate    bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the warehouse schema",
	Long: `Create the customers, products and sales tables, dropping any that
already exist. Existing warehouse data is lost.

Example:
  pgedge-salesdw create --connection "postgres://..."`,
	RunE: runCreate,
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load prepared files into the warehouse",
	Long: `Load the prepared entity files into the warehouse tables, dimensions
first. Rows missing a required column or repeating a key within the batch
are dropped; keys already present in the warehouse are reported and
stop the load.

Example:
  pgedge-salesdw load --connection "postgres://..." --create`,
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().IntVar(&loadBatchSize, "batch-size", 0,
		"rows per insert")
	loadCmd.Flags().BoolVar(&loadCreate, "create", false,
		"recreate the warehouse schema before loading")
}

func runCreate(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	warnMemoryStorage("create")

	ctx, cancel := signalContext()
	defer cancel()

	h, closeWarehouse, err := openWarehouse(ctx)
	if err != nil {
		return err
	}
	defer closeWarehouse()

	if err := warehouse.CreateSchema(ctx, h, warehouse.DefaultSchema()); err != nil {
		return err
	}
	logging.Info().Msg("Warehouse schema created")
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	if loadBatchSize > 0 {
		cfg.Load.BatchSize = loadBatchSize
	}
	if err := cfg.ValidateLoad(); err != nil {
		return err
	}
	warnMemoryStorage("load")

	ctx, cancel := signalContext()
	defer cancel()

	h, closeWarehouse, err := openWarehouse(ctx)
	if err != nil {
		return err
	}
	defer closeWarehouse()

	create := loadCreate || cfg.Storage == config.StorageMemory
	if w, ok := h.(*db.Warehouse); ok && !create {
		created, err := requireSchema(ctx, w.Pool())
		if err != nil {
			return err
		}
		logging.Debug().Str("schema_created_at", created).Msg("Loading into existing warehouse")
	}
	return loadFiles(ctx, h, create)
}

func loadFiles(ctx context.Context, h warehouse.Handle, create bool) error {
	batches, err := pipeline.ReadPrepared(cfg.DataDir)
	if err != nil {
		return err
	}

	results, err := pipeline.Load(ctx, h, cfg.Loader(), batches, create)
	for _, r := range results {
		logging.Info().Str("table", r.Table).Msg(r.String())
	}
	if err != nil {
		var dup *warehouse.DuplicateKeyError
		if errors.As(err, &dup) {
			logging.Error().
				Str("table", dup.Table).
				Int("keys", len(dup.Keys)).
				Msg("Keys already present in the warehouse; use --create to reload")
		}
		return err
	}
	return nil
}

// warnMemoryStorage notes that a standalone command on memory storage
// leaves nothing behind once the process exits.
func warnMemoryStorage(command string) {
	if cfg.Storage == config.StorageMemory {
		logging.Warn().
			Str("command", command).
			Msg("Memory storage is discarded when the command exits; use 'run' to chain stages")
	}
}
