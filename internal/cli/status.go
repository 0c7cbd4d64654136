package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesdw/internal/config"
	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/warehouse"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show warehouse metadata and table row counts",
	Long: `Show when the warehouse schema was created, the outcome of the last
load of each table and the current row counts. Requires postgres storage.`,
	RunE: runStatus,
}

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop the warehouse tables and metadata",
	RunE:  runDrop,
}

func init() {
	rootCmd.AddCommand(dropCmd)
}

func requirePostgres() error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Storage != config.StoragePostgres {
		return fmt.Errorf("this command requires '%s' storage", config.StoragePostgres)
	}
	return nil
}

// requireSchema returns when the warehouse schema was created, or an error
// when 'create' has never run against the database.
func requireSchema(ctx context.Context, pool *pgxpool.Pool) (string, error) {
	notCreated := errors.New("warehouse has not been created; run 'pgedge-salesdw create' first")

	exists, err := db.MetadataExists(ctx, pool)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", notCreated
	}
	created, err := db.GetMetadataValue(ctx, pool, db.KeySchemaCreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", notCreated
	}
	if err != nil {
		return "", fmt.Errorf("failed to read metadata: %w", err)
	}
	return created, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := requirePostgres(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	pool, err := db.Connect(ctx, cfg.Connection, 1)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if _, err := requireSchema(ctx, pool); err != nil {
		return err
	}

	metadata, err := db.GetAllMetadata(ctx, pool)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	out := cmd.OutOrStdout()
	for _, key := range slices.Sorted(maps.Keys(metadata)) {
		fmt.Fprintf(out, "%-24s %s\n", key, metadata[key])
	}

	w := db.NewWarehouse(pool, warehouse.DefaultSchema())
	fmt.Fprintln(out)
	for _, table := range warehouse.LoadOrder {
		n, err := w.Count(ctx, table)
		if err != nil {
			return &warehouse.StorageError{Op: "count", Table: table, Err: err}
		}
		fmt.Fprintf(out, "%-24s %d rows\n", table, n)
	}
	return nil
}

func runDrop(cmd *cobra.Command, args []string) error {
	if err := requirePostgres(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	pool, err := db.Connect(ctx, cfg.Connection, 1)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	w := db.NewWarehouse(pool, warehouse.DefaultSchema())
	order, err := warehouse.DefaultSchema().CreateOrder()
	if err != nil {
		return err
	}
	for i := len(order) - 1; i >= 0; i-- {
		if err := w.DropTable(ctx, order[i].Name); err != nil {
			return &warehouse.StorageError{Op: "drop", Table: order[i].Name, Err: err}
		}
	}
	if err := db.DropMetadata(ctx, pool); err != nil {
		return fmt.Errorf("failed to drop metadata: %w", err)
	}

	logging.Info().Msg("Warehouse dropped")
	return nil
}
