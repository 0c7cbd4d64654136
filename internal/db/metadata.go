//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/warehouse"
	"github.com/pgEdge/pgedge-salesdw/pkg/version"
)

const metadataTable = "warehouse_metadata"

// createMetadataTableSQL creates the metadata table if it doesn't exist.
const createMetadataTableSQL = `
CREATE TABLE IF NOT EXISTS warehouse_metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`

// Metadata keys.
const (
	KeyVersion         = "version"
	KeySchemaCreatedAt = "schema_created_at"
	KeyTables          = "tables"
	loadKeyPrefix      = "load."
)

// LoadKey returns the metadata key holding the last load of a table.
func LoadKey(table string) string {
	return loadKeyPrefix + table
}

func setMetadata(ctx context.Context, pool *pgxpool.Pool, values map[string]string) error {
	if _, err := pool.Exec(ctx, createMetadataTableSQL); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}
	for key, value := range values {
		_, err := pool.Exec(ctx, `
            INSERT INTO warehouse_metadata (key, value) VALUES ($1, $2)
            ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
        `, key, value)
		if err != nil {
			return fmt.Errorf("failed to save metadata %s: %w", key, err)
		}
	}
	return nil
}

// SaveSchemaMetadata records a fresh schema and forgets earlier loads.
func SaveSchemaMetadata(ctx context.Context, pool *pgxpool.Pool, s *warehouse.Schema) error {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}

	if err := setMetadata(ctx, pool, map[string]string{
		KeyVersion:         version.Short(),
		KeySchemaCreatedAt: time.Now().UTC().Format(time.RFC3339),
		KeyTables:          strings.Join(names, ","),
	}); err != nil {
		return err
	}

	_, err := pool.Exec(ctx, `DELETE FROM warehouse_metadata WHERE key LIKE $1`, loadKeyPrefix+"%")
	if err != nil {
		return fmt.Errorf("failed to clear load metadata: %w", err)
	}

	logging.Debug().
		Strs("tables", names).
		Msg("Saved schema metadata")
	return nil
}

// SaveLoadMetadata records the counts of the last load of a table.
func SaveLoadMetadata(ctx context.Context, pool *pgxpool.Pool, table string, res warehouse.LoadResult) error {
	value := fmt.Sprintf("%s at=%s", res.String(), time.Now().UTC().Format(time.RFC3339))
	return setMetadata(ctx, pool, map[string]string{LoadKey(table): value})
}

// GetMetadataValue retrieves a single metadata value by key.
func GetMetadataValue(ctx context.Context, pool *pgxpool.Pool, key string) (string, error) {
	var value string
	err := pool.QueryRow(ctx, `
        SELECT value FROM warehouse_metadata WHERE key = $1
    `, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// GetAllMetadata retrieves all metadata as a map.
func GetAllMetadata(ctx context.Context, pool *pgxpool.Pool) (map[string]string, error) {
	rows, err := pool.Query(ctx, `SELECT key, value FROM warehouse_metadata`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		metadata[key] = value
	}

	return metadata, rows.Err()
}

// DropMetadata drops the metadata table.
func DropMetadata(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", metadataTable))
	return err
}

// MetadataExists checks if the metadata table exists.
func MetadataExists(ctx context.Context, pool *pgxpool.Pool) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT FROM information_schema.tables
            WHERE table_name = $1
        )
    `, metadataTable).Scan(&exists)
	return exists, err
}
