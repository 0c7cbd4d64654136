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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/warehouse"
)

// stagingTable receives each insert batch through COPY before it is merged
// into the target table.
const stagingTable = "salesdw_stage"

// positionColumn carries the position of each staged row in its batch.
const positionColumn = "salesdw_pos"

// Warehouse is a warehouse.Handle backed by a PostgreSQL pool.
type Warehouse struct {
	pool   *pgxpool.Pool
	schema *warehouse.Schema
}

// NewWarehouse wraps pool. The schema supplies column types when values
// are read back.
func NewWarehouse(pool *pgxpool.Pool, schema *warehouse.Schema) *Warehouse {
	return &Warehouse{pool: pool, schema: schema}
}

// Pool returns the underlying pool.
func (w *Warehouse) Pool() *pgxpool.Pool {
	return w.pool
}

// SQLType returns the PostgreSQL type used for a column type. Dates are
// stored as ISO-8601 text.
func SQLType(t dataset.Type) string {
	switch t {
	case dataset.Integer:
		return "BIGINT"
	case dataset.Float:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}

// CreateTableSQL renders the DDL of a table. Foreign keys are not
// rendered; they are checked by the loader.
func CreateTableSQL(t *warehouse.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", quote(t.Name))
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "    %s %s", quote(c.Name), SQLType(c.Type))
		if c.Required {
			b.WriteString(" NOT NULL")
		}
		b.WriteString(",\n")
	}
	fmt.Fprintf(&b, "    PRIMARY KEY (%s)\n)", quoteAll(t.PrimaryKey))
	return b.String()
}

func createStagingSQL(t *warehouse.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TEMP TABLE %s (%s INTEGER", quote(stagingTable), quote(positionColumn))
	for _, c := range t.Columns {
		fmt.Fprintf(&b, ", %s %s", quote(c.Name), SQLType(c.Type))
	}
	b.WriteString(") ON COMMIT DROP")
	return b.String()
}

func mergeSQL(t *warehouse.Table) string {
	cols := quoteAll(t.ColumnNames())
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ORDER BY %s ON CONFLICT DO NOTHING RETURNING %s",
		quote(t.Name), cols, cols, quote(stagingTable), quote(positionColumn), quoteAll(t.PrimaryKey))
}

// toStorage converts a value to what is written to its column.
func toStorage(v any) any {
	if tm, ok := v.(time.Time); ok {
		return tm.Format(dataset.DateLayout)
	}
	return v
}

// DropTable implements warehouse.Handle.
func (w *Warehouse) DropTable(ctx context.Context, name string) error {
	_, err := w.pool.Exec(ctx, "DROP TABLE IF EXISTS "+quote(name))
	return err
}

// CreateTable implements warehouse.Handle.
func (w *Warehouse) CreateTable(ctx context.Context, t *warehouse.Table) error {
	ddl := CreateTableSQL(t)
	logging.Debug().Str("table", t.Name).Str("sql", ddl).Msg("Creating table")
	_, err := w.pool.Exec(ctx, ddl)
	return err
}

// Insert implements warehouse.Handle. The batch is copied into a
// temporary table and merged with ON CONFLICT DO NOTHING; keys that the
// merge did not return were already present.
func (w *Warehouse) Insert(ctx context.Context, t *warehouse.Table, rows [][]any) ([]int, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, createStagingSQL(t)); err != nil {
		return nil, fmt.Errorf("failed to create staging table: %w", err)
	}

	staged := make([][]any, len(rows))
	keys := make([]string, len(rows))
	pkPos := primaryKeyPositions(t)
	for i, row := range rows {
		values := make([]any, 0, len(row)+1)
		values = append(values, int32(i))
		for _, v := range row {
			values = append(values, toStorage(v))
		}
		staged[i] = values

		key := make([]any, len(pkPos))
		for k, pos := range pkPos {
			key[k] = toStorage(row[pos])
		}
		keys[i] = dataset.Key(key...)
	}

	columns := append([]string{positionColumn}, t.ColumnNames()...)
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stagingTable}, columns, pgx.CopyFromRows(staged)); err != nil {
		return nil, fmt.Errorf("failed to copy rows: %w", err)
	}

	result, err := tx.Query(ctx, mergeSQL(t))
	if err != nil {
		return nil, fmt.Errorf("failed to merge rows: %w", err)
	}
	inserted := make(map[string]int)
	for result.Next() {
		values, err := result.Values()
		if err != nil {
			result.Close()
			return nil, err
		}
		inserted[dataset.Key(values...)]++
	}
	result.Close()
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to merge rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	// Rows were merged in position order, so the first row of each
	// returned key is the one that was inserted.
	var rejected []int
	for i, key := range keys {
		if inserted[key] > 0 {
			inserted[key]--
			continue
		}
		rejected = append(rejected, i)
	}
	return rejected, nil
}

func primaryKeyPositions(t *warehouse.Table) []int {
	positions := make([]int, 0, len(t.PrimaryKey))
	for _, pk := range t.PrimaryKey {
		for j, c := range t.Columns {
			if c.Name == pk {
				positions = append(positions, j)
			}
		}
	}
	return positions
}

func (w *Warehouse) columnType(table, column string) dataset.Type {
	if t, ok := w.schema.Table(table); ok {
		if c, ok := t.Column(column); ok {
			return c.Type
		}
	}
	return dataset.String
}

// ColumnValues implements warehouse.Handle.
func (w *Warehouse) ColumnValues(ctx context.Context, table, column string) ([]any, error) {
	typ := w.columnType(table, column)
	rows, err := w.pool.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", quote(column), quote(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []any
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return nil, err
		}
		v, err := dataset.Coerce(raw[0], typ)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Count implements warehouse.Handle.
func (w *Warehouse) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := w.pool.QueryRow(ctx, "SELECT count(*) FROM "+quote(table)).Scan(&n)
	return n, err
}

// Scan implements warehouse.Handle.
func (w *Warehouse) Scan(ctx context.Context, t *warehouse.Table) (*dataset.Dataset, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		quoteAll(t.ColumnNames()), quote(t.Name), quoteAll(t.PrimaryKey))
	rows, err := w.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []dataset.Record
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rec := make(dataset.Record, len(t.Columns))
		for i, c := range t.Columns {
			v, err := dataset.Coerce(raw[i], c.Type)
			if err != nil {
				return nil, err
			}
			rec[c.Name] = v
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dataset.New(t.DatasetColumns(), records)
}

// RecordSchema implements warehouse.Ledger.
func (w *Warehouse) RecordSchema(ctx context.Context, s *warehouse.Schema) error {
	return SaveSchemaMetadata(ctx, w.pool, s)
}

// RecordLoad implements warehouse.Ledger.
func (w *Warehouse) RecordLoad(ctx context.Context, table string, res warehouse.LoadResult) error {
	return SaveLoadMetadata(ctx, w.pool, table, res)
}
