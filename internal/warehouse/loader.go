//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/metrics"
)

// DefaultBatchSize is the number of rows handed to Handle.Insert at once.
const DefaultBatchSize = 1000

// LoadOrder is the order in which LoadAll loads tables.
var LoadOrder = []string{Customers, Products, Sales}

// LoadResult counts what happened to the rows of one load.
type LoadResult struct {
	Table            string
	Received         int
	DroppedMissing   int
	DroppedDuplicate int
	Inserted         int
	Rejected         int
	Orphans          int
}

func (r LoadResult) String() string {
	return fmt.Sprintf("received=%d dropped_missing=%d dropped_duplicate=%d inserted=%d rejected=%d orphans=%d",
		r.Received, r.DroppedMissing, r.DroppedDuplicate, r.Inserted, r.Rejected, r.Orphans)
}

// Loader appends cleaned datasets to warehouse tables.
type Loader struct {
	Schema *Schema

	// Mappings is used by LoadAll, keyed by table name. Tables without an
	// entry use the identity mapping.
	Mappings map[string]Mapping

	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
}

// NewLoader returns a loader for s using the default raw-file mappings.
func NewLoader(s *Schema) *Loader {
	return &Loader{
		Schema:    s,
		Mappings:  DefaultMappings(),
		BatchSize: DefaultBatchSize,
	}
}

// LoadTable appends ds to the named table.
//
// The mapping is bound before any row is read. Values are coerced to the
// column types, rows missing a required column are dropped, and rows
// repeating a primary key already seen in ds are dropped keeping the
// first. Rows whose key is already stored are rejected by the handle and
// reported through a *DuplicateKeyError together with the result; all
// other rows stay inserted. Foreign keys are checked last and orphans are
// only logged.
func (l *Loader) LoadTable(ctx context.Context, h Handle, table string, ds *dataset.Dataset, m Mapping) (LoadResult, error) {
	res := LoadResult{Table: table}
	if l.Schema == nil {
		return res, ErrSchemaDefinitionMissing
	}
	t, ok := l.Schema.Table(table)
	if !ok {
		return res, fmt.Errorf("%w: table %s is not defined", ErrSchemaDefinitionMissing, table)
	}

	start := time.Now()
	defer func() {
		metrics.LoadDuration.WithLabelValues(table).Observe(time.Since(start).Seconds())
	}()

	b, err := m.bind(t, ds)
	if err != nil {
		return res, err
	}

	rows, err := l.prepare(b, ds, &res)
	if err != nil {
		return res, err
	}

	dupErr, err := l.insert(ctx, h, t, rows, &res)
	if err != nil {
		return res, err
	}

	if err := l.checkForeignKeys(ctx, h, t, rows, &res); err != nil {
		return res, err
	}

	metrics.LoadRows.WithLabelValues(table, "inserted").Add(float64(res.Inserted))
	metrics.LoadRows.WithLabelValues(table, "rejected").Add(float64(res.Rejected))
	metrics.LoadRows.WithLabelValues(table, "dropped_missing").Add(float64(res.DroppedMissing))
	metrics.LoadRows.WithLabelValues(table, "dropped_duplicate").Add(float64(res.DroppedDuplicate))
	metrics.LoadRows.WithLabelValues(table, "orphan").Add(float64(res.Orphans))

	if ledger, ok := h.(Ledger); ok {
		if err := ledger.RecordLoad(ctx, table, res); err != nil {
			return res, &StorageError{Op: "record load", Table: table, Err: err}
		}
	}

	logging.Info().
		Str("table", table).
		Int("received", res.Received).
		Int("inserted", res.Inserted).
		Int("dropped_missing", res.DroppedMissing).
		Int("dropped_duplicate", res.DroppedDuplicate).
		Int("rejected", res.Rejected).
		Int("orphans", res.Orphans).
		Msg("Loaded table")

	if dupErr != nil {
		return res, dupErr
	}
	return res, nil
}

// prepare builds insertable rows in table column order.
func (l *Loader) prepare(b *binding, ds *dataset.Dataset, res *LoadResult) ([][]any, error) {
	t := b.table
	res.Received = ds.Len()

	pkPos := make([]int, len(t.PrimaryKey))
	for i, pk := range t.PrimaryKey {
		for j, c := range t.Columns {
			if c.Name == pk {
				pkPos[i] = j
			}
		}
	}

	seen := make(map[string]struct{}, ds.Len())
	rows := make([][]any, 0, ds.Len())

	for i, rec := range ds.Records() {
		row := make([]any, len(t.Columns))
		complete := true
		for j, c := range t.Columns {
			src := b.sources[j]
			if src == "" {
				continue
			}
			v, err := dataset.Coerce(rec[src], c.Type)
			if err != nil {
				var ce *dataset.TypeCoercionError
				if errors.As(err, &ce) {
					ce.Column, ce.Row = c.Name, i
					return nil, ce
				}
				return nil, err
			}
			row[j] = v
			if c.Required && dataset.Missing(v) {
				complete = false
			}
		}
		if !complete {
			res.DroppedMissing++
			continue
		}

		keyValues := make([]any, len(pkPos))
		for k, pos := range pkPos {
			keyValues[k] = row[pos]
		}
		key := dataset.Key(keyValues...)
		if _, dup := seen[key]; dup {
			res.DroppedDuplicate++
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, row)
	}
	return rows, nil
}

// insert appends rows in batches. Rejected keys are returned as a
// *DuplicateKeyError; a handle failure is returned as a *StorageError.
func (l *Loader) insert(ctx context.Context, h Handle, t *Table, rows [][]any, res *LoadResult) (*DuplicateKeyError, error) {
	batchSize := l.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var dup *DuplicateKeyError
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		batch := rows[start:end]

		rejected, err := h.Insert(ctx, t, batch)
		if err != nil {
			return nil, &StorageError{Op: "insert into", Table: t.Name, Err: err}
		}
		res.Inserted += len(batch) - len(rejected)
		res.Rejected += len(rejected)

		for _, pos := range rejected {
			if dup == nil {
				dup = &DuplicateKeyError{Table: t.Name}
			}
			dup.Keys = append(dup.Keys, primaryKeyValue(t, batch[pos]))
		}

		logging.Debug().
			Str("table", t.Name).
			Int("rows", end).
			Int("total", len(rows)).
			Msg("Insert progress")
	}
	return dup, nil
}

func primaryKeyValue(t *Table, row []any) any {
	values := make([]any, 0, len(t.PrimaryKey))
	for _, pk := range t.PrimaryKey {
		for j, c := range t.Columns {
			if c.Name == pk {
				values = append(values, row[j])
			}
		}
	}
	if len(values) == 1 {
		return values[0]
	}
	return values
}

// checkForeignKeys counts rows whose foreign key has no match in the
// referenced table and logs them.
func (l *Loader) checkForeignKeys(ctx context.Context, h Handle, t *Table, rows [][]any, res *LoadResult) error {
	for _, fk := range t.ForeignKeys {
		ref, ok := l.Schema.Table(fk.Table)
		if !ok || len(ref.PrimaryKey) != 1 {
			continue
		}
		values, err := h.ColumnValues(ctx, ref.Name, ref.PrimaryKey[0])
		if err != nil {
			return &StorageError{Op: "read keys of", Table: ref.Name, Err: err}
		}
		known := make(map[string]struct{}, len(values))
		for _, v := range values {
			known[dataset.Key(v)] = struct{}{}
		}

		pos := -1
		for j, c := range t.Columns {
			if c.Name == fk.Column {
				pos = j
			}
		}

		var orphans int
		var sample []string
		for _, row := range rows {
			v := row[pos]
			if dataset.Missing(v) {
				continue
			}
			if _, ok := known[dataset.Key(v)]; !ok {
				orphans++
				if len(sample) < 5 {
					sample = append(sample, dataset.Format(v))
				}
			}
		}
		if orphans > 0 {
			res.Orphans += orphans
			logging.Warn().
				Str("table", t.Name).
				Str("column", fk.Column).
				Str("references", fk.Table).
				Int("orphans", orphans).
				Strs("sample", sample).
				Msg("Rows reference missing keys")
		}
	}
	return nil
}

// LoadAll loads batches in LoadOrder and stops at the first failure.
// Tables without a batch are skipped.
func (l *Loader) LoadAll(ctx context.Context, h Handle, batches map[string]*dataset.Dataset) ([]LoadResult, error) {
	var results []LoadResult
	for _, table := range LoadOrder {
		ds, ok := batches[table]
		if !ok {
			logging.Debug().Str("table", table).Msg("No batch to load")
			continue
		}
		m, ok := l.Mappings[table]
		if !ok {
			m = NewMapping()
		}
		res, err := l.LoadTable(ctx, h, table, ds, m)
		results = append(results, res)
		if err != nil {
			return results, fmt.Errorf("load %s: %w", table, err)
		}
	}
	return results, nil
}
