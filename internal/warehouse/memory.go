package warehouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
)

// MemoryHandle is an in-process warehouse. It enforces primary-key
// uniqueness and is safe for concurrent use.
type MemoryHandle struct {
	mu       sync.RWMutex
	tables   map[string]*memTable
	metadata map[string]string
}

type memTable struct {
	def  *Table
	pk   []int
	keys map[string]struct{}
	rows [][]any
}

// NewMemoryHandle returns an empty in-process warehouse.
func NewMemoryHandle() *MemoryHandle {
	return &MemoryHandle{
		tables:   make(map[string]*memTable),
		metadata: make(map[string]string),
	}
}

// DropTable implements Handle.
func (m *MemoryHandle) DropTable(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, name)
	return nil
}

// CreateTable implements Handle.
func (m *MemoryHandle) CreateTable(ctx context.Context, t *Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[t.Name]; ok {
		return fmt.Errorf("table %s already exists", t.Name)
	}
	mt := &memTable{def: t, keys: make(map[string]struct{})}
	for _, pk := range t.PrimaryKey {
		pos := -1
		for i, c := range t.Columns {
			if c.Name == pk {
				pos = i
			}
		}
		if pos < 0 {
			return fmt.Errorf("primary key column %s not defined", pk)
		}
		mt.pk = append(mt.pk, pos)
	}
	m.tables[t.Name] = mt
	return nil
}

// Insert implements Handle.
func (m *MemoryHandle) Insert(ctx context.Context, t *Table, rows [][]any) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, ok := m.tables[t.Name]
	if !ok {
		return nil, fmt.Errorf("table %s does not exist", t.Name)
	}

	var rejected []int
	for i, row := range rows {
		if len(row) != len(mt.def.Columns) {
			return rejected, fmt.Errorf("row %d has %d values, table has %d columns",
				i, len(row), len(mt.def.Columns))
		}
		key := mt.key(row)
		if _, dup := mt.keys[key]; dup {
			rejected = append(rejected, i)
			continue
		}
		mt.keys[key] = struct{}{}
		mt.rows = append(mt.rows, append([]any(nil), row...))
	}
	return rejected, nil
}

func (mt *memTable) key(row []any) string {
	values := make([]any, len(mt.pk))
	for i, pos := range mt.pk {
		values[i] = row[pos]
	}
	return dataset.Key(values...)
}

// ColumnValues implements Handle.
func (m *MemoryHandle) ColumnValues(ctx context.Context, table, column string) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	mt, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("table %s does not exist", table)
	}
	pos := -1
	for i, c := range mt.def.Columns {
		if c.Name == column {
			pos = i
		}
	}
	if pos < 0 {
		return nil, fmt.Errorf("%w: %s.%s", dataset.ErrColumnNotFound, table, column)
	}

	values := make([]any, len(mt.rows))
	for i, row := range mt.rows {
		values[i] = row[pos]
	}
	return values, nil
}

// Count implements Handle.
func (m *MemoryHandle) Count(ctx context.Context, table string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	mt, ok := m.tables[table]
	if !ok {
		return 0, fmt.Errorf("table %s does not exist", table)
	}
	return int64(len(mt.rows)), nil
}

// Scan implements Handle.
func (m *MemoryHandle) Scan(ctx context.Context, t *Table) (*dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	mt, ok := m.tables[t.Name]
	if !ok {
		return nil, fmt.Errorf("table %s does not exist", t.Name)
	}
	records := make([]dataset.Record, len(mt.rows))
	for i, row := range mt.rows {
		rec := make(dataset.Record, len(row))
		for j, c := range mt.def.Columns {
			rec[c.Name] = row[j]
		}
		records[i] = rec
	}
	return dataset.New(mt.def.DatasetColumns(), records)
}

// RecordSchema implements Ledger.
func (m *MemoryHandle) RecordSchema(ctx context.Context, s *Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata["schema_created_at"] = time.Now().UTC().Format(time.RFC3339)
	for _, t := range s.Tables {
		delete(m.metadata, "load."+t.Name)
	}
	return nil
}

// RecordLoad implements Ledger.
func (m *MemoryHandle) RecordLoad(ctx context.Context, table string, res LoadResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata["load."+table] = res.String()
	return nil
}

// Metadata returns a copy of the recorded ledger entries.
func (m *MemoryHandle) Metadata() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.metadata))
	for k, v := range m.metadata {
		out[k] = v
	}
	return out
}
